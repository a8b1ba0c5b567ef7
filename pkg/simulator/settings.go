// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator

import (
	"github.com/Thermoquad/camlink/pkg/camera"
)

// Setting ids of the simulated settings tree
const (
	SettingIDImage      = 20
	SettingIDBrightness = 21
	SettingIDExposure   = 22
	SettingIDNickname   = 23
	SettingIDVersion    = 24
)

// defaultSettings builds a small tree: the reserved display settings at the
// root, an image folder with numeric settings, a string and an info entry
func defaultSettings() map[uint8]*simSetting {
	root := uint8(camera.RootSettingID)
	return map[uint8]*simSetting{
		camera.SettingIDDisplayCharset: {parent: root, name: "Charset", detail: camera.SettingDetail{
			ID: camera.SettingIDDisplayCharset, Type: camera.SettingUint8, Value: 0, Min: 0, Max: 3, Step: 1,
		}},
		camera.SettingIDDisplayColumns: {parent: root, name: "Columns", detail: camera.SettingDetail{
			ID: camera.SettingIDDisplayColumns, Type: camera.SettingUint8, Value: 30, Min: 30, Max: 60, Step: 1,
		}},
		camera.SettingIDDisplayTVMode: {parent: root, name: "TV Mode", detail: camera.SettingDetail{
			ID: camera.SettingIDDisplayTVMode, Type: camera.SettingTextSelection, Value: 0,
			Selections: []string{"NTSC", "PAL"},
		}},
		SettingIDImage: {parent: root, name: "Image", detail: camera.SettingDetail{
			ID: SettingIDImage, Type: camera.SettingFolder,
		}},
		SettingIDBrightness: {parent: SettingIDImage, name: "Brightness", detail: camera.SettingDetail{
			ID: SettingIDBrightness, Type: camera.SettingInt16, Value: 0, Min: -100, Max: 100, Step: 5,
		}},
		SettingIDExposure: {parent: SettingIDImage, name: "Exposure", detail: camera.SettingDetail{
			ID: SettingIDExposure, Type: camera.SettingFloat, Value: 150, Min: -300, Max: 300, Step: 10, DecimalPoint: 2,
		}},
		SettingIDNickname: {parent: root, name: "Nickname", detail: camera.SettingDetail{
			ID: SettingIDNickname, Type: camera.SettingString, Text: "camlink", MaxStringSize: 16,
		}},
		SettingIDVersion: {parent: root, name: "Version", detail: camera.SettingDetail{
			ID: SettingIDVersion, Type: camera.SettingInfo, Text: "2.4.1",
		}},
	}
}
