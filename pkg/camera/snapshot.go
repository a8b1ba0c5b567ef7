// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package camera

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Snapshot formats
const (
	FormatCBOR = "cbor"
	FormatYAML = "yaml"
)

const maxSnapshotDepth = 4

// Snapshot is a copy of the camera's settings tree
type Snapshot struct {
	TakenAt  time.Time       `cbor:"1,keyasint" yaml:"taken_at"`
	Device   DeviceInfo      `cbor:"2,keyasint" yaml:"device"`
	Settings []SnapshotEntry `cbor:"3,keyasint" yaml:"settings"`
}

// SnapshotEntry is one setting with its parent and, when readable, its detail
type SnapshotEntry struct {
	Parent  uint8          `cbor:"1,keyasint" yaml:"parent"`
	Setting Setting        `cbor:"2,keyasint" yaml:"setting"`
	Detail  *SettingDetail `cbor:"3,keyasint,omitempty" yaml:"detail,omitempty"`
}

// TakeSnapshot walks the settings tree from the root, descending into folders
func (d *Device) TakeSnapshot() (*Snapshot, error) {
	snap := &Snapshot{TakenAt: time.Now().UTC(), Device: d.Info()}
	visited := map[uint8]bool{}
	if err := d.walkSettings(snap, RootSettingID, 0, visited); err != nil {
		return nil, err
	}
	return snap, nil
}

func (d *Device) walkSettings(snap *Snapshot, parent uint8, depth int, visited map[uint8]bool) error {
	settings, err := d.GetSettings(parent)
	if err != nil {
		return err
	}

	for _, s := range settings {
		entry := SnapshotEntry{Parent: parent, Setting: s}
		detail, err := d.GetSettingDetail(s.ID)
		if err != nil {
			d.log.WithError(err).WithField("setting", s.ID).Warn("setting detail unavailable")
		} else {
			entry.Detail = detail
		}
		snap.Settings = append(snap.Settings, entry)

		if detail != nil && detail.Type == SettingFolder && s.ID != RootSettingID && !visited[s.ID] && depth < maxSnapshotDepth {
			visited[s.ID] = true
			if err := d.walkSettings(snap, s.ID, depth+1, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// SnapshotFormat picks the encoding from a file name extension
func SnapshotFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cbor", ".bin":
		return FormatCBOR, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown snapshot format for %q (use .cbor or .yaml)", path)
	}
}

// EncodeSnapshot serialises a snapshot
func EncodeSnapshot(snap *Snapshot, format string) ([]byte, error) {
	switch format {
	case FormatCBOR:
		em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
		if err != nil {
			return nil, err
		}
		return em.Marshal(snap)
	case FormatYAML:
		return yaml.Marshal(snap)
	default:
		return nil, fmt.Errorf("unknown snapshot format %q", format)
	}
}

// DecodeSnapshot parses a serialised snapshot
func DecodeSnapshot(data []byte, format string) (*Snapshot, error) {
	snap := &Snapshot{}
	var err error
	switch format {
	case FormatCBOR:
		err = cbor.Unmarshal(data, snap)
	case FormatYAML:
		err = yaml.Unmarshal(data, snap)
	default:
		return nil, fmt.Errorf("unknown snapshot format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s snapshot: %w", format, err)
	}
	return snap, nil
}
