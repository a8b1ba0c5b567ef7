// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rcdevice

import (
	"fmt"
	"strings"

	"github.com/sigurn/crc8"
)

// CRC-8 with polynomial 0x31, MSB first, zero initial value, no reflection
// and no final xor. Legacy frames always use it; V2 frames use it unless
// CRCDVBS2 is selected.
var crc8Poly31 = crc8.Params{
	Poly:   0x31,
	Init:   0x00,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xA2,
	Name:   "CRC-8/POLY31",
}

var (
	poly31Table = crc8.MakeTable(crc8Poly31)
	dvbS2Table  = crc8.MakeTable(crc8.CRC8_DVB_S2)
)

// CRCAlgorithm selects the checksum carried by V2 frames
type CRCAlgorithm uint8

const (
	// CRCPoly31 is the shift-xor CRC-8 with polynomial 0x31
	CRCPoly31 CRCAlgorithm = iota
	// CRCDVBS2 is CRC-8/DVB-S2 (polynomial 0xD5), spoken by OpenTCO firmware
	CRCDVBS2
)

// String returns the algorithm's configuration name
func (a CRCAlgorithm) String() string {
	switch a {
	case CRCDVBS2:
		return "dvb-s2"
	default:
		return "poly31"
	}
}

// ParseCRCAlgorithm parses a configuration name. Empty selects CRCPoly31.
func ParseCRCAlgorithm(s string) (CRCAlgorithm, error) {
	switch strings.ToLower(s) {
	case "", "poly31":
		return CRCPoly31, nil
	case "dvb-s2":
		return CRCDVBS2, nil
	default:
		return 0, fmt.Errorf("unknown crc algorithm %q", s)
	}
}

func (a CRCAlgorithm) table() *crc8.Table {
	if a == CRCDVBS2 {
		return dvbS2Table
	}
	return poly31Table
}

// Checksum calculates the algorithm's CRC over data
func (a CRCAlgorithm) Checksum(data []byte) uint8 {
	return crc8.Checksum(data, a.table())
}

// Update folds data into a running CRC value
func (a CRCAlgorithm) Update(crc uint8, data []byte) uint8 {
	return crc8.Update(crc, data, a.table())
}

// LegacyCRC calculates the legacy protocol CRC over data
func LegacyCRC(data []byte) uint8 {
	return crc8.Checksum(data, poly31Table)
}

// V2CRC calculates the default V2 frame CRC over data
func V2CRC(data []byte) uint8 {
	return CRCPoly31.Checksum(data)
}

// DVBS2CRC calculates the CRC-8/DVB-S2 checksum
func DVBS2CRC(data []byte) uint8 {
	return CRCDVBS2.Checksum(data)
}

// CalculateCRC calculates the default checksum of data for the given generation
func CalculateCRC(gen Generation, data []byte) uint8 {
	if gen == GenerationLegacy {
		return LegacyCRC(data)
	}
	return V2CRC(data)
}
