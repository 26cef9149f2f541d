// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package radio

import (
	"encoding/binary"
	"strconv"
)

// EncodeCO2 is little-endian ppm, or decimal ASCII for clients that show
// raw characteristic values.
func EncodeCO2(co2 uint16, asString bool) []byte {
	if asString {
		return []byte(strconv.Itoa(int(co2)))
	}
	return binary.LittleEndian.AppendUint16(nil, co2)
}

// EncodeTemperature is centidegrees as a little-endian sint16.
func EncodeTemperature(c float64) []byte {
	return binary.LittleEndian.AppendUint16(nil, uint16(int16(c*100)))
}

// EncodeHumidity is centipercent as a little-endian uint32.
func EncodeHumidity(rh float64) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(rh*100))
}

// EncodeElevation is centimetres as a little-endian sint32.
func EncodeElevation(m float64) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(int32(m*100)))
}

// EncodePressure is decipascals as a little-endian uint32.
func EncodePressure(pa float64) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(pa*10))
}
