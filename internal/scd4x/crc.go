// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package scd4x

// CRC8 is the Sensirion checksum: polynomial 0x31, init 0xff, MSB first, no
// final XOR.
func CRC8(data []byte) byte {
	crc := byte(0xff)
	for _, b := range data {
		crc ^= b
		for range 8 {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// params encodes one 16-bit parameter word followed by its CRC.
func params(word uint16) []byte {
	b := []byte{byte(word >> 8), byte(word)}
	return append(b, CRC8(b))
}

// wordsValid checks the CRC trailing each 2-byte word of a response.
func wordsValid(r []byte) bool {
	for i := 0; i+2 < len(r); i += 3 {
		if CRC8(r[i:i+2]) != r[i+2] {
			return false
		}
	}
	return true
}
