// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingKeepsLastN(t *testing.T) {
	r := NewRing(3)
	assert.Len(t, r.Bytes(), 7)

	r.Push(false, 400)
	r.Push(false, 500)
	r.Push(false, 600)
	r.Push(true, 700)

	assert.Equal(t, []uint16{500, 600, 700}, r.Values())
	assert.True(t, r.LowPower())
	assert.Equal(t, []byte{0x01, 0x01, 0xf4, 0x02, 0x58, 0x02, 0xbc}, r.Bytes())
	assert.Len(t, r.Bytes(), 7)
}

func TestRingStartsZeroed(t *testing.T) {
	r := NewRing(2)
	r.Push(false, 0x1234)

	assert.Equal(t, []uint16{0, 0x1234}, r.Values())
	assert.False(t, r.LowPower())
}

func TestRingBytesIsCopy(t *testing.T) {
	r := NewRing(1)
	b := r.Bytes()
	b[0] = 0xff
	assert.False(t, r.LowPower())
}
