// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package history

import (
	"encoding/binary"
	"sync"
)

// Ring holds the last N CO2 values behind a mode byte, in the layout served
// verbatim over the radio: 1 byte low-power flag, then N big-endian uint16,
// oldest first. Its length never changes.
type Ring struct {
	mu  sync.Mutex
	buf []byte
}

// NewRing returns a zero-filled ring of size samples.
func NewRing(size int) *Ring {
	return &Ring{buf: make([]byte, 1+2*size)}
}

// Push drops the oldest sample, appends co2 and rewrites the mode byte.
func (r *Ring) Push(lowPower bool, co2 uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lowPower {
		r.buf[0] = 1
	} else {
		r.buf[0] = 0
	}
	if len(r.buf) < 3 {
		return
	}
	copy(r.buf[1:], r.buf[3:])
	binary.BigEndian.PutUint16(r.buf[len(r.buf)-2:], co2)
}

// Bytes returns a copy of the raw buffer.
func (r *Ring) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.buf...)
}

// Values decodes the samples, oldest first.
func (r *Ring) Values() []uint16 {
	b := r.Bytes()
	v := make([]uint16, 0, (len(b)-1)/2)
	for i := 1; i+1 < len(b); i += 2 {
		v = append(v, binary.BigEndian.Uint16(b[i:]))
	}
	return v
}

// LowPower reports the mode byte.
func (r *Ring) LowPower() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf[0] != 0
}

// Size is the capacity in samples.
func (r *Ring) Size() int { return (len(r.buf) - 1) / 2 }
