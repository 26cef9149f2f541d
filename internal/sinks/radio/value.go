// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package radio

import "sync"

// value is the current bytes of one characteristic plus the notify
// subscriptions of connected centrals.
type value struct {
	mu   sync.Mutex
	b    []byte
	subs map[chan []byte]struct{}
}

func newValue(b []byte) *value {
	return &value{b: b, subs: make(map[chan []byte]struct{})}
}

func (v *value) get() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.b...)
}

// set stores b and, when notify is true, offers it to every subscriber.
// A subscriber that has not consumed the previous value misses this one.
func (v *value) set(b []byte, notify bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.b = append([]byte(nil), b...)
	if !notify {
		return
	}
	for ch := range v.subs {
		select {
		case ch <- v.b:
		default:
		}
	}
}

func (v *value) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)
	v.mu.Lock()
	v.subs[ch] = struct{}{}
	v.mu.Unlock()
	return ch, func() {
		v.mu.Lock()
		delete(v.subs, ch)
		v.mu.Unlock()
	}
}
