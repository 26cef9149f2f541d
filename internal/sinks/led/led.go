// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package led drives the CO2 warning LED.
package led

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// LED is a GPIO output. Writes are skipped when the level does not change.
type LED struct {
	pin gpio.PinOut

	mu    sync.Mutex
	level gpio.Level
	known bool
}

// Open looks the pin up by name and switches it off. host.Init must have run.
func Open(name string) (*LED, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("gpio %q not found", name)
	}
	l := New(p)
	if err := l.Set(false); err != nil {
		return nil, err
	}
	return l, nil
}

// New wraps pin.
func New(pin gpio.PinOut) *LED {
	return &LED{pin: pin}
}

// Set drives the pin high when on.
func (l *LED) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	level := gpio.Level(on)
	if l.known && level == l.level {
		return nil
	}
	if err := l.pin.Out(level); err != nil {
		return errors.Wrapf(err, "led %s", l.pin)
	}
	log.Debugf("led: %s -> %s", l.pin, level)
	l.level, l.known = level, true
	return nil
}
