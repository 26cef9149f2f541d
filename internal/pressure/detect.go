// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pressure

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/airnode/internal/i2cbus"
)

// ErrNotFound is returned by Detect when no barometer answers.
var ErrNotFound = errors.New("no pressure sensor found")

// Detect probes for a BMP180 at 0x77, then a BMP280 at 0x76, and returns the
// first one that answers and initialises. oss is the oversampling level.
func Detect(t *i2cbus.Transport, oss int) (Sensor, error) {
	if t.Probe(BMP180Address) {
		b := NewBMP180(t, oss)
		if err := b.Init(); err != nil {
			log.Warnf("pressure: %s answered but calibration failed: %v", b, err)
		} else {
			log.Infof("pressure: found %s", b)
			return b, nil
		}
	}
	if t.Probe(BMP280Address) {
		b, err := NewBMP280(t, BMP280Address, oss)
		if err != nil {
			log.Warnf("pressure: device at 0x%02x answered but init failed: %v", BMP280Address, err)
			return nil, err
		}
		log.Infof("pressure: found %s", b)
		return b, nil
	}
	return nil, ErrNotFound
}

// Oversampled is implemented by sensors whose oversampling can change at runtime.
type Oversampled interface {
	SetOversampling(oss int)
}
