// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pressure

import (
	"fmt"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

// BMP280Address is the default address of a BMP280 with SDO tied low.
const BMP280Address uint16 = 0x76

// BMP280 adapts the periph bmxx80 driver to Sensor.
type BMP280 struct {
	dev  *bmxx80.Dev
	addr uint16
}

// oversampling maps the BMP180 levels 0..3 onto the bmxx80 settings.
var oversampling = [...]bmxx80.Oversampling{bmxx80.O1x, bmxx80.O2x, bmxx80.O4x, bmxx80.O8x}

// NewBMP280 opens the device at addr. bus is normally the shared
// *i2cbus.Transport so transactions stay serialised.
func NewBMP280(bus i2c.Bus, addr uint16, oss int) (*BMP280, error) {
	opts := bmxx80.DefaultOpts
	opts.Pressure = oversampling[min(max(oss, 0), 3)]
	opts.Humidity = bmxx80.Off

	dev, err := bmxx80.NewI2C(bus, addr, &opts)
	if err != nil {
		return nil, errors.Wrapf(err, "bmp280 init at 0x%02x", addr)
	}
	return &BMP280{dev: dev, addr: addr}, nil
}

// ReadPressure returns pressure in Pa.
func (b *BMP280) ReadPressure() (float64, error) {
	var e physic.Env
	if err := b.dev.Sense(&e); err != nil {
		return 0, errors.Wrap(err, "bmp280 sense")
	}
	return float64(e.Pressure) / float64(physic.Pascal), nil
}

// ReadTemperature returns the die temperature in °C.
func (b *BMP280) ReadTemperature() (float64, error) {
	var e physic.Env
	if err := b.dev.Sense(&e); err != nil {
		return 0, errors.Wrap(err, "bmp280 sense")
	}
	return e.Temperature.Celsius(), nil
}

func (b *BMP280) String() string {
	return fmt.Sprintf("bmp280@0x%02x", b.addr)
}
