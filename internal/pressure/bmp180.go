// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pressure

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/airnode/internal/i2cbus"
)

// BMP180Address is the fixed address of the BMP085/BMP180 family.
const BMP180Address uint16 = 0x77

const (
	regCalibration = 0xaa
	regControl     = 0xf4
	regResult      = 0xf6

	ctrlTemperature = 0x2e
	ctrlPressure    = 0x34

	temperatureSettle = 5 * time.Millisecond
)

// Calibration holds the factory coefficients of one BMP180, in register order.
type Calibration struct {
	AC1, AC2, AC3 int16
	AC4, AC5, AC6 uint16
	B1, B2        int16
	MB, MC, MD    int16
}

// ErrInvalidReading is returned when a raw reading and the calibration table
// cannot be compensated, which only happens with corrupted data.
var ErrInvalidReading = errors.New("bmp180: invalid reading")

// b5 is the intermediate temperature term that also feeds the pressure formula.
func (c *Calibration) b5(ut int32) (int32, error) {
	x1 := (ut - int32(c.AC6)) * int32(c.AC5) >> 15
	d := x1 + int32(c.MD)
	if d == 0 {
		return 0, errors.Wrapf(ErrInvalidReading, "raw temperature 0x%04x", ut)
	}
	return x1 + (int32(c.MC)<<11)/d, nil
}

// Temperature compensates a raw temperature reading into tenths of °C.
func (c *Calibration) Temperature(ut int32) (int32, error) {
	b5, err := c.b5(ut)
	if err != nil {
		return 0, err
	}
	return (b5 + 8) >> 4, nil
}

// Pressure compensates a raw pressure reading taken at oversampling oss,
// given the raw temperature read just before it. The result is in Pa.
func (c *Calibration) Pressure(ut, up int32, oss uint) (int32, error) {
	b5, err := c.b5(ut)
	if err != nil {
		return 0, err
	}
	b6 := b5 - 4000
	x1 := (int32(c.B2) * (b6 * b6 >> 12)) >> 11
	x2 := int32(c.AC2) * b6 >> 11
	x3 := x1 + x2
	b3 := (((int32(c.AC1)*4 + x3) << oss) + 2) / 4

	x1 = int32(c.AC3) * b6 >> 13
	x2 = (int32(c.B1) * (b6 * b6 >> 12)) >> 16
	x3 = (x1 + x2 + 2) >> 2
	b4 := uint32(c.AC4) * uint32(x3+32768) >> 15
	if b4 == 0 {
		return 0, errors.Wrapf(ErrInvalidReading, "raw pressure 0x%06x", up)
	}
	b7 := uint32(up-b3) * (50000 >> oss)

	var p int32
	if b7 < 0x80000000 {
		p = int32(b7 * 2 / b4)
	} else {
		p = int32(b7 / b4 * 2)
	}

	x1 = (p >> 8) * (p >> 8)
	x1 = (x1 * 3038) >> 16
	x2 = (-7357 * p) >> 16
	return p + (x1+x2+3791)>>4, nil
}

// BMP180 is a Bosch BMP085/BMP180 barometer. The calibration table is read
// once by Init and never again.
type BMP180 struct {
	t    *i2cbus.Transport
	addr uint16

	mu  sync.Mutex
	oss uint

	once    sync.Once
	initErr error
	cal     Calibration
}

// NewBMP180 returns a driver using oversampling level oss (0..3) for
// ReadPressure. Init must be called before reading.
func NewBMP180(t *i2cbus.Transport, oss int) *BMP180 {
	b := &BMP180{t: t, addr: BMP180Address}
	b.SetOversampling(oss)
	return b
}

// Init reads the 11 calibration registers. A word reading 0x0000 or 0xffff
// fails Init.
func (b *BMP180) Init() error {
	b.once.Do(func() {
		b.initErr = b.readCalibration()
	})
	return b.initErr
}

// Calibration returns the coefficients read by Init.
func (b *BMP180) Calibration() Calibration {
	return b.cal
}

// SetOversampling selects the oversampling level used by ReadPressure.
// Values outside 0..3 are clamped.
func (b *BMP180) SetOversampling(oss int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.oss = uint(min(max(oss, 0), 3))
}

func (b *BMP180) readCalibration() error {
	words := make([]uint16, 11)
	for i := range words {
		r, err := b.t.SendAndRead(b.addr, []byte{byte(regCalibration + 2*i)}, 2, i2cbus.DefaultSettle)
		if err != nil {
			return errors.Wrapf(err, "bmp180: calibration register 0x%02x", regCalibration+2*i)
		}
		words[i] = uint16(r[0])<<8 | uint16(r[1])
		// Erased or floating registers read as all zeros or all ones.
		if words[i] == 0 || words[i] == 0xffff {
			return errors.Errorf("bmp180: calibration register 0x%02x reads 0x%04x", regCalibration+2*i, words[i])
		}
	}
	b.cal = Calibration{
		AC1: int16(words[0]), AC2: int16(words[1]), AC3: int16(words[2]),
		AC4: words[3], AC5: words[4], AC6: words[5],
		B1: int16(words[6]), B2: int16(words[7]),
		MB: int16(words[8]), MC: int16(words[9]), MD: int16(words[10]),
	}
	log.Debugf("bmp180: calibration %+v", b.cal)
	return nil
}

func (b *BMP180) rawTemperature() (int32, error) {
	if err := b.t.Send(b.addr, []byte{regControl, ctrlTemperature}, temperatureSettle); err != nil {
		return 0, errors.Wrap(err, "bmp180: start temperature")
	}
	r, err := b.t.SendAndRead(b.addr, []byte{regResult}, 2, i2cbus.DefaultSettle)
	if err != nil {
		return 0, errors.Wrap(err, "bmp180: read temperature")
	}
	return int32(r[0])<<8 | int32(r[1]), nil
}

// ReadTemperature returns the die temperature in °C.
func (b *BMP180) ReadTemperature() (float64, error) {
	ut, err := b.rawTemperature()
	if err != nil {
		return 0, err
	}
	t, err := b.cal.Temperature(ut)
	if err != nil {
		return 0, err
	}
	return float64(t) / 10, nil
}

// ReadPressureOversampled takes a fresh temperature reading, then a pressure
// reading at oversampling oss, and returns the compensated pressure in Pa.
func (b *BMP180) ReadPressureOversampled(oss int) (float64, error) {
	o := uint(min(max(oss, 0), 3))

	ut, err := b.rawTemperature()
	if err != nil {
		return 0, err
	}
	settle := 5*time.Millisecond + time.Duration(o)*7*time.Millisecond
	if err := b.t.Send(b.addr, []byte{regControl, byte(ctrlPressure + o<<6)}, settle); err != nil {
		return 0, errors.Wrap(err, "bmp180: start pressure")
	}
	r, err := b.t.SendAndRead(b.addr, []byte{regResult}, 3, i2cbus.DefaultSettle)
	if err != nil {
		return 0, errors.Wrap(err, "bmp180: read pressure")
	}
	up := (int32(r[0])<<16 | int32(r[1])<<8 | int32(r[2])) >> (8 - o)
	p, err := b.cal.Pressure(ut, up, o)
	if err != nil {
		return 0, err
	}
	return float64(p), nil
}

// ReadPressure reads at the configured oversampling level.
func (b *BMP180) ReadPressure() (float64, error) {
	b.mu.Lock()
	oss := b.oss
	b.mu.Unlock()
	return b.ReadPressureOversampled(int(oss))
}

func (b *BMP180) String() string {
	return fmt.Sprintf("bmp180@0x%02x", b.addr)
}
