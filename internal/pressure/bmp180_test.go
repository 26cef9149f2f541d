// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pressure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/relabs-tech/airnode/internal/i2cbus"
)

// Coefficients from the worked example in the BMP180 datasheet.
var datasheet = Calibration{
	AC1: 408, AC2: -72, AC3: -14383,
	AC4: 32741, AC5: 32757, AC6: 23153,
	B1: 6190, B2: 4,
	MB: -32768, MC: -8711, MD: 2868,
}

// datasheetWords is datasheet as stored in the calibration registers.
var datasheetWords = []uint16{
	0x0198, 0xffb8, 0xc7d1, 0x7fe5, 0x7ff5, 0x5a71,
	0x182e, 0x0004, 0x8000, 0xddf9, 0x0b34,
}

// calibrationOps answers the 11 calibration register reads with datasheet.
func calibrationOps() []i2ctest.IO {
	return wordOps(datasheetWords)
}

func wordOps(words []uint16) []i2ctest.IO {
	var ops []i2ctest.IO
	for i, w := range words {
		ops = append(ops,
			i2ctest.IO{Addr: BMP180Address, W: []byte{byte(0xaa + 2*i)}},
			i2ctest.IO{Addr: BMP180Address, R: []byte{byte(w >> 8), byte(w)}},
		)
	}
	return ops
}

func getBMP180(t *testing.T, oss int, ops ...i2ctest.IO) (*BMP180, *i2ctest.Playback) {
	t.Helper()
	pb := &i2ctest.Playback{Ops: append(calibrationOps(), ops...), DontPanic: true}
	tr := i2cbus.New(pb)
	tr.Sleep = func(time.Duration) {}
	b := NewBMP180(tr, oss)
	require.NoError(t, b.Init())
	return b, pb
}

func TestDatasheetVector(t *testing.T) {
	c, err := datasheet.Temperature(27898)
	require.NoError(t, err)
	assert.Equal(t, int32(150), c)

	p, err := datasheet.Pressure(27898, 23843, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(69964), p)
}

func TestCompensationRejectsZeroDivisor(t *testing.T) {
	// 0x4f3d brings X1 to -MD with the datasheet coefficients.
	_, err := datasheet.Temperature(0x4f3d)
	assert.ErrorIs(t, err, ErrInvalidReading)
	_, err = datasheet.Pressure(0x4f3d, 23843, 0)
	assert.ErrorIs(t, err, ErrInvalidReading)

	_, err = (&Calibration{}).Pressure(27898, 23843, 0)
	assert.ErrorIs(t, err, ErrInvalidReading)

	noAC4 := datasheet
	noAC4.AC4 = 0
	_, err = noAC4.Pressure(27898, 23843, 0)
	assert.ErrorIs(t, err, ErrInvalidReading)
}

func TestReadTemperatureCorruptWord(t *testing.T) {
	b, _ := getBMP180(t, 0,
		i2ctest.IO{Addr: BMP180Address, W: []byte{0xf4, 0x2e}},
		i2ctest.IO{Addr: BMP180Address, W: []byte{0xf6}},
		i2ctest.IO{Addr: BMP180Address, R: []byte{0x4f, 0x3d}},
	)

	_, err := b.ReadTemperature()
	assert.ErrorIs(t, err, ErrInvalidReading)
}

func TestInitRejectsErasedCalibration(t *testing.T) {
	for _, bad := range []uint16{0x0000, 0xffff} {
		words := append([]uint16(nil), datasheetWords...)
		words[3] = bad
		pb := &i2ctest.Playback{Ops: wordOps(words[:4]), DontPanic: true}
		tr := i2cbus.New(pb)
		tr.Sleep = func(time.Duration) {}

		assert.Error(t, NewBMP180(tr, 0).Init(), "AC4 0x%04x", bad)
		assert.NoError(t, pb.Close())
	}
}

func TestDetectSkipsErasedCalibration(t *testing.T) {
	words := append([]uint16(nil), datasheetWords...)
	words[0] = 0xffff
	ops := append([]i2ctest.IO{{Addr: BMP180Address, R: []byte{0x00}}}, wordOps(words[:1])...)
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	tr := i2cbus.New(pb)
	tr.Sleep = func(time.Duration) {}

	// Nothing answers at the BMP280 address afterwards.
	_, err := Detect(tr, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInitReadsCalibrationOnce(t *testing.T) {
	b, pb := getBMP180(t, 0)

	// A second Init must not touch the bus: Close fails on extra transactions.
	require.NoError(t, b.Init())
	assert.Equal(t, datasheet, b.Calibration())
	assert.NoError(t, pb.Close())
}

func TestReadPressure(t *testing.T) {
	b, pb := getBMP180(t, 0,
		i2ctest.IO{Addr: BMP180Address, W: []byte{0xf4, 0x2e}},
		i2ctest.IO{Addr: BMP180Address, W: []byte{0xf6}},
		i2ctest.IO{Addr: BMP180Address, R: []byte{0x6c, 0xfa}},
		i2ctest.IO{Addr: BMP180Address, W: []byte{0xf4, 0x34}},
		i2ctest.IO{Addr: BMP180Address, W: []byte{0xf6}},
		i2ctest.IO{Addr: BMP180Address, R: []byte{0x5d, 0x23, 0x00}},
	)

	pa, err := b.ReadPressure()
	require.NoError(t, err)
	assert.Equal(t, 69964.0, pa)
	assert.NoError(t, pb.Close())
}

func TestReadPressureOversampledCommand(t *testing.T) {
	b, pb := getBMP180(t, 0,
		i2ctest.IO{Addr: BMP180Address, W: []byte{0xf4, 0x2e}},
		i2ctest.IO{Addr: BMP180Address, W: []byte{0xf6}},
		i2ctest.IO{Addr: BMP180Address, R: []byte{0x6c, 0xfa}},
		i2ctest.IO{Addr: BMP180Address, W: []byte{0xf4, 0xf4}},
		i2ctest.IO{Addr: BMP180Address, W: []byte{0xf6}},
		// 23843 << 5, since oss 3 shifts the raw value right by 5.
		i2ctest.IO{Addr: BMP180Address, R: []byte{0x0b, 0xa4, 0x60}},
	)

	pa, err := b.ReadPressureOversampled(3)
	require.NoError(t, err)
	want, err := datasheet.Pressure(27898, 23843, 3)
	require.NoError(t, err)
	assert.Equal(t, float64(want), pa)
	assert.NoError(t, pb.Close())
}

func TestReadTemperature(t *testing.T) {
	b, _ := getBMP180(t, 0,
		i2ctest.IO{Addr: BMP180Address, W: []byte{0xf4, 0x2e}},
		i2ctest.IO{Addr: BMP180Address, W: []byte{0xf6}},
		i2ctest.IO{Addr: BMP180Address, R: []byte{0x6c, 0xfa}},
	)

	c, err := b.ReadTemperature()
	require.NoError(t, err)
	assert.Equal(t, 15.0, c)
}

func TestReadPressureBusFailure(t *testing.T) {
	b, _ := getBMP180(t, 0,
		i2ctest.IO{Addr: BMP180Address, W: []byte{0xf4, 0x2e}},
		i2ctest.IO{Addr: BMP180Address, W: []byte{0xf6}},
	)

	_, err := b.ReadPressure()
	assert.ErrorIs(t, err, i2cbus.ErrBusFailure)
}

func TestSetOversamplingClamps(t *testing.T) {
	b := NewBMP180(i2cbus.New(&i2ctest.Playback{}), 7)
	assert.Equal(t, uint(3), b.oss)
	b.SetOversampling(-1)
	assert.Equal(t, uint(0), b.oss)
}
