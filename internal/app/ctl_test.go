// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/relabs-tech/airnode/internal/i2cbus"
	"github.com/relabs-tech/airnode/internal/scd4x"
)

func ctlOn(t *testing.T, ops ...i2ctest.IO) (*Ctl, *bytes.Buffer, *i2ctest.Playback) {
	t.Helper()
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	tr := i2cbus.New(pb)
	tr.Sleep = func(time.Duration) {}
	var out bytes.Buffer
	return NewCtl(scd4x.New(tr, nil), &out), &out, pb
}

func w(b ...byte) i2ctest.IO { return i2ctest.IO{Addr: scd4x.SensorAddress, W: b} }
func r(b ...byte) i2ctest.IO { return i2ctest.IO{Addr: scd4x.SensorAddress, R: b} }

func TestCtlSerial(t *testing.T) {
	c, out, pb := ctlOn(t,
		w(0x36, 0x82),
		r(0x73, 0xb1, 0x19, 0xeb, 0x07, 0x7a, 0x3b, 0x0c, 0x54),
	)
	require.NoError(t, c.ExecLine("serial"))
	assert.Equal(t, "serial: 0x73b1eb073b0c\n", out.String())
	assert.NoError(t, pb.Close())
}

func TestCtlFRC(t *testing.T) {
	// 400 ppm reference; the sensor answers 0x8005, a +5 ppm correction.
	c, out, pb := ctlOn(t,
		w(0x36, 0x2f, 0x01, 0x90, 0x4c),
		r(0x80, 0x05, 0x00),
	)
	require.NoError(t, c.Exec("frc", "400"))
	assert.Equal(t, "frc: correction +5 ppm\n", out.String())
	assert.NoError(t, pb.Close())
}

func TestCtlSelfTest(t *testing.T) {
	c, out, pb := ctlOn(t,
		w(0x36, 0x39),
		r(0x00, 0x00, 0x81),
	)
	require.NoError(t, c.Exec("selftest"))
	assert.Equal(t, "self test: passed\n", out.String())
	assert.NoError(t, pb.Close())
}

func TestCtlASC(t *testing.T) {
	c, out, pb := ctlOn(t,
		w(0x24, 0x16, 0x00, 0x00, 0x81),
		w(0x23, 0x13),
		r(0x00, 0x00, 0x81),
	)
	require.NoError(t, c.ExecLine("asc off"))
	assert.Equal(t, "asc: false\n", out.String())
	assert.NoError(t, pb.Close())
}

func TestCtlUsage(t *testing.T) {
	c, _, _ := ctlOn(t)

	err := c.Exec("frc")
	require.Error(t, err)
	assert.Equal(t, "usage: frc <ppm>", err.Error())

	assert.Error(t, c.Exec("asc", "maybe"))
	assert.Error(t, c.Exec("temp-offset", "-1"))
	assert.Error(t, c.Exec("launch"))
	assert.NoError(t, c.ExecLine("   "))
}

func TestCtlHelp(t *testing.T) {
	c, out, _ := ctlOn(t)
	require.NoError(t, c.ExecLine("help"))
	for _, v := range Verbs() {
		usage, _ := VerbHelp(v)
		assert.Contains(t, out.String(), usage)
	}
}
