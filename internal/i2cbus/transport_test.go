// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package i2cbus

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func newTestTransport(ops []i2ctest.IO) (*Transport, *i2ctest.Playback, *[]time.Duration) {
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	var slept []time.Duration
	tr := New(pb)
	tr.Sleep = func(d time.Duration) { slept = append(slept, d) }
	return tr, pb, &slept
}

func TestSendWaitsSettle(t *testing.T) {
	tr, pb, slept := newTestTransport([]i2ctest.IO{
		{Addr: 0x62, W: []byte{0x3f, 0x86}},
	})

	require.NoError(t, tr.Send(0x62, []byte{0x3f, 0x86}, 500*time.Millisecond))
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, *slept)
	assert.NoError(t, pb.Close())
}

func TestSendAndReadTwoTransactions(t *testing.T) {
	tr, pb, slept := newTestTransport([]i2ctest.IO{
		{Addr: 0x62, W: []byte{0xe4, 0xb8}},
		{Addr: 0x62, R: []byte{0x80, 0x06, 0x04}},
	})

	r, err := tr.SendAndRead(0x62, []byte{0xe4, 0xb8}, 3, DefaultSettle)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x06, 0x04}, r)
	assert.Equal(t, []time.Duration{DefaultSettle}, *slept)
	assert.NoError(t, pb.Close())
}

func TestReadFailureIsBusFailure(t *testing.T) {
	// The playback runs out of operations after the write, so the read fails
	// the way a NACK would.
	tr, _, _ := newTestTransport([]i2ctest.IO{
		{Addr: 0x62, W: []byte{0xec, 0x05}},
	})

	r, err := tr.SendAndRead(0x62, []byte{0xec, 0x05}, 9, DefaultSettle)
	assert.Nil(t, r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusFailure))
}

func TestWriteFailureSkipsSettle(t *testing.T) {
	tr, _, slept := newTestTransport(nil)

	err := tr.Send(0x62, []byte{0x36, 0x15}, 800*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusFailure))
	assert.Empty(t, *slept)
}

func TestScan(t *testing.T) {
	tr, _, _ := newTestTransport([]i2ctest.IO{
		{Addr: 0x62, R: []byte{0x00}},
		{Addr: 0x77, R: []byte{0x00}},
	})

	// 0x76 is absent: the playback rejects the address mismatch.
	assert.Equal(t, []uint16{0x62}, tr.Scan(0x62, 0x76))
}
