// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package history

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSessions(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Header(Temperature, false))
	buf.Write(Encode(Temperature, 25))
	buf.Write(Encode(Temperature, -5.5))
	buf.Write(Header(Temperature, true))
	buf.Write(Encode(Temperature, 21.5))

	sessions, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, Temperature, sessions[0].Kind)
	assert.False(t, sessions[0].LowPower)
	assert.Equal(t, []float64{25, -5.5}, sessions[0].Values)
	assert.Equal(t, 5*time.Second, sessions[0].Offset(1))

	assert.True(t, sessions[1].LowPower)
	assert.Equal(t, []float64{21.5}, sessions[1].Values)
	assert.Equal(t, 30*time.Second, sessions[1].Offset(1))
}

func TestDecodePressure(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Header(Pressure, false))
	buf.Write(Encode(Pressure, 69964))
	buf.Write(Encode(Pressure, 101325.5))
	// Partial trailing sample.
	buf.WriteByte(0x01)

	sessions, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, []float64{69964, 101325.5}, sessions[0].Values)
}

func TestDecodeBadHeader(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("AN42\x09\x00")))
	assert.Error(t, err)
}
