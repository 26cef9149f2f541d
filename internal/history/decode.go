// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package history

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"
)

// DecodedSession is one session recovered from a log file.
type DecodedSession struct {
	Kind     Kind
	LowPower bool
	Values   []float64
}

// Offset is the time of sample i relative to the start of the session.
func (d *DecodedSession) Offset(i int) time.Duration {
	return time.Duration(i) * Cadence(d.LowPower)
}

// Decode splits a log file on the session magic and decodes every session.
// A trailing partial sample is ignored.
func Decode(r io.Reader) ([]DecodedSession, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read log")
	}

	var out []DecodedSession
	for _, chunk := range bytes.Split(data, []byte(Magic)) {
		if len(chunk) == 0 {
			continue
		}
		if len(chunk) < 2 || !Kind(chunk[0]).valid() {
			return out, errors.Errorf("session %d: bad header % x", len(out)+1, chunk[:min(len(chunk), 2)])
		}
		k := Kind(chunk[0])
		d := DecodedSession{Kind: k, LowPower: chunk[1] != 0}

		// The header (format id, mode and pad) occupies exactly one sample slot.
		w := k.Width()
		for i := w; i+w <= len(chunk); i += w {
			d.Values = append(d.Values, decodeValue(k, chunk[i:i+w]))
		}
		out = append(out, d)
	}
	return out, nil
}

func decodeValue(k Kind, b []byte) float64 {
	switch k {
	case CO2:
		return float64(binary.BigEndian.Uint16(b))
	case Temperature:
		return float64(int16(binary.BigEndian.Uint16(b))) / 100
	case Humidity:
		return float64(binary.BigEndian.Uint16(b)) / 100
	case Pressure:
		return float64(uint32(b[0])<<16|uint32(b[1])<<8|uint32(b[2])) / 10
	}
	return 0
}
