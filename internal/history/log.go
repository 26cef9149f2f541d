// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package history

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Session is one open metric log. The header is written only when the file
// is empty at open; an existing file is appended to as-is.
type Session struct {
	kind Kind
	f    *os.File
}

// OpenSession opens (creating if needed) <dir>/<kind>.log for appending.
func OpenSession(dir string, kind Kind, lowPower bool) (*Session, error) {
	if !kind.valid() {
		return nil, errors.Errorf("invalid log kind %d", kind)
	}
	path := filepath.Join(dir, kind.String()+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	if st.Size() == 0 {
		if _, err := f.Write(Header(kind, lowPower)); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "write header to %s", path)
		}
	}
	return &Session{kind: kind, f: f}, nil
}

// Header is the session header for kind. Pressure samples are 3 bytes wide,
// so its header carries a pad byte to keep samples aligned.
func Header(kind Kind, lowPower bool) []byte {
	h := append([]byte(Magic), byte(kind), 0)
	if lowPower {
		h[5] = 1
	}
	if kind == Pressure {
		h = append(h, 0)
	}
	return h
}

// Encode returns the fixed-width body encoding of value for kind: CO2 in
// ppm, temperature in centidegrees (two's complement), humidity in
// centipercent, pressure in decipascals with the always-zero top byte dropped.
func Encode(kind Kind, value float64) []byte {
	switch kind {
	case CO2:
		return binary.BigEndian.AppendUint16(nil, uint16(value))
	case Temperature:
		return binary.BigEndian.AppendUint16(nil, uint16(int16(value*100)))
	case Humidity:
		return binary.BigEndian.AppendUint16(nil, uint16(value*100))
	case Pressure:
		b := binary.BigEndian.AppendUint32(nil, uint32(math.Max(value*10, 0)))
		return b[1:]
	}
	return nil
}

// Append writes one sample.
func (s *Session) Append(value float64) error {
	_, err := s.f.Write(Encode(s.kind, value))
	return errors.Wrapf(err, "append to %s log", s.kind)
}

func (s *Session) Close() error {
	return s.f.Close()
}

// Log is the set of sessions for the metrics enabled in the config.
type Log struct {
	mu       sync.Mutex
	sessions map[Kind]*Session
}

// OpenLog opens a session for every kind. dir is created if missing.
func OpenLog(dir string, kinds []Kind, lowPower bool) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create log dir %s", dir)
	}
	l := &Log{sessions: make(map[Kind]*Session, len(kinds))}
	for _, k := range kinds {
		s, err := OpenSession(dir, k, lowPower)
		if err != nil {
			l.Close()
			return nil, err
		}
		l.sessions[k] = s
	}
	log.Infof("history: logging %d metrics to %s", len(kinds), dir)
	return l, nil
}

// Append writes value to the log of kind. Kinds that are not enabled are
// ignored. A nil Log ignores everything.
func (l *Log) Append(kind Kind, value float64) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[kind]
	if !ok {
		return nil
	}
	return s.Append(value)
}

// Enabled reports whether kind is being logged.
func (l *Log) Enabled(kind Kind) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.sessions[kind]
	return ok
}

func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var first error
	for k, s := range l.sessions {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
		delete(l.sessions, k)
	}
	return first
}
