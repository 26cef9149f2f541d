// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package i2cbus is the request/response layer every sensor driver talks
// through. It owns the shared bus: all transactions are serialised, and a
// NACK or I/O error is reported as ErrBusFailure so callers can treat it as
// "no data this cycle" instead of a reason to stop.
package i2cbus

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultSettle is the wait applied after a command that has no documented
// execution time.
const DefaultSettle = time.Millisecond

// ErrBusFailure marks a transient failure on the bus (NACK, timeout, short read).
var ErrBusFailure = errors.New("i2c bus failure")

// Transport wraps an i2c.Bus with settle waits and failure classification.
type Transport struct {
	bus i2c.Bus
	mu  sync.Mutex

	// Sleep waits for command settle times. Tests replace it to run instantly.
	Sleep func(time.Duration)
}

// New returns a Transport that owns bus.
func New(bus i2c.Bus) *Transport {
	return &Transport{bus: bus, Sleep: time.Sleep}
}

// Send writes cmd to addr and then waits settle before returning.
func (t *Transport) Send(addr uint16, cmd []byte, settle time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.write(addr, cmd); err != nil {
		return err
	}
	t.Sleep(settle)
	return nil
}

// SendAndRead writes cmd to addr, waits settle and reads exactly n bytes in a
// second transaction. Any bus error is returned wrapped in ErrBusFailure.
func (t *Transport) SendAndRead(addr uint16, cmd []byte, n int, settle time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.write(addr, cmd); err != nil {
		return nil, err
	}
	t.Sleep(settle)

	r := make([]byte, n)
	if err := t.bus.Tx(addr, nil, r); err != nil {
		log.WithFields(log.Fields{"addr": hexAddr(addr), "cmd": hex.EncodeToString(cmd)}).
			Warnf("i2c: handled read error: %v", err)
		return nil, errors.Wrapf(failure(err), "read %d bytes from %s", n, hexAddr(addr))
	}
	log.Debugf("< %s %s", hexAddr(addr), hex.EncodeToString(r))
	return r, nil
}

// Probe reports whether a device acknowledges a one byte read at addr.
func (t *Transport) Probe(addr uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b [1]byte
	return t.bus.Tx(addr, nil, b[:]) == nil
}

// Scan returns the subset of addrs that answered a probe, in order.
func (t *Transport) Scan(addrs ...uint16) []uint16 {
	var found []uint16
	for _, a := range addrs {
		if t.Probe(a) {
			found = append(found, a)
		}
	}
	return found
}

// Tx implements i2c.Bus so drivers from periph.io/x/devices can share the
// bus without bypassing the transport's serialisation.
func (t *Transport) Tx(addr uint16, w, r []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.bus.Tx(addr, w, r); err != nil {
		return failure(err)
	}
	return nil
}

// SetSpeed implements i2c.Bus.
func (t *Transport) SetSpeed(f physic.Frequency) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bus.SetSpeed(f)
}

func (t *Transport) String() string {
	return t.bus.String()
}

var _ i2c.Bus = &Transport{}

func (t *Transport) write(addr uint16, cmd []byte) error {
	log.Debugf("> %s %s", hexAddr(addr), hex.EncodeToString(cmd))
	if err := t.bus.Tx(addr, cmd, nil); err != nil {
		return errors.Wrapf(failure(err), "write %s to %s", hex.EncodeToString(cmd), hexAddr(addr))
	}
	return nil
}

// failure keeps the bus error text while making errors.Is(err, ErrBusFailure) hold.
func failure(err error) error {
	return &busError{cause: err}
}

type busError struct {
	cause error
}

func (e *busError) Error() string        { return ErrBusFailure.Error() + ": " + e.cause.Error() }
func (e *busError) Is(target error) bool { return target == ErrBusFailure }
func (e *busError) Unwrap() error        { return e.cause }

func hexAddr(addr uint16) string {
	return "0x" + hex.EncodeToString([]byte{byte(addr)})
}
