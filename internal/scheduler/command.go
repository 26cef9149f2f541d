// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package scheduler

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CommandKind is a maintenance operation run by the scheduler between cycles.
type CommandKind int

const (
	// CmdFactoryReset resets the sensor and restarts the node.
	CmdFactoryReset CommandKind = iota
	// CmdForcedRecalibration recalibrates against Command.PPM.
	CmdForcedRecalibration
	CmdSelfTest
	CmdPersistSettings
)

func (k CommandKind) String() string {
	switch k {
	case CmdFactoryReset:
		return "factory_reset"
	case CmdForcedRecalibration:
		return "frc"
	case CmdSelfTest:
		return "self_test"
	case CmdPersistSettings:
		return "persist"
	}
	return "unknown"
}

// ErrBusy is returned by Submit when the command queue is full.
var ErrBusy = errors.New("scheduler busy")

// Command is a request from another task. Reply, if set, receives exactly one
// Result and should be buffered.
type Command struct {
	Kind  CommandKind
	PPM   uint16
	Reply chan Result
}

// Result reports a command outcome. Correction is set for a successful
// forced recalibration.
type Result struct {
	OK         bool
	Correction int16
	Err        error
}

// Enqueue hands c to the scheduler without waiting. It reports false when
// the queue is full.
func (s *Scheduler) Enqueue(c Command) bool {
	select {
	case s.commands <- c:
		return true
	default:
		return false
	}
}

// Submit enqueues a command and waits for its result. Commands run at the
// scheduler's next wait point, so this may block for up to a cycle.
func (s *Scheduler) Submit(ctx context.Context, kind CommandKind, ppm uint16) (Result, error) {
	reply := make(chan Result, 1)
	if !s.Enqueue(Command{Kind: kind, PPM: ppm, Reply: reply}) {
		return Result{}, ErrBusy
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// handle runs c. The sensor only accepts these commands while idle, so
// periodic measurement is stopped first and restarted after.
func (s *Scheduler) handle(c Command) {
	l := log.WithField("command", c.Kind)
	l.Info("scheduler: running command")

	var r Result
	if err := s.d.CO2.StopPeriodicMeasurement(); err != nil {
		r.Err = errors.Wrap(err, "stop periodic measurement")
		s.reply(c, r)
		return
	}

	switch c.Kind {
	case CmdFactoryReset:
		if err := s.d.CO2.FactoryReset(); err != nil {
			r.Err = err
			break
		}
		r.OK = true
		s.reply(c, r)
		if s.d.Restarter == nil {
			l.Warn("scheduler: no restarter, continuing after factory reset")
			break
		}
		if err := s.d.Restarter.Restart(); err != nil {
			l.Errorf("scheduler: restart: %v", err)
		}
	case CmdForcedRecalibration:
		r.OK, r.Correction, r.Err = s.d.CO2.ForcedRecalibration(c.PPM)
		l.Infof("scheduler: forced recalibration ok=%v correction=%d", r.OK, r.Correction)
	case CmdSelfTest:
		r.OK, r.Err = s.d.CO2.SelfTest()
		l.Infof("scheduler: self test passed=%v", r.OK)
	case CmdPersistSettings:
		r.Err = s.d.CO2.PersistSettings()
		r.OK = r.Err == nil
	default:
		r.Err = errors.Errorf("unknown command %d", c.Kind)
	}

	if err := s.d.CO2.StartPeriodicMeasurement(s.cfg.SCD4x.LowPower); err != nil && r.Err == nil {
		r.Err = errors.Wrap(err, "restart periodic measurement")
	}
	if c.Kind != CmdFactoryReset || !r.OK {
		s.reply(c, r)
	}
}

func (s *Scheduler) reply(c Command, r Result) {
	if r.Err != nil {
		log.WithField("command", c.Kind).Errorf("scheduler: %v", r.Err)
	}
	if c.Reply == nil {
		return
	}
	select {
	case c.Reply <- r:
	default:
	}
}
