// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package scheduler runs the measurement loop: barometer first, pressure fed
// back into the CO2 sensor, then the CO2 triple, persisted and fanned out to
// the sinks, once per cadence tick. It is the only user of the sensors once
// the node has booted; other tasks reach them through Command values.
package scheduler

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/airnode/internal/config"
	"github.com/relabs-tech/airnode/internal/env"
	"github.com/relabs-tech/airnode/internal/history"
	"github.com/relabs-tech/airnode/internal/pressure"
	"github.com/relabs-tech/airnode/internal/scd4x"
)

// DataReadyPoll is the interval between data-ready checks.
const DataReadyPoll = time.Second

// CO2Sensor is the part of scd4x.Dev the scheduler drives.
type CO2Sensor interface {
	DataReady() bool
	ReadMeasurement() scd4x.Measurement
	SetAmbientPressure(mbar uint16) error
	StartPeriodicMeasurement(lowPower bool) error
	StopPeriodicMeasurement() error
	PersistSettings() error
	FactoryReset() error
	ForcedRecalibration(ppm uint16) (bool, int16, error)
	SelfTest() (bool, error)
}

// Network reports the network-presence mode and connectivity.
type Network interface {
	WLANEnabled() bool
	Connected(ctx context.Context) (bool, error)
}

// Publisher receives readings as soon as they are known.
type Publisher interface {
	PublishPressure(r env.Reading) error
	PublishSample(s env.Sample, ring []byte) error
}

// StatusSink receives a status snapshot on successful cycles while the node
// is connected.
type StatusSink interface {
	PushStatus(ctx context.Context, s env.Sample) error
}

// Display repaints the screen.
type Display interface {
	Draw(s env.Sample, showAltitude bool) error
}

// LED is the CO2 threshold indicator.
type LED interface {
	Set(on bool) error
}

// Applier applies a config update. On success it does not return in
// production: the node restarts.
type Applier interface {
	Update(b []byte) error
}

// Clock abstracts wall time so tests never wait.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the real clock.
var SystemClock Clock = systemClock{}

// Deps are the collaborators of a Scheduler. CO2, Network and Config are
// required; everything else may be nil.
type Deps struct {
	CO2      CO2Sensor
	Pressure pressure.Sensor
	Ring     *history.Ring
	Log      *history.Log

	Publishers  []Publisher
	StatusSinks []StatusSink
	Display     Display
	LED         LED

	Network   Network
	Config    Applier
	Restarter config.Restarter
	Clock     Clock
}

// Scheduler owns the measurement loop.
type Scheduler struct {
	cfg *config.Config
	d   Deps

	updates  chan []byte
	commands chan Command

	// Successful cycles left before the next repaint.
	refreshWait int
}

// New returns a Scheduler for cfg. The sensor must already be measuring.
func New(cfg *config.Config, d Deps) *Scheduler {
	if d.Clock == nil {
		d.Clock = SystemClock
	}
	return &Scheduler{
		cfg:      cfg,
		d:        d,
		updates:  make(chan []byte, 1),
		commands: make(chan Command, 4),
	}
}

// SetSinks replaces the publishers and status sinks. Sinks that forward
// commands back to the scheduler are built after it, so they are attached
// here. It must be called before Run.
func (s *Scheduler) SetSinks(pubs []Publisher, sinks []StatusSink) {
	s.d.Publishers, s.d.StatusSinks = pubs, sinks
}

// Cadence is the measurement period: 5 s, or 30 s in low-power mode.
func Cadence(lowPower bool) time.Duration {
	return history.Cadence(lowPower)
}

// SleepDuration returns how long to wait after a cycle that started at
// start so the next one begins on a cadence boundary of the wall clock. A
// cycle that took longer than a whole cadence is followed immediately.
func SleepDuration(now, start time.Time, cadence time.Duration) time.Duration {
	if now.Sub(start) > cadence {
		return 0
	}
	return cadence - time.Duration(now.UnixNano()%int64(cadence))
}

// Run loops until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	cadence := Cadence(s.cfg.SCD4x.LowPower)
	log.Infof("scheduler: starting, cadence %s", cadence)

	for {
		start := s.d.Clock.Now()
		s.Cycle(ctx)

		d := SleepDuration(s.d.Clock.Now(), start, cadence)
		log.Debugf("scheduler: sleeping %s", d)
		if err := s.wait(ctx, d); err != nil {
			log.Info("scheduler: stopped")
			return nil
		}
		s.drainCommands()
		s.applyPendingUpdate()
	}
}

// Cycle runs one measurement iteration. It returns the sample and whether
// the CO2 read succeeded.
func (s *Scheduler) Cycle(ctx context.Context) (env.Sample, bool) {
	wlan := s.d.Network.WLANEnabled()
	lowPower := s.cfg.SCD4x.LowPower
	log.Debugf("scheduler: wlan %v", wlan)

	reading := s.readPressure(wlan)

	if err := s.waitDataReady(ctx); err != nil {
		return env.Sample{}, false
	}

	m := s.d.CO2.ReadMeasurement()
	if s.d.Ring != nil {
		s.d.Ring.Push(lowPower, m.CO2)
	}
	if !m.Valid {
		log.Warn("scheduler: measurement read failed, skipping this cycle")
		return env.Sample{}, false
	}

	sample := env.Sample{
		CO2:         m.CO2,
		Temperature: m.Temperature,
		Humidity:    m.Humidity,
		Time:        s.d.Clock.Now(),
	}.WithReading(reading)
	log.WithFields(log.Fields{
		"co2":  sample.CO2,
		"temp": sample.Temperature,
		"rh":   sample.Humidity,
	}).Info("measurement")

	s.appendLog(history.CO2, float64(m.CO2))
	s.appendLog(history.Temperature, m.Temperature)
	s.appendLog(history.Humidity, m.Humidity)

	var ring []byte
	if s.d.Ring != nil {
		ring = s.d.Ring.Bytes()
	}
	for _, p := range s.d.Publishers {
		if err := p.PublishSample(sample, ring); err != nil {
			log.Warnf("scheduler: publish sample: %v", err)
		}
	}

	s.updateLED(m.CO2, wlan)
	s.updateDisplay(sample, wlan)
	s.pushStatus(ctx, sample)
	return sample, true
}

// readPressure returns nil without a barometer or when the read fails.
func (s *Scheduler) readPressure(wlan bool) *env.Reading {
	if s.d.Pressure == nil {
		return nil
	}
	if o, ok := s.d.Pressure.(pressure.Oversampled); ok {
		oss := s.cfg.Pressure.Oversampling
		if wlan {
			oss = s.cfg.Pressure.OversamplingWLAN
		}
		o.SetOversampling(oss)
	}

	pa, err := s.d.Pressure.ReadPressure()
	if err != nil {
		log.Warnf("scheduler: pressure read failed: %v", err)
		return nil
	}
	p := s.cfg.Pressure
	r := &env.Reading{
		Pressure:  pa,
		Elevation: pressure.Altitude(pa, p.SeaLevelMbar),
		Accepted:  pressure.Band{Lower: p.LowerPressure, Upper: p.UpperPressure}.Accept(pa),
	}
	log.Debugf("scheduler: pressure %.0f Pa, elevation %.1f m", r.Pressure, r.Elevation)

	// Rejected readings are still logged.
	s.appendLog(history.Pressure, pa)

	if !r.Accepted {
		log.Warnf("scheduler: rejecting pressure %.0f Pa as drift", pa)
		r.Elevation = 0
		return r
	}

	if err := s.d.CO2.SetAmbientPressure(uint16(pa / 100)); err != nil {
		log.Warnf("scheduler: set ambient pressure: %v", err)
	}
	for _, pub := range s.d.Publishers {
		if err := pub.PublishPressure(*r); err != nil {
			log.Warnf("scheduler: publish pressure: %v", err)
		}
	}
	return r
}

// waitDataReady polls until the sensor has a measurement. There is no upper
// bound; only ctx ends the wait.
func (s *Scheduler) waitDataReady(ctx context.Context) error {
	for !s.d.CO2.DataReady() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.d.Clock.After(DataReadyPoll):
		}
	}
	return nil
}

func (s *Scheduler) appendLog(k history.Kind, v float64) {
	if err := s.d.Log.Append(k, v); err != nil {
		log.Errorf("scheduler: %v", err)
	}
}

func (s *Scheduler) updateLED(co2 uint16, wlan bool) {
	if s.d.LED == nil {
		return
	}
	trigger := s.cfg.LED.CO2Trigger
	if wlan {
		trigger = s.cfg.LED.CO2TriggerWLAN
	}
	if trigger == -1 {
		return
	}
	if err := s.d.LED.Set(int(co2) >= trigger); err != nil {
		log.Warnf("scheduler: led: %v", err)
	}
}

// updateDisplay repaints on the first successful cycle and then every Nth.
func (s *Scheduler) updateDisplay(sample env.Sample, wlan bool) {
	if s.d.Display == nil {
		return
	}
	if s.refreshWait > 0 {
		s.refreshWait--
		return
	}
	if err := s.d.Display.Draw(sample, s.cfg.Screen.ShowAltitude); err != nil {
		log.Warnf("scheduler: display: %v", err)
	}
	rate := s.cfg.Screen.RefreshRate
	if wlan {
		rate = s.cfg.Screen.RefreshRateWLAN
	}
	s.refreshWait = rate - 1
}

func (s *Scheduler) pushStatus(ctx context.Context, sample env.Sample) {
	if len(s.d.StatusSinks) == 0 {
		return
	}
	ok, err := s.d.Network.Connected(ctx)
	if err != nil {
		log.Debugf("scheduler: treating as disconnected: %v", err)
		return
	}
	if !ok {
		return
	}
	for _, sink := range s.d.StatusSinks {
		if err := sink.PushStatus(ctx, sample); err != nil {
			log.Warnf("scheduler: status push: %v", err)
		}
	}
}

// wait sleeps d while serving commands that arrive in the meantime.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := s.d.Clock.After(d)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer:
			return nil
		case c := <-s.commands:
			s.handle(c)
		}
	}
}

func (s *Scheduler) drainCommands() {
	for {
		select {
		case c := <-s.commands:
			s.handle(c)
		default:
			return
		}
	}
}

// UpdateConfig queues a config update for the next wait point. A newer
// update replaces one that has not been applied yet.
func (s *Scheduler) UpdateConfig(b []byte) {
	b = append([]byte(nil), b...)
	for {
		select {
		case s.updates <- b:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

func (s *Scheduler) applyPendingUpdate() {
	select {
	case b := <-s.updates:
		if s.d.Config == nil {
			log.Warn("scheduler: config update ignored, no manager")
			return
		}
		if err := s.d.Config.Update(b); err != nil {
			log.Errorf("scheduler: config update: %v", err)
		}
	default:
	}
}
