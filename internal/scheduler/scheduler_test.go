// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/relabs-tech/airnode/internal/config"
	"github.com/relabs-tech/airnode/internal/env"
	"github.com/relabs-tech/airnode/internal/history"
	"github.com/relabs-tech/airnode/internal/i2cbus"
	"github.com/relabs-tech/airnode/internal/pressure"
	"github.com/relabs-tech/airnode/internal/scd4x"
)

type fakeClock struct {
	now    time.Time
	afters []time.Duration
}

func (c *fakeClock) Now() time.Time {
	if c.now.IsZero() {
		return time.Unix(1000, 0)
	}
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.afters = append(c.afters, d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

type fakeCO2 struct {
	ready    []bool
	m        scd4x.Measurement
	ambient  []uint16
	calls    []string
	selfTest bool
}

func (f *fakeCO2) DataReady() bool {
	if len(f.ready) == 0 {
		return true
	}
	r := f.ready[0]
	f.ready = f.ready[1:]
	return r
}

func (f *fakeCO2) ReadMeasurement() scd4x.Measurement { return f.m }

func (f *fakeCO2) SetAmbientPressure(mbar uint16) error {
	f.ambient = append(f.ambient, mbar)
	return nil
}

func (f *fakeCO2) StartPeriodicMeasurement(bool) error {
	f.calls = append(f.calls, "start")
	return nil
}

func (f *fakeCO2) StopPeriodicMeasurement() error {
	f.calls = append(f.calls, "stop")
	return nil
}

func (f *fakeCO2) PersistSettings() error {
	f.calls = append(f.calls, "persist")
	return nil
}

func (f *fakeCO2) FactoryReset() error {
	f.calls = append(f.calls, "reset")
	return nil
}

func (f *fakeCO2) ForcedRecalibration(ppm uint16) (bool, int16, error) {
	f.calls = append(f.calls, "frc")
	return true, int16(ppm) - 400, nil
}

func (f *fakeCO2) SelfTest() (bool, error) {
	f.calls = append(f.calls, "selftest")
	return f.selfTest, nil
}

type fakePressure struct{ pa float64 }

func (f *fakePressure) ReadPressure() (float64, error) { return f.pa, nil }
func (f *fakePressure) String() string                 { return "fake" }

type fakeNet struct {
	wlan      bool
	connected bool
	err       error
}

func (f *fakeNet) WLANEnabled() bool { return f.wlan }
func (f *fakeNet) Connected(context.Context) (bool, error) {
	return f.connected, f.err
}

type recorder struct {
	pressures []env.Reading
	samples   []env.Sample
	rings     [][]byte
	statuses  []env.Sample
	draws     int
	led       []bool
}

func (r *recorder) PublishPressure(p env.Reading) error {
	r.pressures = append(r.pressures, p)
	return nil
}

func (r *recorder) PublishSample(s env.Sample, ring []byte) error {
	r.samples = append(r.samples, s)
	r.rings = append(r.rings, ring)
	return nil
}

func (r *recorder) PushStatus(_ context.Context, s env.Sample) error {
	r.statuses = append(r.statuses, s)
	return nil
}

func (r *recorder) Draw(env.Sample, bool) error {
	r.draws++
	return nil
}

func (r *recorder) Set(on bool) error {
	r.led = append(r.led, on)
	return nil
}

type fakeApplier struct {
	updates [][]byte
	cancel  context.CancelFunc
}

func (f *fakeApplier) Update(b []byte) error {
	f.updates = append(f.updates, b)
	if f.cancel != nil {
		f.cancel()
	}
	return nil
}

type fakeRestarter struct{ restarts int }

func (f *fakeRestarter) Restart() error {
	f.restarts++
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Pressure.Oversampling = 0
	cfg.Pressure.OversamplingWLAN = 0
	cfg.LED.CO2Trigger = 700
	cfg.Screen.RefreshRate = 2
	return cfg
}

func withCRC(words ...uint16) []byte {
	var b []byte
	for _, w := range words {
		p := []byte{byte(w >> 8), byte(w)}
		b = append(b, p[0], p[1], scd4x.CRC8(p))
	}
	return b
}

func TestSleepDuration(t *testing.T) {
	const cadence = 5 * time.Second
	for tick := int64(0); tick < 5; tick++ {
		now := time.Unix(1000+tick, 0)
		assert.Equal(t, cadence-time.Duration(tick)*time.Second, SleepDuration(now, now, cadence), "tick %d", tick)
	}

	now := time.Unix(1002, 0)
	assert.Equal(t, time.Duration(0), SleepDuration(now, now.Add(-6*time.Second), cadence))
	// Exactly one cadence is not an overrun.
	assert.Equal(t, 3*time.Second, SleepDuration(now, now.Add(-cadence), cadence))
	assert.Equal(t, 28*time.Second, SleepDuration(time.Unix(1022, 0), time.Unix(1020, 0), Cadence(true)))
}

// TestCycleEndToEnd drives the real drivers over a scripted bus.
func TestCycleEndToEnd(t *testing.T) {
	const bmp, scd = pressure.BMP180Address, scd4x.SensorAddress
	cal := []uint16{
		0x0198, 0xffb8, 0xc7d1, 0x7fe5, 0x7ff5, 0x5a71,
		0x182e, 0x0004, 0x8000, 0xddf9, 0x0b34,
	}
	var ops []i2ctest.IO
	for i, w := range cal {
		ops = append(ops,
			i2ctest.IO{Addr: bmp, W: []byte{byte(0xaa + 2*i)}},
			i2ctest.IO{Addr: bmp, R: []byte{byte(w >> 8), byte(w)}},
		)
	}
	ambient := append([]byte{0xe0, 0x00}, withCRC(699)...)
	ops = append(ops,
		i2ctest.IO{Addr: bmp, W: []byte{0xf4, 0x2e}},
		i2ctest.IO{Addr: bmp, W: []byte{0xf6}},
		i2ctest.IO{Addr: bmp, R: []byte{0x6c, 0xfa}},
		i2ctest.IO{Addr: bmp, W: []byte{0xf4, 0x34}},
		i2ctest.IO{Addr: bmp, W: []byte{0xf6}},
		i2ctest.IO{Addr: bmp, R: []byte{0x5d, 0x23, 0x00}},
		i2ctest.IO{Addr: scd, W: ambient},
		i2ctest.IO{Addr: scd, W: []byte{0xe4, 0xb8}},
		i2ctest.IO{Addr: scd, R: withCRC(0x8006)},
		i2ctest.IO{Addr: scd, W: []byte{0xec, 0x05}},
		// 800 ppm, 25.00 °C, 45.00 %RH.
		i2ctest.IO{Addr: scd, R: withCRC(800, 0x6667, 0x7333)},
	)
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	tr := i2cbus.New(pb)
	tr.Sleep = func(time.Duration) {}

	baro := pressure.NewBMP180(tr, 3)
	require.NoError(t, baro.Init())

	dir := t.TempDir()
	cfg := testConfig()
	kinds, err := cfg.LogKinds()
	require.NoError(t, err)
	logs, err := history.OpenLog(dir, kinds, false)
	require.NoError(t, err)

	rec := &recorder{}
	ring := history.NewRing(2)
	s := New(cfg, Deps{
		CO2:         scd4x.New(tr, nil),
		Pressure:    baro,
		Ring:        ring,
		Log:         logs,
		Publishers:  []Publisher{rec},
		StatusSinks: []StatusSink{rec},
		Display:     rec,
		LED:         rec,
		Network:     &fakeNet{connected: true},
		Clock:       &fakeClock{now: time.Unix(1000, 0)},
	})

	sample, ok := s.Cycle(context.Background())
	require.True(t, ok)
	require.NoError(t, logs.Close())
	assert.NoError(t, pb.Close())

	assert.Equal(t, uint16(800), sample.CO2)
	assert.InDelta(t, 25.0, sample.Temperature, 0.01)
	assert.InDelta(t, 45.0, sample.Humidity, 0.01)
	require.NotNil(t, sample.Pressure)
	assert.Equal(t, 69964.0, *sample.Pressure)
	require.NotNil(t, sample.Elevation)
	assert.InDelta(t, pressure.Altitude(69964, pressure.SeaLevelMbar), *sample.Elevation, 1e-9)

	files := map[string][]byte{
		"co2.log":               []byte("AN42\x00\x00\x03\x20"),
		"temperature.log":       []byte("AN42\x01\x00\x09\xc4"),
		"relative_humidity.log": []byte("AN42\x02\x00\x11\x94"),
		"pressure.log":          []byte("AN42\x03\x00\x00\x0a\xac\xf8"),
	}
	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	assert.Equal(t, []uint16{0, 800}, ring.Values())
	require.Len(t, rec.pressures, 1)
	assert.True(t, rec.pressures[0].Accepted)
	require.Len(t, rec.samples, 1)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x03, 0x20}, rec.rings[0])
	assert.Len(t, rec.statuses, 1)
	assert.Equal(t, 1, rec.draws)
	assert.Equal(t, []bool{true}, rec.led)
}

func TestDriftBand(t *testing.T) {
	cfg := testConfig()
	cfg.Pressure.LowerPressure = 90000
	cfg.Pressure.UpperPressure = 105000

	for _, tt := range []struct {
		pa       float64
		accepted bool
	}{
		{90000, true},
		{105000, true},
		{89999, false},
		{105001, false},
	} {
		co2 := &fakeCO2{m: scd4x.Measurement{Valid: true, CO2: 500}}
		rec := &recorder{}
		dir := t.TempDir()
		logs, err := history.OpenLog(dir, []history.Kind{history.Pressure}, false)
		require.NoError(t, err)

		s := New(cfg, Deps{
			CO2:        co2,
			Pressure:   &fakePressure{pa: tt.pa},
			Log:        logs,
			Publishers: []Publisher{rec},
			Network:    &fakeNet{},
			Clock:      &fakeClock{},
		})
		sample, ok := s.Cycle(context.Background())
		require.True(t, ok)
		require.NoError(t, logs.Close())

		require.NotNil(t, sample.Pressure)
		assert.Equal(t, tt.pa, *sample.Pressure)
		b, err := os.ReadFile(filepath.Join(dir, "pressure.log"))
		require.NoError(t, err)
		assert.Len(t, b, 10, "pressure is logged either way")

		if tt.accepted {
			assert.Equal(t, []uint16{uint16(tt.pa / 100)}, co2.ambient, "%v", tt.pa)
			assert.Len(t, rec.pressures, 1)
			assert.NotZero(t, *sample.Elevation)
		} else {
			assert.Empty(t, co2.ambient, "%v", tt.pa)
			assert.Empty(t, rec.pressures)
			assert.Zero(t, *sample.Elevation)
		}
	}
}

func TestFailedReadAdvancesRingOnly(t *testing.T) {
	dir := t.TempDir()
	logs, err := history.OpenLog(dir, []history.Kind{history.CO2}, true)
	require.NoError(t, err)

	rec := &recorder{}
	ring := history.NewRing(2)
	ring.Push(false, 600)
	s := New(testConfig(), Deps{
		CO2:         &fakeCO2{},
		Ring:        ring,
		Log:         logs,
		Publishers:  []Publisher{rec},
		StatusSinks: []StatusSink{rec},
		Display:     rec,
		LED:         rec,
		Network:     &fakeNet{connected: true},
		Clock:       &fakeClock{},
	})

	_, ok := s.Cycle(context.Background())
	assert.False(t, ok)
	require.NoError(t, logs.Close())

	assert.Equal(t, []uint16{600, 0}, ring.Values())
	assert.Empty(t, rec.samples)
	assert.Empty(t, rec.statuses)
	assert.Zero(t, rec.draws)
	assert.Empty(t, rec.led)

	b, err := os.ReadFile(filepath.Join(dir, "co2.log"))
	require.NoError(t, err)
	assert.Len(t, b, 6, "header only")
}

func TestDataReadyPollsEverySecond(t *testing.T) {
	clock := &fakeClock{}
	s := New(testConfig(), Deps{
		CO2:     &fakeCO2{ready: []bool{false, false, true}, m: scd4x.Measurement{Valid: true}},
		Network: &fakeNet{},
		Clock:   clock,
	})

	_, ok := s.Cycle(context.Background())
	assert.True(t, ok)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.afters)
}

func TestDataReadyHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(testConfig(), Deps{
		CO2:     &fakeCO2{ready: []bool{false, false, false}},
		Network: &fakeNet{},
		Clock:   &blockingClock{},
	})

	_, ok := s.Cycle(ctx)
	assert.False(t, ok)
}

type blockingClock struct{}

func (blockingClock) Now() time.Time                       { return time.Time{} }
func (blockingClock) After(time.Duration) <-chan time.Time { return nil }

func TestLEDAndDisplayFollowMode(t *testing.T) {
	cfg := testConfig()
	cfg.LED.CO2TriggerWLAN = -1
	cfg.Screen.RefreshRateWLAN = 1

	co2 := &fakeCO2{m: scd4x.Measurement{Valid: true, CO2: 650}}
	network := &fakeNet{}
	rec := &recorder{}
	s := New(cfg, Deps{CO2: co2, Display: rec, LED: rec, Network: network, Clock: &fakeClock{}})

	ctx := context.Background()
	s.Cycle(ctx) // paints, led off
	s.Cycle(ctx) // skipped repaint
	s.Cycle(ctx) // paints
	assert.Equal(t, 2, rec.draws)
	assert.Equal(t, []bool{false, false, false}, rec.led)

	network.wlan = true
	s.Cycle(ctx) // skipped repaint, led disabled
	s.Cycle(ctx) // paints every cycle now
	s.Cycle(ctx)
	assert.Equal(t, 4, rec.draws)
	assert.Len(t, rec.led, 3)
}

func TestConnectivityErrorSkipsStatus(t *testing.T) {
	rec := &recorder{}
	s := New(testConfig(), Deps{
		CO2:         &fakeCO2{m: scd4x.Measurement{Valid: true}},
		StatusSinks: []StatusSink{rec},
		Network:     &fakeNet{connected: true, err: errors.New("boom")},
		Clock:       &fakeClock{},
	})

	_, ok := s.Cycle(context.Background())
	assert.True(t, ok)
	assert.Empty(t, rec.statuses)
}

func TestCommands(t *testing.T) {
	co2 := &fakeCO2{selfTest: true}
	restarter := &fakeRestarter{}
	s := New(testConfig(), Deps{CO2: co2, Network: &fakeNet{}, Restarter: restarter, Clock: &fakeClock{}})

	frc := make(chan Result, 1)
	st := make(chan Result, 1)
	reset := make(chan Result, 1)
	require.True(t, s.Enqueue(Command{Kind: CmdForcedRecalibration, PPM: 416, Reply: frc}))
	require.True(t, s.Enqueue(Command{Kind: CmdSelfTest, Reply: st}))
	require.True(t, s.Enqueue(Command{Kind: CmdFactoryReset, Reply: reset}))
	s.drainCommands()

	r := <-frc
	require.NoError(t, r.Err)
	assert.True(t, r.OK)
	assert.Equal(t, int16(16), r.Correction)

	r = <-st
	assert.True(t, r.OK)

	r = <-reset
	assert.True(t, r.OK)
	assert.Equal(t, 1, restarter.restarts)

	assert.Equal(t, []string{
		"stop", "frc", "start",
		"stop", "selftest", "start",
		"stop", "reset", "start",
	}, co2.calls)
}

func TestSubmitBusy(t *testing.T) {
	s := New(testConfig(), Deps{CO2: &fakeCO2{}, Network: &fakeNet{}})
	for s.Enqueue(Command{Kind: CmdPersistSettings}) {
	}
	_, err := s.Submit(context.Background(), CmdSelfTest, 0)
	assert.True(t, errors.Is(err, ErrBusy))
}

func TestRunAppliesLatestUpdate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applier := &fakeApplier{cancel: cancel}
	co2 := &fakeCO2{m: scd4x.Measurement{Valid: true, CO2: 500}}
	s := New(testConfig(), Deps{CO2: co2, Network: &fakeNet{}, Config: applier, Clock: &fakeClock{}})

	s.UpdateConfig([]byte(`{"history_size": 1}`))
	s.UpdateConfig([]byte(`{"history_size": 2}`))

	require.NoError(t, s.Run(ctx))
	require.Len(t, applier.updates, 1)
	assert.Equal(t, `{"history_size": 2}`, string(applier.updates[0]))
}
