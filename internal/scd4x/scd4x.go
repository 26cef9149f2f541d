// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package scd4x drives the Sensirion SCD4x CO2, temperature and humidity
// sensor. Every operation is a 16-bit command word, optionally followed by a
// CRC-protected parameter word, with a command specific execution time before
// the response can be read.
package scd4x

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/airnode/internal/i2cbus"
)

// SensorAddress is the only address these devices answer on.
const SensorAddress uint16 = 0x62

// ErrCRC is returned when read verification is enabled and a response word
// does not match its checksum.
var ErrCRC = errors.New("scd4x: invalid crc")

type command struct {
	word uint16
	// Bytes returned by the sensor: 0, 3 or 9.
	responseSize int
	settle       time.Duration
}

var (
	cmdStartPeriodic         = command{word: 0x21b1, settle: time.Millisecond}
	cmdStartLowPowerPeriodic = command{word: 0x21ac, settle: time.Millisecond}
	cmdStopPeriodic          = command{word: 0x3f86, settle: 500 * time.Millisecond}
	cmdMeasureSingleShot     = command{word: 0x219d, settle: 5 * time.Second}
	cmdMeasureSingleShotRHT  = command{word: 0x2196, settle: 50 * time.Millisecond}
	cmdReadMeasurement       = command{word: 0xec05, responseSize: 9, settle: time.Millisecond}
	cmdGetDataReady          = command{word: 0xe4b8, responseSize: 3, settle: time.Millisecond}
	cmdGetASCEnabled         = command{word: 0x2313, responseSize: 3, settle: time.Millisecond}
	cmdSetASCEnabled         = command{word: 0x2416, settle: time.Millisecond}
	cmdGetTemperatureOffset  = command{word: 0x2318, responseSize: 3, settle: time.Millisecond}
	cmdSetTemperatureOffset  = command{word: 0x241d, settle: time.Millisecond}
	cmdGetSensorAltitude     = command{word: 0x2322, responseSize: 3, settle: time.Millisecond}
	cmdSetSensorAltitude     = command{word: 0x2427, settle: time.Millisecond}
	cmdSetAmbientPressure    = command{word: 0xe000, settle: time.Millisecond}
	cmdPersistSettings       = command{word: 0x3615, settle: 800 * time.Millisecond}
	cmdFactoryReset          = command{word: 0x3632, settle: 1200 * time.Millisecond}
	cmdReinit                = command{word: 0x3646, settle: 20 * time.Millisecond}
	cmdForcedRecalibration   = command{word: 0x362f, responseSize: 3, settle: 400 * time.Millisecond}
	cmdGetSerialNumber       = command{word: 0x3682, responseSize: 9, settle: time.Millisecond}
	cmdSelfTest              = command{word: 0x3639, responseSize: 3, settle: 10 * time.Second}
	cmdPowerDown             = command{word: 0x36e0, settle: time.Millisecond}
	cmdWakeUp                = command{word: 0x36f6, settle: 20 * time.Millisecond}
)

var (
	// Data-ready response meaning "no new sample yet".
	notReady = []byte{0x80, 0x00, 0xa2}
	// Self-test response meaning "no malfunction detected".
	selfTestPassed = []byte{0x00, 0x00, 0x81}
)

// Opts configures a Dev.
type Opts struct {
	Addr uint16
	// VerifyCRC checks the checksum of every response word. The sensor
	// firmware this replaces never did, so it is off by default.
	VerifyCRC bool
}

// DefaultOpts is the sensor's fixed address without read verification.
var DefaultOpts = Opts{Addr: SensorAddress}

// Dev is an SCD4x on a shared transport. It keeps no state besides the bus
// handle; the sensor holds its own runtime configuration.
type Dev struct {
	t    *i2cbus.Transport
	opts Opts
}

// New returns a Dev talking through t.
func New(t *i2cbus.Transport, opts *Opts) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	return &Dev{t: t, opts: *opts}
}

// StartPeriodicMeasurement starts the 5 s (or 30 s in low power) acquisition.
func (d *Dev) StartPeriodicMeasurement(lowPower bool) error {
	if lowPower {
		return d.send(cmdStartLowPowerPeriodic, nil)
	}
	return d.send(cmdStartPeriodic, nil)
}

func (d *Dev) StopPeriodicMeasurement() error {
	return d.send(cmdStopPeriodic, nil)
}

// MeasureSingleShot triggers one on-demand measurement. With rhtOnly the
// sensor skips CO2 and returns much faster.
func (d *Dev) MeasureSingleShot(rhtOnly bool) error {
	if rhtOnly {
		return d.send(cmdMeasureSingleShotRHT, nil)
	}
	return d.send(cmdMeasureSingleShot, nil)
}

// DataReady reports whether a new measurement can be read. Only the exact
// "not ready" status word returns false; a failed or malformed read counts
// as ready so the following read decides the outcome of the cycle.
func (d *Dev) DataReady() bool {
	r, err := d.t.SendAndRead(d.opts.Addr, cmdBytes(cmdGetDataReady, nil), cmdGetDataReady.responseSize, cmdGetDataReady.settle)
	if err != nil {
		return true
	}
	return !bytes.Equal(r, notReady)
}

func (d *Dev) AutoSelfCalibration() (bool, error) {
	w, err := d.readWord(cmdGetASCEnabled)
	if err != nil {
		return false, err
	}
	return w != 0, nil
}

func (d *Dev) SetAutoSelfCalibration(enabled bool) error {
	var w uint16
	if enabled {
		w = 1
	}
	return d.send(cmdSetASCEnabled, params(w))
}

// TemperatureOffset returns the offset in °C, rounded up to one decimal.
func (d *Dev) TemperatureOffset() (float64, error) {
	w, err := d.readWord(cmdGetTemperatureOffset)
	if err != nil {
		return 0, err
	}
	return OffsetFromCount(w), nil
}

// SetTemperatureOffset writes a new offset unless the sensor already holds
// the same value, sparing its EEPROM a redundant write.
func (d *Dev) SetTemperatureOffset(offset float64) error {
	current, err := d.TemperatureOffset()
	if err == nil && current == offset {
		log.Debugf("scd4x: temperature offset already %.1f, not writing", offset)
		return nil
	}
	return d.send(cmdSetTemperatureOffset, params(CountFromOffset(offset)))
}

// SensorAltitude returns the configured altitude in metres above sea level.
func (d *Dev) SensorAltitude() (uint16, error) {
	return d.readWord(cmdGetSensorAltitude)
}

func (d *Dev) SetSensorAltitude(masl uint16) error {
	return d.send(cmdSetSensorAltitude, params(masl))
}

// SetAmbientPressure feeds a barometer reading in mbar into the CO2
// compensation. It overrides the altitude setting until the next power cycle.
func (d *Dev) SetAmbientPressure(mbar uint16) error {
	return d.send(cmdSetAmbientPressure, params(mbar))
}

func (d *Dev) PersistSettings() error {
	return d.send(cmdPersistSettings, nil)
}

func (d *Dev) FactoryReset() error {
	return d.send(cmdFactoryReset, nil)
}

// Reinit reloads the settings stored in EEPROM.
func (d *Dev) Reinit() error {
	return d.send(cmdReinit, nil)
}

// ForcedRecalibration recalibrates against a reference concentration. ok is
// false when the sensor reports the recalibration failed; correction is the
// applied offset in ppm.
func (d *Dev) ForcedRecalibration(referencePPM uint16) (ok bool, correction int16, err error) {
	c := cmdForcedRecalibration
	r, err := d.t.SendAndRead(d.opts.Addr, cmdBytes(c, params(referencePPM)), c.responseSize, c.settle)
	if err != nil {
		return false, 0, err
	}
	if err := d.verify(c, r); err != nil {
		return false, 0, err
	}
	ok, correction = DecodeRecalibration(r)
	return ok, correction, nil
}

// SerialNumber returns the 48-bit unique serial number.
func (d *Dev) SerialNumber() (uint64, error) {
	r, err := d.read(cmdGetSerialNumber)
	if err != nil {
		return 0, err
	}
	return SerialFromResponse(r), nil
}

// SelfTest runs the on-chip self test, which takes about ten seconds.
func (d *Dev) SelfTest() (bool, error) {
	r, err := d.t.SendAndRead(d.opts.Addr, cmdBytes(cmdSelfTest, nil), cmdSelfTest.responseSize, cmdSelfTest.settle)
	if err != nil {
		return false, err
	}
	return bytes.Equal(r, selfTestPassed), nil
}

func (d *Dev) PowerDown() error {
	return d.send(cmdPowerDown, nil)
}

func (d *Dev) WakeUp() error {
	return d.send(cmdWakeUp, nil)
}

// ReadMeasurement reads the latest sample. A failed read yields a
// Measurement with Valid unset and zeroed values rather than an error, so the
// caller can skip downstream writes and still keep its schedule.
func (d *Dev) ReadMeasurement() Measurement {
	r, err := d.read(cmdReadMeasurement)
	if err != nil {
		log.Warnf("scd4x: read measurement: %v", err)
		return Measurement{}
	}
	m := DecodeMeasurement(r)
	log.Debugf("scd4x: co2 ppm: %d temp celsius: %.2f rh %%: %.2f", m.CO2, m.Temperature, m.Humidity)
	return m
}

func (d *Dev) String() string {
	return fmt.Sprintf("scd4x: %s@0x%02x", d.t, d.opts.Addr)
}

func (d *Dev) send(c command, p []byte) error {
	if err := d.t.Send(d.opts.Addr, cmdBytes(c, p), c.settle); err != nil {
		return errors.Wrapf(err, "scd4x cmd 0x%04x", c.word)
	}
	return nil
}

func (d *Dev) read(c command) ([]byte, error) {
	r, err := d.t.SendAndRead(d.opts.Addr, cmdBytes(c, nil), c.responseSize, c.settle)
	if err != nil {
		return nil, errors.Wrapf(err, "scd4x cmd 0x%04x", c.word)
	}
	if err := d.verify(c, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (d *Dev) readWord(c command) (uint16, error) {
	r, err := d.read(c)
	if err != nil {
		return 0, err
	}
	return uint16(r[0])<<8 | uint16(r[1]), nil
}

func (d *Dev) verify(c command, r []byte) error {
	if d.opts.VerifyCRC && !wordsValid(r) {
		return errors.Wrapf(ErrCRC, "cmd 0x%04x", c.word)
	}
	return nil
}

func cmdBytes(c command, p []byte) []byte {
	return append([]byte{byte(c.word >> 8), byte(c.word)}, p...)
}

// Measurement is one decoded CO2, temperature and humidity sample.
type Measurement struct {
	Valid       bool
	CO2         uint16
	Temperature float64 // °C
	Humidity    float64 // %RH
}

// DecodeMeasurement converts the 9-byte read_measurement response. CRC bytes
// are ignored.
func DecodeMeasurement(r []byte) Measurement {
	return Measurement{
		Valid:       true,
		CO2:         uint16(r[0])<<8 | uint16(r[1]),
		Temperature: CountToCelsius(uint16(r[3])<<8 | uint16(r[4])),
		Humidity:    CountToHumidity(uint16(r[6])<<8 | uint16(r[7])),
	}
}

// CountToCelsius maps the full 16-bit range onto -45..130 °C.
func CountToCelsius(count uint16) float64 {
	return -45 + 175*float64(count)/65535
}

// CountToHumidity maps the full 16-bit range onto 0..100 %RH.
func CountToHumidity(count uint16) float64 {
	return 100 * float64(count) / 65535
}

// OffsetFromCount converts a stored temperature offset word to °C, rounded
// up to the nearest tenth.
func OffsetFromCount(count uint16) float64 {
	raw := 175 * float64(count) / 65536
	return math.Ceil(raw*10) / 10
}

// CountFromOffset is the inverse of OffsetFromCount before rounding.
func CountFromOffset(offset float64) uint16 {
	return uint16(offset * 65536 / 175)
}

// SerialFromResponse drops the CRC byte after each word of the 9-byte
// get_serial_number response and joins the rest big-endian.
func SerialFromResponse(r []byte) uint64 {
	var sn uint64
	for i, b := range r[:9] {
		if i%3 == 2 {
			continue
		}
		sn = sn<<8 | uint64(b)
	}
	return sn
}

// DecodeRecalibration interprets the forced recalibration response word.
func DecodeRecalibration(r []byte) (ok bool, correction int16) {
	w := uint16(r[0])<<8 | uint16(r[1])
	if w == 0xffff {
		return false, 0
	}
	return true, int16(int32(w) - 0x8000)
}
