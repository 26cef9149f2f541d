// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/airnode/internal/config"
	"github.com/relabs-tech/airnode/internal/i2cbus"
	"github.com/relabs-tech/airnode/internal/scd4x"
)

// ProbeRetry is the wait between probes while the CO2 sensor is absent.
var ProbeRetry = 10 * time.Second

// Bus is an opened I2C bus behind the shared transport.
type Bus struct {
	*i2cbus.Transport
	close func() error
}

// Close releases the bus.
func (b *Bus) Close() error { return b.close() }

// OpenBus initialises the host drivers and opens the configured I2C bus.
func OpenBus(cfg config.I2C) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	b, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, errors.Wrapf(err, "open i2c bus %q", cfg.Bus)
	}
	log.Infof("i2c: opened %s", b)
	return &Bus{Transport: i2cbus.New(b), close: b.Close}, nil
}

// WaitForSensor probes addr until it answers or ctx is done.
func WaitForSensor(ctx context.Context, t *i2cbus.Transport, addr uint16) error {
	for {
		if t.Probe(addr) {
			return nil
		}
		log.Warnf("i2c: no device at 0x%02x, retrying in %s", addr, ProbeRetry)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ProbeRetry):
		}
	}
}

// SetupSensor is what the boot sequence needs from the CO2 sensor.
type SetupSensor interface {
	StopPeriodicMeasurement() error
	SerialNumber() (uint64, error)
	SetAutoSelfCalibration(enabled bool) error
	AutoSelfCalibration() (bool, error)
	SetTemperatureOffset(offset float64) error
	TemperatureOffset() (float64, error)
	SensorAltitude() (uint16, error)
	SelfTest() (bool, error)
}

var _ SetupSensor = &scd4x.Dev{}

// SensorInfo is what PrepareSensor read back from the sensor.
type SensorInfo struct {
	Serial       uint64
	ASC          bool
	TempOffset   float64
	Altitude     uint16
	SelfTestOK   bool
	SelfTestDone bool
}

// PrepareSensor brings a possibly still measuring sensor to idle and applies
// the configured settings. Only a failure to stop or to write a setting is
// returned; read-backs and the self test are logged.
func PrepareSensor(dev SetupSensor, cfg config.SCD4x, selfTest bool) (SensorInfo, error) {
	var info SensorInfo

	// A hot restart finds the sensor in periodic mode.
	if err := dev.StopPeriodicMeasurement(); err != nil {
		return info, errors.Wrap(err, "stop periodic measurement")
	}

	serial, err := dev.SerialNumber()
	if err != nil {
		log.Warnf("scd4x: serial number: %v", err)
	}
	info.Serial = serial
	log.Infof("scd4x: serial 0x%012x", serial)

	if err := dev.SetAutoSelfCalibration(cfg.ASC); err != nil {
		return info, errors.Wrap(err, "set automatic self calibration")
	}
	if info.ASC, err = dev.AutoSelfCalibration(); err != nil {
		log.Warnf("scd4x: read asc: %v", err)
	}
	log.Infof("scd4x: automatic self calibration %t", info.ASC)

	if cfg.TempOffset != nil {
		if err := dev.SetTemperatureOffset(*cfg.TempOffset); err != nil {
			return info, errors.Wrap(err, "set temperature offset")
		}
	}
	if info.TempOffset, err = dev.TemperatureOffset(); err != nil {
		log.Warnf("scd4x: read temperature offset: %v", err)
	}
	if info.Altitude, err = dev.SensorAltitude(); err != nil {
		log.Warnf("scd4x: read altitude: %v", err)
	}
	log.Infof("scd4x: temperature offset %.1f°C, altitude %d m", info.TempOffset, info.Altitude)

	if selfTest {
		ok, err := dev.SelfTest()
		switch {
		case err != nil:
			log.Warnf("scd4x: self test: %v", err)
		case ok:
			log.Info("scd4x: self test passed")
		default:
			log.Warn("scd4x: self test reported a malfunction")
		}
		info.SelfTestOK, info.SelfTestDone = ok, err == nil
	}
	return info, nil
}
