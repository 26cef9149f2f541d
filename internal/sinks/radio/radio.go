// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package radio exposes the measurements as a BLE environmental sensing
// service, with extra characteristics for the CO2 history, config updates
// and a factory reset request.
package radio

import (
	"bytes"
	"context"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/airnode/internal/config"
	"github.com/relabs-tech/airnode/internal/env"
	"github.com/relabs-tech/airnode/internal/scheduler"
)

// Service and characteristic UUIDs.
var (
	EnvSensingUUID  = ble.UUID16(0x181a)
	CO2UUID         = ble.UUID16(0x2b8c)
	TemperatureUUID = ble.UUID16(0x2a6e)
	HumidityUUID    = ble.UUID16(0x2a6f)
	ElevationUUID   = ble.UUID16(0x2a6c)
	PressureUUID    = ble.UUID16(0x2a6d)
	HistoricUUID    = ble.UUID16(0x6969)
	ConfigUUID      = ble.UUID16(0x6970)
	CommsUUID       = ble.UUID16(0x6971)
)

const (
	commsReady = "ready"
	commsReset = "reset"
)

// AdvertiseRound is how long one advertising round lasts before the enable
// state is checked again.
var AdvertiseRound = 30 * time.Second

// ConfigUpdater queues a config update for the scheduler.
type ConfigUpdater interface {
	UpdateConfig(b []byte)
}

// Enqueuer hands a command to the scheduler.
type Enqueuer interface {
	Enqueue(c scheduler.Command) bool
}

// Service holds the characteristic values and serves them over GATT.
type Service struct {
	cfg         config.Bluetooth
	hasPressure bool
	updates     ConfigUpdater
	ctl         Enqueuer

	co2, temp, rh, elev, pres, historic *value
}

// New returns a Service. Pressure and elevation characteristics are only
// registered when hasPressure is true.
func New(cfg config.Bluetooth, hasPressure bool, updates ConfigUpdater, ctl Enqueuer) *Service {
	return &Service{
		cfg:         cfg,
		hasPressure: hasPressure,
		updates:     updates,
		ctl:         ctl,
		co2:         newValue(nil),
		temp:        newValue(nil),
		rh:          newValue(nil),
		elev:        newValue(nil),
		pres:        newValue(nil),
		historic:    newValue(nil),
	}
}

// PublishPressure updates and notifies pressure and elevation.
func (s *Service) PublishPressure(r env.Reading) error {
	if !s.hasPressure {
		return nil
	}
	s.pres.set(EncodePressure(r.Pressure), true)
	s.elev.set(EncodeElevation(r.Elevation), true)
	return nil
}

// PublishSample updates and notifies the CO2 triple and stores the history.
func (s *Service) PublishSample(sample env.Sample, ring []byte) error {
	s.co2.set(EncodeCO2(sample.CO2, s.cfg.CO2AsString), true)
	s.temp.set(EncodeTemperature(sample.Temperature), true)
	s.rh.set(EncodeHumidity(sample.Humidity), true)
	if ring != nil {
		s.historic.set(ring, false)
	}
	return nil
}

// GATT builds the BLE service definition.
func (s *Service) GATT() *ble.Service {
	svc := ble.NewService(EnvSensingUUID)

	s.readNotify(svc, CO2UUID, s.co2)
	s.readNotify(svc, TemperatureUUID, s.temp)
	s.readNotify(svc, HumidityUUID, s.rh)
	if s.hasPressure {
		s.readNotify(svc, ElevationUUID, s.elev)
		s.readNotify(svc, PressureUUID, s.pres)
	}

	cfg := svc.NewCharacteristic(ConfigUUID)
	cfg.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		s.writeConfig(req.Data())
	}))

	comms := svc.NewCharacteristic(CommsUUID)
	comms.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		rsp.Write([]byte(commsReady))
	}))
	comms.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		s.writeComms(req.Data())
	}))

	historic := svc.NewCharacteristic(HistoricUUID)
	historic.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		rsp.Write(s.historic.get())
	}))
	return svc
}

func (s *Service) readNotify(svc *ble.Service, uuid ble.UUID, v *value) {
	c := svc.NewCharacteristic(uuid)
	c.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		rsp.Write(v.get())
	}))
	c.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
		ch, cancel := v.subscribe()
		defer cancel()
		for {
			select {
			case <-n.Context().Done():
				return
			case b := <-ch:
				if _, err := n.Write(b); err != nil {
					log.Debugf("radio: notify %s: %v", uuid, err)
					return
				}
			}
		}
	}))
}

func (s *Service) writeConfig(data []byte) {
	log.Infof("radio: config update received (%d bytes)", len(data))
	if s.updates != nil {
		s.updates.UpdateConfig(data)
	}
}

func (s *Service) writeComms(data []byte) {
	cmd := bytes.TrimSpace(data)
	log.Infof("radio: got complex command %q", cmd)
	if string(cmd) != commsReset {
		return
	}
	if s.ctl == nil || !s.ctl.Enqueue(scheduler.Command{Kind: scheduler.CmdFactoryReset}) {
		log.Warn("radio: factory reset not queued")
	}
}

// Run opens the HCI device, registers the service and advertises while
// enabled reports true. Advertising errors are logged and retried.
func (s *Service) Run(ctx context.Context, enabled func() bool) error {
	d, err := linux.NewDevice()
	if err != nil {
		return errors.Wrap(err, "open ble device")
	}
	ble.SetDefaultDevice(d)
	defer ble.Stop()

	if err := ble.AddService(s.GATT()); err != nil {
		return errors.Wrap(err, "add ble service")
	}

	for ctx.Err() == nil {
		if !enabled() {
			sleep(ctx, 5*time.Second)
			continue
		}
		if err := s.advertise(ctx); err != nil {
			log.Warnf("radio: advertising: %v", err)
			sleep(ctx, time.Second)
		}
	}
	return nil
}

// advertise runs one round, recovering from panics in the stack.
func (s *Service) advertise(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	round, cancel := context.WithTimeout(ctx, AdvertiseRound)
	defer cancel()

	log.Debugf("radio: advertising as %q", s.cfg.Name)
	err = ble.AdvertiseNameAndServices(round, s.cfg.Name, EnvSensingUUID)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
