// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/airnode/internal/config"
	"github.com/relabs-tech/airnode/internal/history"
	"github.com/relabs-tech/airnode/internal/netstate"
	"github.com/relabs-tech/airnode/internal/pressure"
	"github.com/relabs-tech/airnode/internal/scd4x"
	"github.com/relabs-tech/airnode/internal/scheduler"
	"github.com/relabs-tech/airnode/internal/sinks/display"
	"github.com/relabs-tech/airnode/internal/sinks/influx"
	"github.com/relabs-tech/airnode/internal/sinks/led"
	"github.com/relabs-tech/airnode/internal/sinks/mqttpub"
	"github.com/relabs-tech/airnode/internal/sinks/radio"
	"github.com/relabs-tech/airnode/internal/sinks/web"
)

// RunNode boots the sensor node from the config stored at path and runs it
// until ctx is cancelled or a task fails.
func RunNode(ctx context.Context, path string, cfg *config.Config) error {
	log.Info("airnode: booting")

	bus, err := OpenBus(cfg.I2C)
	if err != nil {
		return err
	}
	defer bus.Close()

	if err := WaitForSensor(ctx, bus.Transport, scd4x.SensorAddress); err != nil {
		return err
	}
	co2 := scd4x.New(bus.Transport, &scd4x.Opts{Addr: scd4x.SensorAddress, VerifyCRC: cfg.SCD4x.VerifyCRC})

	var baro pressure.Sensor
	switch s, err := pressure.Detect(bus.Transport, cfg.Pressure.Oversampling); {
	case err == nil:
		baro = s
	case errors.Is(err, pressure.ErrNotFound):
		log.Info("pressure: no barometer fitted")
	default:
		log.Warnf("pressure: %v", err)
	}

	if _, err := PrepareSensor(co2, cfg.SCD4x, true); err != nil {
		return err
	}

	kinds, err := cfg.LogKinds()
	if err != nil {
		return err
	}
	logs, err := history.OpenLog(cfg.LogDir, kinds, cfg.SCD4x.LowPower)
	if err != nil {
		return err
	}
	defer logs.Close()

	if err := co2.StartPeriodicMeasurement(cfg.SCD4x.LowPower); err != nil {
		return errors.Wrap(err, "start periodic measurement")
	}

	monitor, err := netstate.Open(cfg)
	if err != nil {
		return err
	}

	mgr := config.NewManager(path, config.ExecRestarter{})
	deps := scheduler.Deps{
		CO2:       co2,
		Pressure:  baro,
		Ring:      history.NewRing(cfg.HistorySize),
		Log:       logs,
		Network:   monitor,
		Config:    mgr,
		Restarter: config.ExecRestarter{},
	}

	if cfg.Screen.Enabled {
		screen, err := display.Open(cfg.Screen, func() (bool, bool) { return monitor.BTEnabled(), monitor.WLANEnabled() })
		if err != nil {
			log.Warnf("display: %v", err)
		} else {
			defer screen.Close()
			if err := screen.Booting(); err != nil {
				log.Warnf("display: %v", err)
			}
			deps.Display = screen
		}
	}
	if cfg.Pins.LED != "" {
		l, err := led.Open(cfg.Pins.LED)
		if err != nil {
			log.Warnf("led: %v", err)
		} else {
			deps.LED = l
		}
	}

	var (
		webSrv *web.Server
		ble    *radio.Service
	)
	sched := scheduler.New(cfg, deps)

	if cfg.Bluetooth.Enabled {
		ble = radio.New(cfg.Bluetooth, baro != nil, sched, sched)
		deps.Publishers = append(deps.Publishers, ble)
	}
	if cfg.MQTT.Enabled {
		pub, err := mqttpub.Dial(cfg.MQTT)
		if err != nil {
			log.Warnf("mqtt: %v", err)
		} else {
			defer pub.Close()
			deps.Publishers = append(deps.Publishers, pub)
		}
	}
	if cfg.Webserver.Enabled {
		webSrv = web.New(cfg.Webserver, sched)
		deps.StatusSinks = append(deps.StatusSinks, webSrv)
	}
	if cfg.Influx.Enabled {
		deps.StatusSinks = append(deps.StatusSinks, influx.New(cfg.Influx))
	}
	sched.SetSinks(deps.Publishers, deps.StatusSinks)

	g, gctx := errgroup.WithContext(ctx)
	if webSrv != nil {
		g.Go(func() error { return webSrv.Run(gctx) })
	}
	if ble != nil {
		g.Go(func() error {
			// A node without a usable HCI device keeps measuring.
			if err := ble.Run(gctx, monitor.BTEnabled); err != nil {
				log.Errorf("radio: %v", err)
			}
			return nil
		})
	}
	g.Go(func() error { return sched.Run(gctx) })

	log.Info("airnode: running")
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if stopErr := co2.StopPeriodicMeasurement(); stopErr != nil {
		log.Warnf("scd4x: stop on shutdown: %v", stopErr)
	}
	log.Info("airnode: stopped")
	return err
}
