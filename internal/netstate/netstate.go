// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package netstate decides the network-presence mode of the node. WLAN and
// Bluetooth are each on when enabled in the config and, if an enable pin is
// wired, that pin reads high.
package netstate

import (
	"context"
	"net"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/relabs-tech/airnode/internal/config"
)

// ErrNotConnected is returned by Connected when the interface is down or has
// no usable address.
var ErrNotConnected = errors.New("not connected")

// Monitor reports radio enable state and WLAN connectivity.
type Monitor struct {
	cfg    *config.Config
	wlanEn gpio.PinIn
	btEn   gpio.PinIn

	// Interface looks up the WLAN interface; replaced in tests.
	Interface func(name string) (Iface, error)
}

// Iface is the part of a network interface Connected needs.
type Iface interface {
	Up() bool
	Addrs() ([]net.Addr, error)
}

// Open resolves the enable pins named in cfg through the periph registry.
// host.Init must have run.
func Open(cfg *config.Config) (*Monitor, error) {
	wlan, err := inputPin(cfg.Pins.WLAN)
	if err != nil {
		return nil, err
	}
	bt, err := inputPin(cfg.Pins.BT)
	if err != nil {
		return nil, err
	}
	return New(cfg, wlan, bt), nil
}

// New returns a Monitor using the given enable pins; either may be nil.
func New(cfg *config.Config, wlanEnable, btEnable gpio.PinIn) *Monitor {
	return &Monitor{cfg: cfg, wlanEn: wlanEnable, btEn: btEnable, Interface: sysInterface}
}

func inputPin(name string) (gpio.PinIn, error) {
	if name == "" {
		return nil, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("gpio %q not found", name)
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, errors.Wrapf(err, "configure %s", name)
	}
	return p, nil
}

// WLANEnabled is the network-presence mode used to pick oversampling, LED
// trigger and display refresh.
func (m *Monitor) WLANEnabled() bool {
	if !m.cfg.WLAN.Enabled {
		return false
	}
	return m.wlanEn == nil || m.wlanEn.Read() == gpio.High
}

// BTEnabled reports whether the radio service should advertise.
func (m *Monitor) BTEnabled() bool {
	if !m.cfg.Bluetooth.Enabled {
		return false
	}
	return m.btEn == nil || m.btEn.Read() == gpio.High
}

// Connected reports whether the WLAN interface is up with a non-loopback
// address. Callers treat any error as disconnected for that cycle.
func (m *Monitor) Connected(ctx context.Context) (bool, error) {
	if !m.WLANEnabled() {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	name := m.cfg.WLAN.Interface
	iface, err := m.Interface(name)
	if err != nil {
		return false, errors.Wrapf(err, "interface %s", name)
	}
	if !iface.Up() {
		return false, errors.Wrapf(ErrNotConnected, "%s is down", name)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return false, errors.Wrapf(err, "addresses of %s", name)
	}
	for _, a := range addrs {
		if ip, ok := a.(*net.IPNet); ok && !ip.IP.IsLoopback() && !ip.IP.IsLinkLocalUnicast() {
			return true, nil
		}
	}
	log.Debugf("netstate: %s has no routable address", name)
	return false, errors.Wrapf(ErrNotConnected, "%s has no address", name)
}

type sysIface struct{ *net.Interface }

func (i sysIface) Up() bool { return i.Flags&net.FlagUp != 0 }

func sysInterface(name string) (Iface, error) {
	i, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return sysIface{i}, nil
}
