// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/relabs-tech/airnode/internal/scd4x"
)

// CtlSensor is the CO2 sensor as seen by the maintenance tool.
type CtlSensor interface {
	SerialNumber() (uint64, error)
	SelfTest() (bool, error)
	ForcedRecalibration(ppm uint16) (bool, int16, error)
	FactoryReset() error
	PersistSettings() error
	Reinit() error
	AutoSelfCalibration() (bool, error)
	SetAutoSelfCalibration(enabled bool) error
	TemperatureOffset() (float64, error)
	SetTemperatureOffset(offset float64) error
	SensorAltitude() (uint16, error)
	SetSensorAltitude(masl uint16) error
}

var _ CtlSensor = &scd4x.Dev{}

// ErrUsage is returned for malformed verb arguments.
var ErrUsage = errors.New("usage")

type verb struct {
	usage string
	help  string
	run   func(c *Ctl, args []string) error
}

var verbs = map[string]verb{
	"serial":        {"serial", "print the serial number", (*Ctl).serial},
	"selftest":      {"selftest", "run the on-chip self test (10 s)", (*Ctl).selfTest},
	"frc":           {"frc <ppm>", "forced recalibration against a reference", (*Ctl).frc},
	"factory-reset": {"factory-reset", "restore factory settings", (*Ctl).factoryReset},
	"persist":       {"persist", "store settings in EEPROM", (*Ctl).persist},
	"reinit":        {"reinit", "reload settings from EEPROM", (*Ctl).reinit},
	"asc":           {"asc [on|off]", "show or set automatic self calibration", (*Ctl).asc},
	"temp-offset":   {"temp-offset [celsius]", "show or set the temperature offset", (*Ctl).tempOffset},
	"altitude":      {"altitude [masl]", "show or set the sensor altitude", (*Ctl).altitude},
}

// Verbs lists the maintenance verbs in name order.
func Verbs() []string {
	names := make([]string, 0, len(verbs))
	for n := range verbs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// VerbHelp returns the usage line and description of a verb.
func VerbHelp(name string) (usage, help string) {
	v := verbs[name]
	return v.usage, v.help
}

// Ctl runs maintenance verbs directly on the sensor. The daemon must not be
// running, as both would drive the bus.
type Ctl struct {
	dev CtlSensor
	out io.Writer
}

// NewCtl returns a Ctl printing results to out.
func NewCtl(dev CtlSensor, out io.Writer) *Ctl {
	return &Ctl{dev: dev, out: out}
}

// Exec runs one verb with its arguments.
func (c *Ctl) Exec(name string, args ...string) error {
	v, ok := verbs[name]
	if !ok {
		return errors.Errorf("unknown command %q", name)
	}
	if err := v.run(c, args); err != nil {
		if errors.Is(err, ErrUsage) {
			return errors.Errorf("usage: %s", v.usage)
		}
		return errors.Wrap(err, name)
	}
	return nil
}

// ExecLine splits a console line into a verb and its arguments.
func (c *Ctl) ExecLine(line string) error {
	f := strings.Fields(line)
	if len(f) == 0 {
		return nil
	}
	if f[0] == "help" {
		for _, n := range Verbs() {
			fmt.Fprintf(c.out, "  %-22s %s\n", verbs[n].usage, verbs[n].help)
		}
		return nil
	}
	return c.Exec(f[0], f[1:]...)
}

func (c *Ctl) serial(args []string) error {
	s, err := c.dev.SerialNumber()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "serial: 0x%012x\n", s)
	return nil
}

func (c *Ctl) selfTest(args []string) error {
	ok, err := c.dev.SelfTest()
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(c.out, "self test: passed")
	} else {
		fmt.Fprintln(c.out, "self test: MALFUNCTION")
	}
	return nil
}

func (c *Ctl) frc(args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	ppm, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil || ppm == 0 {
		return ErrUsage
	}
	ok, corr, err := c.dev.ForcedRecalibration(uint16(ppm))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, "frc: failed")
		return nil
	}
	fmt.Fprintf(c.out, "frc: correction %+d ppm\n", corr)
	return nil
}

func (c *Ctl) factoryReset(args []string) error {
	if err := c.dev.FactoryReset(); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "factory reset done")
	return nil
}

func (c *Ctl) persist(args []string) error {
	if err := c.dev.PersistSettings(); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "settings persisted")
	return nil
}

func (c *Ctl) reinit(args []string) error {
	if err := c.dev.Reinit(); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "settings reloaded")
	return nil
}

func (c *Ctl) asc(args []string) error {
	switch {
	case len(args) == 0:
	case len(args) == 1 && (args[0] == "on" || args[0] == "off"):
		if err := c.dev.SetAutoSelfCalibration(args[0] == "on"); err != nil {
			return err
		}
	default:
		return ErrUsage
	}
	on, err := c.dev.AutoSelfCalibration()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "asc: %t\n", on)
	return nil
}

func (c *Ctl) tempOffset(args []string) error {
	switch len(args) {
	case 0:
	case 1:
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil || v < 0 {
			return ErrUsage
		}
		if err := c.dev.SetTemperatureOffset(v); err != nil {
			return err
		}
	default:
		return ErrUsage
	}
	v, err := c.dev.TemperatureOffset()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "temperature offset: %.1f°C\n", v)
	return nil
}

func (c *Ctl) altitude(args []string) error {
	switch len(args) {
	case 0:
	case 1:
		v, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil {
			return ErrUsage
		}
		if err := c.dev.SetSensorAltitude(uint16(v)); err != nil {
			return err
		}
	default:
		return ErrUsage
	}
	v, err := c.dev.SensorAltitude()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "altitude: %d m\n", v)
	return nil
}
