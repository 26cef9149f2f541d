// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package history persists measurements on the node: one append-only log
// file per metric and an in-memory ring of recent CO2 values.
package history

import (
	"time"

	"github.com/pkg/errors"
)

// Kind is a logged metric. Its value is the format id stored in the header.
type Kind byte

const (
	CO2         Kind = 0
	Temperature Kind = 1
	Humidity    Kind = 2
	Pressure    Kind = 3
)

// Magic starts every log session.
const Magic = "AN42"

var kinds = []struct {
	kind  Kind
	name  string
	alias string
	unit  string
	size  int
	scale float64
}{
	{CO2, "co2", "co2", "ppm", 2, 1},
	{Temperature, "temperature", "c", "C", 2, 100},
	{Humidity, "relative_humidity", "rh", "%", 2, 100},
	{Pressure, "pressure", "pressure", "Pa", 3, 10},
}

// ParseKind accepts the metric names used in config.json, including the
// short forms "c" and "rh".
func ParseKind(s string) (Kind, error) {
	for _, k := range kinds {
		if s == k.name || s == k.alias {
			return k.kind, nil
		}
	}
	return 0, errors.Errorf("unknown log metric %q", s)
}

func (k Kind) String() string {
	if int(k) < len(kinds) {
		return kinds[k].name
	}
	return "unknown"
}

// Unit is the suffix printed after decoded values.
func (k Kind) Unit() string { return kinds[k].unit }

// Width is the number of bytes per sample in the log body.
func (k Kind) Width() int { return kinds[k].size }

func (k Kind) valid() bool { return int(k) < len(kinds) }

// Cadence is the time between consecutive samples of a session.
func Cadence(lowPower bool) time.Duration {
	if lowPower {
		return 30 * time.Second
	}
	return 5 * time.Second
}
