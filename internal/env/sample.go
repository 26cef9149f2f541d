// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package env

import "time"

// Sample is one measurement cycle: the SCD4x triple plus the barometer
// reading when one is fitted. Pressure and Elevation are nil without a
// barometer; Elevation is 0 when the pressure was rejected as drift.
type Sample struct {
	CO2         uint16   `json:"co2_ppm"`
	Temperature float64  `json:"temp_celsius"`      // °C
	Humidity    float64  `json:"relative_humidity"` // %RH
	Pressure    *float64 `json:"pressure_pa"`       // Pa
	Elevation   *float64 `json:"elevation_m"`       // m

	Time time.Time `json:"-"`
}

// Reading is the barometer half of a cycle.
type Reading struct {
	Pressure  float64
	Elevation float64
	Accepted  bool
}

// WithReading returns s with the pressure fields filled from r.
func (s Sample) WithReading(r *Reading) Sample {
	if r == nil {
		return s
	}
	p, e := r.Pressure, r.Elevation
	s.Pressure, s.Elevation = &p, &e
	return s
}
