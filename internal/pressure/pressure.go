// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pressure reads barometric pressure from a BMP180 or BMP280 and
// derives altitude. Pressure feeds the CO2 sensor's ambient compensation.
package pressure

import "math"

// SeaLevelMbar is the standard atmosphere at sea level.
const SeaLevelMbar = 1013.25

// Sensor is a barometer that reports pressure in pascals.
type Sensor interface {
	ReadPressure() (float64, error)
	String() string
}

// Altitude converts pressure in Pa to metres above the level where the
// pressure is seaLevelMbar, using the international barometric formula.
func Altitude(pa, seaLevelMbar float64) float64 {
	return 44330 * (1 - math.Pow(pa/100/seaLevelMbar, 0.190284))
}

// Band is the range of plausible pressures in Pa. Readings outside it are
// treated as drift and not used for compensation.
type Band struct {
	Lower float64
	Upper float64
}

// Accept reports whether pa lies in the band, bounds included.
func (b Band) Accept(pa float64) bool {
	return pa >= b.Lower && pa <= b.Upper
}
