// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"github.com/mattn/go-colorable"
	log "github.com/sirupsen/logrus"
)

// SetupLogging configures logrus for the commands: full timestamps, colours
// when the terminal supports them.
func SetupLogging(level log.Level) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(colorable.NewColorableStdout())
	log.SetLevel(level)
}
