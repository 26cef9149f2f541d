// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RunConsole reads maintenance verbs from the terminal until EOF, Ctrl+C or
// "quit". Errors from a verb are printed and the console keeps going.
func RunConsole(dev CtlSensor) error {
	items := make([]readline.PrefixCompleterInterface, 0, len(verbs)+2)
	for _, n := range Verbs() {
		items = append(items, readline.PcItem(n))
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("quit"))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:       "airnode> ",
		HistoryFile:  historyFilePath(),
		AutoComplete: readline.NewPrefixCompleter(items...),
	})
	if err != nil {
		return errors.Wrap(err, "readline init")
	}
	defer rl.Close()

	// Keep log lines from tearing the prompt.
	log.SetOutput(rl.Stderr())

	ctl := NewCtl(dev, rl.Stdout())
	log.Info("console ready (type 'help' for commands)")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			return nil
		}
		if err != nil {
			return nil // EOF
		}
		line = strings.TrimSpace(line)
		if line == "quit" || line == "exit" {
			return nil
		}
		if err := ctl.ExecLine(line); err != nil {
			log.Error(err)
		}
	}
}

// historyFilePath returns $XDG_CACHE_HOME/airnode/console_history, or no
// history when no cache directory can be found.
func historyFilePath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(cacheDir, "airnode")
	_ = os.MkdirAll(dir, 0750)
	return filepath.Join(dir, "console_history")
}
