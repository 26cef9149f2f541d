// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Command logdump prints the sessions stored in an airnode log file.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/airnode/internal/app"
	"github.com/relabs-tech/airnode/internal/history"
)

var titles = map[history.Kind]string{
	history.CO2:         "CO2",
	history.Temperature: "Temperature",
	history.Humidity:    "Relative Humidity",
	history.Pressure:    "Pressure",
}

var rootCmd = &cobra.Command{
	Use:          "logdump <file>",
	Short:        "Print the sessions of an airnode log file",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		return dump(cmd.OutOrStdout(), f)
	},
}

// dump writes "Session N (<metric>)" followed by one "+<seconds>: <value><unit>"
// line per sample. Sessions decoded before a corrupt one are still printed.
func dump(w io.Writer, r io.Reader) error {
	sessions, decodeErr := history.Decode(r)
	for i, s := range sessions {
		fmt.Fprintf(w, "Session %d (%s)\n", i+1, titles[s.Kind])
		for j, v := range s.Values {
			fmt.Fprintf(w, "+%d: %s%s\n", int(s.Offset(j).Seconds()), strconv.FormatFloat(v, 'f', -1, 64), s.Kind.Unit())
		}
	}
	return decodeErr
}

func main() {
	app.SetupLogging(log.InfoLevel)
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("logdump: %v", err)
	}
}
