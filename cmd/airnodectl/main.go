// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Command airnodectl runs maintenance operations on the CO2 sensor while
// the airnode daemon is stopped, and watches a running node over MQTT.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/airnode/internal/app"
	"github.com/relabs-tech/airnode/internal/config"
	"github.com/relabs-tech/airnode/internal/scd4x"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "airnodectl",
	Short:         "Maintain an airnode sensor",
	Long:          `Runs maintenance operations directly on the SCD4x sensor. Stop the airnode daemon first: both would drive the I2C bus.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := log.InfoLevel
		if verbose {
			level = log.DebugLevel
		}
		app.SetupLogging(level)
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Warnf("airnodectl: .env: %v", err)
		}
	},
}

func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Debugf("airnodectl: %s not found, using defaults", configPath)
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// withSensor opens the bus and the sensor, stops any periodic measurement
// left running and hands the sensor to fn.
func withSensor(fn func(dev *scd4x.Dev) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	bus, err := app.OpenBus(cfg.I2C)
	if err != nil {
		return err
	}
	defer bus.Close()

	dev := scd4x.New(bus.Transport, &scd4x.Opts{Addr: scd4x.SensorAddress, VerifyCRC: cfg.SCD4x.VerifyCRC})
	if err := dev.StopPeriodicMeasurement(); err != nil {
		return err
	}
	return fn(dev)
}

func verbCommand(name string) *cobra.Command {
	usage, help := app.VerbHelp(name)
	return &cobra.Command{
		Use:   usage,
		Short: help,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSensor(func(dev *scd4x.Dev) error {
				return app.NewCtl(dev, cmd.OutOrStdout()).Exec(name, args...)
			})
		},
	}
}

var frcPPM uint16

var frcCmd = &cobra.Command{
	Use:   "frc",
	Short: "forced recalibration against a reference",
	Long:  `Recalibrates against a reference CO2 concentration. Run the sensor in fresh air or next to a reference instrument for at least three minutes first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if frcPPM == 0 {
			return cmd.Usage()
		}
		return withSensor(func(dev *scd4x.Dev) error {
			return app.NewCtl(dev, cmd.OutOrStdout()).Exec("frc", strconv.FormatUint(uint64(frcPPM), 10))
		})
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "interactive maintenance console",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSensor(func(dev *scd4x.Dev) error {
			return app.RunConsole(dev)
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "print the samples a running node publishes over MQTT",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return app.RunWatch(ctx, cfg.MQTT, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the node config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log bus traffic")

	frcCmd.Flags().Uint16Var(&frcPPM, "ppm", 0, "reference concentration in ppm")

	for _, name := range app.Verbs() {
		if name == "frc" {
			continue
		}
		rootCmd.AddCommand(verbCommand(name))
	}
	rootCmd.AddCommand(frcCmd, consoleCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("airnodectl: %v", err)
	}
}
