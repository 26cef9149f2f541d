// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/airnode/internal/app"
	"github.com/relabs-tech/airnode/internal/config"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the node config")
	envFile := flag.String("env", ".env", "optional file with secrets")
	flag.Parse()

	app.SetupLogging(log.InfoLevel)

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Warnf("airnode: %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("airnode: %v", err)
	}
	log.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunNode(ctx, *configPath, cfg); err != nil {
		log.Fatalf("airnode: %v", err)
	}
}
