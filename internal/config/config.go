// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/airnode/internal/history"
)

// Environment variables that override secrets in the config file.
const (
	EnvInfluxPassword = "AIRNODE_INFLUX_PASSWORD"
	EnvMQTTPassword   = "AIRNODE_MQTT_PASSWORD"
	EnvWLANInterface  = "AIRNODE_WLAN_INTERFACE"
)

// ErrParse is returned when a config document cannot be decoded or fails
// validation.
var ErrParse = errors.New("config parse error")

// Config holds all node configuration. It is loaded once at boot and only
// ever replaced as a whole through Manager, followed by a restart.
type Config struct {
	LogLevel string `json:"log_level"`

	I2C      I2C      `json:"i2c"`
	Pins     Pins     `json:"pins"`
	SCD4x    SCD4x    `json:"scd4x"`
	Pressure Pressure `json:"pressure"`

	// Logs lists the metrics written to on-flash logs: co2, temperature (c),
	// relative_humidity (rh), pressure.
	Logs        []string `json:"logs"`
	LogDir      string   `json:"log_dir"`
	HistorySize int      `json:"history_size"`

	LED       LED       `json:"led"`
	Screen    Screen    `json:"screen"`
	WLAN      WLAN      `json:"wlan"`
	Bluetooth Bluetooth `json:"bluetooth"`
	Webserver Webserver `json:"webserver"`
	Influx    Influx    `json:"influx"`
	MQTT      MQTT      `json:"mqtt"`
}

// I2C selects the bus by its periph registry name; empty means the first one.
type I2C struct {
	Bus string `json:"bus"`
}

// Pins are periph GPIO names. Empty disables the pin.
type Pins struct {
	LED  string `json:"led"`
	WLAN string `json:"wlan"`
	BT   string `json:"bt"`
}

type SCD4x struct {
	LowPower bool `json:"low_power"`
	ASC      bool `json:"asc"`
	// TempOffset is written to the sensor at boot only when set.
	TempOffset *float64 `json:"temp_offset,omitempty"`
	VerifyCRC  bool     `json:"verify_crc"`
}

// Pressure configures the barometer. Oversampling is 0..3; the _wlan variant
// applies while the network is enabled.
type Pressure struct {
	Oversampling     int     `json:"oversampling"`
	OversamplingWLAN int     `json:"oversampling_wlan"`
	LowerPressure    float64 `json:"lower_pressure"`
	UpperPressure    float64 `json:"upper_pressure"`
	SeaLevelMbar     float64 `json:"sea_level_mbar"`
}

// LED thresholds in ppm; -1 disables the LED in that mode.
type LED struct {
	CO2Trigger     int `json:"co2_trigger"`
	CO2TriggerWLAN int `json:"co2_trigger_wlan"`
}

type Screen struct {
	Enabled bool   `json:"enabled"`
	SPIPort string `json:"spi_port"`
	// RefreshRate is the number of successful cycles between repaints.
	RefreshRate     int  `json:"refresh_rate"`
	RefreshRateWLAN int  `json:"refresh_rate_wlan"`
	ShowAltitude    bool `json:"show_altitude"`
}

type WLAN struct {
	Enabled   bool   `json:"enabled"`
	Interface string `json:"interface"`
}

type Bluetooth struct {
	Enabled     bool   `json:"enabled"`
	Name        string `json:"name"`
	CO2AsString bool   `json:"co2_as_string"`
}

type Webserver struct {
	Enabled       bool `json:"enabled"`
	Port          int  `json:"port"`
	ConnTimeoutS  int  `json:"conn_timeout_s"`
	StreamClients int  `json:"stream_clients"`
}

type Influx struct {
	Enabled   bool   `json:"enabled"`
	Host      string `json:"host"`
	Bucket    string `json:"bucket"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Datapoint string `json:"datapoint"`
}

type MQTT struct {
	Enabled       bool   `json:"enabled"`
	Broker        string `json:"broker"`
	ClientID      string `json:"client_id"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	TopicSample   string `json:"topic_sample"`
	TopicPressure string `json:"topic_pressure"`
}

// Default returns the configuration used for every key a document leaves out.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		SCD4x:    SCD4x{ASC: true},
		Pressure: Pressure{
			Oversampling:     3,
			OversamplingWLAN: 3,
			LowerPressure:    30000,
			UpperPressure:    110000,
			SeaLevelMbar:     1013.25,
		},
		Logs:        []string{"co2", "temperature", "relative_humidity", "pressure"},
		LogDir:      "logs",
		HistorySize: 120,
		LED:         LED{CO2Trigger: -1, CO2TriggerWLAN: -1},
		Screen:      Screen{RefreshRate: 12, RefreshRateWLAN: 12},
		WLAN:        WLAN{Enabled: true, Interface: "wlan0"},
		Bluetooth:   Bluetooth{Name: "airnode"},
		Webserver:   Webserver{Enabled: true, Port: 8080, ConnTimeoutS: 5, StreamClients: 8},
		Influx:      Influx{Datapoint: "airnode"},
		MQTT: MQTT{
			Broker:        "tcp://localhost:1883",
			ClientID:      "airnode",
			TopicSample:   "airnode/sample",
			TopicPressure: "airnode/pressure",
		},
	}
}

// Load reads and parses the config file at path, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	cfg.applyEnv()
	return cfg, nil
}

// Parse decodes a complete config document over the defaults and validates
// it. Unknown keys are rejected.
func Parse(b []byte) (*Config, error) {
	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(ErrParse, err.Error())
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(ErrParse, err.Error())
	}
	return cfg, nil
}

// applyEnv overrides secrets from the environment. A .env file is loaded
// into the environment by the commands before Load runs.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvInfluxPassword); v != "" {
		c.Influx.Password = v
	}
	if v := os.Getenv(EnvMQTTPassword); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv(EnvWLANInterface); v != "" {
		c.WLAN.Interface = v
	}
}

// validate checks ranges and required fields.
func (c *Config) validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Errorf("log_level %q: %v", c.LogLevel, err)
	}
	p := c.Pressure
	if p.Oversampling < 0 || p.Oversampling > 3 || p.OversamplingWLAN < 0 || p.OversamplingWLAN > 3 {
		return errors.New("pressure oversampling must be 0..3")
	}
	if p.LowerPressure > p.UpperPressure {
		return errors.Errorf("pressure band [%v, %v] is empty", p.LowerPressure, p.UpperPressure)
	}
	if p.SeaLevelMbar <= 0 {
		return errors.New("pressure sea_level_mbar must be positive")
	}
	if _, err := c.LogKinds(); err != nil {
		return err
	}
	if c.HistorySize < 0 {
		return errors.New("history_size must not be negative")
	}
	if c.Screen.RefreshRate < 1 || c.Screen.RefreshRateWLAN < 1 {
		return errors.New("screen refresh rates must be at least 1")
	}
	if c.Webserver.Enabled && (c.Webserver.Port <= 0 || c.Webserver.Port > 65535) {
		return errors.Errorf("webserver port %d out of range", c.Webserver.Port)
	}
	if c.Influx.Enabled && (c.Influx.Host == "" || c.Influx.Bucket == "") {
		return errors.New("influx host and bucket are required when influx is enabled")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt broker is required when mqtt is enabled")
	}
	if c.Bluetooth.Enabled && strings.TrimSpace(c.Bluetooth.Name) == "" {
		return errors.New("bluetooth name is required when bluetooth is enabled")
	}
	return nil
}

// LogKinds resolves Logs to history kinds, dropping duplicates.
func (c *Config) LogKinds() ([]history.Kind, error) {
	var kinds []history.Kind
	seen := map[history.Kind]bool{}
	for _, name := range c.Logs {
		k, err := history.ParseKind(name)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// Level is the parsed log level. validate guarantees it parses.
func (c *Config) Level() log.Level {
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return l
}
