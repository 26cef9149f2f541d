// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mqttpub publishes samples and pressure readings as retained JSON
// messages.
package mqttpub

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/airnode/internal/config"
	"github.com/relabs-tech/airnode/internal/env"
)

// PublishTimeout bounds how long the measurement loop waits on the broker.
var PublishTimeout = 2 * time.Second

// SamplePayload is published on the sample topic.
type SamplePayload struct {
	env.Sample
	Timestamp int64 `json:"timestamp"`
}

// PressurePayload is published on the pressure topic.
type PressurePayload struct {
	Pressure  float64 `json:"pressure_pa"`
	Elevation float64 `json:"elevation_m"`
	Timestamp int64   `json:"timestamp"`
}

// Publisher sends to a broker. Messages are dropped while disconnected;
// the next cycle brings fresh values.
type Publisher struct {
	cfg    config.MQTT
	client mqtt.Client
	now    func() time.Time
}

// ClientOptions builds the paho options for cfg.
func ClientOptions(cfg config.MQTT) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("mqtt: connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Infof("mqtt: connected to %s", cfg.Broker)
	})
	return opts
}

// Dial connects to the broker in cfg. With connect retry enabled the
// token completes once the first attempt is made; reconnects continue in
// the background.
func Dial(cfg config.MQTT) (*Publisher, error) {
	client := mqtt.NewClient(ClientOptions(cfg))
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "mqtt connect %s", cfg.Broker)
	}
	return New(cfg, client), nil
}

// New wraps an existing client.
func New(cfg config.MQTT, client mqtt.Client) *Publisher {
	return &Publisher{cfg: cfg, client: client, now: time.Now}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// PublishPressure sends r on the pressure topic.
func (p *Publisher) PublishPressure(r env.Reading) error {
	return p.publish(p.cfg.TopicPressure, PressurePayload{
		Pressure:  r.Pressure,
		Elevation: r.Elevation,
		Timestamp: p.now().Unix(),
	})
}

// PublishSample sends s on the sample topic. The history ring is not
// published.
func (p *Publisher) PublishSample(s env.Sample, _ []byte) error {
	ts := s.Time
	if ts.IsZero() {
		ts = p.now()
	}
	return p.publish(p.cfg.TopicSample, SamplePayload{Sample: s, Timestamp: ts.Unix()})
}

func (p *Publisher) publish(topic string, v interface{}) error {
	if topic == "" {
		return nil
	}
	if !p.client.IsConnected() {
		log.Debugf("mqtt: not connected, dropping %s", topic)
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", topic)
	}
	token := p.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(PublishTimeout) {
		return errors.Errorf("mqtt publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "mqtt publish %s", topic)
	}
	return nil
}
