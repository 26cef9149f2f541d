// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/airnode/internal/config"
	"github.com/relabs-tech/airnode/internal/sinks/mqttpub"
)

// RunWatch subscribes to the node's MQTT topics and prints every message
// until ctx is cancelled.
func RunWatch(ctx context.Context, cfg config.MQTT, out io.Writer) error {
	cfg.ClientID += "-watch"
	opts := mqttpub.ClientOptions(cfg)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "mqtt connect %s", cfg.Broker)
	}
	defer client.Disconnect(250)

	subs := map[string]func([]byte) (string, error){
		cfg.TopicSample:   FormatSample,
		cfg.TopicPressure: FormatPressure,
	}
	for topic, format := range subs {
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			line, err := format(msg.Payload())
			if err != nil {
				log.Warnf("watch: %s: %v", msg.Topic(), err)
				return
			}
			fmt.Fprintln(out, line)
		})
		token.Wait()
		if token.Error() != nil {
			return errors.Wrapf(token.Error(), "subscribe %s", topic)
		}
		log.Infof("watch: subscribed to %s", topic)
	}

	<-ctx.Done()
	log.Info("watch: shutting down")
	return nil
}

// FormatSample renders a sample payload as one console line.
func FormatSample(payload []byte) (string, error) {
	var p mqttpub.SamplePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", errors.Wrap(err, "decode sample")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[AIR ] %s co2=%5d ppm  temp=%6.2f°C  rh=%6.2f%%",
		stamp(p.Timestamp), p.CO2, p.Temperature, p.Humidity)
	if p.Pressure != nil {
		fmt.Fprintf(&b, "  p=%.0f Pa", *p.Pressure)
	}
	return b.String(), nil
}

// FormatPressure renders a pressure payload as one console line.
func FormatPressure(payload []byte) (string, error) {
	var p mqttpub.PressurePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", errors.Wrap(err, "decode pressure")
	}
	return fmt.Sprintf("[BARO] %s p=%9.0f Pa  elevation=%8.1f m",
		stamp(p.Timestamp), p.Pressure, p.Elevation), nil
}

func stamp(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}
