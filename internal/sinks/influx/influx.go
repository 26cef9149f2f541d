// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package influx writes samples to an InfluxDB v2 write endpoint as line
// protocol.
package influx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/airnode/internal/config"
	"github.com/relabs-tech/airnode/internal/env"
)

// Timeout bounds a single write.
var Timeout = 10 * time.Second

// Writer posts one line per sample.
type Writer struct {
	cfg    config.Influx
	url    string
	client *http.Client
}

// New returns a Writer for cfg.
func New(cfg config.Influx) *Writer {
	return &Writer{cfg: cfg, url: WriteURL(cfg), client: &http.Client{Timeout: Timeout}}
}

// WriteURL builds {host}/api/v2/write with bucket and credentials as query
// parameters.
func WriteURL(cfg config.Influx) string {
	q := url.Values{}
	q.Set("bucket", cfg.Bucket)
	q.Set("u", cfg.Username)
	q.Set("p", cfg.Password)
	return strings.TrimRight(cfg.Host, "/") + "/api/v2/write?" + q.Encode()
}

// Line renders sample as "<datapoint> co2=<n>,temp=<f>,humidity=<f>".
func Line(datapoint string, s env.Sample) string {
	return fmt.Sprintf("%s co2=%d,temp=%g,humidity=%g", datapoint, s.CO2, s.Temperature, s.Humidity)
}

// PushStatus writes sample. A non-2xx answer is an error.
func (w *Writer) PushStatus(ctx context.Context, sample env.Sample) error {
	body := Line(w.cfg.Datapoint, sample)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, strings.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "influx request")
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "influx write")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	log.Debugf("influx: status %d", resp.StatusCode)
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("influx write: %s", resp.Status)
	}
	return nil
}
