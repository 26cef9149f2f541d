// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package web serves the node status over HTTP: a cached JSON document, the
// same values as Prometheus text, and a websocket that streams every update
// and accepts maintenance commands.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/airnode/internal/config"
	"github.com/relabs-tech/airnode/internal/env"
	"github.com/relabs-tech/airnode/internal/scheduler"
)

// Controller runs maintenance commands on the sensor.
type Controller interface {
	Submit(ctx context.Context, kind scheduler.CommandKind, ppm uint16) (scheduler.Result, error)
}

// Status is the document served at /status.json. Fields are null until the
// first update, and pressure fields stay null without a barometer.
type Status struct {
	CO2         *uint16  `json:"co2_ppm"`
	Temperature *float64 `json:"temp_celsius"`
	Humidity    *float64 `json:"relative_humidity"`
	Pressure    *float64 `json:"pressure_pa"`
	Elevation   *float64 `json:"elevation_m"`
}

// StatusFrom converts a sample.
func StatusFrom(s env.Sample) Status {
	co2, t, rh := s.CO2, s.Temperature, s.Humidity
	return Status{CO2: &co2, Temperature: &t, Humidity: &rh, Pressure: s.Pressure, Elevation: s.Elevation}
}

// Server is the HTTP status sink.
type Server struct {
	cfg config.Webserver
	ctl Controller

	mu         sync.RWMutex
	status     Status
	statusJSON []byte
	promText   []byte

	clientsMu sync.Mutex
	clients   map[*client]struct{}

	reg     *prometheus.Registry
	updates prometheus.Counter
}

// New returns a Server. ctl may be nil, in which case commands are refused.
func New(cfg config.Webserver, ctl Controller) *Server {
	s := &Server{
		cfg:     cfg,
		ctl:     ctl,
		clients: make(map[*client]struct{}),
		reg:     prometheus.NewRegistry(),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airnode_status_updates_total",
			Help: "Number of status updates received from the scheduler.",
		}),
	}
	s.reg.MustRegister(s.updates)
	s.reg.MustRegister(prometheus.NewGoCollector())
	s.render(Status{})
	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status.json", s.handleStatus)
	mux.HandleFunc("/prometheus", s.handlePrometheus)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.Error(w, "404 :(", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `try <a href="/status.json">/status.json</a>`)
	})
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Duration(s.cfg.ConnTimeoutS) * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("web: listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "web server")
	}
	return nil
}

// PushStatus replaces the cached documents and streams the update.
func (s *Server) PushStatus(_ context.Context, sample env.Sample) error {
	st := StatusFrom(sample)
	if err := s.render(st); err != nil {
		return err
	}
	s.updates.Inc()
	s.broadcast(WSResponse{Type: "status", Status: &st})
	return nil
}

// Status returns the last pushed status.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) render(st Status) error {
	js, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "encode status")
	}
	prom, err := promText(st)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.statusJSON, s.promText = st, js, prom
	return nil
}

// promText renders st through a fresh registry so absent values produce no
// metric at all.
func promText(st Status) ([]byte, error) {
	reg := prometheus.NewRegistry()
	gauge := func(name, help string, v *float64) {
		if v == nil {
			return
		}
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		g.Set(*v)
		reg.MustRegister(g)
	}
	if st.CO2 != nil {
		co2 := float64(*st.CO2)
		gauge("co2_ppm", "CO2 concentration (units: ppm)", &co2)
	}
	gauge("temp_celsius", "Air temperature (units: degrees Celsius)", st.Temperature)
	gauge("relative_humidity", "Relative humidity (units: %)", st.Humidity)
	gauge("pressure_pa", "Atmospheric pressure (units: Pa)", st.Pressure)
	gauge("elevation_m", "Elevation derived from pressure (units: m)", st.Elevation)

	mfs, err := reg.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "gather metrics")
	}
	var buf bytes.Buffer
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, errors.Wrap(err, "encode metrics")
		}
	}
	return buf.Bytes(), nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write(s.statusJSON)
}

func (s *Server) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w.Header().Set("Content-Type", string(expfmt.FmtText))
	w.Write(s.promText)
}
