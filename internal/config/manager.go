// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Restarter brings the whole node down and up again so every component
// re-reads the stored config.
type Restarter interface {
	Restart() error
}

// ExecRestarter restarts by re-executing the running binary in place.
type ExecRestarter struct{}

func (ExecRestarter) Restart() error {
	exe, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "locate executable")
	}
	log.Warnf("config: restarting %s", exe)
	return errors.Wrap(syscall.Exec(exe, os.Args, os.Environ()), "exec")
}

// Manager is the only mutation path for the stored config. Every accepted
// change is persisted and followed by a restart.
type Manager struct {
	path string
	r    Restarter

	// Settle is the wait between persisting and restarting.
	Settle time.Duration
	// Sleep is replaced in tests.
	Sleep func(time.Duration)
}

// NewManager manages the document stored at path.
func NewManager(path string, r Restarter) *Manager {
	return &Manager{
		path:   path,
		r:      r,
		Settle: time.Second,
		Sleep:  time.Sleep,
	}
}

// Update merges a partial document into the stored config: top-level keys
// in b replace the stored ones, the rest are kept. The merge works on the
// file, so environment overrides are never written back. The merged document
// is persisted and the node restarted. A document that is not a JSON object,
// or a merge that does not validate, returns ErrParse and changes nothing.
func (m *Manager) Update(b []byte) error {
	var update map[string]json.RawMessage
	err := json.Unmarshal(b, &update)
	if err == nil && update == nil {
		err = errors.New("not a JSON object")
	}
	if err != nil {
		log.Errorf("config: discarding update %q: %v", b, err)
		return errors.Wrap(ErrParse, err.Error())
	}

	doc, err := m.stored()
	if err != nil {
		return err
	}
	for k, v := range update {
		doc[k] = v
	}

	merged, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode merged config")
	}
	if _, err := Parse(merged); err != nil {
		log.Errorf("config: discarding update %q: %v", b, err)
		return err
	}

	log.Infof("config: applying update of %d keys", len(update))
	return m.persistAndRestart(merged)
}

// Replace stores b verbatim as the new config and restarts.
func (m *Manager) Replace(b []byte) error {
	log.Infof("config: replacing stored config (%d bytes)", len(b))
	return m.persistAndRestart(b)
}

// stored decodes the top-level keys of the config file. A missing file is an
// empty document, leaving every key at its default.
func (m *Manager) stored() (map[string]json.RawMessage, error) {
	doc := map[string]json.RawMessage{}
	b, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", m.path)
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrapf(err, "decode stored config %s", m.path)
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	return doc, nil
}

func (m *Manager) persistAndRestart(b []byte) error {
	if err := writeAtomic(m.path, b); err != nil {
		return err
	}
	m.Sleep(m.Settle)
	return m.r.Restart()
}

// writeAtomic replaces path through a synced temp file in the same directory.
// The file keeps its permissions; a new one is created 0644.
func writeAtomic(path string, b []byte) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "create temp config")
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return errors.Wrap(err, "chmod temp config")
	}

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp config")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp config")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp config")
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "rename to %s", path)
}
