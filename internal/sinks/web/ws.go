// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/airnode/internal/scheduler"
)

// CommandTimeout bounds how long a websocket command waits for the
// scheduler. A self test alone takes 10 s and runs only between cycles.
const CommandTimeout = 90 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the node is only reachable on the local network
	},
}

// WSMessage is a control request from a websocket client.
type WSMessage struct {
	Action string `json:"action"` // self_test, frc, persist
	PPM    uint16 `json:"ppm,omitempty"`
}

// WSResponse is pushed to websocket clients.
type WSResponse struct {
	Type       string  `json:"type"` // status, result, error
	Status     *Status `json:"status,omitempty"`
	Action     string  `json:"action,omitempty"`
	OK         bool    `json:"ok,omitempty"`
	Correction int16   `json:"correction,omitempty"`
	Message    string  `json:"message,omitempty"`
}

var actions = map[string]scheduler.CommandKind{
	"self_test": scheduler.CmdSelfTest,
	"frc":       scheduler.CmdForcedRecalibration,
	"persist":   scheduler.CmdPersistSettings,
}

// client is one websocket connection. All writes go through send so that
// only the writer goroutine touches the connection.
type client struct {
	conn *websocket.Conn
	send chan WSResponse
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.Lock()
	full := s.cfg.StreamClients > 0 && len(s.clients) >= s.cfg.StreamClients
	s.clientsMu.Unlock()
	if full {
		http.Error(w, "too many clients", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("web: websocket upgrade error: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan WSResponse, 8)}

	st := s.Status()
	c.send <- WSResponse{Type: "status", Status: &st}

	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()

	done := make(chan struct{})
	go c.writeLoop(done)

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
		close(done)
		conn.Close()
	}()

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Debugf("web: websocket closed: %v", err)
			return
		}
		c.push(s.runAction(r.Context(), msg))
	}
}

func (s *Server) runAction(ctx context.Context, msg WSMessage) WSResponse {
	kind, ok := actions[msg.Action]
	if !ok {
		return WSResponse{Type: "error", Action: msg.Action, Message: "unknown action"}
	}
	if kind == scheduler.CmdForcedRecalibration && msg.PPM == 0 {
		return WSResponse{Type: "error", Action: msg.Action, Message: "ppm is required"}
	}
	if s.ctl == nil {
		return WSResponse{Type: "error", Action: msg.Action, Message: "commands are disabled"}
	}

	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	log.Infof("web: running %s", kind)
	res, err := s.ctl.Submit(ctx, kind, msg.PPM)
	if err == nil {
		err = res.Err
	}
	if err != nil {
		return WSResponse{Type: "error", Action: msg.Action, Message: err.Error()}
	}
	return WSResponse{Type: "result", Action: msg.Action, OK: res.OK, Correction: res.Correction}
}

func (s *Server) broadcast(resp WSResponse) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		c.push(resp)
	}
}

// push drops the message when the client is not keeping up.
func (c *client) push(resp WSResponse) {
	select {
	case c.send <- resp:
	default:
		log.Debug("web: dropping message for slow websocket client")
	}
}

func (c *client) writeLoop(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case resp := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteJSON(resp); err != nil {
				log.Debugf("web: websocket write error: %v", err)
				c.conn.Close()
				return
			}
		}
	}
}
