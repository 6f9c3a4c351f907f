// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/noldarim/ragbus/internal/protocol"

	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 4096
	maxFilters     = 50
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	writeWait      = 10 * time.Second
	maxClients     = 1000
	sendBuffer     = 64
)

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, r.Header.Get("Origin"))
		},
	}
}

// SubscriptionFilter narrows the stream a client receives. Empty fields
// match anything.
type SubscriptionFilter struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	Worker        string `json:"worker,omitempty"` // matches sender or receiver
}

func (f SubscriptionFilter) matches(env protocol.Envelope) bool {
	if f.CorrelationID != "" && f.CorrelationID != env.CorrelationID {
		return false
	}
	if f.Worker != "" && f.Worker != env.Sender && f.Worker != env.Receiver {
		return false
	}
	return true
}

type wsClient struct {
	conn    *websocket.Conn
	send    chan []byte
	mu      sync.RWMutex
	filters []SubscriptionFilter
}

// ClientRegistry tracks connected WebSocket clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[*wsClient]struct{})}
}

// Broadcast queues env for every client whose filters match. Slow clients
// miss envelopes rather than stall the broadcaster.
func (r *ClientRegistry) Broadcast(env protocol.Envelope) {
	data, err := json.Marshal(wsOutMessage{Type: "envelope", Envelope: &env})
	if err != nil {
		getLog().Error().Err(err).Str("envelope_id", env.ID).Msg("Failed to marshal envelope for WebSocket broadcast")
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.clients {
		if !c.wants(env) {
			continue
		}
		select {
		case c.send <- data:
		default:
			getLog().Warn().Str("correlation_id", env.CorrelationID).Msg("Dropping envelope for slow WebSocket client")
		}
	}
}

// Len reports the number of connected clients.
func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *ClientRegistry) add(c *wsClient) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.clients) >= maxClients {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

func (r *ClientRegistry) remove(c *wsClient) {
	r.mu.Lock()
	delete(r.clients, c)
	r.mu.Unlock()
}

func (c *wsClient) wants(env protocol.Envelope) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.filters) == 0 {
		return true
	}
	return slices.ContainsFunc(c.filters, func(f SubscriptionFilter) bool { return f.matches(env) })
}

func (c *wsClient) apply(msg wsMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case "subscribe":
		if len(c.filters) >= maxFilters {
			return errTooManyFilters
		}
		c.filters = append(c.filters, msg.Filters)
	case "unsubscribe":
		c.filters = slices.DeleteFunc(c.filters, func(f SubscriptionFilter) bool { return f == msg.Filters })
	default:
		return errUnknownMessage
	}
	return nil
}

// wsMessage is a client to server control message.
type wsMessage struct {
	Type    string             `json:"type"` // "subscribe" or "unsubscribe"
	Filters SubscriptionFilter `json:"filters"`
}

// wsOutMessage is a server to client message.
type wsOutMessage struct {
	Type     string             `json:"type"` // "envelope" or "error"
	Envelope *protocol.Envelope `json:"envelope,omitempty"`
	Message  string             `json:"message,omitempty"`
}

// HandleWebSocket upgrades the connection and streams routed envelopes.
func HandleWebSocket(registry *ClientRegistry, allowedOrigins []string) http.HandlerFunc {
	upgrader := newUpgrader(allowedOrigins)

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			getLog().Error().Err(err).Msg("WebSocket upgrade failed")
			return
		}

		client := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
		if f := filterFromQuery(r); f != (SubscriptionFilter{}) {
			client.filters = append(client.filters, f)
		}
		if !registry.add(client) {
			getLog().Warn().Msg("WebSocket connection limit reached")
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"))
			conn.Close()
			return
		}
		getLog().Info().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

		go client.writePump()
		client.readPump(registry)
	}
}

func filterFromQuery(r *http.Request) SubscriptionFilter {
	q := r.URL.Query()
	return SubscriptionFilter{CorrelationID: q.Get("correlation_id"), Worker: q.Get("worker")}
}

func (c *wsClient) readPump(registry *ClientRegistry) {
	defer func() {
		registry.remove(c)
		close(c.send)
		c.conn.Close()
		getLog().Info().Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				getLog().Error().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			getLog().Warn().Err(err).Msg("Invalid WebSocket message")
			continue
		}
		if err := c.apply(msg); err != nil {
			getLog().Warn().Err(err).Str("type", msg.Type).Msg("Rejected WebSocket message")
			c.reject(err)
			continue
		}
		getLog().Debug().
			Str("type", msg.Type).
			Str("correlation_id", msg.Filters.CorrelationID).
			Str("worker", msg.Filters.Worker).
			Msg("WebSocket subscription changed")
	}
}

func (c *wsClient) reject(err error) {
	data, _ := json.Marshal(wsOutMessage{Type: "error", Message: err.Error()})
	select {
	case c.send <- data:
	default:
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				getLog().Error().Err(err).Msg("WebSocket write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
