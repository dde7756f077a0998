// Package events fans invalidation events out to websocket subscribers.
// With Redis configured, events travel through a pub/sub channel so every
// instance delivers them to its own connections.
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/crmhub/pkg/invalidation"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// Publisher accepts events from services. Implementations never block the
// caller on slow subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev invalidation.Event)
}

type discard struct{}

func (discard) Publish(context.Context, invalidation.Event) {}

// Discard drops every event.
var Discard Publisher = discard{}

// Subscriber identifies whose events a connection may see. A nil
// TenantID sees everything (super admins).
type Subscriber struct {
	UserID    uuid.UUID
	TenantID  *uuid.UUID
	CompanyID *uuid.UUID
}

func (s Subscriber) sees(ev invalidation.Event) bool {
	if s.TenantID == nil {
		return true
	}
	if ev.TenantID != s.TenantID.String() {
		return false
	}
	if s.CompanyID != nil && ev.CompanyID != "" && ev.CompanyID != s.CompanyID.String() {
		return false
	}
	return true
}

type conn struct {
	ws   *websocket.Conn
	sub  Subscriber
	send chan []byte
	once sync.Once
}

func (c *conn) close() {
	c.once.Do(func() { close(c.send) })
}

type Hub struct {
	mu       sync.RWMutex
	conns    map[*conn]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub builds a hub accepting upgrades from the given origins. "*"
// allows any origin; requests without an Origin header are always
// accepted.
func NewHub(origins []string, logger *zap.Logger) *Hub {
	h := &Hub{
		conns:  make(map[*conn]struct{}),
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
		},
	}
	return h
}

// Publish delivers to local connections only.
func (h *Hub) Publish(_ context.Context, ev invalidation.Event) {
	h.Broadcast(ev)
}

// Broadcast writes ev to every connection allowed to see it. A
// connection whose buffer is full is dropped.
func (h *Hub) Broadcast(ev invalidation.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode event", zap.Error(err))
		return
	}

	var slow []*conn
	h.mu.RLock()
	for c := range h.conns {
		if !c.sub.sees(ev) {
			continue
		}
		select {
		case c.send <- raw:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow event subscriber", zap.String("user_id", c.sub.UserID.String()))
		h.remove(c)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		c.close()
	}
	h.mu.Unlock()
}

// Serve upgrades the request and blocks until the connection ends.
// Clients only listen; anything they send is discarded.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sub Subscriber) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &conn{ws: ws, sub: sub, send: make(chan []byte, sendBuffer)}
	h.add(c)
	h.logger.Debug("event subscriber connected", zap.String("user_id", sub.UserID.String()))

	go h.writeLoop(c)
	h.readLoop(c)
	return nil
}

func (h *Hub) readLoop(c *conn) {
	defer func() {
		h.remove(c)
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(512)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("event subscriber read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		delete(h.conns, c)
		c.close()
	}
}
