// Package websocket connects the traveler's device to the navigation
// controller: the device streams position fixes up, the service pushes
// navigation events down.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/safe-route-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBuffer     = 32
	fixBuffer      = 16
	maxMessageSize = 4096
)

// positionMessage is what the device sends. Error carries a provider failure
// such as "permission denied" instead of a location.
type positionMessage struct {
	Lng   *float64 `json:"lng"`
	Lat   *float64 `json:"lat"`
	Error string   `json:"error,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub implements domain.PositionStream over device websocket connections and
// broadcasts navigation events back to them.
type Hub struct {
	upgrader websocket.Upgrader
	clock    clockwork.Clock
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[string]*client
	subs    map[uint64]chan domain.PositionFix
	nextSub uint64
}

// NewHub creates a Hub. A nil clock uses the real clock.
func NewHub(clock clockwork.Clock, logger *slog.Logger) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clock:   clock,
		logger:  logger,
		clients: make(map[string]*client),
		subs:    make(map[uint64]chan domain.PositionFix),
	}
}

// Subscribe returns a channel of fixes from every connected device. The
// channel is closed when ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context) (<-chan domain.PositionFix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan domain.PositionFix, fixBuffer)

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()
	return ch, nil
}

// Broadcast pushes every event to all connected devices until events is
// closed or ctx is cancelled.
func (h *Hub) Broadcast(ctx context.Context, events <-chan domain.NavigationEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("encode navigation event failed", "error", err, "kind", ev.Kind)
				continue
			}
			h.sendAll(data)
		}
	}
}

// Clients returns the number of connected devices.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	h.logger.Info("navigation client connected", "client_id", c.id)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) sendAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("navigation client too slow, event dropped", "client_id", c.id)
		}
	}
}

// publishFix hands a fix to every subscriber. A full subscriber misses it;
// the next fix supersedes it anyway.
func (h *Hub) publishFix(fix domain.PositionFix) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- fix:
		default:
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
		h.logger.Info("navigation client disconnected", "client_id", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg positionMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.logger.Warn("malformed position message", "client_id", c.id, "error", err)
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("navigation client read failed", "client_id", c.id, "error", err)
			}
			return
		}

		fix, err := h.toFix(msg)
		if err != nil {
			h.logger.Warn("invalid position message", "client_id", c.id, "error", err)
			continue
		}
		h.publishFix(fix)
	}
}

func (h *Hub) toFix(msg positionMessage) (domain.PositionFix, error) {
	now := h.clock.Now()
	if msg.Error != "" {
		return domain.PositionFix{At: now, Err: errors.New(msg.Error)}, nil
	}
	if msg.Lng == nil || msg.Lat == nil {
		return domain.PositionFix{}, errors.New("lng and lat are required")
	}
	loc := domain.Coordinate{Lng: *msg.Lng, Lat: *msg.Lat}
	if err := loc.Validate(); err != nil {
		return domain.PositionFix{}, fmt.Errorf("position: %w", err)
	}
	return domain.PositionFix{Location: loc, At: now}, nil
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("navigation client write failed", "client_id", c.id, "error", err)
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
