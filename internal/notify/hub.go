// Package notify pushes events to connected dashboard clients.
package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/metrics"
	"github.com/raysh454/flipradar/internal/model"
)

const (
	DefaultBuffer = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Subscriber receives events published after it registered.
type Subscriber struct {
	ch chan model.Event
}

// C is closed when the subscriber is removed or the hub closes.
func (s *Subscriber) C() <-chan model.Event { return s.ch }

// Hub fans events out to subscribers. Each subscriber has its own buffered
// channel; when it is full the event is dropped for that subscriber only, so
// a slow client never stalls publishers or other clients.
type Hub struct {
	logger   logging.Logger
	buffer   int
	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool
}

var _ interfaces.EventPublisher = (*Hub)(nil)

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int, logger logging.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{
		logger: logger,
		buffer: buffer,
		subs:   make(map[*Subscriber]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// dashboard is served from another origin
				return true
			},
		},
	}
}

// Subscribe registers a new subscriber. On a closed hub the returned
// subscriber's channel is already closed.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{ch: make(chan model.Event, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		return s
	}
	h.subs[s] = struct{}{}
	metrics.SetSubscribers(len(h.subs))
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.ch)
	metrics.SetSubscribers(len(h.subs))
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish delivers ev to every current subscriber without blocking.
// Publishes are serialised, so every subscriber sees them in the same order.
func (h *Hub) Publish(_ context.Context, ev model.Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	metrics.EventPublished(string(ev.Type))
	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			metrics.EventDropped()
			h.logger.Debug("dropping event for slow subscriber", logging.F("type", string(ev.Type)))
		}
	}
	return nil
}

// Close disconnects every subscriber. Later publishes are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		close(s.ch)
		delete(h.subs, s)
	}
	metrics.SetSubscribers(0)
}

// ServeWS upgrades the request and streams events until either side goes
// away. Messages sent by the client are read and discarded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrading to websocket", logging.Err(err))
		return
	}
	defer conn.Close()

	sub := h.Subscribe()
	defer h.Unsubscribe(sub)
	h.logger.Info("websocket client connected", logging.F("remote", r.RemoteAddr))

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			h.logger.Info("websocket client disconnected", logging.F("remote", r.RemoteAddr))
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			msg, err := ev.Wire()
			if err != nil {
				h.logger.Warn("encoding event", logging.Err(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("websocket write failed", logging.Err(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
