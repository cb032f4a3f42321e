package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/terminalops/movewatch/internal/domain"
)

// subscriberBuffer bounds the per-client queue; a client that cannot keep up
// misses alerts instead of stalling the monitor.
const subscriberBuffer = 16

// Hub fans persisted alerts out to connected stream clients. It satisfies
// monitor.Publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan domain.AlertRecord]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan domain.AlertRecord]struct{})}
}

// Publish delivers the record to every connected client, dropping it for
// clients whose queue is full.
func (h *Hub) Publish(rec domain.AlertRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- rec:
		default:
			log.Warn().Int64("alert_id", rec.ID).Msg("slow stream client, alert dropped")
		}
	}
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}

func (h *Hub) subscribe() (chan domain.AlertRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan domain.AlertRecord, subscriberBuffer)
	h.subs[ch] = struct{}{}
	return ch, true
}

func (h *Hub) unsubscribe(ch chan domain.AlertRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// handleAlertStream upgrades the connection and forwards every new alert as
// JSON until the client disconnects.
func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("stream upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch, ok := s.hub.subscribe()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer s.hub.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-ch:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, s.httpServer.WriteTimeout)
			err := wsjson.Write(writeCtx, conn, rec)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
