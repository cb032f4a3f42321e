// Package server exposes the monitoring engine over HTTP: the on-demand
// trigger, alert history reads, push subscription management, escalation
// settings and a live alert stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/terminalops/movewatch/internal/config"
	"github.com/terminalops/movewatch/internal/monitor"
	"github.com/terminalops/movewatch/internal/notify"
	"github.com/terminalops/movewatch/internal/store"
)

// Server is the HTTP serving layer around the store and the monitor loop.
type Server struct {
	store    *store.Store
	loop     *monitor.Loop
	push     notify.Channel
	hub      *Hub
	location *time.Location

	httpServer *http.Server
}

// New assembles the server. push is the channel used for ad-hoc test pushes;
// hub receives live alerts and may be shared with the monitor loop.
func New(cfg config.ServerConfig, st *store.Store, loop *monitor.Loop, push notify.Channel, hub *Hub, loc *time.Location) *Server {
	s := &Server{
		store:    st,
		loop:     loop,
		push:     push,
		hub:      hub,
		location: loc,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /monitor/run", s.handleRunMonitor)
	mux.HandleFunc("GET /alerts", s.handleListAlerts)
	mux.HandleFunc("GET /alerts/latest", s.handleLatestAlert)
	mux.HandleFunc("GET /alerts/stream", s.handleAlertStream)
	mux.HandleFunc("GET /alerts/{id}", s.handleAlertByID)
	mux.HandleFunc("POST /push/subscribe", s.handlePushSubscribe)
	mux.HandleFunc("GET /push/count", s.handlePushCount)
	mux.HandleFunc("POST /push/test", s.handlePushTest)
	mux.HandleFunc("GET /settings/thresholds", s.handleGetThresholds)
	mux.HandleFunc("PUT /settings/thresholds", s.handlePutThresholds)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.panicRecovery(s.logging(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the full middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and closes the live stream.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// now returns the current naive civil time in the configured timezone.
func (s *Server) now() time.Time {
	return time.Now().In(s.location)
}
