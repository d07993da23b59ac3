// Package api serves the published snapshots over HTTP: JSON endpoints
// for polling clients and a WebSocket stream for live dashboards.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"neurodash-agent/clock"
	"neurodash-agent/models"

	"github.com/go-logr/logr"
)

// SnapshotSource hands out the latest published snapshot, or nil before
// the first tick.
type SnapshotSource interface {
	Current() *models.Snapshot
}

// Option customizes a Server.
type Option func(*Server)

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithPollInterval sets how often stream connections look for a new
// snapshot.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) { s.pollInterval = d }
}

// WithClock replaces the clock used by stream connections.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

type Server struct {
	logger       logr.Logger
	addr         string
	source       SnapshotSource
	version      string
	pollInterval time.Duration
	clock        clock.Clock

	mux        *http.ServeMux
	httpServer *http.Server
	listener   net.Listener

	done      chan struct{}
	closeOnce sync.Once

	// streamsMu orders streams.Add against the Wait in Shutdown.
	streamsMu sync.Mutex
	stopping  bool
	streams   sync.WaitGroup
}

func NewServer(logger logr.Logger, addr string, source SnapshotSource, opts ...Option) *Server {
	s := &Server{
		logger:       logger.WithName("api"),
		addr:         addr,
		source:       source,
		version:      "dev",
		pollInterval: 250 * time.Millisecond,
		clock:        clock.Real(),
		mux:          http.NewServeMux(),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /api/full_stats", s.handleSnapshot)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/stream", s.handleStream)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler exposes the routes, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.mux }

// Start binds the listen address and serves in the background. A bind
// failure is returned directly.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(err, "HTTP server stopped")
		}
	}()
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests, ends open streams and waits for
// in-flight handlers until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.streamsMu.Lock()
	s.stopping = true
	s.streamsMu.Unlock()
	s.closeOnce.Do(func() { close(s.done) })
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	streamsDone := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(streamsDone)
	}()
	select {
	case <-streamsDone:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// trackStream registers a stream connection. It reports false once
// Shutdown has started.
func (s *Server) trackStream() bool {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()
	if s.stopping {
		return false
	}
	s.streams.Add(1)
	return true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Current()
	if snap == nil || snap.Sample == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot published yet")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(snap))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		writeError(w, http.StatusBadRequest, "channel query parameter is required")
		return
	}
	snap := s.source.Current()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot published yet")
		return
	}
	points, ok := snap.History[channel]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown channel %q", channel))
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Channel: channel, Points: orEmpty(points)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var seq uint64
	if snap := s.source.Current(); snap != nil {
		seq = snap.Seq()
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.version, Seq: seq})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
