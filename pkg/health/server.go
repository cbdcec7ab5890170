// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Server provides health, readiness, metrics, and hook-introspection
// HTTP endpoints.
type Server struct {
	logger  *zap.Logger
	stats   *Stats
	version string
	addr    string
	ready   atomic.Bool
	server  *http.Server
}

// NewServer creates a health server.
func NewServer(addr, version string, stats *Stats, logger *zap.Logger) *Server {
	return &Server{
		addr:    addr,
		version: version,
		stats:   stats,
		logger:  logger,
	}
}

// SetReady marks the tracer as ready.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start begins serving endpoints.
func (s *Server) Start(_ context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/hooks", s.handleHooks)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("health server error", zap.Error(err))
		}
	}()

	s.logger.Info("health server started", zap.String("addr", s.addr))
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:  "healthy",
		Version: s.version,
		Uptime:  s.stats.Uptime().Round(time.Second).String(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(s.stats.PrometheusMetrics()))
}

type threadResponse struct {
	ThreadID   uint64 `json:"thread_id"`
	Depth      int    `json:"depth"`
	Dispatched int64  `json:"events_dispatched"`
	Suppressed int64  `json:"events_suppressed"`
	Dropped    int64  `json:"events_dropped"`
	Failures   int64  `json:"sink_failures"`
	Skips      int64  `json:"frames_skipped"`
}

// handleHooks lists every thread the registry has seen with its current
// hook depth and dispatch counters.
func (s *Server) handleHooks(w http.ResponseWriter, _ *http.Request) {
	var threads []threadResponse
	if s.stats.source != nil {
		for _, ts := range s.stats.source.Threads() {
			threads = append(threads, threadResponse{
				ThreadID:   ts.ThreadID,
				Depth:      ts.Depth,
				Dispatched: ts.Dispatched,
				Suppressed: ts.Suppressed,
				Dropped:    ts.Dropped,
				Failures:   ts.Failures,
				Skips:      ts.Skips,
			})
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"threads": threads})
}
