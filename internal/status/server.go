// Package status exposes the read-only HTTP surface: a liveness probe
// and a point-in-time engine snapshot. Strictly an observer; nothing
// here can mutate engine state.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Config configures the status server.
type Config struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the standard listen address.
func DefaultConfig() Config {
	return Config{Addr: ":8090"}
}

// Server is the read-only HTTP status server.
type Server struct {
	config Config
	snap   func() any
	srv    *http.Server
}

// NewServer creates a status server over the given snapshot source.
func NewServer(config Config, snap func() any) *Server {
	s := &Server{config: config, snap: snap}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)

	s.srv = &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the listener in a new goroutine.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.config.Addr).Msg("status: listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("status: server failed")
		}
	}()
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"status":"ok"}`)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snap()); err != nil {
		log.Error().Err(err).Msg("status: failed to encode snapshot")
	}
}
