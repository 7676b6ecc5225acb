// Package admin serves live session status over HTTP: health, JSON
// statistics, Prometheus metrics, and a websocket statistics stream.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/snestrace/internal/auth"
	"github.com/danmuck/snestrace/internal/observability"
	"github.com/danmuck/snestrace/internal/traceimport"
	"github.com/danmuck/snestrace/internal/tracelink"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Source is the session state the admin surface reports on.
type Source interface {
	CurrentStatistics() traceimport.Statistics
	State() tracelink.State
}

// Snapshot is the payload of /stats and of every websocket push.
type Snapshot struct {
	State      string                 `json:"state"`
	Connected  bool                   `json:"connected"`
	Statistics traceimport.Statistics `json:"statistics"`
	Time       time.Time              `json:"time"`
}

func takeSnapshot(source Source) Snapshot {
	state := source.State()
	return Snapshot{
		State:      state.String(),
		Connected:  state == tracelink.StateHandshakeComplete,
		Statistics: source.CurrentStatistics(),
		Time:       time.Now().UTC(),
	}
}

// Options configures the admin server. A non-empty Token guards everything
// but /health.
type Options struct {
	Listen       string
	PushInterval time.Duration
	Version      string
	Token        string
}

type Server struct {
	opts        Options
	source      Source
	router      chi.Router
	broadcaster *Broadcaster
	started     time.Time
}

func New(source Source, opts Options) *Server {
	observability.RegisterMetrics()
	s := &Server{
		opts:        opts,
		source:      source,
		broadcaster: NewBroadcaster(source, opts.PushInterval),
		started:     time.Now(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogger(observability.Component("admin")))
	r.Use(observability.RequestMetrics)

	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		if s.opts.Token != "" {
			r.Use(auth.Require(auth.StaticToken{Token: s.opts.Token}))
		}
		r.Get("/stats", s.handleStats)
		r.Get("/stats/ws", s.handleStatsWS)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	})
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("admin.Server.ListenAndServe listening addr=%q", s.opts.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.broadcaster.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.broadcaster.Close()
	return srv.Shutdown(shutdownCtx)
}

// Close stops the websocket push loop.
func (s *Server) Close() {
	s.broadcaster.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "snestrace",
		"version": s.opts.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"state":   s.source.State().String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, takeSnapshot(s.source))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

func (s *Server) handleStatsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Msgf("admin.Server.handleStatsWS upgrade failed err=%v", err)
		return
	}
	c := s.broadcaster.AddClient(conn)
	log.Debug().Msgf("admin.Server.handleStatsWS client connected remote=%q", r.RemoteAddr)

	go func() {
		defer s.broadcaster.RemoveClient(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Msgf("admin.writeJSON encode failed err=%v", err)
	}
}
