// Package keepalive serves the liveness endpoint polled by uptime monitors,
// plus health and metrics.
package keepalive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"halftime_bot/internal/monitor"
)

const aliveText = "Bot is alive!"

// StatusSource reports the poll loop state.
type StatusSource interface {
	Status() monitor.Status
}

// Server is the keep-alive HTTP server.
type Server struct {
	status     StatusSource
	logger     *slog.Logger
	httpServer *http.Server
	router     chi.Router
}

type healthResponse struct {
	Status       string     `json:"status"`
	Running      bool       `json:"running"`
	LastPoll     *time.Time `json:"last_poll,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	Cycles       int        `json:"cycles"`
	DroppedTicks int        `json:"dropped_ticks"`
	LiveMatches  int        `json:"live_matches"`
	AlertsSent   int        `json:"alerts_sent"`
}

// New creates a Server listening on port. metrics may be nil.
func New(port int, status StatusSource, metrics http.Handler, logger *slog.Logger) *Server {
	s := &Server{
		status: status,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	// Every other path and method answers the uptime check.
	r.NotFound(s.handleAlive)
	r.MethodNotAllowed(s.handleAlive)

	s.router = r
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("keep-alive server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down keep-alive server")
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleAlive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(aliveText))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.status != nil {
		st := s.status.Status()
		resp.Running = st.Running
		resp.LastPoll = timePtr(st.LastPoll)
		resp.LastSuccess = timePtr(st.LastSuccess)
		resp.LastError = st.LastError
		resp.Cycles = st.Cycles
		resp.DroppedTicks = st.DroppedTicks
		resp.LiveMatches = st.LiveMatches
		resp.AlertsSent = st.AlertsSent
		if st.LastError != "" {
			resp.Status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encode health response", "error", err)
	}
}

// requestLogger is a chi middleware that logs each incoming request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
