package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes a Collector's registry over HTTP alongside liveness
// endpoints, so a session can be scraped and health-checked while it runs.
type Server struct {
	addr     string
	listener net.Listener
	httpSrv  *http.Server
	logger   *slog.Logger
}

// NewServer builds a metrics server for the collector. Nothing is bound
// until Start.
func NewServer(addr string, collector *Collector, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	for _, path := range []string{"/health", "/healthz", "/ready", "/readyz"} {
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprintln(w, "ok")
		})
	}

	return &Server{
		addr:   addr,
		logger: logger,
		httpSrv: &http.Server{
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		},
	}
}

// Start binds the listen address and begins serving in the background. The
// bind happens synchronously so an occupied port fails Start rather than a
// goroutine log line later.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("binding metrics listener on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.logger.Info("metrics_server_listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics_server_error", "error", err)
		}
	}()
	return nil
}

// Shutdown drains in-flight scrapes and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	s.logger.Debug("metrics_server_shutting_down")
	return s.httpSrv.Shutdown(ctx)
}
