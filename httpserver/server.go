package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/ruteri/wp-provisioner/metrics"
)

// HTTPServerConfig configures the salt server and its metrics listener.
type HTTPServerConfig struct {
	ListenAddr string

	// MetricsAddr serves /metrics on a separate listener. Empty disables it.
	MetricsAddr string

	// MetricsNamespace prefixes every metric name.
	MetricsNamespace string

	EnablePprof bool
	Log         *slog.Logger

	// DrainDuration is how long Shutdown reports not-ready before closing listeners.
	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

// Server serves WordPress salt documents plus health and drain endpoints.
type Server struct {
	cfg     *HTTPServerConfig
	log     *slog.Logger
	isReady atomic.Bool

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
	handler    *SaltHandler
}

func New(cfg *HTTPServerConfig, handler *SaltHandler) (*Server, error) {
	metricsSrv, err := metrics.New(cfg.MetricsNamespace, cfg.MetricsAddr)
	if err != nil {
		return nil, err
	}
	handler.metrics = metricsSrv.Metrics()

	s := &Server{
		cfg:        cfg,
		log:        cfg.Log,
		metricsSrv: metricsSrv,
		handler:    handler,
	}
	s.isReady.Store(true)

	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := chi.NewRouter()

	mux.Group(func(r chi.Router) {
		r.Use(s.httpLogger)

		// Same path as api.wordpress.org, so provisioners only swap the host.
		r.Get(SaltPath, s.handler.HandleSalt)

		r.Get("/livez", s.handleLivez)
		r.Get("/readyz", s.handleReadyz)
		r.Get("/drain", s.setReadiness(false, "draining", "already draining"))
		r.Get("/undrain", s.setReadiness(true, "ready", "already ready"))
	})

	if s.cfg.EnablePprof {
		s.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.log, next)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(`{"status":"` + status + `"}`))
}

func (s *Server) handleLivez(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "alive")
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.isReady.Load() {
		writeStatus(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

// setReadiness returns a handler setting readiness to the given value. Salt requests
// keep being served while drained; only /readyz changes.
func (s *Server) setReadiness(ready bool, changed, unchanged string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.isReady.Swap(ready) == ready {
			writeStatus(w, http.StatusOK, unchanged)
			return
		}
		s.log.Info("Readiness changed", "ready", ready)
		writeStatus(w, http.StatusOK, changed)
	}
}

// RunInBackground starts the salt listener and, if configured, the metrics listener.
func (s *Server) RunInBackground() {
	if s.cfg.MetricsAddr != "" {
		go s.serve("metrics", s.cfg.MetricsAddr, s.metricsSrv.ListenAndServe)
	}
	go s.serve("salt", s.cfg.ListenAddr, s.srv.ListenAndServe)
}

func (s *Server) serve(name, addr string, listen func() error) {
	s.log.Info("Starting listener", "listener", name, "listenAddress", addr)
	if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("Listener failed", "listener", name, "err", err)
	}
}

// Shutdown reports not-ready for DrainDuration, unless already drained through
// /drain, then gracefully closes both listeners.
func (s *Server) Shutdown() {
	if s.isReady.Swap(false) && s.cfg.DrainDuration > 0 {
		s.log.Info("Draining before shutdown", "duration", s.cfg.DrainDuration)
		time.Sleep(s.cfg.DrainDuration)
	}

	s.stop("salt", s.srv.Shutdown)
	if s.cfg.MetricsAddr != "" {
		s.stop("metrics", s.metricsSrv.Shutdown)
	}
}

func (s *Server) stop(name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GracefulShutdownDuration)
	defer cancel()

	if err := shutdown(ctx); err != nil {
		s.log.Error("Graceful shutdown failed", "listener", name, "err", err)
		return
	}
	s.log.Info("Listener stopped", "listener", name)
}
