// Package api serves the scoring service over HTTP: JSON endpoints for
// predictions, importances and rows, and a websocket scoring stream.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"loanscore/internal/cfg"
	"loanscore/internal/metrics"
	"loanscore/internal/scoring"
)

// Metrics is what the transport reports.
type Metrics interface {
	HTTPMetrics
	StreamConnections() metrics.MetricsGauge
}

// Server is the HTTP front of a scoring.Service.
type Server struct {
	service  *scoring.Service
	metrics  Metrics
	timeout  time.Duration
	handler  http.Handler
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	streams   map[*websocket.Conn]bool
	streamsMu sync.Mutex

	mu        sync.Mutex
	isRunning bool
}

// NewServer builds the router and the HTTP server for settings.Port.
// metricsHandler serves /metrics; nil uses the default Prometheus registry.
func NewServer(service *scoring.Service, m Metrics, settings cfg.Settings, metricsHandler http.Handler) *Server {
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	s := &Server{
		service: service,
		metrics: m,
		timeout: settings.RequestTimeout,
		streams: make(map[*websocket.Conn]bool),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(origin, settings.AllowedOrigins)
		},
	}

	r := mux.NewRouter()
	r.Use(routeLabel)
	r.NotFoundHandler = http.HandlerFunc(handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	api.HandleFunc("/importance", s.handleImportance).Methods(http.MethodPost)
	api.HandleFunc("/rows/{index}", s.handleRow).Methods(http.MethodGet)
	api.HandleFunc("/model", s.handleModel).Methods(http.MethodGet)
	api.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	s.handler = middleware.RealIP(requestID(
		cors.Handler(corsOptions(settings.AllowedOrigins))(
			accessLog(m, "/health", "/metrics")(recovery(r)))))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", settings.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      settings.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("api server is already running")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		log.Info().
			Str("address", ln.Addr().String()).
			Msg("Starting scoring API server")

		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Scoring API server failed")
		}
	}()

	s.isRunning = true
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown closes open streams and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.streamsMu.Lock()
	for conn := range s.streams {
		conn.Close()
	}
	s.streams = make(map[*websocket.Conn]bool)
	s.streamsMu.Unlock()

	if err := s.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown scoring API server")
		return err
	}

	s.isRunning = false
	log.Info().Msg("Scoring API server stopped")
	return nil
}
