package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/approval-relay/internal/relay/handler"
	"go.uber.org/zap"
)

// Pinger - проверка готовности хранилища для /ready
type Pinger interface {
	Ping(ctx context.Context) error
}

type RelayServer struct {
	router *chi.Mux
	logger *zap.Logger

	approvalHandler *handler.ApprovalHandler // /api/requests, /api/callback
	store           Pinger
	gatherer        prometheus.Gatherer
}

// NewRelayServer инициализирует HTTP API со всеми зависимостями
func NewRelayServer(
	logger *zap.Logger,
	approvalH *handler.ApprovalHandler,
	store Pinger,
	gatherer prometheus.Gatherer,
) *RelayServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &RelayServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("relay-api"),
		approvalHandler: approvalH,
		store:           store,
		gatherer:        gatherer,
	}

	s.routes()
	return s
}

func (s *RelayServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TracingMiddleware)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)

	// --- 2. Служебные роуты ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// --- 3. API заявок ---
	r.Route("/api", s.approvalHandler.Routes)
}

// ready отвечает 503, пока хранилище недоступно
func (s *RelayServer) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ServeHTTP позволяет использовать RelayServer как стандартный http.Handler
func (s *RelayServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
