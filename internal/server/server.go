package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/contestops/contestfeed/internal/broadcast"
	"github.com/contestops/contestfeed/internal/config"
	"github.com/contestops/contestfeed/internal/eventlog"
	"github.com/contestops/contestfeed/internal/gateway"
	"github.com/contestops/contestfeed/internal/model"
	"github.com/contestops/contestfeed/internal/snapshot"
)

// Server exposes the event feed over HTTP: the long-lived stream, the
// WebSocket variant, one-shot snapshots, the compressed archive, and the
// synchronous clarification submission endpoint.
type Server struct {
	contestID string
	contest   model.Contest
	mutator   model.Mutator
	engine    *broadcast.Engine
	log       *eventlog.Log
	builder   *snapshot.Builder
	gw        *gateway.Gateway
	limiter   *rate.Limiter
	cfg       *config.Config
	logger    *zap.Logger
}

func NewServer(
	contest model.Contest,
	mutator model.Mutator,
	engine *broadcast.Engine,
	log *eventlog.Log,
	builder *snapshot.Builder,
	gw *gateway.Gateway,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	perMinute := rate.Limit(float64(cfg.Feed.SubmitPerMinute) / 60.0)
	burst := cfg.Feed.SubmitBurst
	if burst < 1 {
		burst = 1
	}
	return &Server{
		contestID: cfg.Contest.ID,
		contest:   contest,
		mutator:   mutator,
		engine:    engine,
		log:       log,
		builder:   builder,
		gw:        gw,
		limiter:   rate.NewLimiter(perMinute, burst),
		cfg:       cfg,
		logger:    logger,
	}
}

func NewRouter(s *Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(zapLoggerMiddleware(logger))

	r.Route("/contests/{contestID}", func(cr chi.Router) {
		cr.Get("/event-feed", s.handleEventFeed)
		cr.Get("/event-feed/ws", s.handleEventFeedWS)
		cr.Get("/event-feed/archive", s.handleArchive)
		cr.Get("/snapshot", s.handleSnapshot)
		cr.Post("/clarifications", s.handleSubmitClarification)
	})
	r.Get("/status", s.handleStatus)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
			)
			next.ServeHTTP(w, r)
		})
	}
}
