// Package http exposes the ledger service as a JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	applog "billbuddy/internal/log"
	"billbuddy/internal/services"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const (
	defaultMaxAudioBytes = 10 << 20
	maxJSONBytes         = 1 << 20
)

type Options struct {
	// MaxAudioBytes caps recording uploads.
	MaxAudioBytes int64
	// RateLimit is the number of mutating requests allowed per client per minute.
	RateLimit int
	Logger    *applog.Logger
}

type Server struct {
	http.Server
	svc           *services.LedgerService
	logger        *applog.Logger
	rateLimiter   *rateLimiter
	metrics       *securityMetrics
	maxAudioBytes int64
	shutdownOnce  sync.Once
}

func NewServer(addr string, svc *services.LedgerService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}
	maxAudio := opts.MaxAudioBytes
	if maxAudio <= 0 {
		maxAudio = defaultMaxAudioBytes
	}

	s := &Server{
		svc:           svc,
		logger:        logger,
		rateLimiter:   newRateLimiter(opts.RateLimit),
		metrics:       &securityMetrics{},
		maxAudioBytes: maxAudio,
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(applog.RequestLogger(s.logger, func(r *http.Request) string {
		return chimiddleware.GetReqID(r.Context())
	}, extractClientIP))
	r.Use(s.withSecurity)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/entries", s.handleListEntries)
		r.Post("/entries/equal", s.handleCreateEqual)
		r.Post("/entries/itemized", s.handleCreateItemized)
		r.Delete("/entries/equal/{id}", s.handleDeleteEqual)
		r.Delete("/entries/itemized/{id}", s.handleDeleteItemized)
		r.Post("/entries/equal/{id}/sharers", s.handleAddSharer)
		r.Delete("/entries/equal/{id}/sharers/{name}", s.handleRemoveSharer)

		r.Get("/participants", s.handleParticipants)
		r.Get("/report", s.handleReport)
		r.Post("/recordings", s.handleRecording)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// withSecurity sets security headers, rate limits mutating requests and
// logs suspicious ones.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)
		logger := applog.FromContext(r.Context())

		if detectSuspiciousRequest(r, s.metrics) {
			logger.WarnContext(r.Context(), "Suspicious request",
				applog.FieldClientIP, clientIP,
				applog.FieldPath, r.URL.Path,
				applog.FieldUserAgent, r.UserAgent())
		}

		setSecurityHeaders(w)

		if r.Method != http.MethodGet && r.Method != http.MethodHead && !s.rateLimiter.allow(clientIP, s.metrics) {
			logger.WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		slog.InfoContext(ctx, "HTTP server shutting down",
			"rate_limit_hits", atomic.LoadInt64(&s.metrics.rateLimitHits),
			"suspicious_requests", atomic.LoadInt64(&s.metrics.suspiciousRequests))
	})
	return s.Server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := s.svc.Participants(ctx); err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Readiness check failed", applog.FieldError, err.Error())
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
