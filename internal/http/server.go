package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	applog "kiptrack/internal/log"
	"kiptrack/internal/services"
)

// Deps are the services the API exposes.
type Deps struct {
	Ledger   *services.LedgerService
	Review   *services.ReviewService
	Advancer *services.SemesterAdvancer
	Watcher  *services.Watcher

	// Ready reports whether the backing store can serve requests. Nil means
	// always ready.
	Ready func(ctx context.Context) error

	Logger *applog.Logger

	// Location is the zone semester boundaries are evaluated in.
	Location *time.Location

	// RateLimitPerMinute bounds mutating requests per client (default 60).
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	deps        Deps
	rateLimiter *rateLimiter
	suspicious  atomic.Int64
	now         func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		deps:        deps,
		rateLimiter: newRateLimiter(deps.RateLimitPerMinute),
		now:         time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/students/{id}/summary", s.handleSummary)
	mux.HandleFunc("GET /api/students/{id}/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/students/{id}/transactions", s.handleSubmit)
	mux.HandleFunc("POST /api/students/{id}/transactions/{txid}/approve", s.handleApprove)
	mux.HandleFunc("POST /api/students/{id}/transactions/{txid}/deny", s.handleDeny)
	mux.HandleFunc("POST /api/students/{id}/advance", s.handleAdvance)
	mux.HandleFunc("GET /api/students/{id}/watch", s.handleWatch)
	mux.HandleFunc("GET /api/terbilang", handleTerbilang)

	s.Server = http.Server{
		Addr:    addr,
		Handler: applog.Middleware(deps.Logger)(s.protect(mux)),
	}
	return s
}

// protect applies security headers, flags probing requests and rate limits
// mutations per client.
func (s *Server) protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w.Header(), r.TLS != nil)

		clientIP := extractClientIP(r)
		if isSuspicious(r, &s.suspicious) {
			slog.WarnContext(r.Context(), "Suspicious request",
				"client_ip", clientIP,
				"method", r.Method,
				"path", r.URL.Path,
				"user_agent", r.Header.Get("User-Agent"))
		}

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP, s.now()) {
			slog.WarnContext(r.Context(), "Rate limit exceeded", "client_ip", clientIP, "path", r.URL.Path)
			ErrorResponse(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, try again later").
				Header("Retry-After", "60").
				Write(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Shutdown stops background routines and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// SuspiciousRequests returns how many probing requests were seen.
func (s *Server) SuspiciousRequests() int64 {
	return s.suspicious.Load()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
