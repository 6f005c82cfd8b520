package slack

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"
)

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	SigningSecret string
	Admitter      Admitter
	Enqueuer      Enqueuer
	Poster        Poster
	Logger        *slog.Logger

	// TrustProxy enables X-Real-IP / X-Forwarded-For for rate limiting.
	TrustProxy bool

	// RateBurst is the per-IP burst size. 0 selects 60.
	RateBurst int
}

// NewServer builds the webhook handler stack:
//
//	recovery → logging → rate limit → routes
//
// Routes: POST /slack/events (the webhook), GET /healthz (liveness).
func NewServer(cfg ServerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	events := NewEventsHandler(cfg.SigningSecret, cfg.Admitter, cfg.Enqueuer, cfg.Poster, logger)

	mux := http.NewServeMux()
	mux.Handle("POST /slack/events", events)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)
	return handler
}

// statusWriter captures the response code for the access log.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start),
			)
		})
	}
}

func recoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic in handler",
						"panic", rec,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
