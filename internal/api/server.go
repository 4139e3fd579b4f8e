// Package api exposes the chatbot over a JSON HTTP surface: a synchronous
// chat endpoint, an asynchronous submit-and-poll variant, and health probes.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/calagem/calagem/internal/session"
	"github.com/calagem/calagem/internal/task"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger   *slog.Logger
	Engine   Chatter        // Required
	Tasks    *task.Runner   // Required
	Sessions *session.Store // Required

	Throttle   time.Duration // Minimum spacing between requests per session (0 = 2s)
	RateBurst  int           // Rate limiter burst size per IP (0 = default 60)
	TrustProxy bool          // Trust X-Real-IP/X-Forwarded-For headers
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Tasks == nil {
		return nil, errors.New("task runner is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	throttle := cfg.Throttle
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	ch := &chatHandler{
		engine:   cfg.Engine,
		tasks:    cfg.Tasks,
		sessions: cfg.Sessions,
		throttle: throttle,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("GET /api/v1/chat/tasks/{id}", ch.status)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID must precede Logging so request_id appears in log attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// health is a liveness probe for container orchestrators.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
