// Package server provides HTTP server initialization and lifecycle management
// for the evidence index API.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scrypster/casefile/internal/config"
	"github.com/scrypster/casefile/internal/index"
	"github.com/scrypster/casefile/internal/notify"
	"github.com/scrypster/casefile/web/handlers"
)

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func methodGet(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// Start initializes and starts the HTTP server.
// Returns the actual address being listened on (useful for testing with port 0)
// and the WebSocketHub for wiring refresh event broadcasts. The server shuts
// down when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, ix *index.Indexer, events *notify.Hub) (string, *handlers.WebSocketHub, error) {
	log := logrus.WithField("component", "server")
	mux := http.NewServeMux()

	// Create WebSocket hub and feed it refresh events
	wsHub := handlers.NewWebSocketHub(cfg.Server.Host, cfg.Server.Port)
	go wsHub.Run()
	wsHub.Attach(events)

	// Create rate limiter (10 req/sec, burst of 20)
	rateLimiter := handlers.NewRateLimiter(10.0, 20)

	apiHandlers := handlers.NewAPIHandlers(ix, events)

	// API routes (require auth in production mode)
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/stats", methodGet(apiHandlers.GetStats))
	apiMux.HandleFunc("/api/devices", methodGet(apiHandlers.GetDevices))
	apiMux.HandleFunc("/api/device/{id}", methodGet(apiHandlers.GetDeviceData))
	apiMux.HandleFunc("/api/device/{id}/chat-threads", methodGet(apiHandlers.GetChatThreads))
	apiMux.HandleFunc("/api/device/{id}/chat-thread/{tid}", methodGet(apiHandlers.GetThreadMessages))
	apiMux.HandleFunc("/api/search", methodGet(apiHandlers.Search))
	apiMux.HandleFunc("/api/discoveries", methodGet(apiHandlers.GetDiscoveries))
	apiMux.HandleFunc("/api/network", methodGet(apiHandlers.GetNetwork))
	apiMux.HandleFunc("/api/network/person/{id}", methodGet(apiHandlers.GetPerson))
	apiMux.HandleFunc("/api/index-status", methodGet(apiHandlers.IndexStatus))
	apiMux.HandleFunc("/api/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		apiHandlers.Refresh(w, r)
	})

	// Health endpoint — no auth required, used by monitoring
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","version":"1.0.0"}`))
	})

	// Wrap API routes with auth middleware
	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// WebSocket endpoint (no auth required - origin validation handles security)
	mux.Handle("/ws", wsHub)

	// Wrap entire server with rate limiting, then security headers
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	// Create server with security timeouts
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		wsHub.Stop()
		return "", nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	actualAddr := listener.Addr().String()
	log.WithField("addr", actualAddr).Info("server listening")

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server error")
		}
	}()

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("server shutdown error")
		}
		wsHub.Stop()
	}()

	return actualAddr, wsHub, nil
}
