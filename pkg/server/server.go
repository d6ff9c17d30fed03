// Package server is the HTTP/JSON-RPC surface: task CRUD, SSE attach,
// agent card, skills, discovery, orchestration, and health.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xactions/xactions-a2a/pkg/a2a"
	"github.com/xactions/xactions-a2a/pkg/auth"
	"github.com/xactions/xactions-a2a/pkg/card"
	"github.com/xactions/xactions-a2a/pkg/config"
	"github.com/xactions/xactions-a2a/pkg/discovery"
	"github.com/xactions/xactions-a2a/pkg/orchestrator"
	"github.com/xactions/xactions-a2a/pkg/push"
	"github.com/xactions/xactions-a2a/pkg/ratelimit"
	"github.com/xactions/xactions-a2a/pkg/skills"
	"github.com/xactions/xactions-a2a/pkg/stream"
	"github.com/xactions/xactions-a2a/pkg/task"
)

// Deps are the wired components the server exposes over HTTP.
type Deps struct {
	Config   *config.Config
	Registry *skills.Registry
	Card     *card.Service
	Store    *task.Store
	Executor *task.Executor
	Streams  *stream.Manager
	Subs     *push.SubscriptionManager

	// PushSecret signs callback tokens and webhook bodies.
	PushSecret []byte

	Agents       *discovery.Registry
	Matcher      *discovery.Matcher
	Trust        *discovery.TrustStore
	Orchestrator *orchestrator.Orchestrator

	// Auth may be nil; AuthRequired then has no effect.
	Auth         *auth.Authenticator
	AuthRequired bool

	Limiter *ratelimit.Limiter
}

// Server serves the A2A HTTP surface.
type Server struct {
	Deps

	startedAt  time.Time
	httpServer *http.Server
}

// New creates a server over the dependencies.
func New(deps Deps) *Server {
	return &Server{Deps: deps, startedAt: time.Now()}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(corsMiddleware)
	if s.Limiter != nil {
		r.Use(ratelimit.Middleware(s.Limiter))
	}

	r.Get("/.well-known/agent.json", s.handleAgentCard)

	r.Route("/a2a", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/skills", s.handleSkills)
		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/{id}", s.handleGetTask)
		r.Get("/tasks/{id}/stream", s.handleStream)
		r.Get("/agents", s.handleListAgents)
		r.Get("/agents/trust", s.handleAgentTrust)
		r.Post("/callbacks/{id}", s.handleCallback)

		// Mutating routes honor the auth policy.
		r.Group(func(r chi.Router) {
			if s.Auth != nil {
				r.Use(s.Auth.Middleware(s.AuthRequired))
			}
			r.Post("/tasks", s.handleCreateTask)
			r.Post("/tasks/{id}/cancel", s.handleCancelTask)
			r.Post("/tasks/{id}/message", s.handleTaskMessage)
			r.Post("/skills/refresh", s.handleSkillsRefresh)
			r.Post("/agents/discover", s.handleDiscoverAgents)
			r.Post("/agents/unregister", s.handleUnregisterAgent)
			r.Post("/orchestrate", s.handleOrchestrate)
			r.Post("/orchestrate/plan", s.handleOrchestratePlan)
		})
	})

	return r
}

// Start runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Config.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("A2A server listening", "addr", s.httpServer.Addr, "baseUrl", s.Config.BaseURL)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down A2A server")
	s.Streams.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// ===== MIDDLEWARE =====

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the recorder.
func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(started),
		)
	})
}

// ===== RESPONSE HELPERS =====

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeRPCError(w http.ResponseWriter, status int, id any, code int, message string) {
	writeJSON(w, status, a2a.Error(id, code, message))
}
