// Package httpapi mirrors the five RPC tools (spec §6) over plain
// JSON/HTTP, for operators and local tooling that would rather not speak
// the signed pub/sub transport (spec's SUPPLEMENTED FEATURES: a local
// surface the distilled spec never asked for but the teacher's own
// cmd/explorer pattern — one struct holding a router plus an *http.Server —
// makes nearly free to add).
//
// Grounded on the teacher's cmd/explorer/server.go (one Server struct
// wrapping a router, writeJSON helper, Methods-scoped routes), rebuilt here
// on github.com/go-chi/chi/v5 instead of gorilla/mux per this package's
// DOMAIN STACK assignment, with github.com/prometheus/client_golang wired
// at this edge only (ambient observability belongs at the transport
// boundary, not inside core/*).
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"trustwotd/core/rpc"
)

// Server is the local JSON/HTTP mirror of the RPC tool surface.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	toolRouter *rpc.ToolRouter
	log        logrus.FieldLogger
}

// NewServer constructs a Server bound to addr, delegating every tool call
// to toolRouter (the same dispatcher the pub/sub transport uses).
func NewServer(addr string, toolRouter *rpc.ToolRouter, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.New()
	}
	s := &Server{toolRouter: toolRouter, log: log}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	s.routes(r)
	s.router = r
	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

func (s *Server) routes(r chi.Router) {
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(api chi.Router) {
		api.Post("/calculate-trust-score", s.handleTool("calculate_trust_score"))
		api.Post("/calculate-trust-scores", s.handleTool("calculate_trust_scores"))
		api.Get("/stats", s.handleTool("stats"))
		api.Post("/search-profiles", s.handleTool("search_profiles"))
		api.Post("/manage-ta", s.handleTool("manage_ta"))
	})
}

// ListenAndServe starts serving until the process is asked to stop.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTool adapts an incoming HTTP request into an rpc.Request and
// dispatches it through the same ToolRouter the pub/sub transport uses, so
// tool semantics (rate limiting, error kinds) never drift between the two
// surfaces. The local mirror trusts its caller rather than requiring a
// signed envelope — it is meant for operator tooling on localhost, not the
// untrusted pub/sub transport.
func (s *Server) handleTool(toolName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var args json.RawMessage
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
				return
			}
		} else {
			args = json.RawMessage("{}")
		}

		clientPubkey := r.Header.Get("X-Client-Pubkey")
		if clientPubkey == "" {
			clientPubkey = "local-operator"
		}

		req := rpc.Request{
			ID:           uuid.NewString(),
			ClientPubkey: clientPubkey,
			ToolName:     toolName,
			Args:         args,
		}
		resp := s.toolRouter.Handle(r.Context(), req)

		status := http.StatusOK
		if resp.IsError {
			status = statusForErrorKind(resp.ErrorKind)
		}
		writeJSON(w, status, resp)
	}
}

func statusForErrorKind(kind string) int {
	switch kind {
	case "InvalidInput":
		return http.StatusBadRequest
	case "ProfileNotFound", "GraphNotInitialized":
		return http.StatusNotFound
	case "RateLimitExceeded":
		return http.StatusTooManyRequests
	case "Timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithField("path", r.URL.Path).WithField("duration", time.Since(start)).Debug("handled request")
	})
}
