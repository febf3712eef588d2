package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/campaignrules/accountengine"
	"github.com/liamcoop/campaignrules/feed"
	"github.com/liamcoop/campaignrules/history"
	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/pipeline"
	"github.com/liamcoop/campaignrules/rules"
)

const maxBodySize = 1 << 20

// Server exposes the account, rule and evaluation API.
type Server struct {
	db       *sql.DB
	manager  *accountengine.Manager
	recorder history.Recorder
	pipeline *pipeline.Pipeline
	hub      *feed.Hub
	router   *chi.Mux
}

// Deps are the components a Server routes to. DB may be nil when running
// in memory only.
type Deps struct {
	DB       *sql.DB
	Manager  *accountengine.Manager
	Recorder history.Recorder
	Pipeline *pipeline.Pipeline
	Hub      *feed.Hub
}

func NewServer(deps Deps) *Server {
	s := &Server{
		db:       deps.DB,
		manager:  deps.Manager,
		recorder: deps.Recorder,
		pipeline: deps.Pipeline,
		hub:      deps.Hub,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	if s.hub != nil {
		// websocket connections outlive the request timeout
		r.Handle("/ws", s.hub)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", s.handleHealth)
		r.Post("/evaluate", s.handleEvaluate)
		r.Post("/rules/validate", s.handleValidateRule)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)

			r.Route("/{accountId}", func(r chi.Router) {
				r.Get("/", s.handleGetAccount)
				r.Put("/", s.handleRenameAccount)
				r.Delete("/", s.handleDeleteAccount)

				r.Post("/snapshots", s.handleIngestSnapshot)
				r.Get("/campaigns/{campaignId}/snapshots", s.handleListSnapshots)
				r.Get("/actions", s.handleListActions)

				// Rule management
				r.Post("/rules", s.handleCreateRule)
				r.Get("/rules", s.handleListRules)
				r.Get("/rules/{ruleId}", s.handleGetRule)
				r.Put("/rules/{ruleId}", s.handleUpdateRule)
				r.Delete("/rules/{ruleId}", s.handleDeleteRule)
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) pingDB(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Debug("Failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, accountengine.ErrAccountNotFound), errors.Is(err, rules.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, accountengine.ErrAccountExists), errors.Is(err, rules.ErrRuleExists):
		return http.StatusConflict
	case errors.Is(err, accountengine.ErrInvalidInput),
		errors.Is(err, rules.ErrInvalidRule),
		errors.Is(err, pipeline.ErrInvalidSnapshot):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}
