package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wardenlabs/warden/internal/agent"
	"github.com/wardenlabs/warden/internal/config"
	"github.com/wardenlabs/warden/internal/hub"
	"github.com/wardenlabs/warden/internal/policy"
	"github.com/wardenlabs/warden/internal/run"
	"github.com/wardenlabs/warden/internal/sim"
	"github.com/wardenlabs/warden/internal/store"
)

// Server wires the HTTP surface over the shared services.
type Server struct {
	st       *store.Store
	hub      *hub.Hub
	sim      *sim.Client
	engine   *policy.Engine
	planner  *agent.Planner
	agent    *agent.Agent
	registry *run.Registry
	catalog  policy.Catalog
	cfg      config.Config
}

// NewServer builds the handler set. All dependencies are shared with
// the run loops; the server adds no state of its own.
func NewServer(st *store.Store, h *hub.Hub, sc *sim.Client, engine *policy.Engine, planner *agent.Planner, ag *agent.Agent, registry *run.Registry, catalog policy.Catalog, cfg config.Config) *Server {
	return &Server{
		st:       st,
		hub:      h,
		sim:      sc,
		engine:   engine,
		planner:  planner,
		agent:    ag,
		registry: registry,
		catalog:  catalog,
		cfg:      cfg,
	}
}

// Router builds the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	r.Route("/missions", func(r chi.Router) {
		r.Post("/", s.handleCreateMission)
		r.Get("/", s.handleListMissions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetMission)
			r.Patch("/", s.handlePatchMission)
			r.Delete("/", s.handleDeleteMission)
			r.Post("/start", s.handleStartMission)
			r.Post("/pause", s.handlePauseMission)
			r.Post("/resume", s.handleResumeMission)
		})
	})

	r.Route("/runs/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetRun)
		r.Get("/events", s.handleRunEvents)
		r.Post("/stop", s.handleStopRun)
		r.Get("/path_preview", s.handlePathPreview)
		r.Get("/timeline", s.handleTimeline)
	})

	r.Get("/sim/world", s.handleSimWorld)
	r.Post("/sim/scenario", s.handleSimScenario)

	r.Get("/policies", s.handlePolicies)
	r.Post("/policies/test", s.handlePolicyTest)
	r.Post("/plan/generate", s.handlePlanGenerate)
	r.Post("/plan/execute", s.handlePlanExecute)
	r.Post("/agent/propose", s.handleAgentPropose)

	r.Get("/ws/runs/{id}", s.handleRunSocket)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"planner_enabled": s.cfg.PlannerEnabled,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// writeStoreError maps storage sentinels onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrMissionNotFound), errors.Is(err, store.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrMissionHasRuns), errors.Is(err, store.ErrRunTerminal):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

// writeSimError maps sim adapter failures onto HTTP statuses. Both
// transient and protocol failures surface as bad-gateway; the body
// carries the distinction.
func writeSimError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadGateway, err)
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// nonNil keeps JSON list fields as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
