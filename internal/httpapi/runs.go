package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wardenlabs/warden/internal/agent"
	"github.com/wardenlabs/warden/internal/model"
	"github.com/wardenlabs/warden/internal/run"
)

// errNoTelemetry reports a path preview against a run that has not yet
// recorded a position.
var errNoTelemetry = errors.New("no telemetry recorded for run")

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runRow, err := s.st.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runRow)
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.st.GetRun(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		since = v
	}
	events, err := s.st.ListEvents(r.Context(), id, since)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.Stop(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	runRow, err := s.st.GetRun(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runRow)
}

// handlePathPreview returns the points the run is (or would be)
// following: the latest persisted plan when one exists, otherwise a
// preview computed from the last telemetry sample to the mission goal.
func (s *Server) handlePathPreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	runRow, err := s.st.GetRun(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	events, err := s.st.ListEvents(r.Context(), id, 0)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type != model.EventPlan {
			continue
		}
		if pts := run.PlanWaypoints(events[i].Payload); len(pts) > 0 {
			writeJSON(w, http.StatusOK, map[string]any{"points": pts, "source": "plan"})
			return
		}
		break
	}

	mission, err := s.st.GetMission(r.Context(), runRow.MissionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	samples, err := s.st.ListTelemetry(r.Context(), id, 0)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if len(samples) == 0 {
		writeError(w, http.StatusConflict, errNoTelemetry)
		return
	}
	last := samples[len(samples)-1].Sample
	start := model.Point{X: last.X, Y: last.Y}

	var obstacles []model.Obstacle
	if world, err := s.sim.World(r.Context()); err == nil {
		obstacles = world.Obstacles
	}
	points, source := agent.PlanPath(start, mission.Goal, obstacles, 0)
	writeJSON(w, http.StatusOK, map[string]any{"points": points, "source": source})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.st.ExportAudit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}
