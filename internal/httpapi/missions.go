package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wardenlabs/warden/internal/model"
)

type missionRequest struct {
	Title string       `json:"title"`
	Goal  *model.Point `json:"goal"`
}

func (s *Server) handleCreateMission(w http.ResponseWriter, r *http.Request) {
	var req missionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, errors.New("title is required"))
		return
	}
	if req.Goal == nil {
		writeError(w, http.StatusBadRequest, errors.New("goal is required"))
		return
	}
	m, err := s.st.CreateMission(r.Context(), req.Title, *req.Goal)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListMissions(w http.ResponseWriter, r *http.Request) {
	missions, err := s.st.ListMissions(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(missions))
}

func (s *Server) handleGetMission(w http.ResponseWriter, r *http.Request) {
	m, err := s.st.GetMission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type missionPatch struct {
	Title  *string              `json:"title"`
	Goal   *model.Point         `json:"goal"`
	Status *model.MissionStatus `json:"status"`
}

func (s *Server) handlePatchMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req missionPatch
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Status != nil {
		switch *req.Status {
		case model.MissionPending, model.MissionActive, model.MissionPaused, model.MissionCompleted:
		default:
			writeError(w, http.StatusBadRequest, errors.New("unknown mission status"))
			return
		}
	}

	m, err := s.st.UpdateMission(r.Context(), id, req.Title, req.Goal)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if req.Status != nil {
		if err := s.st.SetMissionStatus(r.Context(), id, *req.Status); err != nil {
			writeStoreError(w, err)
			return
		}
		m.Status = *req.Status
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMission(w http.ResponseWriter, r *http.Request) {
	if err := s.st.DeleteMission(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartMission(w http.ResponseWriter, r *http.Request) {
	runRow, err := s.registry.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"run_id": runRow.ID})
}

// handlePauseMission stops the mission's live runs and parks the
// mission in paused status.
func (s *Server) handlePauseMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	runs, err := s.st.ListRuns(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	for _, rr := range runs {
		if rr.Status.Terminal() {
			continue
		}
		if err := s.registry.Stop(r.Context(), rr.ID); err != nil {
			writeStoreError(w, err)
			return
		}
	}
	if err := s.st.SetMissionStatus(r.Context(), id, model.MissionPaused); err != nil {
		writeStoreError(w, err)
		return
	}
	m, err := s.st.GetMission(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleResumeMission re-activates a paused mission. It does not spawn
// a run; /start does.
func (s *Server) handleResumeMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.st.SetMissionStatus(r.Context(), id, model.MissionActive); err != nil {
		writeStoreError(w, err)
		return
	}
	m, err := s.st.GetMission(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
