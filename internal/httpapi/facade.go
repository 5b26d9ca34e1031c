package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/wardenlabs/warden/internal/agent"
	"github.com/wardenlabs/warden/internal/model"
)

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog)
}

type policyTestRequest struct {
	Telemetry model.Telemetry      `json:"telemetry"`
	Proposal  model.ActionProposal `json:"proposal"`
}

// handlePolicyTest evaluates one proposal against policy without side
// effects. Pure composition of the engine.
func (s *Server) handlePolicyTest(w http.ResponseWriter, r *http.Request) {
	var req policyTestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := model.ValidateTelemetry(&req.Telemetry); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := model.ValidateProposal(req.Proposal); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Evaluate(req.Telemetry, nil, req.Proposal))
}

func (s *Server) handleSimWorld(w http.ResponseWriter, r *http.Request) {
	world, err := s.sim.World(r.Context())
	if err != nil {
		writeSimError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, world)
}

func (s *Server) handleSimScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scenario string `json:"scenario"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Scenario == "" {
		writeError(w, http.StatusBadRequest, errors.New("scenario is required"))
		return
	}
	if err := s.sim.TriggerScenario(r.Context(), req.Scenario); err != nil {
		writeSimError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// planWaypoint is one waypoint of a generated or submitted plan.
type planWaypoint struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	MaxSpeed float64 `json:"max_speed"`
}

type planGenerateRequest struct {
	Instruction string       `json:"instruction"`
	Goal        *model.Point `json:"goal"`
}

// handlePlanGenerate previews a plan: waypoints to the goal, each
// governed under a projected telemetry with the position advanced to
// the previous waypoint. No events are appended and no commands sent.
func (s *Server) handlePlanGenerate(w http.ResponseWriter, r *http.Request) {
	var req planGenerateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Goal == nil {
		writeError(w, http.StatusBadRequest, errors.New("goal is required"))
		return
	}

	tel, err := s.sim.Telemetry(r.Context())
	if err != nil {
		writeSimError(w, err)
		return
	}
	world := s.worldOrNil(r)

	plan := s.generatePlan(tel, world, *req.Goal)
	writeJSON(w, http.StatusOK, plan)
}

type generatedPlan struct {
	Waypoints      []planWaypoint             `json:"waypoints"`
	Rationale      string                     `json:"rationale"`
	Governance     []model.GovernanceDecision `json:"governance"`
	AllApproved    bool                       `json:"all_approved"`
	EstimatedTimeS float64                    `json:"estimated_time_s"`
}

func (s *Server) generatePlan(tel model.Telemetry, world *model.World, goal model.Point) generatedPlan {
	start := model.Point{X: tel.X, Y: tel.Y}
	var obstacles []model.Obstacle
	if world != nil {
		obstacles = world.Obstacles
	}
	points, source := agent.PlanPath(start, goal, obstacles, 0)

	rationale := "straight route to goal"
	if source == "detour" {
		rationale = "detour around blocking obstacle"
	}

	plan := generatedPlan{
		Rationale:   rationale,
		AllApproved: true,
		Waypoints:   []planWaypoint{},
		Governance:  []model.GovernanceDecision{},
	}
	prev := start
	for _, wp := range points[1:] {
		projected := tel
		projected.X, projected.Y = prev.X, prev.Y

		prop := s.planner.Propose(projected, world, wp, nil)
		if prop.Intent != model.IntentMoveTo || prop.Params == nil {
			// Waypoint within arrive range of the previous one; keep
			// it at crawl speed rather than dropping it.
			prop = model.ActionProposal{
				Intent: model.IntentMoveTo,
				Params: &model.ActionParams{X: wp.X, Y: wp.Y, MaxSpeed: s.cfg.SlowSpeed},
			}
		}
		dec := s.engine.Evaluate(projected, world, prop)

		plan.Waypoints = append(plan.Waypoints, planWaypoint{
			X: prop.Params.X, Y: prop.Params.Y, MaxSpeed: prop.Params.MaxSpeed,
		})
		plan.Governance = append(plan.Governance, dec)
		if !dec.Approved() {
			plan.AllApproved = false
		}
		if prop.Params.MaxSpeed > 0 {
			plan.EstimatedTimeS += model.Dist(prev, wp) / prop.Params.MaxSpeed
		}
		prev = wp
	}
	return plan
}

type planExecuteRequest struct {
	RunID       string         `json:"run_id"`
	Instruction string         `json:"instruction"`
	Waypoints   []planWaypoint `json:"waypoints"`
	Rationale   string         `json:"rationale"`
}

type planStep struct {
	WaypointIndex      int               `json:"waypoint_index"`
	Executed           bool              `json:"executed"`
	GovernanceDecision model.Decision    `json:"governance_decision"`
	PolicyState        model.PolicyState `json:"policy_state"`
}

type planExecuteResponse struct {
	RunID     string     `json:"run_id"`
	Status    string     `json:"status"`
	Steps     []planStep `json:"steps"`
	AuditHash string     `json:"audit_hash"`
}

// handlePlanExecute walks a waypoint list: per waypoint, fresh
// telemetry, governance, then command + EXECUTION append when approved
// or a blocked DECISION append when not. A denial stops the walk.
func (s *Server) handlePlanExecute(w http.ResponseWriter, r *http.Request) {
	var req planExecuteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Waypoints) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("waypoints are required"))
		return
	}
	for i, wp := range req.Waypoints {
		prop := moveTo(wp)
		if err := model.ValidateProposal(prop); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("waypoint %d: %w", i, err))
			return
		}
	}

	runID := req.RunID
	if runID == "" {
		last := req.Waypoints[len(req.Waypoints)-1]
		title := req.Instruction
		if title == "" {
			title = "ad-hoc plan"
		}
		mission, err := s.st.CreateMission(r.Context(), title, model.Point{X: last.X, Y: last.Y})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		runRow, err := s.st.CreateRun(r.Context(), mission.ID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		runID = runRow.ID
	} else {
		runRow, err := s.st.GetRun(r.Context(), runID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if runRow.Status.Terminal() {
			writeError(w, http.StatusConflict, errors.New("run is in a terminal status"))
			return
		}
	}

	wps := make([]any, 0, len(req.Waypoints))
	for _, wp := range req.Waypoints {
		wps = append(wps, map[string]any{"x": wp.X, "y": wp.Y, "max_speed": wp.MaxSpeed})
	}
	if _, err := s.st.AppendEvent(r.Context(), runID, model.EventPlan, map[string]any{
		"instruction": req.Instruction,
		"waypoints":   wps,
		"rationale":   req.Rationale,
	}); err != nil {
		writeStoreError(w, err)
		return
	}

	world := s.worldOrNil(r)
	resp := planExecuteResponse{RunID: runID, Status: "completed", Steps: []planStep{}}
	warnings := false

walk:
	for i, wp := range req.Waypoints {
		tel, err := s.sim.Telemetry(r.Context())
		if err != nil {
			resp.Status = "partial"
			break
		}
		prop := moveTo(wp)
		dec := s.engine.Evaluate(tel, world, prop)

		step := planStep{
			WaypointIndex:      i,
			GovernanceDecision: dec.Decision,
			PolicyState:        dec.PolicyState,
		}

		switch dec.Decision {
		case model.DecisionApproved:
			res, err := s.sim.SendCommand(r.Context(), prop.Intent, prop.Params)
			if err != nil {
				resp.Status = "partial"
				resp.Steps = append(resp.Steps, step)
				break walk
			}
			step.Executed = res.Accepted
			if _, err := s.st.AppendEvent(r.Context(), runID, model.EventExecution, map[string]any{
				"waypoint_index": i,
				"command":        map[string]any{"intent": prop.Intent, "params": prop.Params},
				"result":         res,
			}); err != nil {
				writeStoreError(w, err)
				return
			}
		default:
			warnings = true
			if _, err := s.st.AppendEvent(r.Context(), runID, model.EventDecision, map[string]any{
				"waypoint_index": i,
				"proposal":       prop,
				"governance":     dec,
				"blocked":        dec.Decision == model.DecisionDenied,
			}); err != nil {
				writeStoreError(w, err)
				return
			}
		}
		resp.Steps = append(resp.Steps, step)
		if dec.Decision == model.DecisionDenied {
			resp.Status = "blocked"
			break
		}
	}

	if resp.Status == "completed" && warnings {
		resp.Status = "completed_with_warnings"
	}
	if req.RunID == "" {
		// Synthetic runs are closed out; a caller-owned run keeps its
		// lifecycle.
		status := model.RunCompleted
		if resp.Status == "blocked" || resp.Status == "partial" {
			status = model.RunStopped
		}
		if err := s.st.SetRunStatus(r.Context(), runID, status); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	hash, err := s.st.TailHash(r.Context(), runID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	resp.AuditHash = hash
	writeJSON(w, http.StatusOK, resp)
}

type agentProposeRequest struct {
	Instruction string       `json:"instruction"`
	Goal        *model.Point `json:"goal"`
}

// handleAgentPropose runs one bounded agentic planning call against
// live telemetry and returns the full reasoning record.
func (s *Server) handleAgentPropose(w http.ResponseWriter, r *http.Request) {
	var req agentProposeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tel, err := s.sim.Telemetry(r.Context())
	if err != nil {
		writeSimError(w, err)
		return
	}
	goal := req.Goal
	if goal == nil {
		goal = tel.Target
	}
	if goal == nil {
		writeError(w, http.StatusBadRequest, errors.New("goal is required when telemetry carries no target"))
		return
	}
	world := s.worldOrNil(r)

	res := s.agent.Propose(r.Context(), tel, world, *goal, nil)
	dec := s.engine.Evaluate(tel, world, res.Proposal)

	replanned := false
	for _, step := range res.Thoughts {
		if step.Action == "replan" {
			replanned = true
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"proposal":        res.Proposal,
		"governance":      dec,
		"thought_chain":   res.Thoughts,
		"memory_summary":  res.Memory,
		"replanning_used": replanned,
		"model_used":      res.Mode,
	})
}

func moveTo(wp planWaypoint) model.ActionProposal {
	return model.ActionProposal{
		Intent: model.IntentMoveTo,
		Params: &model.ActionParams{X: wp.X, Y: wp.Y, MaxSpeed: wp.MaxSpeed},
	}
}

// worldOrNil fetches the world snapshot, tolerating sim failures; the
// engine falls back to default bounds on nil.
func (s *Server) worldOrNil(r *http.Request) *model.World {
	world, err := s.sim.World(r.Context())
	if err != nil {
		return nil
	}
	return &world
}
