package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/wardenlabs/warden/internal/agent"
	"github.com/wardenlabs/warden/internal/config"
	"github.com/wardenlabs/warden/internal/hub"
	"github.com/wardenlabs/warden/internal/model"
	"github.com/wardenlabs/warden/internal/policy"
	"github.com/wardenlabs/warden/internal/sim"
	"github.com/wardenlabs/warden/internal/store"
)

// worldTTL bounds how stale the cached world snapshot may get.
const worldTTL = time.Second

// commitTimeout bounds the detached status/alert writes performed while
// the loop's own context may already be cancelled.
const commitTimeout = 5 * time.Second

// loop drives one run's tick cycle.
type loop struct {
	runID   string
	mission model.Mission

	st      *store.Store
	hub     *hub.Hub
	sim     *sim.Client
	engine  *policy.Engine
	planner *agent.Planner
	cfg     config.Config

	world   *model.World
	worldAt time.Time

	last      *model.GovernanceDecision
	waypoints []model.Point
	wpIndex   int

	// Stagnation detector state. prevGoalDist is NaN until the first
	// executed tick records a distance.
	prevGoalDist float64
	stagnant     int
}

func newLoop(runID string, mission model.Mission, st *store.Store, h *hub.Hub, sc *sim.Client, engine *policy.Engine, planner *agent.Planner, cfg config.Config) *loop {
	return &loop{
		runID:        runID,
		mission:      mission,
		st:           st,
		hub:          h,
		sim:          sc,
		engine:       engine,
		planner:      planner,
		cfg:          cfg,
		prevGoalDist: math.NaN(),
	}
}

// tickSummary is the per-tick digest broadcast on the event stream.
type tickSummary struct {
	RunID        string            `json:"run_id"`
	Intent       model.Intent      `json:"intent"`
	Decision     model.Decision    `json:"decision"`
	PolicyState  model.PolicyState `json:"policy_state"`
	RiskScore    float64           `json:"risk_score"`
	Executed     bool              `json:"executed"`
	GoalDistance float64           `json:"goal_distance"`
}

// run executes the loop until stop, completion, or fault. Panics are
// caught here and turn into a loop_error alert plus a failed status.
func (l *loop) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.fail(fmt.Sprintf("panic: %v", r))
		}
	}()

	slog.Info("run loop starting", "run_id", l.runID, "mission_id", l.mission.ID)
	l.rehydratePlan(ctx)

	ticker := time.NewTicker(l.cfg.TickPeriod)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			l.finish(model.RunStopped, "")
			return
		}
		if done := l.tick(ctx); done {
			return
		}
		select {
		case <-ctx.Done():
			l.finish(model.RunStopped, "")
			return
		case <-ticker.C:
		}
	}
}

// tick runs one propose/govern/execute cycle. It returns true when the
// run reached a terminal status.
func (l *loop) tick(ctx context.Context) bool {
	tel, err := l.sim.Telemetry(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown race; run() commits stopped.
			return false
		}
		l.telemetryFault(ctx, err)
		return false
	}

	if err := l.st.AppendTelemetry(ctx, l.runID, tel); err != nil {
		slog.Warn("telemetry sample not persisted", "run_id", l.runID, "error", err)
	}
	l.hub.Publish(l.runID, hub.Message{Kind: hub.KindTelemetry, Data: tel})
	for _, e := range tel.Events {
		l.hub.Publish(l.runID, hub.Message{Kind: hub.KindAlert, Data: map[string]any{
			"kind": "sim_event", "event": e,
		}})
	}
	l.refreshWorld(ctx)

	goal := l.currentGoal(tel)
	prop := l.planner.Propose(tel, l.world, goal, l.last)
	dec := l.engine.Evaluate(tel, l.world, prop)

	if _, err := l.st.AppendEvent(ctx, l.runID, model.EventDecision, map[string]any{
		"context": map[string]any{
			"telemetry":    tel,
			"mission_goal": l.mission.Goal,
		},
		"proposal":   prop,
		"governance": dec,
	}); err != nil {
		l.fail(fmt.Sprintf("append decision: %v", err))
		return true
	}

	executed := false
	if dec.Approved() {
		res, err := l.sim.SendCommand(ctx, prop.Intent, prop.Params)
		switch {
		case err != nil:
			l.alert(ctx, map[string]any{"kind": "command_fault", "error": err.Error()})
		default:
			executed = res.Accepted
			if _, err := l.st.AppendEvent(ctx, l.runID, model.EventExecution, map[string]any{
				"command": map[string]any{"intent": prop.Intent, "params": prop.Params},
				"result":  res,
			}); err != nil {
				l.fail(fmt.Sprintf("append execution: %v", err))
				return true
			}
		}
	}

	l.last = &dec
	dist := model.Dist(model.Point{X: tel.X, Y: tel.Y}, goal)
	l.updateStagnation(ctx, dist, executed)

	l.hub.Publish(l.runID, hub.Message{Kind: hub.KindEvent, Data: tickSummary{
		RunID:        l.runID,
		Intent:       prop.Intent,
		Decision:     dec.Decision,
		PolicyState:  dec.PolicyState,
		RiskScore:    dec.RiskScore,
		Executed:     executed,
		GoalDistance: dist,
	}})

	if prop.Intent == model.IntentStop && dec.Approved() {
		l.finish(model.RunCompleted, "")
		return true
	}
	return false
}

// telemetryFault records a skipped tick: the alert is appended to the
// chain and broadcast, and the loop moves on to the next tick.
func (l *loop) telemetryFault(ctx context.Context, err error) {
	kind := "telemetry_fault"
	if errors.Is(err, sim.ErrProtocol) {
		kind = "protocol_mismatch"
	}
	l.alert(ctx, map[string]any{"kind": kind, "error": err.Error()})
	slog.Warn("telemetry unavailable, skipping tick", "run_id", l.runID, "error", err)
}

// alert appends an ALERT event and broadcasts it.
func (l *loop) alert(ctx context.Context, payload map[string]any) {
	if _, err := l.st.AppendEvent(ctx, l.runID, model.EventAlert, payload); err != nil {
		slog.Warn("alert not persisted", "run_id", l.runID, "error", err)
	}
	l.hub.Publish(l.runID, hub.Message{Kind: hub.KindAlert, Data: payload})
}

// refreshWorld re-reads the world snapshot once per TTL. A failed read
// keeps the stale snapshot; the engine falls back to default bounds
// while the snapshot is nil.
func (l *loop) refreshWorld(ctx context.Context) {
	if l.world != nil && time.Since(l.worldAt) < worldTTL {
		return
	}
	w, err := l.sim.World(ctx)
	if err != nil {
		slog.Debug("world refresh failed", "run_id", l.runID, "error", err)
		return
	}
	l.world = &w
	l.worldAt = time.Now()
}

// currentGoal is the next plan waypoint while the run follows a
// persisted plan, else the mission goal. Reached waypoints are consumed.
func (l *loop) currentGoal(tel model.Telemetry) model.Point {
	pos := model.Point{X: tel.X, Y: tel.Y}
	for l.wpIndex < len(l.waypoints) {
		wp := l.waypoints[l.wpIndex]
		if model.Dist(pos, wp) > l.cfg.ArriveEps {
			return wp
		}
		l.wpIndex++
	}
	return l.mission.Goal
}

// updateStagnation counts executed ticks that fail to close on the goal.
// Reaching the cycle threshold appends one STAGNATION event, broadcasts
// an alert, and resets the counter; the run is never aborted for it.
func (l *loop) updateStagnation(ctx context.Context, dist float64, executed bool) {
	if !executed {
		return
	}
	prev := l.prevGoalDist
	l.prevGoalDist = dist
	if math.IsNaN(prev) {
		return
	}
	if prev-dist > l.cfg.StagnationEps {
		l.stagnant = 0
		return
	}
	if dist <= l.cfg.StagnationMinDist {
		return
	}
	l.stagnant++
	if l.stagnant < l.cfg.StagnationCycles {
		return
	}
	payload := map[string]any{
		"cycles":        l.stagnant,
		"goal_distance": dist,
	}
	if _, err := l.st.AppendEvent(ctx, l.runID, model.EventStagnation, payload); err != nil {
		slog.Warn("stagnation event not persisted", "run_id", l.runID, "error", err)
	}
	l.hub.Publish(l.runID, hub.Message{Kind: hub.KindAlert, Data: map[string]any{
		"kind":          "stagnation",
		"cycles":        l.stagnant,
		"goal_distance": dist,
	}})
	slog.Warn("run stagnating", "run_id", l.runID, "goal_distance", dist)
	l.stagnant = 0
}

// rehydratePlan restores plan-following state from the run's last PLAN
// event, so an auto-resumed loop picks up where the plan left off.
func (l *loop) rehydratePlan(ctx context.Context) {
	events, err := l.st.ListEvents(ctx, l.runID, 0)
	if err != nil {
		slog.Warn("plan rehydration failed", "run_id", l.runID, "error", err)
		return
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type != model.EventPlan {
			continue
		}
		l.waypoints = PlanWaypoints(events[i].Payload)
		l.wpIndex = 0
		if len(l.waypoints) > 0 {
			slog.Info("plan rehydrated", "run_id", l.runID, "waypoints", len(l.waypoints))
		}
		return
	}
}

// PlanWaypoints extracts the {x, y} waypoint list from a PLAN event
// payload.
func PlanWaypoints(payload map[string]any) []model.Point {
	raw, _ := payload["waypoints"].([]any)
	pts := make([]model.Point, 0, len(raw))
	for _, w := range raw {
		m, ok := w.(map[string]any)
		if !ok {
			continue
		}
		x, okX := toFloat(m["x"])
		y, okY := toFloat(m["y"])
		if okX && okY {
			pts = append(pts, model.Point{X: x, Y: y})
		}
	}
	return pts
}

// toFloat reads a payload number. Stored payloads decode with
// json.Number; freshly built ones may carry float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// finish commits a terminal status and broadcasts it. The writes run
// under a detached context so shutdown cancellation cannot lose them.
func (l *loop) finish(status model.RunStatus, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()

	if err := l.st.SetRunStatus(ctx, l.runID, status); err != nil && !errors.Is(err, store.ErrRunTerminal) {
		slog.Error("run status not committed", "run_id", l.runID, "status", status, "error", err)
	}
	if status == model.RunCompleted {
		if err := l.st.SetMissionStatus(ctx, l.mission.ID, model.MissionCompleted); err != nil {
			slog.Error("mission status not committed", "mission_id", l.mission.ID, "error", err)
		}
	}

	data := map[string]any{"run_id": l.runID, "status": string(status)}
	if detail != "" {
		data["detail"] = detail
	}
	l.hub.Publish(l.runID, hub.Message{Kind: hub.KindStatus, Data: data})
	slog.Info("run loop finished", "run_id", l.runID, "status", status)
}

// fail records a loop fault: ALERT loop_error, then status failed.
func (l *loop) fail(errText string) {
	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()

	payload := map[string]any{"kind": "loop_error", "error": errText}
	if _, err := l.st.AppendEvent(ctx, l.runID, model.EventAlert, payload); err != nil {
		slog.Error("loop_error alert not appended", "run_id", l.runID, "error", err)
	}
	l.hub.Publish(l.runID, hub.Message{Kind: hub.KindAlert, Data: payload})
	l.finish(model.RunFailed, errText)
}
