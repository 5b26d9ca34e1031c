package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenlabs/warden/internal/agent"
	"github.com/wardenlabs/warden/internal/config"
	"github.com/wardenlabs/warden/internal/hub"
	"github.com/wardenlabs/warden/internal/model"
	"github.com/wardenlabs/warden/internal/policy"
	"github.com/wardenlabs/warden/internal/run"
	"github.com/wardenlabs/warden/internal/sim"
	"github.com/wardenlabs/warden/internal/store"
)

// fakeSim mirrors the simulator's HTTP surface for API tests.
type fakeSim struct {
	mu       sync.Mutex
	tel      model.Telemetry
	world    model.World
	telFail  bool
	commands []map[string]any
}

func (f *fakeSim) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.URL.Path {
	case "/telemetry":
		if f.telFail {
			http.Error(w, "sim down", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(f.tel)
	case "/world":
		_ = json.NewEncoder(w).Encode(f.world)
	case "/command":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.commands = append(f.commands, body)
		_ = json.NewEncoder(w).Encode(sim.CommandResult{Accepted: true})
	case "/scenario":
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeSim) setTelemetry(tel model.Telemetry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tel = tel
}

func clearTelemetry(x, y float64) model.Telemetry {
	return model.Telemetry{
		X: x, Y: y,
		Zone:             model.ZoneAisle,
		NearestObstacleM: 10,
		HumanDistanceM:   100,
		Battery:          0.9,
	}
}

type apiRig struct {
	baseURL string
	st      *store.Store
	hub     *hub.Hub
	sim     *fakeSim
	reg     *run.Registry
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()
	cfg := config.Default()
	cfg.TickPeriod = 5 * time.Millisecond

	st, err := store.Open(filepath.Join(t.TempDir(), "warden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fs := &fakeSim{
		tel: clearTelemetry(0, 0),
		world: model.World{
			Geofence: model.Rect{MinX: 0, MaxX: 30, MinY: 0, MaxY: 20},
		},
	}
	simSrv := httptest.NewServer(fs)
	t.Cleanup(simSrv.Close)
	simClient := sim.NewClient(simSrv.URL)

	h := hub.New(cfg.SubscriberBuffer, cfg.SlowSubEvict)
	catalog := policy.MustLoadCatalog()
	engine := policy.NewEngine(policy.ParamsFromConfig(cfg), catalog)
	planner := agent.NewPlanner(agent.ParamsFromConfig(cfg))
	ag := agent.NewAgent(engine, planner, cfg.AgentMaxSteps, cfg.AgentWall)
	reg := run.NewRegistry(st, h, simClient, engine, planner, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
	})

	srv := httptest.NewServer(NewServer(st, h, simClient, engine, planner, ag, reg, catalog, cfg).Router())
	t.Cleanup(srv.Close)

	return &apiRig{baseURL: srv.URL, st: st, hub: h, sim: fs, reg: reg}
}

// doJSON issues a request with an optional JSON body, decoding the
// response into dst when given. The caller checks the returned status.
func doJSON(t *testing.T, method, url string, body, dst any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

func (a *apiRig) createMission(t *testing.T, title string, goal model.Point) model.Mission {
	t.Helper()
	var m model.Mission
	status := doJSON(t, http.MethodPost, a.baseURL+"/missions",
		map[string]any{"title": title, "goal": goal}, &m)
	require.Equal(t, http.StatusCreated, status)
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHealth(t *testing.T) {
	rig := newAPIRig(t)

	var body map[string]any
	status := doJSON(t, http.MethodGet, rig.baseURL+"/health", nil, &body)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Contains(t, body, "planner_enabled")
}

func TestMissionCRUD(t *testing.T) {
	rig := newAPIRig(t)

	m := rig.createMission(t, "fetch pallet", model.Point{X: 15, Y: 7})
	assert.Equal(t, model.MissionPending, m.Status)

	var listed []model.Mission
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodGet, rig.baseURL+"/missions", nil, &listed))
	require.Len(t, listed, 1)

	var got model.Mission
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodGet, rig.baseURL+"/missions/"+m.ID, nil, &got))
	assert.Equal(t, m.ID, got.ID)

	var patched model.Mission
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodPatch, rig.baseURL+"/missions/"+m.ID,
			map[string]any{"title": "fetch crate", "goal": map[string]float64{"x": 3, "y": 4}}, &patched))
	assert.Equal(t, "fetch crate", patched.Title)
	assert.Equal(t, model.Point{X: 3, Y: 4}, patched.Goal)

	assert.Equal(t, http.StatusBadRequest,
		doJSON(t, http.MethodPatch, rig.baseURL+"/missions/"+m.ID,
			map[string]any{"status": "warp"}, nil))

	require.Equal(t, http.StatusNoContent,
		doJSON(t, http.MethodDelete, rig.baseURL+"/missions/"+m.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound,
		doJSON(t, http.MethodGet, rig.baseURL+"/missions/"+m.ID, nil, nil))
}

func TestCreateMission_Validation(t *testing.T) {
	rig := newAPIRig(t)

	assert.Equal(t, http.StatusBadRequest,
		doJSON(t, http.MethodPost, rig.baseURL+"/missions", map[string]any{"title": ""}, nil))
	assert.Equal(t, http.StatusBadRequest,
		doJSON(t, http.MethodPost, rig.baseURL+"/missions", map[string]any{"title": "no goal"}, nil))
}

func TestStartStopRun(t *testing.T) {
	rig := newAPIRig(t)
	m := rig.createMission(t, "long haul", model.Point{X: 25, Y: 10})

	var started map[string]string
	require.Equal(t, http.StatusCreated,
		doJSON(t, http.MethodPost, rig.baseURL+"/missions/"+m.ID+"/start", nil, &started))
	runID := started["run_id"]
	require.NotEmpty(t, runID)

	var runRow model.Run
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodGet, rig.baseURL+"/runs/"+runID, nil, &runRow))
	assert.Equal(t, model.RunRunning, runRow.Status)

	waitFor(t, "first events", func() bool {
		var events []model.Event
		doJSON(t, http.MethodGet, rig.baseURL+"/runs/"+runID+"/events", nil, &events)
		return len(events) > 0
	})

	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodPost, rig.baseURL+"/runs/"+runID+"/stop", nil, &runRow))
	assert.Equal(t, model.RunStopped, runRow.Status)

	// since filter skips already-seen events.
	var all, tail []model.Event
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodGet, rig.baseURL+"/runs/"+runID+"/events", nil, &all))
	require.NotEmpty(t, all)
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodGet,
			fmt.Sprintf("%s/runs/%s/events?since=%d", rig.baseURL, runID, all[0].Seq), nil, &tail))
	assert.Len(t, tail, len(all)-1)
}

func TestDeleteMissionWithRuns_Conflict(t *testing.T) {
	rig := newAPIRig(t)
	m := rig.createMission(t, "audited", model.Point{X: 25, Y: 10})

	_, err := rig.st.CreateRun(context.Background(), m.ID)
	require.NoError(t, err)

	assert.Equal(t, http.StatusConflict,
		doJSON(t, http.MethodDelete, rig.baseURL+"/missions/"+m.ID, nil, nil))
}

func TestPauseStopsRuns(t *testing.T) {
	rig := newAPIRig(t)
	m := rig.createMission(t, "pausable", model.Point{X: 25, Y: 10})

	var started map[string]string
	require.Equal(t, http.StatusCreated,
		doJSON(t, http.MethodPost, rig.baseURL+"/missions/"+m.ID+"/start", nil, &started))

	var paused model.Mission
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodPost, rig.baseURL+"/missions/"+m.ID+"/pause", nil, &paused))
	assert.Equal(t, model.MissionPaused, paused.Status)

	runRow, err := rig.st.GetRun(context.Background(), started["run_id"])
	require.NoError(t, err)
	assert.Equal(t, model.RunStopped, runRow.Status)

	var resumed model.Mission
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodPost, rig.baseURL+"/missions/"+m.ID+"/resume", nil, &resumed))
	assert.Equal(t, model.MissionActive, resumed.Status)
}

func TestRunEndpoints_UnknownRun(t *testing.T) {
	rig := newAPIRig(t)
	for _, path := range []string{"/runs/nope", "/runs/nope/events", "/runs/nope/timeline", "/runs/nope/path_preview"} {
		assert.Equal(t, http.StatusNotFound,
			doJSON(t, http.MethodGet, rig.baseURL+path, nil, nil), "path %s", path)
	}
	assert.Equal(t, http.StatusNotFound,
		doJSON(t, http.MethodPost, rig.baseURL+"/runs/nope/stop", nil, nil))
}

func TestTimeline(t *testing.T) {
	rig := newAPIRig(t)
	m := rig.createMission(t, "short trip", model.Point{X: 25, Y: 10})

	var started map[string]string
	require.Equal(t, http.StatusCreated,
		doJSON(t, http.MethodPost, rig.baseURL+"/missions/"+m.ID+"/start", nil, &started))
	runID := started["run_id"]

	waitFor(t, "events in chain", func() bool {
		var events []model.Event
		doJSON(t, http.MethodGet, rig.baseURL+"/runs/"+runID+"/events", nil, &events)
		return len(events) >= 2
	})
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodPost, rig.baseURL+"/runs/"+runID+"/stop", nil, nil))

	var bundle store.AuditBundle
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodGet, rig.baseURL+"/runs/"+runID+"/timeline", nil, &bundle))
	assert.Equal(t, runID, bundle.Run.ID)
	assert.Equal(t, m.ID, bundle.Mission.ID)
	assert.True(t, bundle.Chain.OK)
	assert.NotEmpty(t, bundle.Events)
}

func TestPathPreview(t *testing.T) {
	rig := newAPIRig(t)
	ctx := context.Background()
	m := rig.createMission(t, "preview", model.Point{X: 10, Y: 0})

	orphan, err := rig.st.CreateRun(ctx, m.ID)
	require.NoError(t, err)

	// No telemetry yet: nothing to preview from.
	assert.Equal(t, http.StatusConflict,
		doJSON(t, http.MethodGet, rig.baseURL+"/runs/"+orphan.ID+"/path_preview", nil, nil))

	require.NoError(t, rig.st.AppendTelemetry(ctx, orphan.ID, clearTelemetry(0, 0)))
	var preview struct {
		Points []model.Point `json:"points"`
		Source string        `json:"source"`
	}
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodGet, rig.baseURL+"/runs/"+orphan.ID+"/path_preview", nil, &preview))
	assert.Equal(t, "straight", preview.Source)
	require.Len(t, preview.Points, 2)
	assert.Equal(t, model.Point{X: 10, Y: 0}, preview.Points[1])

	// A persisted plan takes precedence.
	_, err = rig.st.AppendEvent(ctx, orphan.ID, model.EventPlan, map[string]any{
		"waypoints": []any{
			map[string]any{"x": 2.0, "y": 1.0},
			map[string]any{"x": 10.0, "y": 0.0},
		},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodGet, rig.baseURL+"/runs/"+orphan.ID+"/path_preview", nil, &preview))
	assert.Equal(t, "plan", preview.Source)
	require.Len(t, preview.Points, 2)
	assert.Equal(t, model.Point{X: 2, Y: 1}, preview.Points[0])
}
