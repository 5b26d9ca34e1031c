package run

import (
	"context"
	"sync"

	"github.com/wardenlabs/warden/internal/agent"
	"github.com/wardenlabs/warden/internal/config"
	"github.com/wardenlabs/warden/internal/hub"
	"github.com/wardenlabs/warden/internal/model"
	"github.com/wardenlabs/warden/internal/policy"
	"github.com/wardenlabs/warden/internal/sim"
	"github.com/wardenlabs/warden/internal/store"
)

// Registry tracks the live loop goroutines, at most one per run ID.
type Registry struct {
	st      *store.Store
	hub     *hub.Hub
	sim     *sim.Client
	engine  *policy.Engine
	planner *agent.Planner
	cfg     config.Config

	mu    sync.Mutex
	loops map[string]*handle
	wg    sync.WaitGroup
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry builds a registry over the shared store, hub, and sim
// client. Call Resume after construction to pick up runs left in
// running status by a previous process.
func NewRegistry(st *store.Store, h *hub.Hub, sc *sim.Client, engine *policy.Engine, planner *agent.Planner, cfg config.Config) *Registry {
	return &Registry{
		st:      st,
		hub:     h,
		sim:     sc,
		engine:  engine,
		planner: planner,
		cfg:     cfg,
		loops:   make(map[string]*handle),
	}
}

// Start creates a run for the mission, marks the mission active, and
// spawns the run's loop.
func (r *Registry) Start(ctx context.Context, missionID string) (model.Run, error) {
	mission, err := r.st.GetMission(ctx, missionID)
	if err != nil {
		return model.Run{}, err
	}
	run, err := r.st.CreateRun(ctx, missionID)
	if err != nil {
		return model.Run{}, err
	}
	if err := r.st.SetMissionStatus(ctx, missionID, model.MissionActive); err != nil {
		return model.Run{}, err
	}
	r.spawn(run.ID, mission)
	return run, nil
}

// Stop requests a run's loop to exit and waits for it to commit the
// stopped status. A running row without a live loop (left over from a
// crash) is committed directly.
func (r *Registry) Stop(ctx context.Context, runID string) error {
	run, err := r.st.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	h, live := r.loops[runID]
	r.mu.Unlock()

	if live {
		h.cancel()
		select {
		case <-h.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if run.Status.Terminal() {
		return nil
	}
	if err := r.st.SetRunStatus(ctx, runID, model.RunStopped); err != nil {
		return err
	}
	r.hub.Publish(runID, hub.Message{Kind: hub.KindStatus, Data: map[string]any{
		"run_id": runID, "status": string(model.RunStopped),
	}})
	return nil
}

// Resume spawns loops for rows still marked running, typically after a
// process restart. It returns the number of loops spawned.
func (r *Registry) Resume(ctx context.Context) (int, error) {
	ids, err := r.st.ActiveRuns(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if r.Running(id) {
			continue
		}
		run, err := r.st.GetRun(ctx, id)
		if err != nil {
			return n, err
		}
		mission, err := r.st.GetMission(ctx, run.MissionID)
		if err != nil {
			return n, err
		}
		r.spawn(id, mission)
		n++
	}
	return n, nil
}

// Running reports whether a live loop exists for the run.
func (r *Registry) Running(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, live := r.loops[runID]
	return live
}

// Shutdown cancels every live loop and waits for them to exit.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, h := range r.loops {
		h.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn registers and launches a loop for the run. No-op when a loop is
// already live for the ID.
func (r *Registry) spawn(runID string, mission model.Mission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, live := r.loops[runID]; live {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel, done: make(chan struct{})}
	r.loops[runID] = h

	l := newLoop(runID, mission, r.st, r.hub, r.sim, r.engine, r.planner, r.cfg)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(h.done)
		defer r.reap(runID, h)
		l.run(ctx)
	}()
}

// reap drops a finished loop's handle.
func (r *Registry) reap(runID string, h *handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loops[runID] == h {
		delete(r.loops, runID)
	}
}
