package model

import "time"

// EventType enumerates the closed set of chain-of-trust event types.
type EventType string

const (
	EventTelemetry  EventType = "TELEMETRY"
	EventDecision   EventType = "DECISION"
	EventExecution  EventType = "EXECUTION"
	EventStagnation EventType = "STAGNATION"
	EventPlan       EventType = "PLAN"
	EventAlert      EventType = "ALERT"
)

// ValidEventType reports whether t is a known event type.
func ValidEventType(t EventType) bool {
	switch t {
	case EventTelemetry, EventDecision, EventExecution, EventStagnation, EventPlan, EventAlert:
		return true
	}
	return false
}

// Event is one immutable record in a run's hash chain.
//
// Hash is the SHA-256 over the canonical JSON of
// {seq, run_id, ts, type, payload, prev_hash}; PrevHash is the previous
// event's Hash, or the zero hash for seq 1.
type Event struct {
	Seq      int64          `json:"seq"`
	ID       string         `json:"id"`
	RunID    string         `json:"run_id"`
	TS       time.Time      `json:"ts"`
	Type     EventType      `json:"type"`
	Payload  map[string]any `json:"payload"`
	PrevHash string         `json:"prev_hash"`
	Hash     string         `json:"hash"`
}

// RunStatus enumerates run lifecycle states. Terminal states
// (stopped, completed, failed) never re-open.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunStopped   RunStatus = "stopped"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether s is a terminal run status.
func (s RunStatus) Terminal() bool {
	return s == RunStopped || s == RunCompleted || s == RunFailed
}

// Run is one execution of a mission.
type Run struct {
	ID        string     `json:"id"`
	MissionID string     `json:"mission_id"`
	Status    RunStatus  `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

// MissionStatus enumerates mission lifecycle states.
type MissionStatus string

const (
	MissionPending   MissionStatus = "pending"
	MissionActive    MissionStatus = "active"
	MissionPaused    MissionStatus = "paused"
	MissionCompleted MissionStatus = "completed"
)

// Mission is an operator-defined task; Title doubles as the
// natural-language goal handed to the planner.
type Mission struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Goal      Point         `json:"goal"`
	Status    MissionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}
