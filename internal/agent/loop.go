package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wardenlabs/warden/internal/model"
	"github.com/wardenlabs/warden/internal/policy"
)

// Tool names of the closed agentic tool set.
const (
	toolAssessEnvironment = "assess_environment"
	toolCheckPolicy       = "check_policy"
	toolSubmitAction      = "submit_action"
	toolReplan            = "replan"
	toolGracefulStop      = "graceful_stop"
)

// forcedStopDenials is the consecutive-denial count that forces a
// graceful stop.
const forcedStopDenials = 3

// ThoughtStep is one step of the agent's recorded chain of thought.
type ThoughtStep struct {
	Step        int    `json:"step"`
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	Observation string `json:"observation"`
}

// Result is the outcome of one agentic call: the final proposal, the
// full thought chain, and the memory summary at exit.
type Result struct {
	Proposal model.ActionProposal `json:"proposal"`
	Thoughts []ThoughtStep        `json:"thoughts"`
	Memory   Summary              `json:"memory"`
	Mode     string               `json:"mode"`
}

// Agent runs the bounded reason-act-observe loop over the closed tool
// set. Each call gets a fresh memory ring.
type Agent struct {
	engine   *policy.Engine
	planner  *Planner
	maxSteps int
	wall     time.Duration
}

// NewAgent builds an agentic planner over a policy engine and the
// deterministic planner it falls back on.
func NewAgent(engine *policy.Engine, planner *Planner, maxSteps int, wall time.Duration) *Agent {
	if maxSteps <= 0 {
		maxSteps = 6
	}
	if wall <= 0 {
		wall = 5 * time.Second
	}
	return &Agent{engine: engine, planner: planner, maxSteps: maxSteps, wall: wall}
}

// Propose runs the agentic loop: assess the environment, generate a
// candidate, pre-check it against policy, and either submit it or
// replan with the denial fed back. Terminates on submit_action or
// graceful_stop, at maxSteps, at the wall-clock cap, or when the
// consecutive-denial streak forces a stop.
func (a *Agent) Propose(ctx context.Context, tel model.Telemetry, world *model.World, goal model.Point, last *model.GovernanceDecision) Result {
	var (
		memory   = NewMemory()
		thoughts []ThoughtStep
		start    = time.Now()
	)

	record := func(thought, action, observation string) {
		thoughts = append(thoughts, ThoughtStep{
			Step:        len(thoughts) + 1,
			Thought:     thought,
			Action:      action,
			Observation: observation,
		})
	}
	expired := func() bool {
		return time.Since(start) > a.wall || ctx.Err() != nil
	}
	stop := func(reason string) Result {
		record(reason, toolGracefulStop, "submitting stop")
		return Result{
			Proposal: model.ActionProposal{Intent: model.IntentStop, Rationale: reason},
			Thoughts: thoughts,
			Memory:   memory.Summarize(),
			Mode:     "deterministic",
		}
	}

	record(
		"I need to understand the environment before proposing.",
		toolAssessEnvironment,
		assessEnvironment(tel, world),
	)

	verdict := last
	for len(thoughts) < a.maxSteps {
		if expired() {
			return stop("wall clock budget exhausted")
		}

		candidate := a.planner.Propose(tel, world, goal, verdict)
		pre := a.engine.Evaluate(tel, world, candidate)

		record(
			fmt.Sprintf("Candidate: %s. Pre-checking against policy.", describeProposal(candidate)),
			toolCheckPolicy,
			describeVerdict(pre),
		)

		if pre.Approved() {
			memory.Record(candidate, pre, false)
			record(
				"Pre-check passed; submitting.",
				toolSubmitAction,
				fmt.Sprintf("submitted %s", describeProposal(candidate)),
			)
			return Result{
				Proposal: candidate,
				Thoughts: thoughts,
				Memory:   memory.Summarize(),
				Mode:     "deterministic",
			}
		}

		memory.Record(candidate, pre, false)
		if memory.DenialCount() >= forcedStopDenials {
			return stop(fmt.Sprintf("%d consecutive denials", memory.DenialCount()))
		}
		record(
			fmt.Sprintf("Pre-check returned %s; adjusting strategy.", pre.Decision),
			toolReplan,
			"feeding denial back into the next candidate",
		)
		verdict = &pre
	}

	return stop("reasoning step budget exhausted")
}

func describeProposal(p model.ActionProposal) string {
	if p.Params == nil {
		return string(p.Intent)
	}
	return fmt.Sprintf("%s (%.2f, %.2f) at %.2f m/s", p.Intent, p.Params.X, p.Params.Y, p.Params.MaxSpeed)
}

func describeVerdict(d model.GovernanceDecision) string {
	hits := "none"
	if len(d.PolicyHits) > 0 {
		hits = strings.Join(d.PolicyHits, ", ")
	}
	return fmt.Sprintf("decision %s, state %s, risk %.2f, hits: %s", d.Decision, d.PolicyState, d.RiskScore, hits)
}

// assessEnvironment summarizes the hazards visible in one snapshot.
// Pure; no I/O.
func assessEnvironment(tel model.Telemetry, world *model.World) string {
	parts := []string{
		fmt.Sprintf("position (%.2f, %.2f) in %s at %.2f m/s", tel.X, tel.Y, tel.Zone, tel.Speed),
		fmt.Sprintf("nearest obstacle %.2f m", tel.NearestObstacleM),
	}
	if tel.HumanDetected {
		parts = append(parts, fmt.Sprintf("human detected %.2f m away (conf %.2f)", tel.HumanDistanceM, tel.HumanConf))
	} else {
		parts = append(parts, "no human detected")
	}
	parts = append(parts, fmt.Sprintf("battery %.0f%%", tel.Battery*100))
	if world != nil {
		parts = append(parts, fmt.Sprintf("%d mapped obstacles, geofence x[%g, %g] y[%g, %g]",
			len(world.Obstacles),
			world.Geofence.MinX, world.Geofence.MaxX,
			world.Geofence.MinY, world.Geofence.MaxY))
	}
	return strings.Join(parts, "; ")
}
