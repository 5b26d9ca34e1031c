package agent

import (
	"fmt"
	"math"

	"github.com/wardenlabs/warden/internal/config"
	"github.com/wardenlabs/warden/internal/model"
)

// Params tune the deterministic planner.
type Params struct {
	DefaultSpeed float64
	SlowSpeed    float64
	ArriveEps    float64

	// DetourOffset is the perpendicular displacement of a replan
	// waypoint from the blocking obstacle's center.
	DetourOffset float64
	MaxReplans   int

	ZoneSpeedLimits  map[model.Zone]float64
	DefaultZoneLimit float64
}

// ParamsFromConfig derives planner parameters from the runtime config.
func ParamsFromConfig(cfg config.Config) Params {
	return Params{
		DefaultSpeed: cfg.DefaultSpeed,
		SlowSpeed:    cfg.SlowSpeed,
		ArriveEps:    cfg.ArriveEps,
		DetourOffset: 0.8,
		MaxReplans:   3,
		ZoneSpeedLimits: map[model.Zone]float64{
			model.ZoneAisle:      0.5,
			model.ZoneLoadingBay: 0.4,
		},
		DefaultZoneLimit: 0.5,
	}
}

// Planner is the deterministic per-tick proposer.
type Planner struct {
	params Params
}

// NewPlanner builds a deterministic planner.
func NewPlanner(params Params) *Planner {
	return &Planner{params: params}
}

// clampSpeed bounds a proposed speed to the executable envelope.
func clampSpeed(v float64) float64 {
	return math.Max(0.1, math.Min(1.0, v))
}

// speedFor picks the proposal speed: the default, capped by the current
// zone's limit, then clamped to the executable envelope.
func (p *Planner) speedFor(zone model.Zone) float64 {
	limit, ok := p.params.ZoneSpeedLimits[zone]
	if !ok {
		limit = p.params.DefaultZoneLimit
	}
	return clampSpeed(math.Min(p.params.DefaultSpeed, limit))
}

// Propose maps one tick's inputs to one proposal.
//
//   - at the goal (within ArriveEps): STOP
//   - last verdict STOP: WAIT until the hazard clears
//   - last verdict REPLAN: detour waypoint around the blocking obstacle
//   - last verdict SLOW: resubmit at the mandated slow speed
//   - otherwise: MOVE_TO the goal at the zone-capped default speed
func (p *Planner) Propose(tel model.Telemetry, world *model.World, goal model.Point, last *model.GovernanceDecision) model.ActionProposal {
	pos := model.Point{X: tel.X, Y: tel.Y}
	if model.Dist(pos, goal) <= p.params.ArriveEps {
		return model.ActionProposal{
			Intent:    model.IntentStop,
			Rationale: "reached goal",
		}
	}

	if last != nil {
		switch last.PolicyState {
		case model.StateStop:
			return model.ActionProposal{
				Intent:    model.IntentWait,
				Rationale: "holding for stop-state hazard to clear",
			}
		case model.StateReplan:
			if wp, ok := p.detour(pos, goal, world); ok {
				return model.ActionProposal{
					Intent:    model.IntentMoveTo,
					Params:    &model.ActionParams{X: wp.X, Y: wp.Y, MaxSpeed: p.speedFor(tel.Zone)},
					Rationale: fmt.Sprintf("detour via (%.2f, %.2f) around blocked path", wp.X, wp.Y),
				}
			}
			return model.ActionProposal{
				Intent:    model.IntentWait,
				Rationale: "path blocked and no detour found",
			}
		case model.StateSlow:
			return model.ActionProposal{
				Intent:    model.IntentMoveTo,
				Params:    &model.ActionParams{X: goal.X, Y: goal.Y, MaxSpeed: clampSpeed(p.params.SlowSpeed)},
				Rationale: "resubmitting at mandated slow speed",
			}
		}
	}

	return model.ActionProposal{
		Intent:    model.IntentMoveTo,
		Params:    &model.ActionParams{X: goal.X, Y: goal.Y, MaxSpeed: p.speedFor(tel.Zone)},
		Rationale: "direct move to goal",
	}
}

// detour returns a waypoint displaced perpendicular to the start-goal
// bearing from the first obstacle blocking the straight segment, on the
// side with more clearance.
func (p *Planner) detour(start, goal model.Point, world *model.World) (model.Point, bool) {
	if world == nil {
		return model.Point{}, false
	}
	var blocking *model.Obstacle
	for i, ob := range world.Obstacles {
		if model.SegmentHitsCircle(start, goal, model.Point{X: ob.X, Y: ob.Y}, ob.R) {
			blocking = &world.Obstacles[i]
			break
		}
	}
	if blocking == nil {
		return model.Point{}, false
	}

	dx, dy := goal.X-start.X, goal.Y-start.Y
	norm := math.Hypot(dx, dy)
	if norm == 0 {
		norm = 1
	}
	// Unit perpendicular to the bearing.
	px, py := -dy/norm, dx/norm

	center := model.Point{X: blocking.X, Y: blocking.Y}
	c1 := model.Point{X: center.X + px*p.params.DetourOffset, Y: center.Y + py*p.params.DetourOffset}
	c2 := model.Point{X: center.X - px*p.params.DetourOffset, Y: center.Y - py*p.params.DetourOffset}

	score := func(c model.Point) float64 {
		return math.Min(
			model.DistPointSegment(center, start, c),
			model.DistPointSegment(center, c, goal),
		)
	}
	if score(c1) >= score(c2) {
		return c1, true
	}
	return c2, true
}
