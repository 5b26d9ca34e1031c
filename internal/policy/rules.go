package policy

import (
	"fmt"

	"github.com/wardenlabs/warden/internal/model"
)

// ruleFn is one rule's condition check. Rule conditions live here; the
// catalog carries their metadata.
type ruleFn func(e *Engine, tel model.Telemetry, world *model.World, p model.ActionProposal) (hit, bool)

// defaultRules is the shipped rule set, one entry per catalog policy.
var defaultRules = []ruleFn{
	(*Engine).geofence,
	(*Engine).humanStop,
	(*Engine).humanSlow,
	(*Engine).speedLimit,
	(*Engine).collision,
	(*Engine).pathBlocked,
	(*Engine).battery,
}

// runRules evaluates every rule and returns the hits.
func (e *Engine) runRules(tel model.Telemetry, world *model.World, p model.ActionProposal) []hit {
	var hits []hit
	for _, rule := range e.rules {
		if h, ok := rule(e, tel, world, p); ok {
			hits = append(hits, h)
		}
	}
	return hits
}

// moving reports whether the proposal commands motion.
func moving(p model.ActionProposal) bool {
	return p.Intent == model.IntentMoveTo
}

func (e *Engine) geofence(tel model.Telemetry, world *model.World, p model.ActionProposal) (hit, bool) {
	if !moving(p) || p.Params == nil {
		return hit{}, false
	}
	fence := e.params.DefaultGeofence
	if world != nil {
		fence = world.Geofence
	}
	if fence.Contains(p.Params.X, p.Params.Y) {
		return hit{}, false
	}
	return hit{
		id:       "GEOFENCE_01",
		severity: SeverityHigh,
		effect:   effectDeny,
		state:    model.StateStop,
		floor:    1.0,
		reason:   fmt.Sprintf("target (%.2f, %.2f) outside geofence", p.Params.X, p.Params.Y),
		action:   "halt",
	}, true
}

func (e *Engine) humanStop(tel model.Telemetry, _ *model.World, p model.ActionProposal) (hit, bool) {
	if !tel.HumanDetected || tel.HumanDistanceM > e.params.StopRadiusM {
		return hit{}, false
	}
	h := hit{
		id:       "HUMAN_PROX_01",
		severity: SeverityHigh,
		effect:   effectDeny,
		state:    model.StateStop,
		floor:    0.9,
		reason:   fmt.Sprintf("human at %.2f m inside stop radius %.2f m", tel.HumanDistanceM, e.params.StopRadiusM),
		action:   "halt",
	}
	// Halting is the remediation; a STOP or WAIT proposal is allowed
	// through so the robot can actually hold.
	if p.Intent == model.IntentStop || p.Intent == model.IntentWait {
		h.effect = effectAllow
	}
	return h, true
}

func (e *Engine) humanSlow(tel model.Telemetry, _ *model.World, p model.ActionProposal) (hit, bool) {
	if !tel.HumanDetected ||
		tel.HumanDistanceM <= e.params.StopRadiusM ||
		tel.HumanDistanceM > e.params.SlowRadiusM {
		return hit{}, false
	}
	h := hit{
		id:       "HUMAN_PROX_02",
		severity: SeverityMedium,
		state:    model.StateSlow,
		reason:   fmt.Sprintf("human at %.2f m inside slow radius %.2f m", tel.HumanDistanceM, e.params.SlowRadiusM),
	}
	if moving(p) && p.MaxSpeed() > e.params.SlowSpeed {
		h.effect = effectNeedsReview
		h.action = fmt.Sprintf("reduce speed to %g", e.params.SlowSpeed)
	} else {
		// Speed cap already satisfied; record the hit, allow the move.
		h.effect = effectAllow
	}
	return h, true
}

func (e *Engine) speedLimit(tel model.Telemetry, _ *model.World, p model.ActionProposal) (hit, bool) {
	if p.Intent != model.IntentMoveTo && p.Intent != model.IntentModifySpeed {
		return hit{}, false
	}
	limit := e.params.zoneLimit(tel.Zone)
	if p.MaxSpeed() <= limit {
		return hit{}, false
	}
	return hit{
		id:       "SPEED_LIMIT_01",
		severity: SeverityMedium,
		effect:   effectNeedsReview,
		state:    model.StateSlow,
		reason:   fmt.Sprintf("max_speed %.4g exceeds %s limit %g", p.MaxSpeed(), tel.Zone, limit),
		action:   fmt.Sprintf("reduce speed to %g", limit),
	}, true
}

func (e *Engine) collision(tel model.Telemetry, _ *model.World, p model.ActionProposal) (hit, bool) {
	if !moving(p) || tel.NearestObstacleM >= e.params.CollisionRadius {
		return hit{}, false
	}
	return hit{
		id:       "COLLISION_01",
		severity: SeverityHigh,
		effect:   effectDeny,
		state:    model.StateReplan,
		floor:    0.85,
		reason:   fmt.Sprintf("obstacle at %.2f m inside collision radius %.2f m", tel.NearestObstacleM, e.params.CollisionRadius),
		action:   "replan around obstacle",
	}, true
}

func (e *Engine) pathBlocked(tel model.Telemetry, world *model.World, p model.ActionProposal) (hit, bool) {
	if !moving(p) || p.Params == nil || world == nil {
		return hit{}, false
	}
	from := model.Point{X: tel.X, Y: tel.Y}
	to := model.Point{X: p.Params.X, Y: p.Params.Y}
	for _, ob := range world.Obstacles {
		if model.SegmentHitsCircle(from, to, model.Point{X: ob.X, Y: ob.Y}, ob.R) {
			return hit{
				id:       "PATH_BLOCKED_01",
				severity: SeverityMedium,
				effect:   effectDeny,
				state:    model.StateReplan,
				reason:   fmt.Sprintf("obstacle at (%.2f, %.2f) r=%.2f blocks straight segment to target", ob.X, ob.Y, ob.R),
				action:   fmt.Sprintf("replan around obstacle at (%.2f, %.2f)", ob.X, ob.Y),
			}, true
		}
	}
	return hit{}, false
}

func (e *Engine) battery(tel model.Telemetry, _ *model.World, _ model.ActionProposal) (hit, bool) {
	if tel.Battery >= e.params.BatteryReserve {
		return hit{}, false
	}
	return hit{
		id:       "BATTERY_01",
		severity: SeverityLow,
		effect:   effectNeedsReview,
		state:    model.StateSafe,
		reason:   fmt.Sprintf("battery %.0f%% below %.0f%% reserve", tel.Battery*100, e.params.BatteryReserve*100),
		action:   "return to charger",
	}, true
}
