package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenlabs/warden/internal/config"
	"github.com/wardenlabs/warden/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cat, err := LoadCatalog()
	require.NoError(t, err)
	return NewEngine(ParamsFromConfig(config.Default()), cat)
}

// clearTelemetry is a telemetry snapshot that trips no rules.
func clearTelemetry() model.Telemetry {
	return model.Telemetry{
		X: 2, Y: 2, Speed: 0.4,
		Zone:             model.ZoneAisle,
		NearestObstacleM: 10,
		HumanDistanceM:   100,
		Battery:          0.9,
	}
}

func moveTo(x, y, maxSpeed float64) model.ActionProposal {
	return model.ActionProposal{
		Intent: model.IntentMoveTo,
		Params: &model.ActionParams{X: x, Y: y, MaxSpeed: maxSpeed},
	}
}

func TestEvaluate_CleanProposalApproved(t *testing.T) {
	e := newTestEngine(t)

	d := e.Evaluate(clearTelemetry(), nil, moveTo(10, 5, 0.4))

	assert.Equal(t, model.DecisionApproved, d.Decision)
	assert.Equal(t, model.StateSafe, d.PolicyState)
	assert.Empty(t, d.PolicyHits)
	assert.Nil(t, d.RequiredAction)
	assert.Zero(t, d.RiskScore)
}

func TestEvaluate_HumanAtExactStopRadius(t *testing.T) {
	e := newTestEngine(t)
	tel := clearTelemetry()
	tel.HumanDetected = true
	tel.HumanConf = 0.9
	tel.HumanDistanceM = 1.00 // boundary: exactly the stop radius

	d := e.Evaluate(tel, nil, moveTo(10, 5, 0.3))

	assert.Equal(t, model.DecisionDenied, d.Decision)
	assert.Equal(t, model.StateStop, d.PolicyState)
	assert.Equal(t, []string{"HUMAN_PROX_01"}, d.PolicyHits)
	assert.GreaterOrEqual(t, d.RiskScore, 0.9)
	require.NotNil(t, d.RequiredAction)
	assert.Equal(t, "halt", *d.RequiredAction)
}

func TestEvaluate_HumanJustOutsideStopRadius(t *testing.T) {
	e := newTestEngine(t)
	tel := clearTelemetry()
	tel.HumanDetected = true
	tel.HumanDistanceM = 1.01

	t.Run("compliant speed approved", func(t *testing.T) {
		d := e.Evaluate(tel, nil, moveTo(10, 5, 0.3))
		assert.Equal(t, model.DecisionApproved, d.Decision)
		assert.Equal(t, model.StateSlow, d.PolicyState)
		assert.Equal(t, []string{"HUMAN_PROX_02"}, d.PolicyHits)
	})

	t.Run("excess speed needs review", func(t *testing.T) {
		d := e.Evaluate(tel, nil, moveTo(10, 5, 0.8))
		assert.Equal(t, model.DecisionNeedsReview, d.Decision)
		assert.Equal(t, model.StateSlow, d.PolicyState)
		assert.Contains(t, d.PolicyHits, "HUMAN_PROX_02")
		require.NotNil(t, d.RequiredAction)
		assert.Equal(t, "reduce speed to 0.3", *d.RequiredAction)
	})
}

func TestEvaluate_HumanApproachingScenario(t *testing.T) {
	e := newTestEngine(t)
	tel := clearTelemetry()
	tel.HumanDetected = true
	tel.HumanDistanceM = 2.4

	d := e.Evaluate(tel, nil, moveTo(10, 5, 0.8))

	assert.Equal(t, model.DecisionNeedsReview, d.Decision)
	assert.Equal(t, model.StateSlow, d.PolicyState)
	require.NotNil(t, d.RequiredAction)
	assert.Equal(t, "reduce speed to 0.3", *d.RequiredAction)

	// Resubmission at the slow speed passes.
	d = e.Evaluate(tel, nil, moveTo(10, 5, 0.3))
	assert.Equal(t, model.DecisionApproved, d.Decision)
	assert.Equal(t, model.StateSlow, d.PolicyState)
}

func TestEvaluate_TargetOutsideGeofence(t *testing.T) {
	e := newTestEngine(t)
	world := &model.World{
		Geofence: model.Rect{MinX: 0, MaxX: 30, MinY: 0, MaxY: 20},
	}

	d := e.Evaluate(clearTelemetry(), world, moveTo(-0.001, 5, 0.4))

	assert.Equal(t, model.DecisionDenied, d.Decision)
	assert.Equal(t, model.StateStop, d.PolicyState)
	assert.Equal(t, []string{"GEOFENCE_01"}, d.PolicyHits)
	assert.Equal(t, 1.0, d.RiskScore)
}

func TestEvaluate_SpeedJustOverZoneLimit(t *testing.T) {
	e := newTestEngine(t)
	tel := clearTelemetry()
	tel.Zone = model.ZoneAisle

	d := e.Evaluate(tel, nil, moveTo(10, 5, 0.5001))

	assert.Equal(t, model.DecisionNeedsReview, d.Decision)
	assert.Equal(t, []string{"SPEED_LIMIT_01"}, d.PolicyHits)
	assert.Equal(t, model.StateSlow, d.PolicyState)
}

func TestEvaluate_LoadingBayLimitTighter(t *testing.T) {
	e := newTestEngine(t)
	tel := clearTelemetry()
	tel.Zone = model.ZoneLoadingBay

	d := e.Evaluate(tel, nil, moveTo(10, 5, 0.45))
	assert.Contains(t, d.PolicyHits, "SPEED_LIMIT_01")

	d = e.Evaluate(tel, nil, moveTo(10, 5, 0.4))
	assert.NotContains(t, d.PolicyHits, "SPEED_LIMIT_01")
}

func TestEvaluate_CollisionRadius(t *testing.T) {
	e := newTestEngine(t)
	tel := clearTelemetry()
	tel.NearestObstacleM = 0.4

	d := e.Evaluate(tel, nil, moveTo(10, 5, 0.3))

	assert.Equal(t, model.DecisionDenied, d.Decision)
	assert.Equal(t, model.StateReplan, d.PolicyState)
	assert.Contains(t, d.PolicyHits, "COLLISION_01")
	assert.GreaterOrEqual(t, d.RiskScore, 0.85)
}

func TestEvaluate_PathBlockedScenario(t *testing.T) {
	e := newTestEngine(t)
	tel := clearTelemetry()
	tel.X, tel.Y = 0, 5
	world := &model.World{
		Geofence:  model.Rect{MinX: 0, MaxX: 30, MinY: 0, MaxY: 20},
		Obstacles: []model.Obstacle{{X: 5, Y: 5, R: 0.6}},
	}

	// Direct segment crosses the obstacle.
	d := e.Evaluate(tel, world, moveTo(10, 5, 0.3))
	assert.Equal(t, model.DecisionDenied, d.Decision)
	assert.Equal(t, model.StateReplan, d.PolicyState)
	assert.Equal(t, []string{"PATH_BLOCKED_01"}, d.PolicyHits)

	// Detour waypoint offset 0.8 m perpendicular clears it.
	d = e.Evaluate(tel, world, moveTo(5, 5.8, 0.3))
	assert.Equal(t, model.DecisionApproved, d.Decision)
}

func TestEvaluate_LowBatteryAdvisory(t *testing.T) {
	e := newTestEngine(t)
	tel := clearTelemetry()
	tel.Battery = 0.15

	d := e.Evaluate(tel, nil, moveTo(10, 5, 0.3))

	assert.Equal(t, model.DecisionNeedsReview, d.Decision)
	assert.Equal(t, []string{"BATTERY_01"}, d.PolicyHits)
	assert.Equal(t, model.StateSafe, d.PolicyState)
	assert.InDelta(t, 0.1, d.RiskScore, 1e-9)
}

func TestEvaluate_StopAndWaitAlwaysPassMotionRules(t *testing.T) {
	e := newTestEngine(t)
	tel := clearTelemetry()
	tel.NearestObstacleM = 0.1 // would deny a MOVE_TO

	for _, intent := range []model.Intent{model.IntentStop, model.IntentWait} {
		d := e.Evaluate(tel, nil, model.ActionProposal{Intent: intent})
		assert.Equal(t, model.DecisionApproved, d.Decision, "intent %s", intent)
	}
}

func TestEvaluate_WaitNearHumanApprovedWithStopState(t *testing.T) {
	e := newTestEngine(t)
	tel := clearTelemetry()
	tel.HumanDetected = true
	tel.HumanDistanceM = 0.8

	// Holding position is the remediation HUMAN_PROX_01 asks for, so a
	// WAIT is approved even though the hit and its risk are recorded.
	d := e.Evaluate(tel, nil, model.ActionProposal{Intent: model.IntentWait})

	assert.Equal(t, model.DecisionApproved, d.Decision)
	assert.Equal(t, []string{"HUMAN_PROX_01"}, d.PolicyHits)
	assert.Equal(t, model.StateStop, d.PolicyState)
	assert.GreaterOrEqual(t, d.RiskScore, 0.9)
}

func TestEvaluate_RequiredActionTieBreaksByPolicyID(t *testing.T) {
	e := newTestEngine(t)
	tel := clearTelemetry()
	tel.HumanDetected = true
	tel.HumanDistanceM = 2.4 // HUMAN_PROX_02

	// Both MEDIUM rules fire; HUMAN_PROX_02 sorts before SPEED_LIMIT_01.
	d := e.Evaluate(tel, nil, moveTo(10, 5, 0.8))
	assert.Equal(t, []string{"HUMAN_PROX_02", "SPEED_LIMIT_01"}, d.PolicyHits)
	require.NotNil(t, d.RequiredAction)
	assert.Equal(t, "reduce speed to 0.3", *d.RequiredAction)
}

func TestEvaluate_HighSeverityActionWins(t *testing.T) {
	e := newTestEngine(t)
	tel := clearTelemetry()
	tel.HumanDetected = true
	tel.HumanDistanceM = 0.5  // HUMAN_PROX_01 (HIGH)
	tel.Zone = model.ZoneAisle

	d := e.Evaluate(tel, nil, moveTo(10, 5, 0.8)) // SPEED_LIMIT_01 too

	require.NotNil(t, d.RequiredAction)
	assert.Equal(t, "halt", *d.RequiredAction)
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := newTestEngine(t)
	tel := clearTelemetry()
	tel.HumanDetected = true
	tel.HumanDistanceM = 2.0
	world := &model.World{
		Geofence:  model.Rect{MinX: 0, MaxX: 30, MinY: 0, MaxY: 20},
		Obstacles: []model.Obstacle{{X: 5, Y: 5, R: 0.6}},
	}
	p := moveTo(10, 5, 0.7)

	first := e.Evaluate(tel, world, p)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, e.Evaluate(tel, world, p))
	}
}

func TestEvaluate_DoesNotMutateInputs(t *testing.T) {
	e := newTestEngine(t)
	tel := clearTelemetry()
	p := moveTo(10, 5, 0.4)
	paramsBefore := *p.Params

	_ = e.Evaluate(tel, nil, p)

	assert.Equal(t, clearTelemetry(), tel)
	assert.Equal(t, paramsBefore, *p.Params)
}

func TestEvaluate_FailsClosedOnPanic(t *testing.T) {
	e := newTestEngine(t)
	e.rules = append(e.rules, func(_ *Engine, _ model.Telemetry, _ *model.World, _ model.ActionProposal) (hit, bool) {
		panic("rule blew up")
	})

	d := e.Evaluate(clearTelemetry(), nil, moveTo(10, 5, 0.4))

	assert.Equal(t, model.DecisionDenied, d.Decision)
	assert.Equal(t, model.StateStop, d.PolicyState)
	assert.Equal(t, 1.0, d.RiskScore)
	assert.Equal(t, []string{"engine_error"}, d.Reasons)
}
