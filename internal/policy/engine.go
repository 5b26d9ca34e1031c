package policy

import (
	"math"
	"sort"

	"github.com/wardenlabs/warden/internal/config"
	"github.com/wardenlabs/warden/internal/model"
)

// Params are the thresholds and weights the engine evaluates with.
// They are captured at construction and never mutated; reloading
// thresholds means building a new Engine.
type Params struct {
	StopRadiusM     float64
	SlowRadiusM     float64
	SlowSpeed       float64
	CollisionRadius float64
	BatteryReserve  float64

	WeightHigh   float64
	WeightMedium float64
	WeightLow    float64
	ApproveMax   float64
	DenyMin      float64

	// DefaultGeofence applies when no world map is available.
	DefaultGeofence model.Rect

	// ZoneSpeedLimits maps zones to their speed caps; zones not listed
	// fall back to DefaultZoneLimit.
	ZoneSpeedLimits  map[model.Zone]float64
	DefaultZoneLimit float64
}

// ParamsFromConfig derives engine parameters from the runtime config.
func ParamsFromConfig(cfg config.Config) Params {
	return Params{
		StopRadiusM:     cfg.StopRadiusM,
		SlowRadiusM:     cfg.SlowRadiusM,
		SlowSpeed:       cfg.SlowSpeed,
		CollisionRadius: cfg.CollisionRadius,
		BatteryReserve:  0.2,
		WeightHigh:      cfg.RiskWeightHigh,
		WeightMedium:    cfg.RiskWeightMedium,
		WeightLow:       cfg.RiskWeightLow,
		ApproveMax:      cfg.RiskApproveMax,
		DenyMin:         cfg.RiskDenyMin,
		DefaultGeofence: model.Rect{MinX: 0, MaxX: 30, MinY: 0, MaxY: 20},
		ZoneSpeedLimits: map[model.Zone]float64{
			model.ZoneAisle:      0.5,
			model.ZoneLoadingBay: 0.4,
		},
		DefaultZoneLimit: 0.5,
	}
}

func (p Params) weight(s Severity) float64 {
	switch s {
	case SeverityHigh:
		return p.WeightHigh
	case SeverityMedium:
		return p.WeightMedium
	default:
		return p.WeightLow
	}
}

func (p Params) zoneLimit(z model.Zone) float64 {
	if limit, ok := p.ZoneSpeedLimits[z]; ok {
		return limit
	}
	return p.DefaultZoneLimit
}

// Engine evaluates proposals against the rule catalog.
type Engine struct {
	params  Params
	catalog Catalog
	rules   []ruleFn
}

// NewEngine builds an engine over the given parameters and catalog.
func NewEngine(params Params, catalog Catalog) *Engine {
	e := &Engine{params: params, catalog: catalog}
	e.rules = defaultRules
	return e
}

// effect is what a single rule hit asks of the aggregate decision.
type effect int

const (
	// effectAllow records the hit without blocking the proposal (the
	// constraint it checks is satisfied, or it is advisory weight only).
	effectAllow effect = iota
	effectNeedsReview
	effectDeny
)

// hit is one fired rule with its contribution to the aggregate.
type hit struct {
	id       string
	severity Severity
	effect   effect
	state    model.PolicyState
	floor    float64
	reason   string
	action   string
}

// severityRank orders severities for required_action selection.
var severityRank = map[Severity]int{
	SeverityLow:    0,
	SeverityMedium: 1,
	SeverityHigh:   2,
}

// Evaluate runs every rule and aggregates the hits into a decision.
// It is pure and re-entrant; world may be nil, in which case the
// default geofence applies and segment checks are skipped.
//
// Any panic inside a rule fails closed: DENIED, state STOP, risk 1.0.
func (e *Engine) Evaluate(tel model.Telemetry, world *model.World, proposal model.ActionProposal) (decision model.GovernanceDecision) {
	defer func() {
		if r := recover(); r != nil {
			decision = model.GovernanceDecision{
				Decision:    model.DecisionDenied,
				PolicyState: model.StateStop,
				PolicyHits:  []string{},
				Reasons:     []string{"engine_error"},
				RiskScore:   1.0,
			}
		}
	}()

	hits := e.runRules(tel, world, proposal)
	return e.aggregate(hits)
}

func (e *Engine) aggregate(hits []hit) model.GovernanceDecision {
	// Deterministic output ordering regardless of rule evaluation order.
	sort.Slice(hits, func(i, j int) bool { return hits[i].id < hits[j].id })

	var (
		sum        float64
		floor      float64
		state      = model.StateSafe
		anyDeny    bool
		anyReview  bool
		anyMedium  bool
		policyHits = []string{}
		reasons    = []string{}
	)
	for _, h := range hits {
		sum += e.params.weight(h.severity)
		floor = math.Max(floor, h.floor)
		if model.MoreSevere(h.state, state) {
			state = h.state
		}
		switch h.effect {
		case effectDeny:
			anyDeny = true
		case effectNeedsReview:
			anyReview = true
		}
		if h.severity == SeverityMedium {
			anyMedium = true
		}
		policyHits = append(policyHits, h.id)
		reasons = append(reasons, h.reason)
	}

	risk := math.Min(math.Max(sum, floor), 1.0)

	var outcome model.Decision
	switch {
	case anyDeny || risk >= e.params.DenyMin:
		outcome = model.DecisionDenied
	case anyReview || (risk >= e.params.ApproveMax && anyMedium):
		outcome = model.DecisionNeedsReview
	default:
		outcome = model.DecisionApproved
	}

	return model.GovernanceDecision{
		Decision:       outcome,
		PolicyState:    state,
		PolicyHits:     policyHits,
		Reasons:        reasons,
		RequiredAction: requiredAction(hits),
		RiskScore:      risk,
	}
}

// requiredAction picks the remediation of the highest-severity hit that
// carries one; ties break by policy_id ascending (hits arrive sorted).
func requiredAction(hits []hit) *string {
	var best *hit
	for i := range hits {
		h := &hits[i]
		if h.action == "" {
			continue
		}
		if best == nil || severityRank[h.severity] > severityRank[best.severity] {
			best = h
		}
	}
	if best == nil {
		return nil
	}
	action := best.action
	return &action
}
