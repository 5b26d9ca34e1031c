package model

// Intent enumerates the closed set of planner intents.
type Intent string

const (
	IntentMoveTo      Intent = "MOVE_TO"
	IntentStop        Intent = "STOP"
	IntentWait        Intent = "WAIT"
	IntentModifySpeed Intent = "MODIFY_SPEED"
)

// ActionParams carries the intent-dependent parameters of a proposal.
// MOVE_TO uses all three fields; MODIFY_SPEED uses MaxSpeed only.
// STOP and WAIT carry no params (nil pointer on the proposal).
type ActionParams struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	MaxSpeed float64 `json:"max_speed"`
}

// ActionProposal is a planner-produced candidate action, pre-governance.
type ActionProposal struct {
	Intent    Intent        `json:"intent"`
	Params    *ActionParams `json:"params"`
	Rationale string        `json:"rationale"`
}

// MaxSpeed returns the proposed speed cap, or 0 for intents without one.
func (p ActionProposal) MaxSpeed() float64 {
	if p.Params == nil {
		return 0
	}
	return p.Params.MaxSpeed
}

// Decision enumerates governance outcomes.
type Decision string

const (
	DecisionApproved    Decision = "APPROVED"
	DecisionDenied      Decision = "DENIED"
	DecisionNeedsReview Decision = "NEEDS_REVIEW"
)

// PolicyState is the coarse severity label accompanying a decision.
// Severity order: STOP > REPLAN > SLOW > SAFE.
type PolicyState string

const (
	StateSafe   PolicyState = "SAFE"
	StateSlow   PolicyState = "SLOW"
	StateStop   PolicyState = "STOP"
	StateReplan PolicyState = "REPLAN"
)

// stateRank orders policy states by severity for aggregation.
var stateRank = map[PolicyState]int{
	StateSafe:   0,
	StateSlow:   1,
	StateReplan: 2,
	StateStop:   3,
}

// MoreSevere reports whether a outranks b.
func MoreSevere(a, b PolicyState) bool {
	return stateRank[a] > stateRank[b]
}

// GovernanceDecision is the policy engine's verdict for one proposal.
type GovernanceDecision struct {
	Decision       Decision    `json:"decision"`
	PolicyState    PolicyState `json:"policy_state"`
	PolicyHits     []string    `json:"policy_hits"`
	Reasons        []string    `json:"reasons"`
	RequiredAction *string     `json:"required_action"`
	RiskScore      float64     `json:"risk_score"`
}

// Approved reports whether the proposal may be executed.
func (d GovernanceDecision) Approved() bool {
	return d.Decision == DecisionApproved
}
