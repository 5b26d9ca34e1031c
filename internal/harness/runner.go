package harness

import (
	"fmt"
	"sort"

	"github.com/wardenlabs/warden/internal/model"
	"github.com/wardenlabs/warden/internal/policy"
)

// StepResult is one evaluated step with the engine's verdict.
type StepResult struct {
	Index    int
	Name     string
	Decision model.GovernanceDecision
}

// Result is the outcome of running a scenario: every step's decision
// plus any expectation mismatches.
type Result struct {
	Scenario string
	Steps    []StepResult
	Failures []string
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool {
	return len(r.Failures) == 0
}

// Run evaluates every step of the scenario against the engine and
// checks the step expectations. Mismatches are collected, not fatal,
// so one run reports every divergence.
func Run(engine *policy.Engine, sc *Scenario) *Result {
	world := sc.World.toModel()
	res := &Result{Scenario: sc.Name}

	for i, step := range sc.Steps {
		dec := engine.Evaluate(step.Telemetry.toModel(), world, step.Proposal.toModel())
		res.Steps = append(res.Steps, StepResult{Index: i, Name: step.Name, Decision: dec})
		if step.Expect != nil {
			res.Failures = append(res.Failures, checkExpect(i, step, dec)...)
		}
	}
	return res
}

func checkExpect(index int, step Step, dec model.GovernanceDecision) []string {
	var failures []string
	fail := func(format string, args ...any) {
		label := step.Name
		if label == "" {
			label = fmt.Sprintf("#%d", index)
		}
		failures = append(failures, fmt.Sprintf("step %s: %s", label, fmt.Sprintf(format, args...)))
	}

	exp := step.Expect
	if dec.Decision != model.Decision(exp.Decision) {
		fail("decision %s, want %s", dec.Decision, exp.Decision)
	}
	if exp.State != "" && dec.PolicyState != model.PolicyState(exp.State) {
		fail("policy_state %s, want %s", dec.PolicyState, exp.State)
	}
	if exp.Hits != nil && !sameHits(dec.PolicyHits, exp.Hits) {
		fail("policy_hits %v, want %v", dec.PolicyHits, exp.Hits)
	}
	if exp.MinRisk != nil && dec.RiskScore < *exp.MinRisk {
		fail("risk_score %g below %g", dec.RiskScore, *exp.MinRisk)
	}
	if exp.MaxRisk != nil && dec.RiskScore > *exp.MaxRisk {
		fail("risk_score %g above %g", dec.RiskScore, *exp.MaxRisk)
	}
	return failures
}

// sameHits compares hit sets ignoring order.
func sameHits(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	g := append([]string(nil), got...)
	w := append([]string(nil), want...)
	sort.Strings(g)
	sort.Strings(w)
	for i := range g {
		if g[i] != w[i] {
			return false
		}
	}
	return true
}
