package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/wardenlabs/warden/internal/canon"
	"github.com/wardenlabs/warden/internal/policy"
)

// Snapshot serializes a result's decision sequence as canonical JSON.
// Only the stable fields (decision, state, hits) are captured; risk
// scores and reason strings may legitimately drift with tuning and are
// checked through scenario expectations instead.
func Snapshot(res *Result) ([]byte, error) {
	steps := make([]any, len(res.Steps))
	for i, s := range res.Steps {
		m := map[string]any{
			"decision":     string(s.Decision.Decision),
			"policy_state": string(s.Decision.PolicyState),
			"policy_hits":  s.Decision.PolicyHits,
		}
		if s.Name != "" {
			m["name"] = s.Name
		}
		steps[i] = m
	}
	return canon.Marshal(map[string]any{
		"scenario": res.Scenario,
		"steps":    steps,
	})
}

// RunWithGolden runs a scenario, reports expectation failures, and
// compares the decision snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, engine *policy.Engine, sc *Scenario) *Result {
	t.Helper()

	res := Run(engine, sc)
	for _, f := range res.Failures {
		t.Error(f)
	}

	data, err := Snapshot(res)
	if err != nil {
		t.Fatalf("snapshot %s: %v", sc.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, sc.Name, data)
	return res
}
