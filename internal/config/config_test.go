package config

import (
	"strings"
	"testing"
	"time"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := fromLookup(lookupMap(nil))
	if err != nil {
		t.Fatalf("fromLookup() failed: %v", err)
	}
	if cfg != Default() {
		t.Errorf("empty environment must yield Default(); got %+v", cfg)
	}
	if cfg.TickPeriod != 100*time.Millisecond {
		t.Errorf("TickPeriod = %v, want 100ms", cfg.TickPeriod)
	}
	if cfg.RiskApproveMax != 0.70 || cfg.RiskDenyMin != 0.95 {
		t.Errorf("risk thresholds = %g/%g, want 0.70/0.95", cfg.RiskApproveMax, cfg.RiskDenyMin)
	}
	if cfg.SubscriberBuffer != 64 || cfg.SlowSubEvict != 8 {
		t.Errorf("hub tuning = %d/%d, want 64/8", cfg.SubscriberBuffer, cfg.SlowSubEvict)
	}
	if cfg.StagnationCycles != 30 {
		t.Errorf("StagnationCycles = %d, want 30", cfg.StagnationCycles)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := fromLookup(lookupMap(map[string]string{
		"TICK_PERIOD_MS":    "250",
		"STOP_RADIUS_M":     "0.5",
		"SLOW_RADIUS_M":     "2.0",
		"RISK_WEIGHTS_HIGH": "0.6",
		"SIM_BASE_URL":      "http://sim:9000",
		"PLANNER_ENABLED":   "true",
		"AGENT_MAX_STEPS":   "4",
	}))
	if err != nil {
		t.Fatalf("fromLookup() failed: %v", err)
	}
	if cfg.TickPeriod != 250*time.Millisecond {
		t.Errorf("TickPeriod = %v, want 250ms", cfg.TickPeriod)
	}
	if cfg.StopRadiusM != 0.5 || cfg.SlowRadiusM != 2.0 {
		t.Errorf("radii = %g/%g, want 0.5/2.0", cfg.StopRadiusM, cfg.SlowRadiusM)
	}
	if cfg.RiskWeightHigh != 0.6 {
		t.Errorf("RiskWeightHigh = %g, want 0.6", cfg.RiskWeightHigh)
	}
	if cfg.SimBaseURL != "http://sim:9000" {
		t.Errorf("SimBaseURL = %q", cfg.SimBaseURL)
	}
	if !cfg.PlannerEnabled || cfg.AgentMaxSteps != 4 {
		t.Errorf("planner = %v/%d, want true/4", cfg.PlannerEnabled, cfg.AgentMaxSteps)
	}
}

func TestFromEnv_Malformed(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"TICK_PERIOD_MS", "fast"},
		{"TICK_PERIOD_MS", "0"},
		{"TICK_PERIOD_MS", "-5"},
		{"STOP_RADIUS_M", "-1"},
		{"RISK_WEIGHTS_HIGH", "1.5"},
		{"RISK_DENY_MIN", "nope"},
		{"SUBSCRIBER_BUFFER", "0"},
		{"PLANNER_ENABLED", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			_, err := fromLookup(lookupMap(map[string]string{tt.key: tt.val}))
			if err == nil {
				t.Fatalf("fromLookup() succeeded with %s=%q, want error", tt.key, tt.val)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q does not name the offending key %s", err, tt.key)
			}
		})
	}
}

func TestFromEnv_CrossFieldChecks(t *testing.T) {
	_, err := fromLookup(lookupMap(map[string]string{
		"STOP_RADIUS_M": "4.0",
		"SLOW_RADIUS_M": "3.0",
	}))
	if err == nil {
		t.Fatal("stop radius above slow radius must be rejected")
	}

	_, err = fromLookup(lookupMap(map[string]string{
		"RISK_APPROVE_MAX": "0.98",
		"RISK_DENY_MIN":    "0.95",
	}))
	if err == nil {
		t.Fatal("approve threshold above deny threshold must be rejected")
	}
}

func TestFromEnv_EmptyValueKeepsDefault(t *testing.T) {
	cfg, err := fromLookup(lookupMap(map[string]string{"SIM_TOKEN": ""}))
	if err != nil {
		t.Fatalf("fromLookup() failed: %v", err)
	}
	if cfg.SimToken != "" {
		t.Errorf("SimToken = %q, want empty", cfg.SimToken)
	}
}
