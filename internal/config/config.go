package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full runtime configuration. Load it once at startup;
// it is never mutated afterwards.
type Config struct {
	// Control loop.
	TickPeriod time.Duration

	// Safety geometry and speeds, in meters and m/s.
	StopRadiusM     float64
	SlowRadiusM     float64
	SlowSpeed       float64
	DefaultSpeed    float64
	ArriveEps       float64
	CollisionRadius float64

	// Risk model.
	RiskWeightHigh   float64
	RiskWeightMedium float64
	RiskWeightLow    float64
	RiskApproveMax   float64
	RiskDenyMin      float64

	// Broadcast hub.
	SubscriberBuffer int
	SlowSubEvict     int

	// Simulator adapter.
	SimBaseURL string
	SimToken   string
	SimTimeout time.Duration

	// Agentic planner.
	PlannerEnabled bool
	PlannerTimeout time.Duration
	AgentMaxSteps  int
	AgentWall      time.Duration

	// Stagnation detector.
	StagnationCycles  int
	StagnationEps     float64
	StagnationMinDist float64

	// Storage.
	DBPath string

	// HTTP listener.
	ListenAddr string
}

// Default returns the configuration used when no environment variables
// are set.
func Default() Config {
	return Config{
		TickPeriod:        100 * time.Millisecond,
		StopRadiusM:       1.0,
		SlowRadiusM:       3.0,
		SlowSpeed:         0.3,
		DefaultSpeed:      0.8,
		ArriveEps:         0.3,
		CollisionRadius:   0.5,
		RiskWeightHigh:    0.5,
		RiskWeightMedium:  0.25,
		RiskWeightLow:     0.1,
		RiskApproveMax:    0.70,
		RiskDenyMin:       0.95,
		SubscriberBuffer:  64,
		SlowSubEvict:      8,
		SimBaseURL:        "http://127.0.0.1:9000",
		SimToken:          "",
		SimTimeout:        2 * time.Second,
		PlannerEnabled:    false,
		PlannerTimeout:    5 * time.Second,
		AgentMaxSteps:     6,
		AgentWall:         5 * time.Second,
		StagnationCycles:  30,
		StagnationEps:     0.02,
		StagnationMinDist: 0.4,
		DBPath:            "warden.db",
		ListenAddr:        ":8080",
	}
}

// FromEnv builds a Config from the process environment, starting from
// Default. The first malformed value aborts the load.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

// fromLookup is the testable core of FromEnv.
func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := &parser{lookup: lookup}

	p.durationMS("TICK_PERIOD_MS", &cfg.TickPeriod)

	p.nonNegFloat("STOP_RADIUS_M", &cfg.StopRadiusM)
	p.nonNegFloat("SLOW_RADIUS_M", &cfg.SlowRadiusM)
	p.nonNegFloat("SLOW_SPEED", &cfg.SlowSpeed)
	p.nonNegFloat("DEFAULT_SPEED", &cfg.DefaultSpeed)
	p.nonNegFloat("ARRIVE_EPS", &cfg.ArriveEps)
	p.nonNegFloat("COLLISION_RADIUS", &cfg.CollisionRadius)

	p.unitFloat("RISK_WEIGHTS_HIGH", &cfg.RiskWeightHigh)
	p.unitFloat("RISK_WEIGHTS_MEDIUM", &cfg.RiskWeightMedium)
	p.unitFloat("RISK_WEIGHTS_LOW", &cfg.RiskWeightLow)
	p.unitFloat("RISK_APPROVE_MAX", &cfg.RiskApproveMax)
	p.unitFloat("RISK_DENY_MIN", &cfg.RiskDenyMin)

	p.posInt("SUBSCRIBER_BUFFER", &cfg.SubscriberBuffer)
	p.posInt("SLOW_SUB_EVICT", &cfg.SlowSubEvict)

	p.str("SIM_BASE_URL", &cfg.SimBaseURL)
	p.str("SIM_TOKEN", &cfg.SimToken)
	p.durationMS("SIM_TIMEOUT_MS", &cfg.SimTimeout)

	p.boolean("PLANNER_ENABLED", &cfg.PlannerEnabled)
	p.durationMS("PLANNER_TIMEOUT_MS", &cfg.PlannerTimeout)
	p.posInt("AGENT_MAX_STEPS", &cfg.AgentMaxSteps)
	p.durationMS("AGENT_WALL_MS", &cfg.AgentWall)

	p.posInt("STAGNATION_CYCLES", &cfg.StagnationCycles)
	p.nonNegFloat("STAGNATION_EPS", &cfg.StagnationEps)
	p.nonNegFloat("STAGNATION_MIN_DIST", &cfg.StagnationMinDist)

	p.str("WARDEN_DB", &cfg.DBPath)
	p.str("WARDEN_LISTEN", &cfg.ListenAddr)

	if p.err != nil {
		return Config{}, p.err
	}
	if cfg.StopRadiusM > cfg.SlowRadiusM {
		return Config{}, fmt.Errorf("config: STOP_RADIUS_M (%g) exceeds SLOW_RADIUS_M (%g)", cfg.StopRadiusM, cfg.SlowRadiusM)
	}
	if cfg.RiskApproveMax > cfg.RiskDenyMin {
		return Config{}, fmt.Errorf("config: RISK_APPROVE_MAX (%g) exceeds RISK_DENY_MIN (%g)", cfg.RiskApproveMax, cfg.RiskDenyMin)
	}
	return cfg, nil
}

// parser accumulates the first parse error and skips the rest, so
// callers read one failure at a time.
type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) raw(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (p *parser) fail(key, raw string, reason string) {
	p.err = fmt.Errorf("config: %s=%q: %s", key, raw, reason)
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.raw(key); ok {
		*dst = v
	}
}

func (p *parser) durationMS(key string, dst *time.Duration) {
	v, ok := p.raw(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		p.fail(key, v, "want a positive integer millisecond count")
		return
	}
	*dst = time.Duration(n) * time.Millisecond
}

func (p *parser) posInt(key string, dst *int) {
	v, ok := p.raw(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		p.fail(key, v, "want a positive integer")
		return
	}
	*dst = n
}

func (p *parser) nonNegFloat(key string, dst *float64) {
	v, ok := p.raw(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		p.fail(key, v, "want a non-negative number")
		return
	}
	*dst = f
}

func (p *parser) unitFloat(key string, dst *float64) {
	v, ok := p.raw(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		p.fail(key, v, "want a number in [0, 1]")
		return
	}
	*dst = f
}

func (p *parser) boolean(key string, dst *bool) {
	v, ok := p.raw(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, "want a boolean")
		return
	}
	*dst = b
}
