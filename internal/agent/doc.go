// Package agent produces action proposals for the run loop.
//
// Two planners share one contract. The deterministic planner maps
// (telemetry, goal, last governance verdict) to exactly one proposal
// per tick and is what the control loop runs on. The agentic loop wraps
// the same decisions in an explicit reason-act-observe chain with a
// closed tool set and a sliding memory of recent verdicts; its full
// thought chain is returned for audit. Without a language model both
// modes are deterministic, which is the mode this repo ships.
package agent
