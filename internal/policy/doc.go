// Package policy implements the governance rule engine.
//
// Evaluate is a pure function: no I/O, no clocks, no mutation of its
// inputs. The same (telemetry, world, proposal) always yields a
// bit-identical decision, which the chain of trust depends on. Engine
// parameters are captured at construction; swapping thresholds means
// constructing a new Engine.
//
// The rule catalog's metadata ships as an embedded policies.yaml,
// validated against an embedded CUE schema at load time. The rule
// conditions themselves are code; the catalog is what operators see via
// the policies endpoint.
//
// The engine fails closed: a panic inside a rule is recovered into a
// DENIED decision with risk 1.0 rather than propagated.
package policy
