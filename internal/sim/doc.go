// Package sim is the HTTP adapter for the warehouse simulator.
//
// The simulator exposes:
//
//	GET  /telemetry  -> current telemetry snapshot
//	GET  /world      -> static world definition
//	POST /command    -> execute an approved command
//	POST /scenario   -> arm a named demo scenario
//
// All calls carry the X-Sim-Token header when a token is configured.
// Telemetry and world reads are idempotent; command sends are not.
// Failures are classified so the run loop can tell a transient outage
// (skip the tick, emit an alert) from a protocol mismatch (treat as
// denied).
package sim
