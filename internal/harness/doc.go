// Package harness runs YAML-defined policy conformance scenarios.
//
// A scenario is a sequence of telemetry/proposal pairs evaluated
// against the policy engine, each with optional expectations on the
// resulting decision. Scenarios double as executable documentation of
// the rule set: the files under testdata/scenarios describe how the
// engine must behave around humans, obstacles, and the geofence, and
// golden snapshots pin the exact decision sequence.
//
// Scenario files are strict YAML; unknown fields are rejected so a
// typo'd expectation fails loudly instead of silently passing.
package harness
