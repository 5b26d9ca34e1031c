// Package model defines the shared data model of the governance layer:
// telemetry snapshots, the world map, action proposals, governance
// decisions, chain-of-trust events, runs, and missions.
//
// Loosely typed payloads from the simulator and from API clients are
// validated at the boundary (see validate.go) and rejected with a
// FieldError naming the offending field; everything past the boundary
// works with the typed forms in this package.
package model
