// Package run owns the per-run control loops: spawning, stopping,
// auto-resume after a restart, and the per-tick propose, govern,
// execute, append, broadcast cycle.
//
// Each run has at most one live loop goroutine. That loop is the
// single writer to the run's event chain and the only sender of sim
// commands for the run; the store, hub, and sim client are shared
// across loops.
package run
