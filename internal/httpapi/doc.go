// Package httpapi exposes the operator-facing HTTP surface: mission
// and run lifecycle, the audit trail, the synchronous decision facade
// (policy test, plan generate/execute, agentic propose), and the
// per-run WebSocket event stream.
//
// Handlers compose the shared store, hub, sim client, policy engine,
// and run registry; none of them owns state of their own.
package httpapi
