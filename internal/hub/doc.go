// Package hub is the per-run broadcast broker.
//
// Each run has an independent set of subscribers. Publish never blocks:
// a subscriber that falls behind loses its oldest buffered message
// (newest wins for liveness), and one that keeps falling behind is
// evicted and its channel closed. Messages to a surviving subscriber
// arrive in publish order; ordering across subscribers is unspecified.
package hub
