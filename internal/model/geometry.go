package model

import "math"

// Dist returns the Euclidean distance between two points.
func Dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// DistPointSegment returns the distance from point p to segment ab.
func DistPointSegment(p, a, b Point) float64 {
	abx, aby := b.X-a.X, b.Y-a.Y
	apx, apy := p.X-a.X, p.Y-a.Y
	ab2 := abx*abx + aby*aby
	if ab2 <= 1e-9 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := (apx*abx + apy*aby) / ab2
	t = math.Max(0, math.Min(1, t))
	cx, cy := a.X+t*abx, a.Y+t*aby
	return math.Hypot(p.X-cx, p.Y-cy)
}

// SegmentHitsCircle reports whether segment ab passes within r of
// center c.
func SegmentHitsCircle(a, b, c Point, r float64) bool {
	return DistPointSegment(c, a, b) <= r
}
