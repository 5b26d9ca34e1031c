package agent

import (
	"math"

	"github.com/wardenlabs/warden/internal/model"
)

// defaultPathClearance pads obstacle radii when previewing a path.
const defaultPathClearance = 0.75

// PlanPath returns a polyline preview from start to goal and a label
// for how it was derived ("straight" or "detour").
//
// The planner is deliberately simple: a straight segment, or one
// perpendicular detour waypoint around the first obstacle that blocks
// it, on whichever side leaves more clearance.
func PlanPath(start, goal model.Point, obstacles []model.Obstacle, clearance float64) ([]model.Point, string) {
	if clearance <= 0 {
		clearance = defaultPathClearance
	}

	var blocking *model.Obstacle
	for i, ob := range obstacles {
		if model.SegmentHitsCircle(start, goal, model.Point{X: ob.X, Y: ob.Y}, ob.R+clearance) {
			blocking = &obstacles[i]
			break
		}
	}
	if blocking == nil {
		return []model.Point{start, goal}, "straight"
	}

	dx, dy := goal.X-start.X, goal.Y-start.Y
	norm := math.Hypot(dx, dy)
	if norm == 0 {
		norm = 1
	}
	px, py := -dy/norm, dx/norm

	center := model.Point{X: blocking.X, Y: blocking.Y}
	detourDist := blocking.R + clearance + 1.0
	c1 := model.Point{X: center.X + px*detourDist, Y: center.Y + py*detourDist}
	c2 := model.Point{X: center.X - px*detourDist, Y: center.Y - py*detourDist}

	score := func(c model.Point) float64 {
		return math.Min(
			model.DistPointSegment(center, start, c),
			model.DistPointSegment(center, c, goal),
		)
	}
	waypoint := c2
	if score(c1) >= score(c2) {
		waypoint = c1
	}
	return []model.Point{start, waypoint, goal}, "detour"
}
