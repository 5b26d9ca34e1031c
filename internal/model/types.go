package model

// Zone labels the area of the floor the robot currently occupies.
type Zone string

const (
	ZoneAisle      Zone = "aisle"
	ZoneLoadingBay Zone = "loading_bay"
	ZoneOther      Zone = "other"
)

// Point is a 2D position in meters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Telemetry is the per-tick snapshot produced by the simulator.
// All numeric fields are bounded; see ValidateTelemetry.
type Telemetry struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
	Speed float64 `json:"speed"`

	Zone             Zone    `json:"zone"`
	NearestObstacleM float64 `json:"nearest_obstacle_m"`

	HumanDetected  bool    `json:"human_detected"`
	HumanConf      float64 `json:"human_conf"`
	HumanDistanceM float64 `json:"human_distance_m"`

	// Battery is the remaining charge fraction in [0,1].
	Battery float64 `json:"battery"`

	// Target is the waypoint the robot is currently tracking, if any.
	Target *Point `json:"target"`

	// Events are simulator-side occurrences (e.g. "near_miss") surfaced
	// to operators as alerts.
	Events []string `json:"events"`
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

// Contains reports whether (x, y) lies inside the rectangle, borders
// included.
func (r Rect) Contains(x, y float64) bool {
	return r.MinX <= x && x <= r.MaxX && r.MinY <= y && y <= r.MaxY
}

// NamedZone is a floor region with a zone label.
type NamedZone struct {
	Name Zone `json:"name"`
	Rect Rect `json:"rect"`
}

// Obstacle is a circular obstruction.
type Obstacle struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	R float64 `json:"r"`
}

// Bay is a docking position.
type Bay struct {
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Type string  `json:"type"`
}

// World is the static-ish map the simulator exposes.
type World struct {
	Geofence  Rect        `json:"geofence"`
	Zones     []NamedZone `json:"zones"`
	Obstacles []Obstacle  `json:"obstacles"`
	Human     *Point      `json:"human"`
	Bays      []Bay       `json:"bays"`
}
