package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wardenlabs/warden/internal/model"
)

// Scenario defines one policy conformance scenario: an optional world
// map plus a sequence of evaluation steps.
type Scenario struct {
	// Name uniquely identifies this scenario; it is also the golden
	// snapshot file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// World is the map the engine evaluates against. Omitted means no
	// world is available and the engine falls back to its default
	// geofence, skipping segment checks.
	World *WorldDoc `yaml:"world,omitempty"`

	// Steps are evaluated in order against a fresh engine state; the
	// engine is pure, so steps are independent by construction.
	Steps []Step `yaml:"steps"`
}

// Step is one telemetry/proposal pair with optional expectations.
type Step struct {
	Name      string        `yaml:"name,omitempty"`
	Telemetry TelemetryDoc  `yaml:"telemetry"`
	Proposal  ProposalDoc   `yaml:"proposal"`
	Expect    *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected governance outcome for a step.
// Omitted fields are not checked.
type ExpectClause struct {
	Decision string   `yaml:"decision"`
	State    string   `yaml:"state,omitempty"`
	Hits     []string `yaml:"hits,omitempty"`
	MinRisk  *float64 `yaml:"min_risk,omitempty"`
	MaxRisk  *float64 `yaml:"max_risk,omitempty"`
}

// TelemetryDoc is the YAML shape of a telemetry snapshot. Sensor
// fields default to a clear floor (no human, no obstacle, healthy
// battery) so scenario files only state what matters.
type TelemetryDoc struct {
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Theta float64 `yaml:"theta,omitempty"`
	Speed float64 `yaml:"speed,omitempty"`

	Zone             string   `yaml:"zone,omitempty"`
	NearestObstacleM *float64 `yaml:"nearest_obstacle_m,omitempty"`

	HumanDetected  bool     `yaml:"human_detected,omitempty"`
	HumanConf      *float64 `yaml:"human_conf,omitempty"`
	HumanDistanceM *float64 `yaml:"human_distance_m,omitempty"`

	Battery *float64 `yaml:"battery,omitempty"`
}

func (d TelemetryDoc) toModel() model.Telemetry {
	tel := model.Telemetry{
		X:                d.X,
		Y:                d.Y,
		Theta:            d.Theta,
		Speed:            d.Speed,
		Zone:             model.ZoneAisle,
		NearestObstacleM: 10,
		HumanDetected:    d.HumanDetected,
		HumanDistanceM:   100,
		Battery:          0.9,
	}
	if d.Zone != "" {
		tel.Zone = model.Zone(d.Zone)
	}
	if d.NearestObstacleM != nil {
		tel.NearestObstacleM = *d.NearestObstacleM
	}
	if d.HumanDistanceM != nil {
		tel.HumanDistanceM = *d.HumanDistanceM
	}
	if d.Battery != nil {
		tel.Battery = *d.Battery
	}
	if d.HumanConf != nil {
		tel.HumanConf = *d.HumanConf
	} else if d.HumanDetected {
		tel.HumanConf = 0.9
	}
	return tel
}

// ProposalDoc is the YAML shape of an action proposal. STOP and WAIT
// carry no params; MOVE_TO and MODIFY_SPEED take the flattened fields.
type ProposalDoc struct {
	Intent   string  `yaml:"intent"`
	X        float64 `yaml:"x,omitempty"`
	Y        float64 `yaml:"y,omitempty"`
	MaxSpeed float64 `yaml:"max_speed,omitempty"`
}

func (d ProposalDoc) toModel() model.ActionProposal {
	p := model.ActionProposal{Intent: model.Intent(d.Intent)}
	switch p.Intent {
	case model.IntentMoveTo, model.IntentModifySpeed:
		p.Params = &model.ActionParams{X: d.X, Y: d.Y, MaxSpeed: d.MaxSpeed}
	}
	return p
}

// WorldDoc is the YAML shape of a world map.
type WorldDoc struct {
	Geofence  *RectDoc      `yaml:"geofence,omitempty"`
	Obstacles []ObstacleDoc `yaml:"obstacles,omitempty"`
	Human     *PointDoc     `yaml:"human,omitempty"`
}

// RectDoc is an axis-aligned rectangle.
type RectDoc struct {
	MinX float64 `yaml:"min_x"`
	MaxX float64 `yaml:"max_x"`
	MinY float64 `yaml:"min_y"`
	MaxY float64 `yaml:"max_y"`
}

// ObstacleDoc is a circular obstruction.
type ObstacleDoc struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	R float64 `yaml:"r"`
}

// PointDoc is a 2D position.
type PointDoc struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

func (d *WorldDoc) toModel() *model.World {
	if d == nil {
		return nil
	}
	w := &model.World{
		// Matches the engine's default fence so scenarios that only
		// add obstacles keep the usual bounds.
		Geofence: model.Rect{MinX: 0, MaxX: 30, MinY: 0, MaxY: 20},
	}
	if d.Geofence != nil {
		w.Geofence = model.Rect{
			MinX: d.Geofence.MinX, MaxX: d.Geofence.MaxX,
			MinY: d.Geofence.MinY, MaxY: d.Geofence.MaxY,
		}
	}
	for _, ob := range d.Obstacles {
		w.Obstacles = append(w.Obstacles, model.Obstacle{X: ob.X, Y: ob.Y, R: ob.R})
	}
	if d.Human != nil {
		w.Human = &model.Point{X: d.Human.X, Y: d.Human.Y}
	}
	return w
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields,
// missing required fields, and invalid intents or decisions are all
// load errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields (typos)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(&step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step *Step) error {
	tel := step.Telemetry.toModel()
	if err := model.ValidateTelemetry(&tel); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if err := model.ValidateProposal(step.Proposal.toModel()); err != nil {
		return fmt.Errorf("proposal: %w", err)
	}
	if step.Expect == nil {
		return nil
	}
	if step.Expect.Decision == "" {
		return fmt.Errorf("expect: decision is required")
	}
	switch model.Decision(step.Expect.Decision) {
	case model.DecisionApproved, model.DecisionDenied, model.DecisionNeedsReview:
	default:
		return fmt.Errorf("expect: unknown decision %q", step.Expect.Decision)
	}
	if st := step.Expect.State; st != "" {
		switch model.PolicyState(st) {
		case model.StateSafe, model.StateSlow, model.StateStop, model.StateReplan:
		default:
			return fmt.Errorf("expect: unknown state %q", st)
		}
	}
	return nil
}
