package model

import (
	"errors"
	"fmt"
	"math"
)

// FieldError reports a protocol mismatch at the boundary: a payload
// field that is missing, out of range, or of an unknown variant.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// IsFieldError reports whether err is (or wraps) a FieldError.
func IsFieldError(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}

func fieldErr(field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Bounds applied at the telemetry boundary. Positions far outside any
// plausible facility and non-finite values are rejected rather than fed
// to the policy engine.
const (
	maxCoordinateAbs = 10_000.0
	maxSpeedAbs      = 50.0
)

func checkFinite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fieldErr(field, "must be finite, got %v", v)
	}
	return nil
}

func checkRange(field string, v, lo, hi float64) error {
	if err := checkFinite(field, v); err != nil {
		return err
	}
	if v < lo || v > hi {
		return fieldErr(field, "must be in [%g, %g], got %g", lo, hi, v)
	}
	return nil
}

// ValidateTelemetry checks a telemetry snapshot at the boundary.
// Unknown zones are normalized to ZoneOther rather than rejected; the
// zone set is advisory, the numeric bounds are not.
func ValidateTelemetry(t *Telemetry) error {
	if t == nil {
		return fieldErr("telemetry", "missing")
	}
	if err := checkRange("x", t.X, -maxCoordinateAbs, maxCoordinateAbs); err != nil {
		return err
	}
	if err := checkRange("y", t.Y, -maxCoordinateAbs, maxCoordinateAbs); err != nil {
		return err
	}
	if err := checkFinite("theta", t.Theta); err != nil {
		return err
	}
	if err := checkRange("speed", t.Speed, 0, maxSpeedAbs); err != nil {
		return err
	}
	if err := checkRange("nearest_obstacle_m", t.NearestObstacleM, 0, maxCoordinateAbs); err != nil {
		return err
	}
	if err := checkRange("human_conf", t.HumanConf, 0, 1); err != nil {
		return err
	}
	if err := checkRange("human_distance_m", t.HumanDistanceM, 0, maxCoordinateAbs); err != nil {
		return err
	}
	if err := checkRange("battery", t.Battery, 0, 1); err != nil {
		return err
	}
	switch t.Zone {
	case ZoneAisle, ZoneLoadingBay, ZoneOther:
	default:
		t.Zone = ZoneOther
	}
	if t.Target != nil {
		if err := checkRange("target.x", t.Target.X, -maxCoordinateAbs, maxCoordinateAbs); err != nil {
			return err
		}
		if err := checkRange("target.y", t.Target.Y, -maxCoordinateAbs, maxCoordinateAbs); err != nil {
			return err
		}
	}
	return nil
}

// ValidateProposal checks an action proposal at the boundary.
// Unknown intents are rejected: the intent set is a closed union.
func ValidateProposal(p ActionProposal) error {
	switch p.Intent {
	case IntentMoveTo:
		if p.Params == nil {
			return fieldErr("params", "required for MOVE_TO")
		}
		if err := checkRange("params.x", p.Params.X, -maxCoordinateAbs, maxCoordinateAbs); err != nil {
			return err
		}
		if err := checkRange("params.y", p.Params.Y, -maxCoordinateAbs, maxCoordinateAbs); err != nil {
			return err
		}
		if err := checkRange("params.max_speed", p.Params.MaxSpeed, 0, maxSpeedAbs); err != nil {
			return err
		}
	case IntentModifySpeed:
		if p.Params == nil {
			return fieldErr("params", "required for MODIFY_SPEED")
		}
		if err := checkRange("params.max_speed", p.Params.MaxSpeed, 0, maxSpeedAbs); err != nil {
			return err
		}
	case IntentStop, IntentWait:
		// No params required.
	default:
		return fieldErr("intent", "unknown intent %q", p.Intent)
	}
	return nil
}
