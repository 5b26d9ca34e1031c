package model

import (
	"math"
	"testing"
)

func validTelemetry() *Telemetry {
	return &Telemetry{
		X: 2, Y: 2, Theta: 0, Speed: 0.4,
		Zone:             ZoneAisle,
		NearestObstacleM: 5,
		HumanDistanceM:   10,
		Battery:          0.8,
	}
}

func TestValidateTelemetry_OK(t *testing.T) {
	if err := ValidateTelemetry(validTelemetry()); err != nil {
		t.Fatalf("ValidateTelemetry() failed: %v", err)
	}
}

func TestValidateTelemetry_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Telemetry)
		field  string
	}{
		{"nan x", func(t *Telemetry) { t.X = math.NaN() }, "x"},
		{"inf y", func(t *Telemetry) { t.Y = math.Inf(1) }, "y"},
		{"negative speed", func(t *Telemetry) { t.Speed = -1 }, "speed"},
		{"conf above one", func(t *Telemetry) { t.HumanConf = 1.2 }, "human_conf"},
		{"negative distance", func(t *Telemetry) { t.HumanDistanceM = -0.5 }, "human_distance_m"},
		{"battery out of range", func(t *Telemetry) { t.Battery = 2 }, "battery"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tel := validTelemetry()
			tt.mutate(tel)
			err := ValidateTelemetry(tel)
			if err == nil {
				t.Fatal("ValidateTelemetry() succeeded, want error")
			}
			var fe *FieldError
			if !IsFieldError(err) {
				t.Fatalf("error %v is not a FieldError", err)
			}
			fe = err.(*FieldError)
			if fe.Field != tt.field {
				t.Errorf("offending field = %q, want %q", fe.Field, tt.field)
			}
		})
	}
}

func TestValidateTelemetry_NormalizesUnknownZone(t *testing.T) {
	tel := validTelemetry()
	tel.Zone = "mezzanine"
	if err := ValidateTelemetry(tel); err != nil {
		t.Fatalf("ValidateTelemetry() failed: %v", err)
	}
	if tel.Zone != ZoneOther {
		t.Errorf("zone = %q, want %q", tel.Zone, ZoneOther)
	}
}

func TestValidateProposal(t *testing.T) {
	tests := []struct {
		name    string
		prop    ActionProposal
		wantErr bool
	}{
		{"move_to ok", ActionProposal{Intent: IntentMoveTo, Params: &ActionParams{X: 5, Y: 5, MaxSpeed: 0.5}}, false},
		{"move_to missing params", ActionProposal{Intent: IntentMoveTo}, true},
		{"stop without params", ActionProposal{Intent: IntentStop}, false},
		{"wait without params", ActionProposal{Intent: IntentWait}, false},
		{"modify_speed ok", ActionProposal{Intent: IntentModifySpeed, Params: &ActionParams{MaxSpeed: 0.3}}, false},
		{"unknown intent", ActionProposal{Intent: "TELEPORT"}, true},
		{"nan speed", ActionProposal{Intent: IntentMoveTo, Params: &ActionParams{X: 1, Y: 1, MaxSpeed: math.NaN()}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProposal(tt.prop)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProposal() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunStatusTerminal(t *testing.T) {
	if RunRunning.Terminal() {
		t.Error("running must not be terminal")
	}
	for _, s := range []RunStatus{RunStopped, RunCompleted, RunFailed} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestMoreSevere(t *testing.T) {
	if !MoreSevere(StateStop, StateReplan) {
		t.Error("STOP must outrank REPLAN")
	}
	if !MoreSevere(StateReplan, StateSlow) {
		t.Error("REPLAN must outrank SLOW")
	}
	if !MoreSevere(StateSlow, StateSafe) {
		t.Error("SLOW must outrank SAFE")
	}
	if MoreSevere(StateSafe, StateSafe) {
		t.Error("equal states must not outrank each other")
	}
}
