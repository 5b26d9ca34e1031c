package store

import (
	"context"
	"testing"

	"github.com/wardenlabs/warden/internal/model"
)

func TestAppendTelemetry_SequencedPerRun(t *testing.T) {
	s := createTestStore(t)
	runID := createTestRun(t, s)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tel := model.Telemetry{
			X: float64(i), Y: 0, Speed: 0.8,
			Zone: model.ZoneAisle, Battery: 0.9,
			NearestObstacleM: 5, HumanDistanceM: 10,
		}
		if err := s.AppendTelemetry(ctx, runID, tel); err != nil {
			t.Fatalf("AppendTelemetry() %d failed: %v", i, err)
		}
	}

	samples, err := s.ListTelemetry(ctx, runID, 0)
	if err != nil {
		t.Fatalf("ListTelemetry() failed: %v", err)
	}
	if len(samples) != 5 {
		t.Fatalf("len = %d, want 5", len(samples))
	}
	for i, smp := range samples {
		if smp.Seq != int64(i+1) {
			t.Errorf("sample %d seq = %d", i, smp.Seq)
		}
		if smp.Sample.X != float64(i) {
			t.Errorf("sample %d x = %g, want %d", i, smp.Sample.X, i)
		}
	}

	tail, err := s.ListTelemetry(ctx, runID, 3)
	if err != nil {
		t.Fatalf("ListTelemetry(since 3) failed: %v", err)
	}
	if len(tail) != 2 {
		t.Errorf("len(since 3) = %d, want 2", len(tail))
	}
}

func TestExportAudit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	m, err := s.CreateMission(ctx, "audit me", model.Point{X: 10, Y: 5})
	if err != nil {
		t.Fatalf("CreateMission() failed: %v", err)
	}
	r, err := s.CreateRun(ctx, m.ID)
	if err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	appendN(t, s, r.ID, 6)
	if err := s.AppendTelemetry(ctx, r.ID, model.Telemetry{X: 1, Zone: model.ZoneAisle, Battery: 0.5, NearestObstacleM: 3, HumanDistanceM: 9}); err != nil {
		t.Fatalf("AppendTelemetry() failed: %v", err)
	}

	bundle, err := s.ExportAudit(ctx, r.ID)
	if err != nil {
		t.Fatalf("ExportAudit() failed: %v", err)
	}
	if bundle.Run.ID != r.ID || bundle.Mission.ID != m.ID {
		t.Errorf("bundle identities mismatch: run %s mission %s", bundle.Run.ID, bundle.Mission.ID)
	}
	if len(bundle.Events) != 6 {
		t.Errorf("len(events) = %d, want 6", len(bundle.Events))
	}
	if !bundle.Chain.OK || bundle.Chain.Events != 6 {
		t.Errorf("chain report = %+v, want 6 clean events", bundle.Chain)
	}
	if len(bundle.Telemetry) != 1 {
		t.Errorf("len(telemetry) = %d, want 1", len(bundle.Telemetry))
	}
}

func TestExportAudit_FlagsTamperedChain(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	runID := createTestRun(t, s)
	appendN(t, s, runID, 4)

	if _, err := s.db.Exec(
		`UPDATE events SET payload = ? WHERE run_id = ? AND seq = 2`,
		`{"tampered":true}`, runID,
	); err != nil {
		t.Fatalf("tamper update failed: %v", err)
	}

	bundle, err := s.ExportAudit(ctx, runID)
	if err != nil {
		t.Fatalf("ExportAudit() failed: %v", err)
	}
	if bundle.Chain.OK {
		t.Error("chain reported clean for a tampered log")
	}
	if bundle.Chain.BreakAt != 3 {
		t.Errorf("break_at = %d, want 3", bundle.Chain.BreakAt)
	}
}
