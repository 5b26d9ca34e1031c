package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/wardenlabs/warden/internal/model"
)

// createTestStore creates a fresh on-disk store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a mission and a run and returns the run ID.
func createTestRun(t *testing.T, s *Store) string {
	t.Helper()
	ctx := context.Background()
	m, err := s.CreateMission(ctx, "move pallet", model.Point{X: 15, Y: 7})
	if err != nil {
		t.Fatalf("CreateMission() failed: %v", err)
	}
	r, err := s.CreateRun(ctx, m.ID)
	if err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	return r.ID
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"missions", "runs", "events", "telemetry_samples"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := createTestStore(t)

	checks := map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
	}
	for name, want := range checks {
		var got string
		if err := s.db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
			t.Fatalf("query PRAGMA %s: %v", name, err)
		}
		if got != want {
			t.Errorf("PRAGMA %s = %q, want %q", name, got, want)
		}
	}
}

func TestOpen_SetsSchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpen_SurvivesReopenWithData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	m, err := s1.CreateMission(ctx, "dock at bay 2", model.Point{X: 3, Y: 9})
	if err != nil {
		t.Fatalf("CreateMission() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetMission(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMission() after reopen failed: %v", err)
	}
	if got.Title != "dock at bay 2" {
		t.Errorf("mission title = %q after reopen", got.Title)
	}
}
