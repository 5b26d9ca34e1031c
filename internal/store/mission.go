package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wardenlabs/warden/internal/model"
)

// ErrMissionNotFound reports an operation against an unknown mission ID.
var ErrMissionNotFound = errors.New("mission not found")

// ErrRunTerminal reports an attempt to transition a run out of a
// terminal status. Terminal runs never re-open.
var ErrRunTerminal = errors.New("run is in a terminal status")

// ErrMissionHasRuns reports a delete against a mission whose runs (and
// their audit trails) still exist.
var ErrMissionHasRuns = errors.New("mission has runs")

// CreateMission inserts a new mission in pending status and returns it.
func (s *Store) CreateMission(ctx context.Context, title string, goal model.Point) (model.Mission, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return model.Mission{}, fmt.Errorf("create mission: id: %w", err)
	}
	now := time.Now().UTC()
	m := model.Mission{
		ID:        id.String(),
		Title:     title,
		Goal:      goal,
		Status:    model.MissionPending,
		CreatedAt: now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO missions (id, title, goal_x, goal_y, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.Title, m.Goal.X, m.Goal.Y, string(m.Status), now.Format(tsFormat))
	if err != nil {
		return model.Mission{}, fmt.Errorf("create mission: %w", err)
	}
	return m, nil
}

// GetMission returns a mission by ID.
func (s *Store) GetMission(ctx context.Context, id string) (model.Mission, error) {
	var (
		m      model.Mission
		status string
		ctime  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, goal_x, goal_y, status, created_at
		FROM missions WHERE id = ?
	`, id).Scan(&m.ID, &m.Title, &m.Goal.X, &m.Goal.Y, &status, &ctime)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Mission{}, fmt.Errorf("get mission %s: %w", id, ErrMissionNotFound)
	}
	if err != nil {
		return model.Mission{}, fmt.Errorf("get mission: %w", err)
	}
	m.Status = model.MissionStatus(status)
	m.CreatedAt, err = time.Parse(tsFormat, ctime)
	if err != nil {
		return model.Mission{}, fmt.Errorf("get mission: parse created_at: %w", err)
	}
	return m, nil
}

// ListMissions returns all missions, newest first.
func (s *Store) ListMissions(ctx context.Context) ([]model.Mission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, goal_x, goal_y, status, created_at
		FROM missions ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	var out []model.Mission
	for rows.Next() {
		var (
			m      model.Mission
			status string
			ctime  string
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Goal.X, &m.Goal.Y, &status, &ctime); err != nil {
			return nil, fmt.Errorf("list missions: %w", err)
		}
		m.Status = model.MissionStatus(status)
		if m.CreatedAt, err = time.Parse(tsFormat, ctime); err != nil {
			return nil, fmt.Errorf("list missions: parse created_at: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	return out, nil
}

// UpdateMission changes a mission's title and/or goal. Nil fields are
// left untouched.
func (s *Store) UpdateMission(ctx context.Context, id string, title *string, goal *model.Point) (model.Mission, error) {
	m, err := s.GetMission(ctx, id)
	if err != nil {
		return model.Mission{}, err
	}
	if title != nil {
		m.Title = *title
	}
	if goal != nil {
		m.Goal = *goal
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE missions SET title = ?, goal_x = ?, goal_y = ? WHERE id = ?
	`, m.Title, m.Goal.X, m.Goal.Y, id)
	if err != nil {
		return model.Mission{}, fmt.Errorf("update mission: %w", err)
	}
	return m, nil
}

// DeleteMission removes a mission. Missions with runs are kept; their
// audit trail must survive the mission row.
func (s *Store) DeleteMission(ctx context.Context, id string) error {
	runs, err := s.ListRuns(ctx, id)
	if err != nil {
		return err
	}
	if len(runs) > 0 {
		return fmt.Errorf("delete mission %s: %w", id, ErrMissionHasRuns)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM missions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete mission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete mission: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete mission %s: %w", id, ErrMissionNotFound)
	}
	return nil
}

// SetMissionStatus updates a mission's lifecycle status.
func (s *Store) SetMissionStatus(ctx context.Context, id string, status model.MissionStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE missions SET status = ? WHERE id = ?
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("set mission status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set mission status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set mission status %s: %w", id, ErrMissionNotFound)
	}
	return nil
}

// CreateRun inserts a new run for a mission in running status.
func (s *Store) CreateRun(ctx context.Context, missionID string) (model.Run, error) {
	if _, err := s.GetMission(ctx, missionID); err != nil {
		return model.Run{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return model.Run{}, fmt.Errorf("create run: id: %w", err)
	}
	now := time.Now().UTC()
	r := model.Run{
		ID:        id.String(),
		MissionID: missionID,
		Status:    model.RunRunning,
		StartedAt: now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mission_id, status, started_at)
		VALUES (?, ?, ?, ?)
	`, r.ID, r.MissionID, string(r.Status), now.Format(tsFormat))
	if err != nil {
		return model.Run{}, fmt.Errorf("create run: %w", err)
	}
	return r, nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (model.Run, error) {
	var (
		r       model.Run
		status  string
		started string
		ended   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, mission_id, status, started_at, ended_at
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.MissionID, &status, &started, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return model.Run{}, fmt.Errorf("get run: %w", err)
	}
	r.Status = model.RunStatus(status)
	if r.StartedAt, err = time.Parse(tsFormat, started); err != nil {
		return model.Run{}, fmt.Errorf("get run: parse started_at: %w", err)
	}
	if ended.Valid {
		t, err := time.Parse(tsFormat, ended.String)
		if err != nil {
			return model.Run{}, fmt.Errorf("get run: parse ended_at: %w", err)
		}
		r.EndedAt = &t
	}
	return r, nil
}

// ListRuns returns runs, optionally filtered by mission, newest first.
func (s *Store) ListRuns(ctx context.Context, missionID string) ([]model.Run, error) {
	query := `
		SELECT id, mission_id, status, started_at, ended_at
		FROM runs ORDER BY started_at DESC, id DESC
	`
	args := []any{}
	if missionID != "" {
		query = `
			SELECT id, mission_id, status, started_at, ended_at
			FROM runs WHERE mission_id = ? ORDER BY started_at DESC, id DESC
		`
		args = append(args, missionID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var (
			r       model.Run
			status  string
			started string
			ended   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.MissionID, &status, &started, &ended); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		r.Status = model.RunStatus(status)
		if r.StartedAt, err = time.Parse(tsFormat, started); err != nil {
			return nil, fmt.Errorf("list runs: parse started_at: %w", err)
		}
		if ended.Valid {
			t, err := time.Parse(tsFormat, ended.String)
			if err != nil {
				return nil, fmt.Errorf("list runs: parse ended_at: %w", err)
			}
			r.EndedAt = &t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// SetRunStatus transitions a run's lifecycle status. Transitions out of
// a terminal status are rejected with ErrRunTerminal; moving to a
// terminal status stamps ended_at.
func (s *Store) SetRunStatus(ctx context.Context, id string, status model.RunStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set run status: begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("set run status %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return fmt.Errorf("set run status: %w", err)
	}
	if model.RunStatus(current).Terminal() {
		return fmt.Errorf("set run status %s (%s -> %s): %w", id, current, status, ErrRunTerminal)
	}

	if status.Terminal() {
		_, err = tx.ExecContext(ctx, `
			UPDATE runs SET status = ?, ended_at = ? WHERE id = ?
		`, string(status), time.Now().UTC().Format(tsFormat), id)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE runs SET status = ? WHERE id = ?
		`, string(status), id)
	}
	if err != nil {
		return fmt.Errorf("set run status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set run status: commit: %w", err)
	}
	return nil
}

// ActiveRuns returns the IDs of all runs still in running status, used
// by the registry to auto-resume loops after a restart.
func (s *Store) ActiveRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM runs WHERE status = ? ORDER BY started_at ASC, id ASC
	`, string(model.RunRunning))
	if err != nil {
		return nil, fmt.Errorf("active runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("active runs: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("active runs: %w", err)
	}
	return ids, nil
}
