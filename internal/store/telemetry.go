package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wardenlabs/warden/internal/model"
)

// TelemetrySample is one raw telemetry snapshot recorded alongside the
// event log. Samples are outside the hash chain; they are bulk data for
// timeline reconstruction, not audit evidence.
type TelemetrySample struct {
	Seq    int64           `json:"seq"`
	TS     time.Time       `json:"ts"`
	Sample model.Telemetry `json:"sample"`
}

// AppendTelemetry records a raw telemetry snapshot for a run.
func (s *Store) AppendTelemetry(ctx context.Context, runID string, tel model.Telemetry) error {
	blob, err := json.Marshal(tel)
	if err != nil {
		return fmt.Errorf("append telemetry: marshal: %w", err)
	}

	var prevSeq int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM telemetry_samples WHERE run_id = ?
	`, runID).Scan(&prevSeq); err != nil {
		return fmt.Errorf("append telemetry: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO telemetry_samples (run_id, seq, ts, sample)
		VALUES (?, ?, ?, ?)
	`, runID, prevSeq+1, time.Now().UTC().Format(tsFormat), string(blob))
	if err != nil {
		return fmt.Errorf("append telemetry: insert: %w", err)
	}
	return nil
}

// ListTelemetry returns a run's telemetry samples with seq > sinceSeq,
// in seq order.
func (s *Store) ListTelemetry(ctx context.Context, runID string, sinceSeq int64) ([]TelemetrySample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, ts, sample FROM telemetry_samples
		WHERE run_id = ? AND seq > ?
		ORDER BY seq ASC
	`, runID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("list telemetry: %w", err)
	}
	defer rows.Close()

	var out []TelemetrySample
	for rows.Next() {
		var (
			ts   TelemetrySample
			when string
			blob string
		)
		if err := rows.Scan(&ts.Seq, &when, &blob); err != nil {
			return nil, fmt.Errorf("list telemetry: %w", err)
		}
		if ts.TS, err = time.Parse(tsFormat, when); err != nil {
			return nil, fmt.Errorf("list telemetry: parse ts: %w", err)
		}
		if err := json.Unmarshal([]byte(blob), &ts.Sample); err != nil {
			return nil, fmt.Errorf("list telemetry: parse sample: %w", err)
		}
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list telemetry: %w", err)
	}
	return out, nil
}

// AuditBundle is a self-contained export of one run: the run record,
// its mission, the full event chain, a verification report over that
// chain, and the raw telemetry samples.
type AuditBundle struct {
	Run       model.Run         `json:"run"`
	Mission   model.Mission     `json:"mission"`
	Events    []model.Event     `json:"events"`
	Chain     ChainReport       `json:"chain"`
	Telemetry []TelemetrySample `json:"telemetry"`
}

// ExportAudit assembles the audit bundle for a run. The chain is
// verified as part of the export so a tampered log cannot be exported
// as clean.
func (s *Store) ExportAudit(ctx context.Context, runID string) (AuditBundle, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return AuditBundle{}, err
	}
	mission, err := s.GetMission(ctx, run.MissionID)
	if err != nil {
		return AuditBundle{}, err
	}
	events, err := s.ListEvents(ctx, runID, 0)
	if err != nil {
		return AuditBundle{}, err
	}
	chain, err := s.VerifyChain(ctx, runID)
	if err != nil {
		return AuditBundle{}, err
	}
	telemetry, err := s.ListTelemetry(ctx, runID, 0)
	if err != nil {
		return AuditBundle{}, err
	}
	return AuditBundle{
		Run:       run,
		Mission:   mission,
		Events:    events,
		Chain:     chain,
		Telemetry: telemetry,
	}, nil
}
