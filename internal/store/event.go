package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wardenlabs/warden/internal/canon"
	"github.com/wardenlabs/warden/internal/model"
)

// ErrConcurrentAppend reports that another writer claimed the next
// sequence number first. AppendEvent retries once internally; the error
// only escapes if the retry loses too.
var ErrConcurrentAppend = errors.New("concurrent append: sequence already claimed")

// ErrRunNotFound reports an operation against an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// tsFormat is the stored timestamp layout. Fixed-width microseconds so
// the string that is hashed is the string that is stored.
const tsFormat = "2006-01-02T15:04:05.000000Z"

// eventHash computes the chain hash of an event from its canonical
// fields. The payload is hashed as structured data, not as stored text,
// so verification reparses the stored JSON first.
func eventHash(seq int64, runID, ts string, typ model.EventType, payload map[string]any, prevHash string) (string, error) {
	return canon.SumHex(map[string]any{
		"seq":       seq,
		"run_id":    runID,
		"ts":        ts,
		"type":      string(typ),
		"payload":   payload,
		"prev_hash": prevHash,
	})
}

// AppendEvent appends one event to a run's hash chain and returns the
// stored record. It allocates the next sequence number, links prev_hash
// to the tail (zero hash for the first event), stamps a UTC timestamp
// clamped to strictly after the previous event's, and computes the
// chain hash over the canonical JSON of the event's identity fields.
//
// A losing race on the (run_id, seq) primary key is retried once; a
// second loss surfaces as ErrConcurrentAppend.
func (s *Store) AppendEvent(ctx context.Context, runID string, typ model.EventType, payload map[string]any) (model.Event, error) {
	if !model.ValidEventType(typ) {
		return model.Event{}, fmt.Errorf("append event: unknown event type %q", typ)
	}

	ev, err := s.tryAppend(ctx, runID, typ, payload)
	if errors.Is(err, ErrConcurrentAppend) {
		ev, err = s.tryAppend(ctx, runID, typ, payload)
	}
	if err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

func (s *Store) tryAppend(ctx context.Context, runID string, typ model.EventType, payload map[string]any) (model.Event, error) {
	var (
		prevSeq  int64
		prevHash string
		prevTS   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT seq, hash, ts FROM events
		WHERE run_id = ?
		ORDER BY seq DESC LIMIT 1
	`, runID).Scan(&prevSeq, &prevHash, &prevTS)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		prevSeq, prevHash = 0, canon.ZeroHash
	case err != nil:
		return model.Event{}, fmt.Errorf("append event: read tail: %w", err)
	}

	seq := prevSeq + 1
	ts := time.Now().UTC()
	if prevTS != "" {
		// The wall clock can step backwards; the chain's timestamps
		// must not.
		if prev, perr := time.Parse(tsFormat, prevTS); perr == nil && !ts.After(prev) {
			ts = prev.Add(time.Microsecond)
		}
	}
	tsStr := ts.Format(tsFormat)

	if payload == nil {
		payload = map[string]any{}
	}
	hash, err := eventHash(seq, runID, tsStr, typ, payload, prevHash)
	if err != nil {
		return model.Event{}, fmt.Errorf("append event: hash: %w", err)
	}
	payloadJSON, err := canon.Marshal(payload)
	if err != nil {
		return model.Event{}, fmt.Errorf("append event: marshal payload: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return model.Event{}, fmt.Errorf("append event: id: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, seq, id, ts, type, payload, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, seq, id.String(), tsStr, string(typ), string(payloadJSON), prevHash, hash)
	if err != nil {
		if isConstraintErr(err) {
			return model.Event{}, fmt.Errorf("append event: %w", ErrConcurrentAppend)
		}
		return model.Event{}, fmt.Errorf("append event: insert: %w", err)
	}

	return model.Event{
		Seq:      seq,
		ID:       id.String(),
		RunID:    runID,
		TS:       ts,
		Type:     typ,
		Payload:  payload,
		PrevHash: prevHash,
		Hash:     hash,
	}, nil
}

// isConstraintErr matches the sqlite constraint violation for a claimed
// (run_id, seq) slot without importing driver error codes everywhere.
func isConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ListEvents returns a run's events with seq > sinceSeq, in seq order.
// Pass sinceSeq 0 for the full chain.
func (s *Store) ListEvents(ctx context.Context, runID string, sinceSeq int64) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, ts, type, payload, prev_hash, hash
		FROM events
		WHERE run_id = ? AND seq > ?
		ORDER BY seq ASC
	`, runID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows, runID)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows, runID string) (model.Event, error) {
	var (
		ev          model.Event
		tsStr       string
		typStr      string
		payloadJSON string
	)
	if err := rows.Scan(&ev.Seq, &ev.ID, &tsStr, &typStr, &payloadJSON, &ev.PrevHash, &ev.Hash); err != nil {
		return model.Event{}, err
	}
	ts, err := time.Parse(tsFormat, tsStr)
	if err != nil {
		return model.Event{}, fmt.Errorf("parse ts %q: %w", tsStr, err)
	}
	ev.RunID = runID
	ev.TS = ts
	ev.Type = model.EventType(typStr)
	if err := unmarshalPayload(payloadJSON, &ev.Payload); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

// unmarshalPayload decodes stored payload JSON preserving number forms,
// so recomputed hashes match what was hashed at append time.
func unmarshalPayload(s string, dst *map[string]any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}
	return nil
}

// ChainReport is the result of verifying a run's hash chain.
type ChainReport struct {
	OK      bool  `json:"ok"`
	Events  int64 `json:"events"`
	BreakAt int64 `json:"break_at,omitempty"`
}

// VerifyChain re-derives a run's hash chain from stored rows and checks
// every link:
//
//   - event 1's prev_hash must be the zero hash
//   - each later event's prev_hash must equal the recomputed hash of
//     its predecessor
//   - the final event's stored hash must equal its recomputed hash
//
// A payload mutation at seq N therefore surfaces as a break at N+1 (the
// first event whose linkage no longer holds), or at N itself when N is
// the chain tail. An empty chain verifies OK.
func (s *Store) VerifyChain(ctx context.Context, runID string) (ChainReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, ts, type, payload, prev_hash, hash
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return ChainReport{}, fmt.Errorf("verify chain: %w", err)
	}
	defer rows.Close()

	var (
		count        int64
		expectedSeq  int64 = 1
		prevComputed       = canon.ZeroHash
		lastStored   string
		lastComputed string
	)
	for rows.Next() {
		var (
			seq              int64
			tsStr, typStr    string
			payloadJSON      string
			prevHash, stored string
		)
		if err := rows.Scan(&seq, &tsStr, &typStr, &payloadJSON, &prevHash, &stored); err != nil {
			return ChainReport{}, fmt.Errorf("verify chain: %w", err)
		}

		if seq != expectedSeq || prevHash != prevComputed {
			return ChainReport{OK: false, Events: count, BreakAt: seq}, nil
		}

		var payload map[string]any
		if err := unmarshalPayload(payloadJSON, &payload); err != nil {
			return ChainReport{OK: false, Events: count, BreakAt: seq}, nil
		}
		computed, err := eventHash(seq, runID, tsStr, model.EventType(typStr), payload, prevHash)
		if err != nil {
			return ChainReport{}, fmt.Errorf("verify chain: rehash seq %d: %w", seq, err)
		}

		count++
		expectedSeq = seq + 1
		prevComputed = computed
		lastStored, lastComputed = stored, computed
	}
	if err := rows.Err(); err != nil {
		return ChainReport{}, fmt.Errorf("verify chain: %w", err)
	}

	// Interior mutations are caught by the next link; the tail has no
	// next link, so check it against its own recomputed hash.
	if count > 0 && lastStored != lastComputed {
		return ChainReport{OK: false, Events: count, BreakAt: expectedSeq - 1}, nil
	}
	return ChainReport{OK: true, Events: count}, nil
}

// TailHash returns the hash of a run's most recent event, or the zero
// hash for an empty chain.
func (s *Store) TailHash(ctx context.Context, runID string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT hash FROM events WHERE run_id = ? ORDER BY seq DESC LIMIT 1
	`, runID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return canon.ZeroHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("tail hash: %w", err)
	}
	return hash, nil
}
