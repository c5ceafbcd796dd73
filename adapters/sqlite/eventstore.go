package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/axleworks/axle-go/core/es"
)

// EventStore is the durable es.EventStore on sqlite. Appends run in one
// transaction per batch with the optimistic version check inside, so a
// batch is stored atomically or not at all.
type EventStore struct {
	db  *sql.DB
	log *slog.Logger
}

func NewEventStore(d *DB) *EventStore {
	return &EventStore{db: d.db, log: d.log.With(slog.String("store", "events"))}
}

func (s *EventStore) Load(ctx context.Context, aggType, aggID string, opts ...es.StoreLoadOption) ([]es.Envelope, error) {
	from := es.ResolveFromSequence(opts...)

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, seq, event_type, revision, occurred_at, data, metadata
		FROM events
		WHERE aggregate_type = ? AND aggregate_id = ? AND seq >= ?
		ORDER BY seq ASC`,
		aggType, aggID, int64(from),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream %s-%s: %w", aggType, aggID, err)
	}
	defer rows.Close()

	var envelopes []es.Envelope
	for rows.Next() {
		var (
			env        es.Envelope
			seq        int64
			occurredAt int64
			metadata   sql.NullString
		)
		if err := rows.Scan(&env.ID, &seq, &env.Type, &env.Revision, &occurredAt, &env.Data, &metadata); err != nil {
			return nil, err
		}
		env.SequenceNumber = es.Version(seq)
		env.AggregateType = aggType
		env.AggregateID = aggID
		env.OccurredAt = time.UnixMilli(occurredAt)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &env.Metadata); err != nil {
				return nil, fmt.Errorf("corrupt metadata on event %s: %w", env.ID, err)
			}
		}
		envelopes = append(envelopes, env)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(envelopes) == 0 && from <= 0 {
		return nil, es.ErrAggregateNotFound
	}
	return envelopes, nil
}

func (s *EventStore) Append(ctx context.Context, aggType, aggID string, expected es.Version, events []es.Envelope) (*es.AppendResult, error) {
	if len(events) == 0 {
		return nil, es.ErrNoEvents
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), -1) FROM events
		WHERE aggregate_type = ? AND aggregate_id = ?`,
		aggType, aggID,
	).Scan(&current)
	if err != nil {
		return nil, err
	}
	if es.Version(current) != expected {
		return nil, fmt.Errorf("%w: stream %s-%s at seq %d, expected %d",
			es.ErrConcurrencyConflict, aggType, aggID, current, int64(expected))
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (event_id, aggregate_type, aggregate_id, seq, event_type, revision, occurred_at, data, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	last := expected
	for i, env := range events {
		want := expected.Next() + es.Version(i)
		if env.SequenceNumber != want {
			return nil, fmt.Errorf("batch out of sequence: event %d has seq %d, want %d",
				i, int64(env.SequenceNumber), int64(want))
		}

		var metadata any
		if len(env.Metadata) > 0 {
			data, err := json.Marshal(env.Metadata)
			if err != nil {
				return nil, err
			}
			metadata = string(data)
		}

		if _, err := stmt.ExecContext(ctx,
			env.ID, aggType, aggID, int64(env.SequenceNumber), env.Type, env.Revision,
			env.OccurredAt.UnixMilli(), []byte(env.Data), metadata,
		); err != nil {
			// the unique (type, id, seq) index backs the optimistic check
			// against writers racing between our read and commit
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: stream %s-%s moved past seq %d",
					es.ErrConcurrencyConflict, aggType, aggID, int64(env.SequenceNumber))
			}
			return nil, err
		}
		last = env.SequenceNumber
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit append: %w", err)
	}
	return &es.AppendResult{LastSequence: last}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ es.EventStore = (*EventStore)(nil)
