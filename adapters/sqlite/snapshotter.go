package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/axleworks/axle-go/core/es"
)

// Snapshotter stores one snapshot per aggregate, newest wins.
type Snapshotter struct {
	db  *sql.DB
	log *slog.Logger
}

func NewSnapshotter(d *DB) *Snapshotter {
	return &Snapshotter{db: d.db, log: d.log.With(slog.String("store", "snapshots"))}
}

func (s *Snapshotter) SaveSnapshot(ctx context.Context, snapshot *es.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (aggregate_type, aggregate_id, snapshot_id, seq, created_at, schema_version, encoding, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (aggregate_type, aggregate_id) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			seq = excluded.seq,
			created_at = excluded.created_at,
			schema_version = excluded.schema_version,
			encoding = excluded.encoding,
			data = excluded.data`,
		snapshot.AggregateType, snapshot.AggregateID, snapshot.SnapshotID,
		int64(snapshot.SequenceNumber), snapshot.CreatedAt.UnixMilli(),
		snapshot.SchemaVersion, snapshot.Encoding, snapshot.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s-%s: %w",
			snapshot.AggregateType, snapshot.AggregateID, err)
	}
	return nil
}

func (s *Snapshotter) LoadSnapshot(ctx context.Context, aggType, aggID string) (*es.Snapshot, error) {
	var (
		snapshot  = es.Snapshot{AggregateType: aggType, AggregateID: aggID}
		seq       int64
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT snapshot_id, seq, created_at, schema_version, encoding, data
		FROM snapshots
		WHERE aggregate_type = ? AND aggregate_id = ?`,
		aggType, aggID,
	).Scan(&snapshot.SnapshotID, &seq, &createdAt, &snapshot.SchemaVersion, &snapshot.Encoding, &snapshot.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, es.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %s-%s: %w", aggType, aggID, err)
	}

	snapshot.SequenceNumber = es.Version(seq)
	snapshot.CreatedAt = time.UnixMilli(createdAt)
	return &snapshot, nil
}

var _ es.Snapshotter = (*Snapshotter)(nil)
