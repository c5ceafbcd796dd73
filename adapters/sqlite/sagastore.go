package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/axleworks/axle-go/core/saga"
)

// restorable is the rehydration hook provided by saga.BaseSaga.
type restorable interface {
	RestoreIdentity(id string, avs []saga.AssociationValue)
}

// SagaStore is the durable saga.Repository on sqlite. Saga state is stored
// as JSON of the saga value; identity and associations live in their own
// tables so association lookups stay indexed.
type SagaStore struct {
	db  *sql.DB
	log *slog.Logger

	// factories create empty saga values to unmarshal into, per saga type
	factories map[string]saga.Factory
}

func NewSagaStore(d *DB) *SagaStore {
	return &SagaStore{
		db:        d.db,
		log:       d.log.With(slog.String("store", "sagas")),
		factories: map[string]saga.Factory{},
	}
}

// RegisterType declares the factory used to rehydrate sagas of sagaType.
func (s *SagaStore) RegisterType(sagaType string, factory saga.Factory) {
	s.factories[sagaType] = factory
}

func (s *SagaStore) Find(ctx context.Context, sagaType string, av saga.AssociationValue) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT saga_id FROM saga_associations
		WHERE saga_type = ? AND assoc_key = ? AND assoc_val = ?
		ORDER BY rowid ASC`,
		sagaType, av.Key, av.Value,
	)
	if err != nil {
		return nil, fmt.Errorf("association lookup failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SagaStore) Load(ctx context.Context, sagaType, id string) (saga.Saga, error) {
	factory, ok := s.factories[sagaType]
	if !ok {
		return nil, fmt.Errorf("no factory registered for saga type %s", sagaType)
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM sagas WHERE saga_type = ? AND saga_id = ?`,
		sagaType, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, saga.ErrSagaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load saga %s/%s: %w", sagaType, id, err)
	}

	instance := factory()
	if len(data) > 0 {
		if err := json.Unmarshal(data, instance); err != nil {
			return nil, fmt.Errorf("corrupt saga state %s/%s: %w", sagaType, id, err)
		}
	}

	avs, err := s.associationsOf(ctx, sagaType, id)
	if err != nil {
		return nil, err
	}
	r, ok := instance.(restorable)
	if !ok {
		return nil, fmt.Errorf("saga type %s does not embed BaseSaga", sagaType)
	}
	r.RestoreIdentity(id, avs)
	return instance, nil
}

func (s *SagaStore) associationsOf(ctx context.Context, sagaType, id string) ([]saga.AssociationValue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT assoc_key, assoc_val FROM saga_associations
		WHERE saga_type = ? AND saga_id = ?
		ORDER BY rowid ASC`,
		sagaType, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var avs []saga.AssociationValue
	for rows.Next() {
		var av saga.AssociationValue
		if err := rows.Scan(&av.Key, &av.Value); err != nil {
			return nil, err
		}
		avs = append(avs, av)
	}
	return avs, rows.Err()
}

func (s *SagaStore) Add(ctx context.Context, sagaType string, instance saga.Saga) error {
	return s.write(ctx, sagaType, instance)
}

func (s *SagaStore) Commit(ctx context.Context, sagaType string, instance saga.Saga) error {
	if !instance.IsActive() {
		return s.remove(ctx, sagaType, instance.SagaID())
	}
	return s.write(ctx, sagaType, instance)
}

// write upserts the saga state and replaces its association rows in one
// transaction, keeping the index equal to the saga's current associations.
func (s *SagaStore) write(ctx context.Context, sagaType string, instance saga.Saga) error {
	data, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("failed to marshal saga state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	id := instance.SagaID()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sagas (saga_type, saga_id, data) VALUES (?, ?, ?)
		ON CONFLICT (saga_type, saga_id) DO UPDATE SET data = excluded.data`,
		sagaType, id, data,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM saga_associations WHERE saga_type = ? AND saga_id = ?`,
		sagaType, id,
	); err != nil {
		return err
	}
	for _, av := range instance.AssociationValues() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO saga_associations (saga_type, assoc_key, assoc_val, saga_id)
			VALUES (?, ?, ?, ?)`,
			sagaType, av.Key, av.Value, id,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SagaStore) remove(ctx context.Context, sagaType, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM saga_associations WHERE saga_type = ? AND saga_id = ?`,
		sagaType, id,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM sagas WHERE saga_type = ? AND saga_id = ?`,
		sagaType, id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

var _ saga.Repository = (*SagaStore)(nil)
