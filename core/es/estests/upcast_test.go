package estests

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axleworks/axle-go/core/es"
	"github.com/axleworks/axle-go/core/es/estests/domain"
	"github.com/axleworks/axle-go/core/serializer"
	"github.com/axleworks/axle-go/internal/reflector"
)

// Streams written by an older release carry "legacy.Deposit" payloads with a
// "value" field; the upcaster rewrites them on read to the current type.
func TestRepository_UpcastsLegacyEvents(t *testing.T) {
	depositedType := reflector.TypeInfoFor[domain.Deposited]().Name

	legacy := serializer.UpcastFrom("legacy.Deposit", "", func(obj serializer.SerializedObject) (serializer.SerializedObject, error) {
		var old struct {
			Value int64 `json:"value"`
		}
		if err := json.Unmarshal(obj.Data, &old); err != nil {
			return obj, err
		}
		data, err := json.Marshal(domain.Deposited{Amount: old.Value})
		if err != nil {
			return obj, err
		}
		return serializer.SerializedObject{
			Data: data,
			Type: serializer.SerializedType{Name: depositedType},
		}, nil
	})

	te := es.StartTestEnv(t,
		es.WithAggregates(new(domain.Account)),
		es.WithRepoOptions(es.WithUpcasters(serializer.NewChain(legacy))),
	)

	created, err := json.Marshal(es.AggregateCreated{ID: "a-1", CreatedAt: time.Now()})
	require.NoError(t, err)
	envs := []es.Envelope{
		{
			ID:             "e-0",
			SequenceNumber: 0,
			AggregateType:  "account",
			AggregateID:    "a-1",
			Type:           reflector.TypeInfoFor[es.AggregateCreated]().Name,
			OccurredAt:     time.Now(),
			Data:           created,
		},
		{
			ID:             "e-1",
			SequenceNumber: 1,
			AggregateType:  "account",
			AggregateID:    "a-1",
			Type:           "legacy.Deposit",
			OccurredAt:     time.Now(),
			Data:           []byte(`{"value":250}`),
		},
	}
	_, err = te.Store.Append(context.Background(), "account", "a-1", es.NewStream, envs)
	require.NoError(t, err)

	repo := es.NewTypedRepositoryFrom[*domain.Account](slog.Default(), te.Repository())
	a, err := repo.GetByID(context.Background(), "a-1")
	require.NoError(t, err)
	assert.EqualValues(t, 250, a.Balance)
	assert.EqualValues(t, 1, a.GetVersion())
}
