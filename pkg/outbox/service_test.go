package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petalpost/storefront-backend/pkg/db/dbtest"
	"github.com/petalpost/storefront-backend/pkg/db/models"
	"github.com/petalpost/storefront-backend/pkg/enums"
)

func TestEmitWritesEnvelope(t *testing.T) {
	db := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(db)
	svc := NewService(repo, nil)
	ctx := context.Background()
	orderID := uuid.New()

	err := svc.Emit(ctx, db, DomainEvent{
		EventType:     enums.EventOrderConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         &ActorRef{Source: "verify"},
		Data:          map[string]string{"order_number": "ORD1"},
	})
	require.NoError(t, err)

	rows, err := repo.FetchUnpublished(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, currentVersion, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.JSONEq(t, `{"order_number":"ORD1"}`, string(envelope.Data))
	assert.Equal(t, "verify", envelope.Actor.Source)
}

func TestEmitRequiresTx(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	assert.ErrorIs(t, svc.Emit(context.Background(), nil, DomainEvent{}), errTxRequired)
}

func TestEmitRejectsIncompleteEvents(t *testing.T) {
	db := dbtest.Open(t, &models.OutboxEvent{})
	svc := NewService(NewRepository(db), nil)
	ctx := context.Background()

	assert.Error(t, svc.Emit(ctx, db, DomainEvent{EventType: "order_shipped", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()}))
	assert.Error(t, svc.Emit(ctx, db, DomainEvent{EventType: enums.EventOrderConfirmed, AggregateType: enums.AggregateOrder}))
}

func TestStatusEventsMayRepeat(t *testing.T) {
	db := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(db)
	svc := NewService(repo, nil)
	ctx := context.Background()
	event := DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          map[string]string{"status": "processing"},
	}
	require.NoError(t, svc.Emit(ctx, db, event))
	require.NoError(t, svc.EmitIfNotExists(ctx, db, event))

	rows, err := repo.FetchUnpublished(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestEmitIfNotExistsDeduplicates(t *testing.T) {
	db := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(db)
	svc := NewService(repo, nil)
	ctx := context.Background()
	event := DomainEvent{
		EventType:     enums.EventOrderConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          map[string]any{},
	}

	require.NoError(t, svc.EmitIfNotExists(ctx, db, event))
	require.NoError(t, svc.EmitIfNotExists(ctx, db, event))

	rows, err := repo.FetchUnpublished(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(db)
	ctx := context.Background()

	first := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderConfirmed, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderCancelled, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(db, first))
	require.NoError(t, repo.Insert(db, second))

	require.NoError(t, repo.MarkPublished(ctx, first.ID))
	require.NoError(t, repo.MarkFailed(ctx, second.ID, errors.New("pubsub unavailable")))

	rows, err := repo.FetchUnpublished(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, second.ID, rows[0].ID)
	assert.Equal(t, 1, rows[0].AttemptCount)

	require.NoError(t, repo.MarkTerminal(ctx, second.ID, 3, errors.New("bad payload")))
	rows, err = repo.FetchUnpublished(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
