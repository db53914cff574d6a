package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/petalpost/storefront-backend/pkg/db/models"
	"github.com/petalpost/storefront-backend/pkg/enums"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

const currentVersion = 1

var errTxRequired = errors.New("outbox: transaction required")

// DomainEvent is what producers hand to Emit; the envelope is built here.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

// Service queues events in the caller's transaction, so an event exists iff
// the state change that produced it committed.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, logg: logg, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	_, err := s.queue(ctx, tx, event, false)
	return err
}

// EmitIfNotExists queues the event unless one already exists for the same
// (type, aggregate) under a unique index. Order confirmation uses it.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	_, err := s.queue(ctx, tx, event, true)
	return err
}

func (s *Service) queue(ctx context.Context, tx *gorm.DB, event DomainEvent, once bool) (bool, error) {
	if tx == nil {
		return false, errTxRequired
	}
	if !event.EventType.IsValid() || event.EventType.Aggregate() != event.AggregateType || event.AggregateID == uuid.Nil {
		return false, fmt.Errorf("outbox: incomplete event %q for %s %s", event.EventType, event.AggregateType, event.AggregateID)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	row, eventID, err := newRow(event)
	if err != nil {
		return false, err
	}
	queued := true
	if once {
		queued, err = s.repo.InsertOnce(tx, row)
	} else {
		err = s.repo.Insert(tx, row)
	}
	if err != nil {
		return false, fmt.Errorf("outbox: insert %s: %w", event.EventType, err)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":     eventID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID.String(),
	})
	if queued {
		s.logg.Info(logCtx, "outbox.queued")
	} else {
		s.logg.Debug(logCtx, "outbox.already_queued")
	}
	return queued, nil
}

func newRow(event DomainEvent) (models.OutboxEvent, string, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, "", fmt.Errorf("outbox: encode %s data: %w", event.EventType, err)
	}
	envelope := PayloadEnvelope{
		Version:    currentVersion,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, "", fmt.Errorf("outbox: encode envelope: %w", err)
	}
	return models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, envelope.EventID, nil
}
