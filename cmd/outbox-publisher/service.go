package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/petalpost/storefront-backend/pkg/config"
	"github.com/petalpost/storefront-backend/pkg/db/models"
	"github.com/petalpost/storefront-backend/pkg/logger"
	"github.com/petalpost/storefront-backend/pkg/outbox/registry"
	"github.com/petalpost/storefront-backend/pkg/pubsub"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	maxBackoff            = 10 * time.Second
	backoffJitter         = 250 * time.Millisecond
)

type outboxRepository interface {
	FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	MarkTerminal(ctx context.Context, id uuid.UUID, maxAttempts int, err error) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type pinger interface {
	Ping(context.Context) error
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

type ServiceParams struct {
	Config           config.OutboxConfig
	Logger           *logger.Logger
	DB               pinger
	PubSub           pinger
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
}

// Service drains outbox_events into Pub/Sub. Rows are published at least
// once; consumers dedupe on the event_id attribute.
type Service struct {
	logg         *logger.Logger
	db           pinger
	pubsub       pinger
	repo         outboxRepository
	registry     registryResolver
	publishers   publisherFactory
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.PublisherFactory == nil:
		return nil, errors.New("publisher factory is required")
	}
	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		repo:         params.Repository,
		registry:     params.Registry,
		publishers:   params.PublisherFactory,
		batchSize:    params.Config.BatchSize,
		maxAttempts:  params.Config.MaxAttempts,
		pollInterval: time.Duration(params.Config.PollIntervalMS) * time.Millisecond,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollMs * time.Millisecond
	}
	return s, nil
}

// Run polls until ctx is cancelled. Consecutive batch failures back off
// exponentially up to maxBackoff; an idle queue sleeps one poll interval.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}

	backoff := s.newBackoff()
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox.publisher.stopped")
			return err
		}

		stats, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			wait, _ = backoff.Next()
		case stats.published > 0:
			backoff = s.newBackoff()
			continue
		case stats.attempted > 0:
			// nothing went out; do not burn attempts in a tight loop
			wait, _ = backoff.Next()
		default:
			backoff = s.newBackoff()
			wait = s.pollInterval
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Service) newBackoff() retry.Backoff {
	b := retry.NewExponential(s.pollInterval)
	b = retry.WithCappedDuration(maxBackoff, b)
	return retry.WithJitter(backoffJitter, b)
}

type batchStats struct {
	attempted int
	published int
}

// processBatch sends one page of rows. A row failure is recorded on the row
// and never aborts the batch; only repository errors do.
func (s *Service) processBatch(ctx context.Context) (batchStats, error) {
	var stats batchStats
	events, err := s.repo.FetchUnpublished(ctx, s.batchSize, s.maxAttempts)
	if err != nil {
		return stats, fmt.Errorf("fetch unpublished: %w", err)
	}
	for _, event := range events {
		stats.attempted++
		published, err := s.dispatch(ctx, event)
		if err != nil {
			return stats, err
		}
		if published {
			stats.published++
		}
	}
	return stats, nil
}

func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) (bool, error) {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
		"aggregate_type": event.AggregateType,
	}

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return false, s.park(ctx, event, fields, err)
	}
	fields["event_id"] = resolved.Envelope.EventID
	fields["topic"] = resolved.Descriptor.Topic

	err = s.publish(ctx, event, resolved)
	switch {
	case err == nil:
		if markErr := s.repo.MarkPublished(ctx, event.ID); markErr != nil {
			return false, fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox.published")
		return true, nil
	case isNonRetryable(err) || !pubsub.Retryable(err):
		return false, s.park(ctx, event, fields, err)
	case event.AttemptCount+1 >= s.maxAttempts:
		return false, s.park(ctx, event, fields, fmt.Errorf("max publish attempts reached: %w", err))
	}

	fields["error"] = err.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox.publish_failed")
	if markErr := s.repo.MarkFailed(ctx, event.ID, err); markErr != nil {
		return false, fmt.Errorf("mark failed %s: %w", event.ID, markErr)
	}
	return false, nil
}

// park pushes the row past the attempt cap so it is never fetched again.
func (s *Service) park(ctx context.Context, event models.OutboxEvent, fields map[string]any, cause error) error {
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox.parked")
	if err := s.repo.MarkTerminal(ctx, event.ID, s.maxAttempts, cause); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: resolved.Attributes(event),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned no result for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func isNonRetryable(err error) bool {
	var nonRetry registry.NonRetryableError
	return errors.As(err, &nonRetry)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}

func gcpPublishers(client *pubsub.Client) publisherFactory {
	cache := map[string]publisher{}
	return func(topic string) publisher {
		if pub, ok := cache[topic]; ok {
			return pub
		}
		handle := client.Publisher(topic)
		if handle == nil {
			return nil
		}
		cache[topic] = gcpPublisher{Publisher: handle}
		return cache[topic]
	}
}
