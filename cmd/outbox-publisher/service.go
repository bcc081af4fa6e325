package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/pkg/config"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/logger"
	"github.com/angelmondragon/settlement-core/pkg/outbox/registry"
)

const (
	workerName          = "outbox-publisher"
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
	publishTimeout      = 15 * time.Second
	maxErrorBackoff     = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

// claimer remembers events already handed to the broker so a row whose
// publish succeeded but whose mark failed is not sent twice.
type claimer interface {
	Claim(ctx context.Context, worker string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, worker string, eventID uuid.UUID) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// disposition is what one pass did with a row.
type disposition int

const (
	dispositionPublished disposition = iota
	dispositionReplayed
	dispositionRetry
	dispositionTerminal
)

type passStats struct {
	published int
	replayed  int
	retried   int
	terminal  int
}

func (p *passStats) record(d disposition) {
	switch d {
	case dispositionPublished:
		p.published++
	case dispositionReplayed:
		p.replayed++
	case dispositionRetry:
		p.retried++
	case dispositionTerminal:
		p.terminal++
	}
}

func (p passStats) rows() int {
	return p.published + p.replayed + p.retried + p.terminal
}

type tuning struct {
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func tuningFrom(cfg config.OutboxConfig) tuning {
	t := tuning{
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		pollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
	if t.batchSize <= 0 {
		t.batchSize = defaultBatchSize
	}
	if t.maxAttempts <= 0 {
		t.maxAttempts = defaultMaxAttempts
	}
	if t.pollInterval <= 0 {
		t.pollInterval = defaultPollInterval
	}
	return t
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	Claims           claimer
}

// Service relays committed outbox rows to their Pub/Sub topics.
type Service struct {
	logg       *logger.Logger
	db         dbClient
	repo       outboxRepository
	pubsub     pubSubClient
	registry   registryResolver
	claims     claimer
	publishers publisherFactory
	tuning     tuning
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
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
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			p := params.PubSub.Publisher(topic)
			if p == nil {
				return nil
			}
			return topicPublisher{p: p}
		}
	}

	return &Service{
		logg:       params.Logger,
		db:         params.DB,
		repo:       params.Repository,
		pubsub:     params.PubSub,
		registry:   params.Registry,
		claims:     params.Claims,
		publishers: factory,
		tuning:     tuningFrom(params.Config.Outbox),
	}, nil
}

// Run drains the outbox until ctx is cancelled. Busy passes loop straight
// away; idle passes wait one poll interval and failed passes back off.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	wait := s.tuning.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		stats, err := s.drain(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publish pass failed", err)
			wait = min(wait*2, maxErrorBackoff)
		case stats.rows() > 0:
			s.logPass(ctx, stats)
			wait = s.tuning.pollInterval
			continue
		default:
			wait = s.tuning.pollInterval
		}

		if err := sleepCtx(ctx, jittered(wait)); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}
	}
}

func (s *Service) ready(ctx context.Context) error {
	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	}
	var errs error
	for _, c := range checks {
		if err := c.ping(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s ping: %w", c.name, err))
		}
	}
	if errs != nil {
		s.logg.Error(ctx, "outbox publisher dependencies not ready", errs)
	}
	return errs
}

// drain handles one locked batch inside a single transaction.
func (s *Service) drain(ctx context.Context) (passStats, error) {
	var stats passStats
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.FetchUnpublishedForPublish(tx, s.tuning.batchSize, s.tuning.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox rows: %w", err)
		}
		for _, row := range rows {
			d, err := s.dispatch(ctx, tx, row)
			if err != nil {
				return err
			}
			stats.record(d)
		}
		return nil
	})
	return stats, err
}

func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (disposition, error) {
	fields := rowFields(row)
	resolved, err := s.registry.Resolve(row)
	if err != nil {
		return s.park(ctx, tx, row, "unresolvable", err, fields)
	}
	fields["event_id"] = resolved.Envelope.EventID
	fields["topic"] = resolved.Descriptor.Topic
	logCtx := s.logg.WithFields(ctx, fields)

	replayed, err := s.claim(ctx, row.ID)
	if err != nil {
		return 0, fmt.Errorf("claim %s: %w", row.ID, err)
	}
	if replayed {
		s.logg.Warn(logCtx, "outbox event already handed to broker, marking published")
		return dispositionReplayed, s.markPublished(tx, row.ID)
	}

	sendErr := s.send(ctx, row, resolved)
	if sendErr == nil {
		if err := s.markPublished(tx, row.ID); err != nil {
			return 0, err
		}
		s.logg.Info(logCtx, "outbox event published")
		return dispositionPublished, nil
	}
	s.release(logCtx, row.ID)

	var permanent registry.NonRetryableError
	if errors.As(sendErr, &permanent) {
		return s.park(ctx, tx, row, "non_retryable", sendErr, fields)
	}
	attempt := row.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.tuning.maxAttempts {
		return s.park(ctx, tx, row, "max_attempts", fmt.Errorf("max publish attempts reached: %w", sendErr), fields)
	}

	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", sendErr.Error()), "outbox publish failed, will retry")
	if err := s.repo.MarkFailedTx(tx, row.ID, sendErr); err != nil {
		return 0, fmt.Errorf("mark failure %s: %w", row.ID, err)
	}
	return dispositionRetry, nil
}

// park stops retrying the row. It stays in the table with attempt_count at
// the cap until the retention job deletes it.
func (s *Service) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason string, cause error, fields map[string]any) (disposition, error) {
	fields["terminal_reason"] = reason
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event will not be retried")
	if err := s.repo.MarkTerminalTx(tx, row.ID, cause, s.tuning.maxAttempts); err != nil {
		return 0, fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return dispositionTerminal, nil
}

func (s *Service) markPublished(tx *gorm.DB, id uuid.UUID) error {
	if err := s.repo.MarkPublishedTx(tx, id); err != nil {
		return fmt.Errorf("mark published %s: %w", id, err)
	}
	return nil
}

func (s *Service) claim(ctx context.Context, eventID uuid.UUID) (bool, error) {
	if s.claims == nil {
		return false, nil
	}
	return s.claims.Claim(ctx, workerName, eventID)
}

func (s *Service) release(ctx context.Context, eventID uuid.UUID) {
	if s.claims == nil {
		return
	}
	if err := s.claims.Release(ctx, workerName, eventID); err != nil {
		s.logg.Error(ctx, "failed to release publish claim", err)
	}
}

func (s *Service) send(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(sendCtx, &gcppubsub.Message{
		Data:       row.Payload,
		Attributes: messageAttributes(row, resolved),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for topic %s returned no result", topic))
	}
	if _, err := result.Get(sendCtx); err != nil {
		return classifyPublishError(err)
	}
	return nil
}

// classifyPublishError marks broker rejections that a retry cannot fix.
func classifyPublishError(err error) error {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.FailedPrecondition:
		return registry.NewNonRetryableError(err)
	default:
		return err
	}
}

func messageAttributes(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if !resolved.Envelope.OccurredAt.IsZero() {
		attrs["occurred_at"] = resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	return attrs
}

func rowFields(row models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}

func (s *Service) logPass(ctx context.Context, stats passStats) {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"published": stats.published,
		"replayed":  stats.replayed,
		"retried":   stats.retried,
		"terminal":  stats.terminal,
	}), "outbox pass complete")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jittered(d time.Duration) time.Duration {
	return d + rand.N(jitterWindow)
}

type topicPublisher struct {
	p *gcppubsub.Publisher
}

func (t topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return t.p.Publish(ctx, msg)
}
