package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesledger/pkg/config"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
	"github.com/angelmondragon/salesledger/pkg/logger"
	"github.com/angelmondragon/salesledger/pkg/metrics"
	"github.com/angelmondragon/salesledger/pkg/outbox/registry"
)

const (
	defaultBatchSize    = 50
	defaultMaxAttempts  = 10
	defaultPublishLanes = 8
	publishTimeout      = 15 * time.Second
	maxBackoff          = 10 * time.Second
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

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

// publisher is the slice of *pubsub.Publisher the service drives.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
	Stop()
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

// Service drains outbox_events onto the order events topic. Each batch is
// split into per-order lanes: lanes publish concurrently, events inside a lane
// publish in row order, and a transient failure holds back the rest of its
// lane until the next poll.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	pubsub       pubSubClient
	registry     registryResolver
	dlq          dlqRepository
	newPublisher publisherFactory
	metrics      *metrics.OutboxMetrics
	batchSize    int
	maxAttempts  int
	lanes        int
	pollInterval time.Duration

	mu         sync.Mutex
	publishers map[string]publisher
}

func NewService(params ServiceParams) (*Service, error) {
	required := []struct {
		name    string
		missing bool
	}{
		{"config", params.Config == nil},
		{"logger", params.Logger == nil},
		{"database client", params.DB == nil},
		{"pubsub client", params.PubSub == nil},
		{"outbox repository", params.Repository == nil},
		{"event registry", params.Registry == nil},
		{"dlq repository", params.DLQRepository == nil},
	}
	for _, dep := range required {
		if dep.missing {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	cfg := params.Config.Outbox
	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		newPublisher: factory,
		metrics:      params.Metrics,
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		lanes:        positiveOr(cfg.PublishLanes, defaultPublishLanes),
		pollInterval: cfg.PollInterval(),
		publishers:   map[string]publisher{},
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is canceled. A batch that made progress is followed
// immediately by the next one; errors back off exponentially.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}
	defer s.stopPublishers()

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		progressed, err := s.processBatch(ctx)
		wait := s.pollInterval
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			wait = backoff
		case progressed:
			backoff = s.pollInterval
			continue
		default:
			backoff = s.pollInterval
		}

		if err := sleepCtx(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

func (s *Service) checkDependencies(ctx context.Context) error {
	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	}
	for _, c := range checks {
		if err := c.ping(ctx); err != nil {
			s.logg.Error(ctx, c.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", c.name, err)
		}
	}
	return nil
}

type verdict int

const (
	verdictPending verdict = iota
	verdictPublished
	verdictRetry
	verdictDeadLetter
	verdictDeferred
)

// delivery tracks one outbox row through a batch.
type delivery struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	verdict  verdict
	reason   enums.OutboxDLQErrorReason
	err      error
}

// processBatch reports whether any row reached a final state (published or
// dead-lettered).
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	progressed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		deliveries := s.resolveAll(events)
		s.dispatch(ctx, deliveries)

		var settleErr error
		progressed, settleErr = s.settle(ctx, tx, deliveries)
		return settleErr
	})
	return progressed, err
}

func (s *Service) resolveAll(events []models.OutboxEvent) []delivery {
	out := make([]delivery, len(events))
	for i, event := range events {
		out[i].event = event
		resolved, err := s.registry.Resolve(event)
		if err != nil {
			out[i].verdict = verdictDeadLetter
			out[i].reason = enums.OutboxDLQReasonNonRetryable
			out[i].err = err
			continue
		}
		out[i].resolved = resolved
	}
	return out
}

// dispatch publishes every pending delivery. Each lane goroutine only writes
// to the deliveries it owns.
func (s *Service) dispatch(ctx context.Context, deliveries []delivery) {
	var order []string
	lanes := map[string][]int{}
	for i, d := range deliveries {
		key := orderingKey(d.event)
		if _, ok := lanes[key]; !ok {
			order = append(order, key)
		}
		lanes[key] = append(lanes[key], i)
	}

	var g errgroup.Group
	g.SetLimit(s.lanes)
	for _, key := range order {
		lane := lanes[key]
		g.Go(func() error {
			s.publishLane(ctx, deliveries, lane)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) publishLane(ctx context.Context, deliveries []delivery, lane []int) {
	blocked := false
	for _, i := range lane {
		d := &deliveries[i]
		if d.verdict != verdictPending {
			continue
		}
		if blocked {
			d.verdict = verdictDeferred
			continue
		}

		err := s.publish(ctx, d)
		var nonRetry registry.NonRetryableError
		switch {
		case err == nil:
			d.verdict = verdictPublished
		case errors.As(err, &nonRetry):
			d.verdict, d.reason, d.err = verdictDeadLetter, enums.OutboxDLQReasonNonRetryable, err
		case d.event.AttemptCount+1 >= s.maxAttempts:
			d.verdict, d.reason = verdictDeadLetter, enums.OutboxDLQReasonMaxAttempts
			d.err = fmt.Errorf("max publish attempts reached: %w", err)
		default:
			d.verdict, d.err = verdictRetry, err
			blocked = true
		}
	}
}

func (s *Service) publish(ctx context.Context, d *delivery) error {
	topic := d.resolved.Descriptor.Topic
	pub := s.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	key := orderingKey(d.event)
	msg := &gcppubsub.Message{
		Data:        d.event.Payload,
		OrderingKey: key,
		Attributes: map[string]string{
			"event_id":       d.resolved.Envelope.EventID,
			"event_type":     string(d.event.EventType),
			"aggregate_type": string(d.event.AggregateType),
			"aggregate_id":   d.event.AggregateID,
			"created_at":     d.event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		// A failed ordered publish pauses the key until resumed.
		pub.ResumePublish(key)
		return err
	}
	return nil
}

// settle records every verdict inside the batch transaction.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, deliveries []delivery) (bool, error) {
	progressed := false
	for i := range deliveries {
		d := &deliveries[i]
		fields := s.eventFields(d)
		eventType := string(d.event.EventType)

		switch d.verdict {
		case verdictPublished:
			if err := s.repo.MarkPublishedTx(tx, d.event.ID); err != nil {
				return progressed, fmt.Errorf("mark published %s: %w", d.event.ID, err)
			}
			s.metrics.IncPublished(eventType)
			s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
			progressed = true
		case verdictRetry:
			fields["attempt_count"] = d.event.AttemptCount + 1
			s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox publish failed")
			s.metrics.IncFailed(eventType)
			if err := s.repo.MarkFailedTx(tx, d.event.ID, d.err); err != nil {
				return progressed, fmt.Errorf("mark failure %s: %w", d.event.ID, err)
			}
		case verdictDeadLetter:
			if err := s.deadLetter(ctx, tx, d, fields); err != nil {
				return progressed, err
			}
			progressed = true
		case verdictDeferred:
			s.logg.Debug(s.logg.WithFields(ctx, fields), "outbox event held behind failed predecessor")
		}
	}
	return progressed, nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, d *delivery, fields map[string]any) error {
	fields["error_reason"] = d.reason
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox event will not be retried")
	s.metrics.IncDeadLetter(string(d.event.EventType), string(d.reason))

	msg := d.err.Error()
	entry := models.OutboxDLQ{
		EventID:       d.event.ID,
		EventType:     d.event.EventType,
		AggregateType: d.event.AggregateType,
		AggregateID:   d.event.AggregateID,
		Payload:       d.event.Payload,
		ErrorReason:   d.reason,
		ErrorMessage:  &msg,
		AttemptCount:  d.event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", d.event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, d.event.ID, d.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", d.event.ID, err)
	}
	return nil
}

func (s *Service) eventFields(d *delivery) map[string]any {
	fields := map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID,
		"attempt_count":  d.event.AttemptCount,
	}
	if d.resolved != nil {
		fields["event_id"] = d.resolved.Envelope.EventID
		fields["topic"] = d.resolved.Descriptor.Topic
	}
	if d.err != nil {
		fields["error"] = d.err.Error()
	}
	if d.event.LastError != nil {
		fields["last_error"] = *d.event.LastError
	}
	return fields
}

func (s *Service) publisherFor(topic string) publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.publishers[topic]; ok {
		return p
	}
	p := s.newPublisher(topic)
	if p != nil {
		s.publishers[topic] = p
	}
	return p
}

// stopPublishers flushes and releases every cached topic publisher.
func (s *Service) stopPublishers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, p := range s.publishers {
		p.Stop()
		delete(s.publishers, topic)
	}
}

// orderingKey keeps every event of one order on a single Pub/Sub ordering key.
func orderingKey(event models.OutboxEvent) string {
	return string(event.AggregateType) + ":" + event.AggregateID
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
