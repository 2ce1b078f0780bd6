package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perfcycle/pms-backend/pkg/config"
	"github.com/perfcycle/pms-backend/pkg/db/models"
	"github.com/perfcycle/pms-backend/pkg/lock"
	"github.com/perfcycle/pms-backend/pkg/logger"
	"github.com/perfcycle/pms-backend/pkg/metrics"
)

const (
	defaultBatchSize    = 50
	defaultMaxRetries   = 5
	defaultRetryDelay   = 30 * time.Second
	defaultSendTimeout  = 2 * time.Second
	defaultPollInterval = 5 * time.Second
	maxBackoff          = 60 * time.Second
	jitterWindow        = 250 * time.Millisecond

	// last_error and the dead letter error column share this cap.
	maxRelayErrorLen = 1800
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type pinger interface {
	Ping(context.Context) error
}

type outboxRepository interface {
	FetchDueTx(tx *gorm.DB, limit int, now time.Time) ([]models.OutboxRecord, error)
	MarkSentTx(tx *gorm.DB, id uuid.UUID, sentAt time.Time) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, attemptCount int, lastError string, nextAttemptAt time.Time) error
	MarkDeadLetterTx(tx *gorm.DB, id uuid.UUID, attemptCount int, lastError string) error
	CountStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry *models.DeadLetterEvent) error
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
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
	DLQRepository    dlqRepository
	Lock             lock.Lock
	Redis            pinger
	Metrics          *metrics.OutboxMetrics
	PublisherFactory publisherFactory
	Now              func() time.Time
}

type Service struct {
	cfg              *config.Config
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	dlq              dlqRepository
	pubsub           pubSubClient
	lock             lock.Lock
	redis            pinger
	metrics          *metrics.OutboxMetrics
	publisherFactory publisherFactory
	now              func() time.Time
	batchSize        int
	maxRetries       int
	retryDelay       time.Duration
	sendTimeout      time.Duration
	staleThreshold   time.Duration
	pollInterval     time.Duration
	dlqTopic         string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.DLQRepository == nil {
		return nil, errors.New("dlq repository is required")
	}
	if params.Lock == nil {
		return nil, errors.New("relay lock is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			pub := params.PubSub.Publisher(topic)
			if pub == nil {
				return nil
			}
			return newGCPPublisher(pub)
		}
	}

	nowFn := params.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}

	outboxCfg := params.Config.Outbox
	batch := outboxCfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	maxRetries := outboxCfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryDelay := outboxCfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	sendTimeout := outboxCfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	poll := outboxCfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	return &Service{
		cfg:              params.Config,
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		dlq:              params.DLQRepository,
		pubsub:           params.PubSub,
		lock:             params.Lock,
		redis:            params.Redis,
		metrics:          params.Metrics,
		publisherFactory: factory,
		now:              nowFn,
		batchSize:        batch,
		maxRetries:       maxRetries,
		retryDelay:       retryDelay,
		sendTimeout:      sendTimeout,
		staleThreshold:   outboxCfg.StaleThreshold,
		pollInterval:     poll,
		dlqTopic:         params.Config.PubSub.DeadLetterTopic,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}
	if s.redis != nil {
		if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
			return err
		}
	}
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run polls the outbox until the context is canceled. Each cycle is guarded by
// the Redis lease so only one relay instance drains the table at a time.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "audit relay context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.runCycle(ctx)
		if err != nil {
			s.logg.Error(ctx, "audit relay cycle error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// runCycle takes the lease, drains one batch, refreshes the stale gauge and
// records the cycle duration. A lost lease is not an error; another instance
// owns this cycle.
func (s *Service) runCycle(ctx context.Context) (bool, error) {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire relay lease: %w", err)
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Warn(ctx, fmt.Sprintf("failed to release relay lease: %v", err))
		}
	}()

	start := s.now()
	processed, err := s.processBatch(ctx)
	s.metrics.ObserveCycleDuration(s.now().Sub(start))

	s.refreshStaleGauge(ctx)

	return processed, err
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		records, err := s.repo.FetchDueTx(tx, s.batchSize, s.now())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		processed = true
		for _, record := range records {
			fields := s.recordFields(record)

			if err := s.publishRecord(ctx, record); err != nil {
				attempts := record.AttemptCount + 1
				lastError := compactError(err)
				fields["attempt_count"] = attempts

				if attempts >= s.maxRetries {
					if dlErr := s.handleDeadLetter(ctx, tx, record, attempts, lastError, fields); dlErr != nil {
						return dlErr
					}
					continue
				}

				nextAttemptAt := s.now().Add(s.retryDelay)
				ctxWithFields := s.logg.WithFields(ctx, fields)
				ctxWithFields = s.logg.WithField(ctxWithFields, "error", lastError)
				s.logg.Warn(ctxWithFields, "audit event publish failed, scheduled for retry")
				if markErr := s.repo.MarkFailedTx(tx, record.ID, attempts, lastError, nextAttemptAt); markErr != nil {
					return fmt.Errorf("mark failed %s: %w", record.ID, markErr)
				}
				continue
			}

			if markErr := s.repo.MarkSentTx(tx, record.ID, s.now()); markErr != nil {
				return fmt.Errorf("mark sent %s: %w", record.ID, markErr)
			}
			s.metrics.IncPublished()
			s.logg.Info(s.logg.WithFields(ctx, fields), "audit event relayed")
		}
		return nil
	})
	return processed, err
}

// handleDeadLetter parks the record terminally. The dead letter row and the
// status flip commit atomically with the rest of the batch; the copy to the
// DLQ topic is best effort because the table row is the durable record.
func (s *Service) handleDeadLetter(ctx context.Context, tx *gorm.DB, record models.OutboxRecord, attempts int, lastError string, fields map[string]any) error {
	entry := &models.DeadLetterEvent{
		EventID:      record.EventID,
		Topic:        record.Topic,
		Payload:      record.Payload,
		ErrorMessage: &lastError,
		AttemptCount: attempts,
		FailedAt:     s.now(),
	}
	if dlqErr := s.dlq.InsertTx(tx, entry); dlqErr != nil {
		return fmt.Errorf("insert dead letter %s: %w", record.ID, dlqErr)
	}
	if markErr := s.repo.MarkDeadLetterTx(tx, record.ID, attempts, lastError); markErr != nil {
		return fmt.Errorf("mark dead letter %s: %w", record.ID, markErr)
	}

	s.metrics.IncDeadLetter()

	ctxWithFields := s.logg.WithFields(ctx, fields)
	ctxWithFields = s.logg.WithField(ctxWithFields, "error", lastError)
	s.logg.Warn(ctxWithFields, "audit event dead lettered after max retries")

	s.forwardDeadLetter(ctx, record)
	return nil
}

func (s *Service) forwardDeadLetter(ctx context.Context, record models.OutboxRecord) {
	if s.dlqTopic == "" {
		return
	}
	pub := s.publisherFactory(s.dlqTopic)
	if pub == nil {
		s.logg.Warn(ctx, fmt.Sprintf("dead letter topic %s not configured, skipping forward", s.dlqTopic))
		return
	}

	msg := &gcppubsub.Message{
		Data:        record.Payload,
		OrderingKey: record.MessageKey,
		Attributes: map[string]string{
			"event_id":     record.EventID,
			"source_topic": record.Topic,
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		s.logg.Warn(ctx, fmt.Sprintf("dead letter forward returned no result for event %s", record.EventID))
		return
	}
	if _, err := result.Get(publishCtx); err != nil {
		ctxWithField := s.logg.WithField(ctx, "error", err.Error())
		s.logg.Warn(ctxWithField, fmt.Sprintf("dead letter forward failed for event %s", record.EventID))
	}
}

func (s *Service) publishRecord(ctx context.Context, record models.OutboxRecord) error {
	pub := s.publisherFactory(record.Topic)
	if pub == nil {
		return fmt.Errorf("publisher not configured for topic %s", record.Topic)
	}

	msg := &gcppubsub.Message{
		Data:        record.Payload,
		OrderingKey: record.MessageKey,
		Attributes: map[string]string{
			"event_id":   record.EventID,
			"created_at": record.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return fmt.Errorf("publisher returned nil for topic %s", record.Topic)
	}
	if _, err := result.Get(publishCtx); err != nil {
		return err
	}
	return nil
}

func (s *Service) refreshStaleGauge(ctx context.Context) {
	if s.staleThreshold <= 0 {
		return
	}
	cutoff := s.now().Add(-s.staleThreshold)
	count, err := s.repo.CountStale(ctx, cutoff)
	if err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("failed to count stale outbox records: %v", err))
		return
	}
	s.metrics.SetStaleBacklog(count)
}

func (s *Service) recordFields(record models.OutboxRecord) map[string]any {
	fields := map[string]any{
		"outbox_id":     record.ID.String(),
		"event_id":      record.EventID,
		"topic":         record.Topic,
		"message_key":   record.MessageKey,
		"attempt_count": record.AttemptCount,
		"batch_size":    s.batchSize,
	}
	if record.LastError != nil {
		fields["last_error"] = *record.LastError
	}
	return fields
}

func compactError(err error) string {
	if err == nil {
		return ""
	}
	category := "publish_error"
	if errors.Is(err, context.DeadlineExceeded) {
		category = "timeout"
	}
	msg := category + ": " + strings.TrimSpace(err.Error())
	if len(msg) > maxRelayErrorLen {
		cut := maxRelayErrorLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		return msg[:cut]
	}
	return msg
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
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

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
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
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
