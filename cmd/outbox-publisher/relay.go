package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/config"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
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

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type RelayParams struct {
	Config     *config.OutboxConfig
	Logger     *logger.Logger
	DB         dbClient
	PubSub     pubSubClient
	Repository outboxRepository
	Resolver   eventResolver
	DLQ        dlqRepository
	// Topics overrides the pubsub-backed publisher lookup.
	Topics topicPublishers
}

// Relay moves committed outbox rows onto their pubsub topics. Events that
// share an ordering key go out in commit order.
type Relay struct {
	logg        *logger.Logger
	db          dbClient
	pubsub      pubSubClient
	repo        outboxRepository
	resolver    eventResolver
	dlq         dlqRepository
	topics      topicPublishers
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("outbox config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Resolver == nil:
		return nil, errors.New("event resolver is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	}
	topics := params.Topics
	if topics == nil {
		topics = newOrderedTopics(params.PubSub)
	}
	r := &Relay{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		repo:        params.Repository,
		resolver:    params.Resolver,
		dlq:         params.DLQ,
		topics:      topics,
		batchSize:   params.Config.BatchSize,
		maxAttempts: params.Config.MaxAttempts,
		poll:        time.Duration(params.Config.PollIntervalMS) * time.Millisecond,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = defaultPollInterval
	}
	return r, nil
}

func (r *Relay) ready(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}
	return nil
}

// Run drains the outbox until ctx ends. A full batch is followed immediately
// by the next one; an idle poll waits one interval; a failing transaction
// backs off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.ready(ctx); err != nil {
		r.logg.Error(ctx, "outbox relay dependencies unavailable", err)
		return err
	}
	wait := backoff{base: r.poll, ceiling: maxBackoff}
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}
		stats, err := r.relayBatch(ctx)
		var pause time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			pause = wait.next()
		case stats.fetched == 0:
			wait.reset()
			pause = r.poll
		default:
			wait.reset()
			if stats.fetched < r.batchSize || stats.published == 0 {
				pause = r.poll
			}
		}
		if err := sleepCtx(ctx, withJitter(pause)); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}
	}
}
