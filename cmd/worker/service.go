package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
)

const (
	defaultAnchorBatch = 25
	defaultAnchorPoll  = 2 * time.Second
)

type pinger interface {
	Ping(context.Context) error
}

type anchorProcessor interface {
	ProcessDue(ctx context.Context, limit int) (int, error)
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	DB           pinger
	PubSub       pinger
	Anchors      anchorProcessor
	Consumer     consumer
	BatchSize    int
	PollInterval time.Duration
}

// Service drives the ledger anchoring queue and, when configured, the settlement consumer.
type Service struct {
	logg     *logger.Logger
	db       pinger
	pubsub   pinger
	anchors  anchorProcessor
	consumer consumer
	batch    int
	poll     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Anchors == nil {
		return nil, errors.New("anchor service is required")
	}
	if params.Consumer != nil && params.PubSub == nil {
		return nil, errors.New("pubsub client is required for the settlement consumer")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAnchorBatch
	}
	poll := params.PollInterval
	if poll <= 0 {
		poll = defaultAnchorPoll
	}
	return &Service{
		logg:     params.Logger,
		db:       params.DB,
		pubsub:   params.PubSub,
		anchors:  params.Anchors,
		consumer: params.Consumer,
		batch:    batch,
		poll:     poll,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if s.pubsub != nil {
		if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	if s.consumer != nil {
		go func() {
			errCh <- s.consumer.Run(ctx)
		}()
	}

	for {
		processed := s.drainOnce(ctx)
		// a full batch means more work is probably due
		if processed >= s.batch {
			select {
			case <-ctx.Done():
				s.logg.Info(ctx, "worker context canceled")
				return ctx.Err()
			case err := <-errCh:
				return s.consumerStopped(ctx, err)
			default:
			}
			continue
		}

		timer := time.NewTimer(s.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		case err := <-errCh:
			timer.Stop()
			return s.consumerStopped(ctx, err)
		case <-timer.C:
		}
	}
}

func (s *Service) drainOnce(ctx context.Context) int {
	processed, err := s.anchors.ProcessDue(ctx, s.batch)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "anchor batch failed", err)
		}
		return 0
	}
	if processed > 0 {
		s.logg.Debug(s.logg.WithField(ctx, "processed", processed), "anchor batch complete")
	}
	return processed
}

func (s *Service) consumerStopped(ctx context.Context, err error) error {
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "settlement consumer stopped unexpectedly", err)
		return err
	}
	if err == nil {
		return errors.New("settlement consumer exited")
	}
	return err
}
