package services

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type SchedulerOptions struct {
	InstanceID string
	CloseSpec  string
	RelaySpec  string
	BatchSize  int
	RelayDelay time.Duration
}

// CronAuctionScheduler closes auctions whose window has elapsed and relays
// unpublished outbox events. Only the instance holding leadership runs the jobs.
type CronAuctionScheduler struct {
	cron           *cron.Cron
	store          domain.Store
	auctionMgr     *AuctionManager
	dispatcher     *EventDispatcher
	leaderElection domain.LeaderElection
	opts           SchedulerOptions
	clock          domain.Clock
	log            logger.Logger
}

var _ domain.AuctionScheduler = (*CronAuctionScheduler)(nil)

// NewCronAuctionScheduler builds a scheduler; a nil leaderElection means this instance always runs the jobs.
func NewCronAuctionScheduler(store domain.Store, auctionMgr *AuctionManager, dispatcher *EventDispatcher,
	leaderElection domain.LeaderElection, opts SchedulerOptions, clock domain.Clock, log logger.Logger) *CronAuctionScheduler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	cronLog := cronLogger{log: log}
	return &CronAuctionScheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		store:          store,
		auctionMgr:     auctionMgr,
		dispatcher:     dispatcher,
		leaderElection: leaderElection,
		opts:           opts,
		clock:          clock,
		log:            log,
	}
}

func (s *CronAuctionScheduler) Start(ctx context.Context) error {
	s.log.Info("Starting auction scheduler", "close_spec", s.opts.CloseSpec, "relay_spec", s.opts.RelaySpec)

	if _, err := s.cron.AddFunc(s.opts.CloseSpec, func() {
		s.runAsLeader(ctx, "close_due", s.SweepOnce)
	}); err != nil {
		return fmt.Errorf("scheduler: close spec %q: %w", s.opts.CloseSpec, err)
	}

	if _, err := s.cron.AddFunc(s.opts.RelaySpec, func() {
		s.runAsLeader(ctx, "relay_events", s.RelayOnce)
	}); err != nil {
		return fmt.Errorf("scheduler: relay spec %q: %w", s.opts.RelaySpec, err)
	}

	s.cron.Start()
	return nil
}

func (s *CronAuctionScheduler) Stop() error {
	s.log.Info("Stopping auction scheduler")
	<-s.cron.Stop().Done()

	if s.leaderElection != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.leaderElection.ReleaseLeadership(ctx, s.opts.InstanceID)
	}
	return nil
}

func (s *CronAuctionScheduler) runAsLeader(ctx context.Context, job string, fn func(context.Context) (int, error)) {
	if ctx.Err() != nil {
		return
	}

	if s.leaderElection != nil {
		isLeader, err := s.leaderElection.BecomeLeader(ctx, s.opts.InstanceID)
		if err != nil {
			s.log.Error("Leader election failed", "job", job, "error", err)
			return
		}
		if !isLeader {
			s.log.Debug("Not leader, skipping job", "job", job, "instance_id", s.opts.InstanceID)
			return
		}
	}

	n, err := fn(ctx)
	if err != nil {
		s.log.Error("Scheduled job failed", "job", job, "error", err)
		return
	}
	if n > 0 {
		s.log.Info("Scheduled job done", "job", job, "processed", n)
	}
}

// SweepOnce closes every due auction in one batch and returns how many it closed.
// A failing auction is logged and retried on the next sweep.
func (s *CronAuctionScheduler) SweepOnce(ctx context.Context) (int, error) {
	ids, err := s.store.ListDueAuctions(ctx, s.clock.Now(), s.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("scheduler: list due auctions: %w", err)
	}

	closed := 0
	for _, id := range ids {
		s.log.Info("Processing due auction", "auction_id", id)

		if _, err := s.auctionMgr.CloseAuction(ctx, id); err != nil {
			s.log.Error("Failed to close auction", "auction_id", id, "error", err)
			continue
		}
		closed++
	}
	return closed, nil
}

// RelayOnce republishes outbox events that missed their immediate dispatch.
func (s *CronAuctionScheduler) RelayOnce(ctx context.Context) (int, error) {
	return s.dispatcher.Relay(ctx, s.opts.RelayDelay, s.opts.BatchSize)
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
