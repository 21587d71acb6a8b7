// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package simulator runs a leader's vote intake and processing loop against
// an in-memory bank.
package simulator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/votestage/config"
	"github.com/luxfi/votestage/packet"
	"github.com/luxfi/votestage/snapshot"
	"github.com/luxfi/votestage/stage"
	"github.com/luxfi/votestage/votepool"
)

const stageNamespace = "vote_stage"

var errNoConsumer = errors.New("no vote storage accepts processing")

// Result summarizes a simulation.
type Result struct {
	Rounds           int
	ReachedEndOfSlot int
	Committed        uint64
	Pending          int
}

type Simulator struct {
	config     config.SimulatorConfig
	log        log.Logger
	bank       *snapshot.Bank
	validators []*validator

	gossip   *stage.VoteStorage
	consumer *stage.TPUVoteStorage
	executor *Executor
	limiter  *rate.Limiter
	stats    stage.BankingStageStats

	slot atomic.Uint64
}

func New(c *config.Config, logger log.Logger, registerer metric.Registerer) (*Simulator, error) {
	if err := c.Verify(); err != nil {
		return nil, err
	}

	bank := snapshot.NewBank(c.Bank.Snapshot())
	validators := make([]*validator, c.Simulator.Validators)
	for i := range validators {
		v, err := newValidator()
		if err != nil {
			return nil, err
		}
		if err := v.register(bank); err != nil {
			return nil, err
		}
		validators[i] = v
	}

	pool, err := votepool.New(bank, c.Pool, logger, registerer)
	if err != nil {
		return nil, err
	}
	metrics, err := stage.NewMetrics(stageNamespace, registerer)
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		config:     c.Simulator,
		log:        logger,
		bank:       bank,
		validators: validators,
		executor:   NewExecutor(logger, bank, c.Simulator.RoundCapacity, c.Simulator.RetryPercent),
	}
	s.slot.Store(1)

	// Gossip and directly submitted votes share the pool. Only the direct
	// submission storage is scheduled for processing.
	storages := []*stage.VoteStorage{
		stage.NewGossip(pool, logger, metrics),
		stage.New(pool, votepool.TPU, logger, metrics),
	}
	for _, storage := range storages {
		if storage.ShouldNotProcess() {
			s.gossip = storage
			continue
		}
		s.consumer = storage.MustConsumer()
	}
	if s.consumer == nil {
		return nil, errNoConsumer
	}
	s.limiter = rate.NewLimiter(rate.Limit(c.Simulator.VotesPerSecond), s.gossip.MaxReceiveSize())
	return s, nil
}

// Run produces votes and processes one leader slot per round interval until
// the configured number of rounds completed or ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var result Result
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return s.produce(ctx)
	})
	eg.Go(func() error {
		// Stop producing once the last slot is processed.
		defer cancel()
		return s.consume(ctx, &result)
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &result, nil
}

// produce gossips the latest vote of every validator, throttled to the
// configured rate. It stops without error once the limiter refuses to wait,
// either because ctx is done or because its deadline falls before the next
// batch could be sent. consume reports the context error.
func (s *Simulator) produce(ctx context.Context) error {
	maxBatch := s.gossip.MaxReceiveSize()
	for {
		slot := s.slot.Load()
		now := time.Now().UnixNano()
		batch := make([]*packet.Packet, 0, len(s.validators))
		for _, v := range s.validators {
			p, err := v.vote(slot, now)
			if err != nil {
				return err
			}
			batch = append(batch, p)
		}

		for len(batch) > 0 {
			n := min(len(batch), maxBatch)
			if err := s.limiter.WaitN(ctx, n); err != nil {
				return nil
			}
			s.gossip.InsertBatch(batch[:n])
			batch = batch[n:]
		}
	}
}

func (s *Simulator) consume(ctx context.Context, result *Result) error {
	ticker := time.NewTicker(s.config.RoundInterval)
	defer ticker.Stop()

	for result.Rounds < s.config.Rounds {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		slot := s.slot.Load()
		if epoch := slot / uint64(s.config.RoundsPerEpoch); epoch > s.bank.Epoch() {
			s.bank.SetEpoch(epoch)
			s.consumer.CacheEpochBoundaryInfo(s.bank)
		}

		s.executor.StartSlot()
		tracker := stage.NewLeaderSlotMetricsTracker(slot)
		reachedEndOfSlot := s.consumer.ProcessPackets(s.bank, &s.stats, tracker, s.executor)

		result.Rounds++
		if reachedEndOfSlot {
			result.ReachedEndOfSlot++
		}
		result.Committed += tracker.CommittedTransactions()

		s.log.Info("leader slot complete",
			log.Uint64("slot", slot),
			log.Uint64("candidates", tracker.Candidates()),
			log.Uint64("committed", tracker.CommittedTransactions()),
			log.Uint64("retryable", tracker.RetryableTransactions()),
			log.Bool("reachedEndOfSlot", reachedEndOfSlot),
			log.Int("pending", s.consumer.Len()),
		)
		s.stats.Report(s.log)
		s.slot.Add(1)
	}
	result.Pending = s.consumer.Len()
	return nil
}
