// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stage_test

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/votestage/packet"
	"github.com/luxfi/votestage/snapshot"
	"github.com/luxfi/votestage/stage"
	"github.com/luxfi/votestage/stage/stagemock"
	"github.com/luxfi/votestage/utils/timer/mockable"
	"github.com/luxfi/votestage/votepool"
	"github.com/luxfi/votestage/votepool/votepooltest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testEnv struct {
	validators []*votepooltest.Validator
	bank       *snapshot.Bank
	pool       *votepool.Pool
	registry   metric.Gatherer
	metrics    *stage.Metrics
	storage    *stage.TPUVoteStorage
}

func newTestEnv(t *testing.T, numValidators int, config snapshot.BankConfig) *testEnv {
	validators := votepooltest.NewValidators(t, numValidators)
	bank := votepooltest.NewBank(t, config, validators...)
	pool := votepooltest.NewPool(t, bank)
	registry := metric.NewRegistry()
	metrics, err := stage.NewMetrics("stage", registry)
	require.NoError(t, err)
	return &testEnv{
		validators: validators,
		bank:       bank,
		pool:       pool,
		registry:   registry,
		metrics:    metrics,
		storage:    stage.NewTPU(pool, log.NewNoOpLogger(), metrics),
	}
}

func (e *testEnv) insertVotes(t *testing.T, slot uint64) {
	packets := make([]*packet.Packet, len(e.validators))
	for i, v := range e.validators {
		packets[i] = v.VotePacket(t, slot)
	}
	m := e.storage.InsertBatch(packets)
	require.Zero(t, m.TotalDropped())
}

func (e *testEnv) process(processor stage.Processor) (bool, *stage.LeaderSlotMetricsTracker, *stage.BankingStageStats) {
	var (
		stats   stage.BankingStageStats
		tracker = stage.NewLeaderSlotMetricsTracker(1)
	)
	reached := e.storage.ProcessPackets(e.bank, &stats, tracker, processor)
	return reached, tracker, &stats
}

// counterValue sums every series of the named counter.
func counterValue(t *testing.T, g metric.Gatherer, name string) float64 {
	families, err := g.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.Name != name {
			continue
		}
		var sum float64
		for _, m := range family.Metrics {
			sum += m.Value.Value
		}
		return sum
	}
	return 0
}

func errorCount(t *testing.T, g metric.Gatherer, reason string) float64 {
	families, err := g.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.Name != "stage_tx_errors" {
			continue
		}
		for _, m := range family.Metrics {
			for _, label := range m.Labels {
				if label.Name == "reason" && label.Value == reason {
					return m.Value.Value
				}
			}
		}
	}
	return 0
}

func TestGossipStorageCannotConsume(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, 1, snapshot.DefaultBankConfig)
	gossip := stage.NewGossip(env.pool, log.NewNoOpLogger(), env.metrics)
	require.Equal(votepool.Gossip, gossip.Source())
	require.True(gossip.ShouldNotProcess())

	_, err := gossip.Consumer()
	require.ErrorIs(err, stage.ErrGossipConsumer)
	require.PanicsWithValue("gossip vote thread should not be processing transactions", func() {
		gossip.MustConsumer()
	})

	tpu := stage.New(env.pool, votepool.TPU, log.NewNoOpLogger(), nil)
	require.False(tpu.ShouldNotProcess())
	consumer, err := tpu.Consumer()
	require.NoError(err)
	require.Equal(votepool.TPU, consumer.Source())
	require.NotPanics(func() {
		tpu.MustConsumer()
	})
}

func TestHandBuiltGossipConsumerPanics(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, 1, snapshot.DefaultBankConfig)
	env.insertVotes(t, 1)
	consumer := &stage.TPUVoteStorage{
		VoteStorage: stage.NewGossip(env.pool, log.NewNoOpLogger(), env.metrics),
	}

	const msg = "gossip vote thread should not be processing transactions"
	require.PanicsWithValue(msg, func() {
		var stats stage.BankingStageStats
		consumer.ProcessPackets(env.bank, &stats, stage.NewLeaderSlotMetricsTracker(1), stage.ProcessorFunc(func(*stage.BatchContext) stage.Outcome {
			return stage.RequeueAll()
		}))
	})
	require.PanicsWithValue(msg, func() {
		consumer.CacheEpochBoundaryInfo(env.bank)
	})
	// Nothing was drained.
	require.Equal(1, env.storage.Len())
}

func TestStorageSharesPool(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, 2, snapshot.DefaultBankConfig)
	gossip := stage.NewGossip(env.pool, log.NewNoOpLogger(), env.metrics)
	require.True(env.storage.IsEmpty())
	require.Equal(stage.MaxNumVotesReceive, gossip.MaxReceiveSize())

	m := gossip.InsertBatch([]*packet.Packet{env.validators[0].VotePacket(t, 5)})
	require.Zero(m.TotalDropped())
	require.Equal(1, env.storage.Len())
	require.False(env.storage.IsEmpty())

	env.storage.Clear()
	require.True(gossip.IsEmpty())
}

func TestInsertBatch(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, 3, snapshot.DefaultBankConfig)
	packets := make([]*packet.Packet, 0, 5)
	for _, v := range env.validators {
		packets = append(packets, v.VotePacket(t, 10))
	}

	// Legacy votes are never pool entries.
	legacy := env.validators[0].VoteTx(11)
	legacy.Vote.Kind = packet.Vote
	p, err := packet.NewVotePacket(legacy)
	require.NoError(err)
	packets = append(packets, p)

	// Unstaked validators are dropped by the pool.
	unstaked := votepooltest.NewValidator(t)
	packets = append(packets, unstaked.VotePacket(t, 10))

	m := env.storage.InsertBatch(packets)
	require.Equal(1, m.NumDroppedTPU)
	require.Zero(m.NumDroppedGossip)
	require.Equal(3, env.storage.Len())

	require.InDelta(4, counterValue(t, env.registry, "stage_inserted_packets"), 0)
	require.InDelta(1, counterValue(t, env.registry, "stage_conversion_failures"), 0)
	require.InDelta(1, counterValue(t, env.registry, "stage_insert_dropped_votes"), 0)
}

func TestProcessPacketsRetryAll(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, 1, snapshot.DefaultBankConfig)
	env.insertVotes(t, 7)

	var calls int
	processor := stage.ProcessorFunc(func(ctx *stage.BatchContext) stage.Outcome {
		calls++
		require.Equal(1, ctx.Candidates)
		require.Len(ctx.Transactions, 1)
		require.True(ctx.Transactions[0].IsSimpleVote())
		require.Equal(env.validators[0].NodeID, ctx.Transactions[0].FeePayer())
		return stage.RetryRange(ctx.Candidates)
	})

	reached, tracker, stats := env.process(processor)
	require.False(reached)
	require.Equal(1, calls)
	require.Equal(1, env.storage.Len())
	require.Equal(uint64(1), tracker.ProcessInvocations())
	require.Equal(uint64(1), tracker.Candidates())
	require.Equal(uint64(1), stats.RebufferedPackets.Load())
	require.Equal(uint64(1), stats.ProcessedRounds.Load())

	// The requeued vote is drained again by the next round.
	reached, _, _ = env.process(processor)
	require.False(reached)
	require.Equal(2, calls)
	require.Equal(1, env.storage.Len())

	require.InDelta(2, counterValue(t, env.registry, "stage_rounds"), 0)
	require.InDelta(2, counterValue(t, env.registry, "stage_admitted_packets"), 0)
	require.InDelta(2, counterValue(t, env.registry, "stage_requeued_packets"), 0)
}

func TestProcessPacketsOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		outcome     func(ctx *stage.BatchContext) stage.Outcome
		expectedLen int
	}{
		{
			name: "zero value requeues all",
			outcome: func(*stage.BatchContext) stage.Outcome {
				return stage.Outcome{}
			},
			expectedLen: 4,
		},
		{
			name: "requeue all",
			outcome: func(*stage.BatchContext) stage.Outcome {
				return stage.RequeueAll()
			},
			expectedLen: 4,
		},
		{
			name: "empty retry set",
			outcome: func(*stage.BatchContext) stage.Outcome {
				return stage.Retry()
			},
			expectedLen: 0,
		},
		{
			name: "nil retry set",
			outcome: func(*stage.BatchContext) stage.Outcome {
				return stage.RetryIndices(nil)
			},
			expectedLen: 0,
		},
		{
			name: "subset",
			outcome: func(*stage.BatchContext) stage.Outcome {
				return stage.Retry(1, 3)
			},
			expectedLen: 2,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t, 4, snapshot.DefaultBankConfig)
			env.insertVotes(t, 3)

			reached, _, _ := env.process(stage.ProcessorFunc(test.outcome))
			require.False(reached)
			require.Equal(test.expectedLen, env.storage.Len())
		})
	}
}

func TestProcessPacketsOutOfRangeIndices(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, 1, snapshot.DefaultBankConfig)
	env.insertVotes(t, 3)

	env.process(stage.ProcessorFunc(func(*stage.BatchContext) stage.Outcome {
		return stage.Retry(0, 5, 63)
	}))
	require.Equal(1, env.storage.Len())
	require.InDelta(2, counterValue(t, env.registry, "stage_retry_index_out_of_range"), 0)
	require.InDelta(1, counterValue(t, env.registry, "stage_requeued_packets"), 0)
}

func TestProcessPacketsChunking(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	env := newTestEnv(t, 2*stage.UnprocessedBufferStepSize+2, snapshot.DefaultBankConfig)
	env.insertVotes(t, 9)

	var (
		sizes    []int
		accounts = make(map[ids.ID]struct{})
	)
	processor := stagemock.NewProcessor(ctrl)
	processor.EXPECT().Process(gomock.Any()).DoAndReturn(func(ctx *stage.BatchContext) stage.Outcome {
		require.LessOrEqual(ctx.Candidates, stage.UnprocessedBufferStepSize)
		require.Len(ctx.Transactions, ctx.Candidates)
		for _, tx := range ctx.Transactions {
			accounts[tx.FeePayer()] = struct{}{}
		}
		sizes = append(sizes, ctx.Candidates)
		return stage.Retry()
	}).Times(3)

	reached, tracker, _ := env.process(processor)
	require.False(reached)

	sort.Ints(sizes)
	require.Equal([]int{2, stage.UnprocessedBufferStepSize, stage.UnprocessedBufferStepSize}, sizes)
	require.Len(accounts, len(env.validators))
	require.Equal(uint64(3), tracker.ProcessInvocations())
	require.Equal(uint64(len(env.validators)), tracker.Candidates())
	require.True(env.storage.IsEmpty())
	require.InDelta(3, counterValue(t, env.registry, "stage_chunks"), 0)
	require.InDelta(1, counterValue(t, env.registry, "stage_drained_per_round_count"), 0)
	require.InDelta(len(env.validators), counterValue(t, env.registry, "stage_drained_per_round_sum"), 0)
}

func TestProcessPacketsEndOfSlot(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	// Every vote locks three accounts, so none passes the filter on its own.
	config := snapshot.DefaultBankConfig
	config.AccountLockLimit = 2
	env := newTestEnv(t, 2*stage.UnprocessedBufferStepSize+2, config)
	env.insertVotes(t, 9)

	var sizes []int
	processor := stagemock.NewProcessor(ctrl)
	processor.EXPECT().Process(gomock.Any()).DoAndReturn(func(ctx *stage.BatchContext) stage.Outcome {
		if len(sizes) == 0 {
			require.False(ctx.ReachedEndOfSlot)
			ctx.ReachedEndOfSlot = true
		} else {
			// Fast admitted candidates are not sanitized.
			require.True(ctx.ReachedEndOfSlot)
			require.Empty(ctx.Transactions)
		}
		sizes = append(sizes, ctx.Candidates)
		return stage.RequeueAll()
	}).Times(3)

	reached, tracker, stats := env.process(processor)
	require.True(reached)

	// The first chunk is filtered and fully rejected. The later chunks would
	// fail the same check but are admitted once the slot has ended.
	numFast := len(env.validators) - stage.UnprocessedBufferStepSize
	require.Equal([]int{0, stage.UnprocessedBufferStepSize, 2}, sizes)
	require.Equal(numFast, env.storage.Len())
	require.Equal(uint64(numFast), tracker.Candidates())
	require.Equal(uint64(numFast), stats.RebufferedPackets.Load())
	require.Equal(uint64(stage.UnprocessedBufferStepSize), stats.FilteredPackets.Load())

	require.InDelta(numFast, counterValue(t, env.registry, "stage_fast_admitted_packets"), 0)
	require.InDelta(stage.UnprocessedBufferStepSize, counterValue(t, env.registry, "stage_rejected_packets"), 0)
	require.InDelta(stage.UnprocessedBufferStepSize, errorCount(t, env.registry, "too_many_account_locks"), 0)
}

func TestProcessPacketsAccountLocks(t *testing.T) {
	tests := []struct {
		name   string
		config snapshot.BankConfig
		extra  func(v *votepooltest.Validator) []ids.ID
		reason string
	}{
		{
			name: "too many account locks",
			config: snapshot.BankConfig{
				AccountLockLimit:     3,
				LamportsPerSignature: snapshot.DefaultBankConfig.LamportsPerSignature,
				RentExemptMinimum:    snapshot.DefaultBankConfig.RentExemptMinimum,
			},
			extra: func(*votepooltest.Validator) []ids.ID {
				return []ids.ID{ids.GenerateTestID()}
			},
			reason: "too_many_account_locks",
		},
		{
			name:   "account loaded twice",
			config: snapshot.DefaultBankConfig,
			extra: func(v *votepooltest.Validator) []ids.ID {
				return []ids.ID{v.NodeID}
			},
			reason: "account_loaded_twice",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t, 2, test.config)
			bad, good := env.validators[0], env.validators[1]

			vote := bad.VoteTx(4)
			vote.ExtraAccounts = test.extra(bad)
			badPacket, err := packet.NewVotePacket(vote)
			require.NoError(err)
			m := env.storage.InsertBatch([]*packet.Packet{
				badPacket,
				good.VotePacket(t, 4),
			})
			require.Zero(m.TotalDropped())
			require.Equal(2, env.storage.Len())

			env.process(stage.ProcessorFunc(func(ctx *stage.BatchContext) stage.Outcome {
				require.Equal(1, ctx.Candidates)
				require.Len(ctx.Transactions, 1)
				require.Equal(good.NodeID, ctx.Transactions[0].FeePayer())
				return stage.RetryRange(ctx.Candidates)
			}))

			// Rejected packets are not requeued.
			require.Equal(1, env.storage.Len())
			require.InDelta(1, errorCount(t, env.registry, test.reason), 0)
			require.InDelta(1, counterValue(t, env.registry, "stage_rejected_packets"), 0)
		})
	}
}

func TestProcessPacketsFeePayer(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, 1, snapshot.DefaultBankConfig)
	locked := env.validators[0]

	unfunded := votepooltest.NewValidator(t)
	env.bank.SetStake(unfunded.VoteAccount, votepooltest.Stake)
	// The pool caches stakes at construction.
	env.pool = votepooltest.NewPool(t, env.bank)
	env.storage = stage.NewTPU(env.pool, log.NewNoOpLogger(), env.metrics)

	inFlight, err := env.bank.BuildExecutable(locked.VotePacket(t, 1), false)
	require.NoError(err)
	require.NoError(env.bank.LockAccounts(inFlight))

	m := env.storage.InsertBatch([]*packet.Packet{
		locked.VotePacket(t, 2),
		unfunded.VotePacket(t, 2),
	})
	require.Zero(m.TotalDropped())

	var stats stage.BankingStageStats
	tracker := stage.NewLeaderSlotMetricsTracker(2)
	env.storage.ProcessPackets(env.bank, &stats, tracker, stage.ProcessorFunc(func(ctx *stage.BatchContext) stage.Outcome {
		require.Zero(ctx.Candidates)
		require.Empty(ctx.Transactions)
		return stage.RequeueAll()
	}))
	require.Equal(uint64(1), tracker.ProcessInvocations())
	require.Equal(uint64(2), stats.FilteredPackets.Load())
	require.InDelta(1, errorCount(t, env.registry, "account_in_use"), 0)
	require.InDelta(1, errorCount(t, env.registry, "account_not_found"), 0)
	require.True(env.storage.IsEmpty())
}

// slowBank takes a fixed amount of clock time to build each transaction.
type slowBank struct {
	snapshot.Snapshot
	clock *mockable.Clock
	cost  time.Duration
}

func (b *slowBank) BuildExecutable(p *packet.Packet, voteOnly bool) (*snapshot.ExecutableTx, error) {
	b.clock.Advance(b.cost)
	return b.Snapshot.BuildExecutable(p, voteOnly)
}

func TestProcessPacketsConversionElapsed(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, 3, snapshot.DefaultBankConfig)
	env.insertVotes(t, 8)

	clock := env.storage.Clock()
	clock.Set(time.Unix(1_700_000_000, 0))
	bank := &slowBank{
		Snapshot: env.bank,
		clock:    clock,
		cost:     2 * time.Millisecond,
	}

	var stats stage.BankingStageStats
	tracker := stage.NewLeaderSlotMetricsTracker(3)
	env.storage.ProcessPackets(bank, &stats, tracker, stage.ProcessorFunc(func(*stage.BatchContext) stage.Outcome {
		return stage.Retry()
	}))

	require.Equal(uint64(6000), tracker.TransactionsFromPacketsUs())
	require.Equal(uint64(6000), stats.PacketConversionElapsed.Load())
	require.Equal(uint64(6000), stats.ConsumeBufferedPacketsElapsed.Load())
	require.InDelta(3, counterValue(t, env.registry, "stage_packet_conversion_us_count"), 0)

	stats.Report(log.NewNoOpLogger())
	require.Zero(stats.ProcessedRounds.Load())
	require.Zero(stats.PacketConversionElapsed.Load())
}

func TestProcessPacketsEmptyPool(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	env := newTestEnv(t, 1, snapshot.DefaultBankConfig)
	processor := stagemock.NewProcessor(ctrl)

	reached, tracker, _ := env.process(processor)
	require.False(reached)
	require.Zero(tracker.ProcessInvocations())
	require.InDelta(1, counterValue(t, env.registry, "stage_rounds"), 0)
}

func TestCacheEpochBoundaryInfo(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, 2, snapshot.DefaultBankConfig)
	env.insertVotes(t, 1)
	require.Equal(2, env.storage.Len())

	env.bank.SetStake(env.validators[0].VoteAccount, 0)
	env.bank.SetEpoch(1)
	env.storage.CacheEpochBoundaryInfo(env.bank)
	require.Equal(1, env.storage.Len())
}

func TestConcurrentIntakeAndProcessing(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, 8, snapshot.DefaultBankConfig)
	gossip := stage.NewGossip(env.pool, log.NewNoOpLogger(), env.metrics)

	const rounds = 20
	packets := make([][]*packet.Packet, rounds)
	for i := range packets {
		for _, v := range env.validators {
			packets[i] = append(packets[i], v.VotePacket(t, uint64(i+1)))
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, batch := range packets {
			gossip.InsertBatch(batch)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			var stats stage.BankingStageStats
			env.storage.ProcessPackets(env.bank, &stats, stage.NewLeaderSlotMetricsTracker(uint64(i)), stage.ProcessorFunc(func(ctx *stage.BatchContext) stage.Outcome {
				return stage.RetryRange(ctx.Candidates / 2)
			}))
		}
	}()
	wg.Wait()

	require.LessOrEqual(env.storage.Len(), len(env.validators))
}
