// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stage

import (
	"github.com/luxfi/log"

	"github.com/luxfi/votestage/packet"
	"github.com/luxfi/votestage/snapshot"
	"github.com/luxfi/votestage/votepool"
)

// ProcessPackets runs one round. It drains the pool in stake-weighted
// order, splits the drained votes into candidate batches of at most
// UnprocessedBufferStepSize, and hands each batch to processor. Candidates
// named by the outcome are reinserted with replenish so a retried vote is
// not starved by newer intake. Every chunk is visited even after the step
// signals the end of the slot. It returns whether the end of the slot was
// reached.
func (s *TPUVoteStorage) ProcessPackets(
	bank snapshot.Snapshot,
	stats *BankingStageStats,
	tracker *LeaderSlotMetricsTracker,
	processor Processor,
) bool {
	s.assertProcessable()
	start := s.clock.Time()

	allVotePackets := s.pool.DrainUnprocessed(bank)
	// The legacy policy is read once so every reinsertion of this round
	// converts packets the same way.
	deprecateLegacyVoteIxs := s.pool.ShouldDeprecateLegacyVoteIxs()

	var (
		errs        snapshot.ErrorMetrics
		candidates  = make([]*packet.Packet, 0, UnprocessedBufferStepSize)
		ctx         = &BatchContext{Metrics: tracker}
		numChunks   int
		numAdmitted int
		numRequeued int
	)
	ctx.Transactions = make([]*snapshot.ExecutableTx, 0, UnprocessedBufferStepSize)

	for chunkStart := 0; chunkStart < len(allVotePackets); chunkStart += UnprocessedBufferStepSize {
		chunk := allVotePackets[chunkStart:min(chunkStart+UnprocessedBufferStepSize, len(allVotePackets))]
		candidates = candidates[:0]
		ctx.Transactions = ctx.Transactions[:0]

		fastPath := ctx.ReachedEndOfSlot
		for _, p := range chunk {
			conversionUs := tracker.TransactionsFromPacketsUs()
			if shouldProcessPacket(&s.clock, bank, stats, p, ctx.ReachedEndOfSlot, &errs, &ctx.Transactions, tracker) {
				candidates = append(candidates, p)
			}
			if !fastPath {
				s.metrics.conversionUs.Observe(float64(tracker.TransactionsFromPacketsUs() - conversionUs))
			}
		}
		if fastPath {
			s.metrics.fastAdmitted.Add(float64(len(candidates)))
		}
		s.metrics.rejected.Add(float64(len(chunk) - len(candidates)))
		stats.FilteredPackets.Add(uint64(len(chunk) - len(candidates)))

		ctx.Candidates = len(candidates)
		tracker.incProcessInvocation(ctx.Candidates)
		outcome := processor.Process(ctx)

		numChunks++
		numAdmitted += len(candidates)
		numRequeued += s.reconcile(candidates, outcome, deprecateLegacyVoteIxs)
	}

	s.metrics.rounds.Inc()
	s.metrics.chunks.Add(float64(numChunks))
	s.metrics.admitted.Add(float64(numAdmitted))
	s.metrics.requeued.Add(float64(numRequeued))
	s.metrics.drainedPerRound.Observe(float64(len(allVotePackets)))
	s.metrics.observeErrors(&errs)
	stats.RebufferedPackets.Add(uint64(numRequeued))
	stats.ProcessedRounds.Add(1)
	if elapsed := s.clock.Since(start); elapsed > 0 {
		stats.ConsumeBufferedPacketsElapsed.Add(uint64(elapsed.Microseconds()))
	}

	s.log.Debug("processed vote packets",
		log.Uint64("slot", tracker.Slot()),
		log.Int("drained", len(allVotePackets)),
		log.Int("chunks", numChunks),
		log.Int("admitted", numAdmitted),
		log.Int("requeued", numRequeued),
		log.Bool("reachedEndOfSlot", ctx.ReachedEndOfSlot),
	)
	return ctx.ReachedEndOfSlot
}

// reconcile reinserts the candidates outcome names and returns how many
// were handed back to the pool.
func (s *TPUVoteStorage) reconcile(candidates []*packet.Packet, outcome Outcome, deprecateLegacyVoteIxs bool) int {
	indices, ok := outcome.Indices()
	if !ok {
		return s.reinsert(candidates, deprecateLegacyVoteIxs)
	}

	retry := make([]*packet.Packet, 0, indices.Count())
	for i, ok := indices.NextSet(0); ok; i, ok = indices.NextSet(i + 1) {
		if i >= uint(len(candidates)) {
			s.metrics.outOfRangeIndices.Inc()
			s.log.Warn("dropping out of range retry index",
				log.Uint64("index", uint64(i)),
				log.Int("candidates", len(candidates)),
			)
			continue
		}
		retry = append(retry, candidates[i])
	}
	return s.reinsert(retry, deprecateLegacyVoteIxs)
}

func (s *TPUVoteStorage) reinsert(packets []*packet.Packet, deprecateLegacyVoteIxs bool) int {
	if len(packets) == 0 {
		return 0
	}
	votes := make([]*votepool.VotePacket, 0, len(packets))
	for _, p := range packets {
		vote, err := votepool.NewVotePacket(p, s.source, deprecateLegacyVoteIxs)
		if err != nil {
			continue
		}
		votes = append(votes, vote)
	}
	s.pool.InsertBatch(votes, true)
	return len(votes)
}
