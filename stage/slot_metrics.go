// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stage

// LeaderSlotMetricsTracker accumulates metrics for the leader slot that is
// currently being produced. It is owned by the consumer goroutine.
type LeaderSlotMetricsTracker struct {
	slot uint64

	transactionsFromPacketsUs uint64
	processInvocations        uint64
	candidates                uint64
	committedTransactions     uint64
	retryableTransactions     uint64
}

func NewLeaderSlotMetricsTracker(slot uint64) *LeaderSlotMetricsTracker {
	return &LeaderSlotMetricsTracker{slot: slot}
}

func (t *LeaderSlotMetricsTracker) Slot() uint64 {
	return t.slot
}

func (t *LeaderSlotMetricsTracker) IncTransactionsFromPacketsUs(us uint64) {
	t.transactionsFromPacketsUs += us
}

func (t *LeaderSlotMetricsTracker) TransactionsFromPacketsUs() uint64 {
	return t.transactionsFromPacketsUs
}

func (t *LeaderSlotMetricsTracker) incProcessInvocation(candidates int) {
	t.processInvocations++
	t.candidates += uint64(candidates)
}

func (t *LeaderSlotMetricsTracker) ProcessInvocations() uint64 {
	return t.processInvocations
}

func (t *LeaderSlotMetricsTracker) Candidates() uint64 {
	return t.candidates
}

func (t *LeaderSlotMetricsTracker) IncCommittedTransactions(n int) {
	t.committedTransactions += uint64(n)
}

func (t *LeaderSlotMetricsTracker) CommittedTransactions() uint64 {
	return t.committedTransactions
}

func (t *LeaderSlotMetricsTracker) IncRetryableTransactions(n int) {
	t.retryableTransactions += uint64(n)
}

func (t *LeaderSlotMetricsTracker) RetryableTransactions() uint64 {
	return t.retryableTransactions
}
