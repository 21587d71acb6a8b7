// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package simulator

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/luxfi/log"

	"github.com/luxfi/votestage/snapshot"
	"github.com/luxfi/votestage/stage"
)

var _ stage.Processor = (*Executor)(nil)

// Executor commits vote transactions against a bank until the slot is full.
// A fixed share of every batch is reported as retryable, as if those
// transactions lost an account lock race.
type Executor struct {
	log          log.Logger
	bank         *snapshot.Bank
	capacity     int
	retryPercent int

	seq       uint64
	committed int
}

func NewExecutor(logger log.Logger, bank *snapshot.Bank, capacity, retryPercent int) *Executor {
	return &Executor{
		log:          logger,
		bank:         bank,
		capacity:     capacity,
		retryPercent: retryPercent,
	}
}

// StartSlot resets the per-slot commit budget.
func (e *Executor) StartSlot() {
	e.committed = 0
}

func (e *Executor) Committed() int {
	return e.committed
}

func (e *Executor) Process(ctx *stage.BatchContext) stage.Outcome {
	// Fast admitted candidates were never built, so there is nothing to
	// execute.
	if ctx.ReachedEndOfSlot {
		return stage.RequeueAll()
	}

	var (
		retry     = bitset.New(uint(ctx.Candidates))
		committed int
	)
	for i, tx := range ctx.Transactions {
		if e.committed >= e.capacity {
			ctx.ReachedEndOfSlot = true
			for j := i; j < len(ctx.Transactions); j++ {
				retry.Set(uint(j))
			}
			break
		}

		e.seq++
		if e.seq%100 < uint64(e.retryPercent) {
			retry.Set(uint(i))
			continue
		}
		if err := e.bank.LockAccounts(tx); err != nil {
			retry.Set(uint(i))
			continue
		}
		err := e.bank.ChargeFee(tx)
		e.bank.UnlockAccounts(tx)
		if err != nil {
			// The fee payer drained between admission and execution. The
			// vote is consumed without being committed.
			e.log.Debug("failed to charge vote fee",
				log.Stringer("txID", tx.MessageHash()),
				log.Err(err),
			)
			continue
		}
		e.committed++
		committed++
	}

	ctx.Metrics.IncCommittedTransactions(committed)
	ctx.Metrics.IncRetryableTransactions(int(retry.Count()))
	return stage.RetryIndices(retry)
}
