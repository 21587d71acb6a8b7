// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stage

import (
	"errors"

	"github.com/luxfi/votestage/packet"
	"github.com/luxfi/votestage/snapshot"
	"github.com/luxfi/votestage/utils/timer/mockable"
)

// shouldProcessPacket decides whether p joins the candidate batch. When it
// is sanitized and admitted its executable transaction is appended to txs,
// keeping txs in the same order as the admitted packets.
func shouldProcessPacket(
	clock *mockable.Clock,
	bank snapshot.Snapshot,
	stats *BankingStageStats,
	p *packet.Packet,
	reachedEndOfSlot bool,
	errs *snapshot.ErrorMetrics,
	txs *[]*snapshot.ExecutableTx,
	tracker *LeaderSlotMetricsTracker,
) bool {
	// Past the end of the slot every packet is admitted so the loop can
	// return the rest of the round to the pool quickly.
	if reachedEndOfSlot {
		return true
	}

	var (
		tx       *snapshot.ExecutableTx
		buildErr error
	)
	// Address lookup deactivation is ignored since the transaction is
	// attempted immediately.
	elapsedUs := clock.MeasureMicros(func() {
		tx, buildErr = bank.BuildExecutable(p, bank.VoteOnly())
	})
	tracker.IncTransactionsFromPacketsUs(elapsedUs)
	stats.PacketConversionElapsed.Add(elapsedUs)

	if buildErr != nil {
		errs.SanitizeFailure++
		return false
	}

	if err := snapshot.ValidateAccountLocks(tx.AccountKeys(), bank.TransactionAccountLockLimit()); err != nil {
		switch {
		case errors.Is(err, snapshot.ErrTooManyAccountLocks):
			errs.TooManyAccountLocks++
		case errors.Is(err, snapshot.ErrAccountLoadedTwice):
			errs.AccountLoadedTwice++
		}
		return false
	}

	if err := bank.CheckFeePayerUnlocked(tx, errs); err != nil {
		return false
	}

	*txs = append(*txs, tx)
	return true
}
