// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package snapshot defines the execution-context snapshot that vote
// transactions are validated against, and an in-memory implementation of
// it.
package snapshot

import (
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"

	"github.com/luxfi/votestage/packet"
)

// SlotHash is a recent (slot, bank hash) pair of the fork a snapshot
// belongs to.
type SlotHash struct {
	Slot uint64
	Hash ids.ID
}

// EpochInfo is the part of a snapshot the vote pool needs to order and
// filter pending votes.
type EpochInfo interface {
	Epoch() uint64
	// VoteAccountStakes returns the stake delegated to every vote account
	// in the snapshot's epoch. The returned map must not be modified.
	VoteAccountStakes() map[ids.ID]uint64
	// SlotHashes returns recent slot hashes, newest first.
	SlotHashes() []SlotHash
	// IsLegacyVoteDeprecated reports whether only tower sync votes are
	// accepted.
	IsLegacyVoteDeprecated() bool
}

// Snapshot is a point-in-time execution context.
type Snapshot interface {
	EpochInfo

	// VoteOnly reports whether the snapshot only admits simple votes.
	VoteOnly() bool
	// BuildExecutable sanitizes p into an executable transaction.
	BuildExecutable(p *packet.Packet, voteOnly bool) (*ExecutableTx, error)
	TransactionAccountLockLimit() int
	ReservedAccountKeys() set.Set[ids.ID]
	// CheckFeePayerUnlocked verifies that the fee payer of tx can pay its
	// fee and is not write-locked by an in-flight batch. Failures are
	// counted in errs.
	CheckFeePayerUnlocked(tx *ExecutableTx, errs *ErrorMetrics) error
}
