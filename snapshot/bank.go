// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package snapshot

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/holiman/uint256"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"

	"github.com/luxfi/votestage/packet"
)

var _ Snapshot = (*Bank)(nil)

// BankConfig holds the fee and limit parameters of a Bank.
type BankConfig struct {
	Epoch                uint64
	VoteOnly             bool
	LegacyVoteDeprecated bool
	AccountLockLimit     int
	LamportsPerSignature uint64
	RentExemptMinimum    uint64
	ReservedAccountKeys  []ids.ID
}

// DefaultBankConfig is used by NewBank when no limit is configured.
var DefaultBankConfig = BankConfig{
	AccountLockLimit:     DefaultAccountLockLimit,
	LamportsPerSignature: 5000,
	RentExemptMinimum:    890_880,
}

// Bank is an in-memory snapshot. Balances live in a memdb keyed by account.
type Bank struct {
	config   BankConfig
	db       database.Database
	reserved set.Set[ids.ID]

	mu         sync.RWMutex
	epoch      uint64
	stakes     map[ids.ID]uint64
	slotHashes []SlotHash

	lockLock   sync.Mutex
	writeLocks set.Set[ids.ID]
}

func NewBank(config BankConfig) *Bank {
	if config.AccountLockLimit <= 0 {
		config.AccountLockLimit = DefaultAccountLockLimit
	}
	reserved := set.NewSet[ids.ID](len(config.ReservedAccountKeys) + 1)
	reserved.Add(packet.VoteProgramID)
	for _, key := range config.ReservedAccountKeys {
		reserved.Add(key)
	}
	return &Bank{
		config:     config,
		db:         memdb.New(),
		reserved:   reserved,
		epoch:      config.Epoch,
		stakes:     make(map[ids.ID]uint64),
		writeLocks: set.NewSet[ids.ID](0),
	}
}

func (b *Bank) SetBalance(account ids.ID, balance *uint256.Int) error {
	v := balance.Bytes32()
	return b.db.Put(account[:], v[:])
}

func (b *Bank) Balance(account ids.ID) (*uint256.Int, error) {
	v, err := b.db.Get(account[:])
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes32(v), nil
}

// SetStake sets the stake of a vote account. A zero stake removes it.
func (b *Bank) SetStake(voteAccount ids.ID, stake uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stakes := maps.Clone(b.stakes)
	if stake == 0 {
		delete(stakes, voteAccount)
	} else {
		stakes[voteAccount] = stake
	}
	b.stakes = stakes
}

// SetEpoch moves the bank to a new epoch.
func (b *Bank) SetEpoch(epoch uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.epoch = epoch
}

// SetSlotHashes replaces the recent slot hashes. They are stored newest
// first.
func (b *Bank) SetSlotHashes(hashes []SlotHash) {
	sorted := slices.Clone(hashes)
	slices.SortFunc(sorted, func(a, b SlotHash) int {
		switch {
		case a.Slot > b.Slot:
			return -1
		case a.Slot < b.Slot:
			return 1
		default:
			return 0
		}
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	b.slotHashes = sorted
}

func (b *Bank) Epoch() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.epoch
}

func (b *Bank) VoteAccountStakes() map[ids.ID]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stakes
}

func (b *Bank) SlotHashes() []SlotHash {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.slotHashes
}

func (b *Bank) IsLegacyVoteDeprecated() bool {
	return b.config.LegacyVoteDeprecated
}

func (b *Bank) VoteOnly() bool {
	return b.config.VoteOnly
}

func (b *Bank) BuildExecutable(p *packet.Packet, voteOnly bool) (*ExecutableTx, error) {
	return BuildExecutable(p, voteOnly, b.reserved)
}

func (b *Bank) TransactionAccountLockLimit() int {
	return b.config.AccountLockLimit
}

func (b *Bank) ReservedAccountKeys() set.Set[ids.ID] {
	return b.reserved
}

// Fee returns the fee tx pays.
func (b *Bank) Fee(tx *ExecutableTx) *uint256.Int {
	fee := uint256.NewInt(b.config.LamportsPerSignature)
	return fee.Mul(fee, uint256.NewInt(uint64(tx.NumSignatures())))
}

func (b *Bank) CheckFeePayerUnlocked(tx *ExecutableTx, errs *ErrorMetrics) error {
	payer := tx.FeePayer()

	b.lockLock.Lock()
	locked := b.writeLocks.Contains(payer)
	b.lockLock.Unlock()
	if locked {
		errs.AccountInUse++
		return fmt.Errorf("%w: %s", ErrAccountInUse, payer)
	}

	balance, err := b.Balance(payer)
	if errors.Is(err, database.ErrNotFound) {
		errs.AccountNotFound++
		return fmt.Errorf("%w: %s", ErrAccountNotFound, payer)
	}
	if err != nil {
		return err
	}

	required := b.Fee(tx)
	required.Add(required, uint256.NewInt(b.config.RentExemptMinimum))
	if balance.Lt(required) {
		errs.InsufficientFunds++
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFundsForFee, payer, balance, required)
	}
	return nil
}

// LockAccounts write-locks the writable accounts of tx on behalf of an
// in-flight batch.
func (b *Bank) LockAccounts(tx *ExecutableTx) error {
	b.lockLock.Lock()
	defer b.lockLock.Unlock()

	keys := tx.WritableAccounts()
	for _, key := range keys {
		if b.writeLocks.Contains(key) {
			return fmt.Errorf("%w: %s", ErrAccountInUse, key)
		}
	}
	b.writeLocks.Add(keys...)
	return nil
}

func (b *Bank) UnlockAccounts(tx *ExecutableTx) {
	b.lockLock.Lock()
	defer b.lockLock.Unlock()

	for _, key := range tx.WritableAccounts() {
		b.writeLocks.Remove(key)
	}
}

// ChargeFee debits the fee of tx from its fee payer.
func (b *Bank) ChargeFee(tx *ExecutableTx) error {
	payer := tx.FeePayer()
	balance, err := b.Balance(payer)
	if err != nil {
		return err
	}
	fee := b.Fee(tx)
	if balance.Lt(fee) {
		return ErrInsufficientFundsForFee
	}
	return b.SetBalance(payer, balance.Sub(balance, fee))
}
