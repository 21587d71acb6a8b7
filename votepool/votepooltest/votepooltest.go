// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package votepooltest provides validators, banks and pools for tests.
package votepooltest

import (
	"crypto/ed25519"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/votestage/packet"
	"github.com/luxfi/votestage/snapshot"
	"github.com/luxfi/votestage/votepool"
)

const (
	Stake   = 100
	Balance = 1_000_000_000
)

// Validator owns a node identity that pays vote fees and a vote account
// that it votes with.
type Validator struct {
	Node        ed25519.PrivateKey
	VoteKey     ed25519.PrivateKey
	NodeID      ids.ID
	VoteAccount ids.ID
}

func NewValidator(t testing.TB) *Validator {
	_, node, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, voteKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return &Validator{
		Node:        node,
		VoteKey:     voteKey,
		NodeID:      packet.PublicKeyID(node.Public().(ed25519.PublicKey)),
		VoteAccount: packet.PublicKeyID(voteKey.Public().(ed25519.PublicKey)),
	}
}

func NewValidators(t testing.TB, n int) []*Validator {
	validators := make([]*Validator, n)
	for i := range validators {
		validators[i] = NewValidator(t)
	}
	return validators
}

// VoteTx returns a tower sync vote for slot signed by the validator.
func (v *Validator) VoteTx(slot uint64) *packet.VoteTx {
	return &packet.VoteTx{
		Vote: packet.VoteInstruction{
			Kind:  packet.TowerSync,
			Slots: []uint64{slot},
			Hash:  ids.ID{byte(slot), byte(slot >> 8), byte(slot >> 16)},
		},
		Blockhash:   ids.GenerateTestID(),
		Node:        v.Node,
		Authority:   v.VoteKey,
		VoteAccount: v.VoteAccount,
	}
}

func (v *Validator) VotePacket(t testing.TB, slot uint64) *packet.Packet {
	p, err := packet.NewVotePacket(v.VoteTx(slot))
	require.NoError(t, err)
	return p
}

// NewBank returns a bank in which every validator is staked and its node
// account is funded.
func NewBank(t testing.TB, config snapshot.BankConfig, validators ...*Validator) *snapshot.Bank {
	bank := snapshot.NewBank(config)
	for _, v := range validators {
		bank.SetStake(v.VoteAccount, Stake)
		require.NoError(t, bank.SetBalance(v.NodeID, uint256.NewInt(Balance)))
	}
	return bank
}

func NewPool(t testing.TB, bank snapshot.EpochInfo) *votepool.Pool {
	pool, err := votepool.New(bank, votepool.DefaultConfig, log.NewNoOpLogger(), metric.NewRegistry())
	require.NoError(t, err)
	return pool
}
