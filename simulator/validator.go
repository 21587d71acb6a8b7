// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package simulator

import (
	"crypto/ed25519"

	"github.com/holiman/uint256"

	"github.com/luxfi/ids"

	"github.com/luxfi/votestage/packet"
	"github.com/luxfi/votestage/snapshot"
)

const (
	validatorStake   = 100
	validatorBalance = 1_000_000_000_000
)

type validator struct {
	node        ed25519.PrivateKey
	voteKey     ed25519.PrivateKey
	nodeID      ids.ID
	voteAccount ids.ID
}

func newValidator() (*validator, error) {
	_, node, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	_, voteKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return &validator{
		node:        node,
		voteKey:     voteKey,
		nodeID:      packet.PublicKeyID(node.Public().(ed25519.PublicKey)),
		voteAccount: packet.PublicKeyID(voteKey.Public().(ed25519.PublicKey)),
	}, nil
}

// register stakes the validator's vote account and funds its node.
func (v *validator) register(bank *snapshot.Bank) error {
	bank.SetStake(v.voteAccount, validatorStake)
	return bank.SetBalance(v.nodeID, uint256.NewInt(validatorBalance))
}

// vote signs a tower sync vote for slot.
func (v *validator) vote(slot uint64, timestamp int64) (*packet.Packet, error) {
	return packet.NewVotePacket(&packet.VoteTx{
		Vote: packet.VoteInstruction{
			Kind:         packet.TowerSync,
			Slots:        []uint64{slot},
			Hash:         slotHash(slot),
			HasTimestamp: true,
			Timestamp:    timestamp,
		},
		Blockhash:   slotHash(slot),
		Node:        v.node,
		Authority:   v.voteKey,
		VoteAccount: v.voteAccount,
	})
}

func slotHash(slot uint64) ids.ID {
	return ids.ID{'s', 'l', 'o', 't', byte(slot), byte(slot >> 8), byte(slot >> 16), byte(slot >> 24)}
}
