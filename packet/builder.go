// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package packet

import (
	"crypto/ed25519"

	"github.com/luxfi/ids"
)

// PublicKeyID converts an ed25519 public key into an account key.
func PublicKeyID(pub ed25519.PublicKey) ids.ID {
	return ids.ID(pub)
}

// VoteTx describes a vote transaction to build.
type VoteTx struct {
	Vote      VoteInstruction
	Blockhash ids.ID
	// Node pays the fee and signs first.
	Node ed25519.PrivateKey
	// Authority is the authorized voter of VoteAccount. When its public key
	// equals VoteAccount the vote account itself signs.
	Authority   ed25519.PrivateKey
	VoteAccount ids.ID
	// ExtraAccounts are appended as readonly non-signer keys.
	ExtraAccounts []ids.ID
}

// Build assembles and signs the transaction.
func (v *VoteTx) Build() (*Transaction, error) {
	data, err := v.Vote.Bytes()
	if err != nil {
		return nil, err
	}

	nodeID := PublicKeyID(v.Node.Public().(ed25519.PublicKey))
	authorityID := PublicKeyID(v.Authority.Public().(ed25519.PublicKey))

	var (
		keys   []ids.ID
		header Header
		ix     Instruction
	)
	if authorityID == v.VoteAccount {
		keys = []ids.ID{nodeID, v.VoteAccount}
		header = Header{NumRequiredSignatures: 2}
		ix.Accounts = []byte{1, 1}
	} else {
		keys = []ids.ID{nodeID, authorityID, v.VoteAccount}
		header = Header{NumRequiredSignatures: 2, NumReadonlySigned: 1}
		ix.Accounts = []byte{2, 1}
	}
	keys = append(keys, v.ExtraAccounts...)
	keys = append(keys, VoteProgramID)
	header.NumReadonlyUnsigned = uint8(len(v.ExtraAccounts) + 1)

	ix.ProgramIDIndex = uint8(len(keys) - 1)
	ix.Data = data

	tx := &Transaction{
		Message: Message{
			Header:          header,
			AccountKeys:     keys,
			RecentBlockhash: v.Blockhash,
			Instructions:    []Instruction{ix},
		},
	}
	if err := tx.Sign(v.Node, v.Authority); err != nil {
		return nil, err
	}
	return tx, nil
}

// NewVotePacket builds vote and wraps it in a packet flagged as a simple
// vote.
func NewVotePacket(vote *VoteTx) (*Packet, error) {
	tx, err := vote.Build()
	if err != nil {
		return nil, err
	}
	return New(tx, FlagSimpleVote)
}
