// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package packet

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
)

func newKey(t *testing.T) ed25519.PrivateKey {
	_, sk, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return sk
}

func newTowerSync(t *testing.T, slot uint64) *VoteTx {
	voteKey := newKey(t)
	return &VoteTx{
		Vote: VoteInstruction{
			Kind:  TowerSync,
			Slots: []uint64{slot},
			Hash:  ids.GenerateTestID(),
		},
		Blockhash:   ids.GenerateTestID(),
		Node:        newKey(t),
		Authority:   voteKey,
		VoteAccount: PublicKeyID(voteKey.Public().(ed25519.PublicKey)),
	}
}

func TestVotePacketRoundTrip(t *testing.T) {
	require := require.New(t)

	vote := newTowerSync(t, 42)
	p, err := NewVotePacket(vote)
	require.NoError(err)
	require.True(p.IsSimpleVote())

	tx := p.Transaction()
	require.True(tx.Verify())
	require.Len(tx.Message.Instructions, 1)
	require.Equal(VoteProgramID, tx.Message.ProgramID(0))

	ix, err := ParseVoteInstruction(tx.Message.Instructions[0].Data)
	require.NoError(err)
	require.Equal(TowerSync, ix.Kind)
	slot, ok := ix.LastVotedSlot()
	require.True(ok)
	require.Equal(uint64(42), slot)
	require.Equal(vote.Vote.Hash, ix.Hash)

	reparsed, err := Parse(p.Bytes(), p.Flags())
	require.NoError(err)
	require.Equal(p.MessageHash(), reparsed.MessageHash())
}

func TestVoteTxSeparateAuthority(t *testing.T) {
	require := require.New(t)

	vote := newTowerSync(t, 7)
	vote.VoteAccount = ids.GenerateTestID()
	tx, err := vote.Build()
	require.NoError(err)

	msg := tx.Message
	require.Len(msg.AccountKeys, 4)
	require.True(msg.IsWritableIndex(0))
	require.False(msg.IsWritableIndex(1))
	require.True(msg.IsWritableIndex(2))
	require.False(msg.IsWritableIndex(3))
	require.Equal(vote.VoteAccount, msg.AccountKeys[msg.Instructions[0].Accounts[0]])
	require.True(tx.Verify())
}

func TestParseErrors(t *testing.T) {
	p, err := NewVotePacket(newTowerSync(t, 1))
	require.NoError(t, err)

	tests := []struct {
		name        string
		bytes       []byte
		flags       Flags
		expectedErr error
	}{
		{
			name:        "discard",
			bytes:       p.Bytes(),
			flags:       FlagDiscard,
			expectedErr: ErrDiscarded,
		},
		{
			name:        "empty",
			expectedErr: ErrEmptyPacket,
		},
		{
			name:        "too large",
			bytes:       make([]byte, MaxPacketSize+1),
			expectedErr: ErrTooLarge,
		},
		{
			name:        "garbage",
			bytes:       []byte{0xff, 0xff, 0xff},
			expectedErr: ErrDecode,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.bytes, test.flags)
			require.ErrorIs(t, err, test.expectedErr)
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Transaction)
		expectedErr error
	}{
		{
			name: "no keys",
			mutate: func(tx *Transaction) {
				tx.Message.AccountKeys = nil
			},
			expectedErr: ErrNoAccountKeys,
		},
		{
			name: "missing signature",
			mutate: func(tx *Transaction) {
				tx.Signatures = tx.Signatures[:1]
			},
			expectedErr: ErrSignatureCountMismatch,
		},
		{
			name: "fee payer as program",
			mutate: func(tx *Transaction) {
				tx.Message.Instructions[0].ProgramIDIndex = 0
			},
			expectedErr: ErrInvalidProgramIndex,
		},
		{
			name: "account index out of range",
			mutate: func(tx *Transaction) {
				tx.Message.Instructions[0].Accounts = []byte{9}
			},
			expectedErr: ErrInvalidAccountIndex,
		},
		{
			name: "readonly fee payer",
			mutate: func(tx *Transaction) {
				tx.Message.Header.NumReadonlySigned = 2
			},
			expectedErr: ErrInvalidHeader,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			tx, err := newTowerSync(t, 3).Build()
			require.NoError(err)
			test.mutate(tx)

			_, err = New(tx, FlagSimpleVote)
			require.ErrorIs(err, ErrSanitize)
			require.ErrorIs(err, test.expectedErr)
		})
	}
}

func TestVoteKind(t *testing.T) {
	require := require.New(t)

	require.False(Vote.IsSingleVoteStateUpdate())
	require.False(VoteSwitch.IsSingleVoteStateUpdate())
	require.True(CompactUpdateVoteState.IsSingleVoteStateUpdate())
	require.True(TowerSyncSwitch.IsSingleVoteStateUpdate())
	require.True(TowerSyncSwitch.IsTowerSync())
	require.False(UpdateVoteState.IsTowerSync())
	require.Equal("tower_sync", TowerSync.String())

	_, err := (&VoteInstruction{Kind: TowerSync}).Bytes()
	require.ErrorIs(err, ErrEmptyVote)
}
