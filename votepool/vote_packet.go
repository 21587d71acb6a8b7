// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package votepool

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/votestage/packet"
)

var (
	ErrNotVoteTransaction = errors.New("transaction is not a vote")
	ErrLegacyVote         = errors.New("legacy vote instruction")
	ErrMissingVoteAccount = errors.New("vote instruction has no vote account")
)

// VoteSource is the producer role a vote arrived through.
type VoteSource uint8

const (
	// Gossip votes are received from the cluster gossip network.
	Gossip VoteSource = iota
	// TPU votes are submitted directly to the leader.
	TPU
)

func (s VoteSource) String() string {
	switch s {
	case Gossip:
		return "gossip"
	case TPU:
		return "tpu"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// VotePacket is the latest vote of a single vote account.
type VotePacket struct {
	packet       *packet.Packet
	source       VoteSource
	voteAccount  ids.ID
	slot         uint64
	hash         ids.ID
	hasTimestamp bool
	timestamp    int64
	taken        bool
}

// NewVotePacket extracts the vote carried by p. Only the first instruction
// is inspected. When deprecateLegacyVoteIxs is set only tower sync votes
// are accepted.
func NewVotePacket(p *packet.Packet, source VoteSource, deprecateLegacyVoteIxs bool) (*VotePacket, error) {
	msg := &p.Transaction().Message
	if len(msg.Instructions) == 0 || msg.ProgramID(0) != packet.VoteProgramID {
		return nil, ErrNotVoteTransaction
	}
	ix := msg.Instructions[0]
	vote, err := packet.ParseVoteInstruction(ix.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotVoteTransaction, err)
	}

	var allowed bool
	if deprecateLegacyVoteIxs {
		allowed = vote.Kind.IsTowerSync()
	} else {
		allowed = vote.Kind.IsSingleVoteStateUpdate()
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s", ErrLegacyVote, vote.Kind)
	}

	if len(ix.Accounts) == 0 {
		return nil, ErrMissingVoteAccount
	}
	slot, _ := vote.LastVotedSlot()
	return &VotePacket{
		packet:       p,
		source:       source,
		voteAccount:  msg.AccountKeys[ix.Accounts[0]],
		slot:         slot,
		hash:         vote.Hash,
		hasTimestamp: vote.HasTimestamp,
		timestamp:    vote.Timestamp,
	}, nil
}

func (v *VotePacket) Packet() *packet.Packet {
	return v.packet
}

func (v *VotePacket) Source() VoteSource {
	return v.source
}

func (v *VotePacket) VoteAccount() ids.ID {
	return v.voteAccount
}

func (v *VotePacket) Slot() uint64 {
	return v.slot
}

func (v *VotePacket) Hash() ids.ID {
	return v.hash
}

func (v *VotePacket) IsTaken() bool {
	return v.taken
}

// isNewerThan orders votes by slot, then by timestamp. A vote without a
// timestamp is older than one with a timestamp.
func (v *VotePacket) isNewerThan(other *VotePacket) bool {
	if v.slot != other.slot {
		return v.slot > other.slot
	}
	switch {
	case !v.hasTimestamp:
		return false
	case !other.hasTimestamp:
		return true
	default:
		return v.timestamp > other.timestamp
	}
}
