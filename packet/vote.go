// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package packet

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"
)

var (
	// VoteProgramID is the program every simple vote transaction invokes.
	VoteProgramID = ids.ID{'v', 'o', 't', 'e', 'p', 'r', 'o', 'g'}

	ErrUnknownVoteKind = errors.New("unknown vote instruction kind")
	ErrEmptyVote       = errors.New("vote instruction has no slots")
)

// VoteKind identifies the vote instruction variant.
type VoteKind uint8

const (
	Vote VoteKind = iota
	VoteSwitch
	UpdateVoteState
	UpdateVoteStateSwitch
	CompactUpdateVoteState
	CompactUpdateVoteStateSwitch
	TowerSync
	TowerSyncSwitch
)

func (k VoteKind) String() string {
	switch k {
	case Vote:
		return "vote"
	case VoteSwitch:
		return "vote_switch"
	case UpdateVoteState:
		return "update_vote_state"
	case UpdateVoteStateSwitch:
		return "update_vote_state_switch"
	case CompactUpdateVoteState:
		return "compact_update_vote_state"
	case CompactUpdateVoteStateSwitch:
		return "compact_update_vote_state_switch"
	case TowerSync:
		return "tower_sync"
	case TowerSyncSwitch:
		return "tower_sync_switch"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// IsSingleVoteStateUpdate reports whether the instruction carries a full
// vote state rather than an incremental legacy vote.
func (k VoteKind) IsSingleVoteStateUpdate() bool {
	return k >= UpdateVoteState && k <= TowerSyncSwitch
}

func (k VoteKind) IsTowerSync() bool {
	return k == TowerSync || k == TowerSyncSwitch
}

type VoteInstruction struct {
	Kind VoteKind `serialize:"true" json:"kind"`
	// Slots are ascending; the last entry is the slot being voted on.
	Slots        []uint64 `serialize:"true" json:"slots"`
	Hash         ids.ID   `serialize:"true" json:"hash"`
	HasTimestamp bool     `serialize:"true" json:"hasTimestamp"`
	Timestamp    int64    `serialize:"true" json:"timestamp"`
	SwitchHash   ids.ID   `serialize:"true" json:"switchHash"`
}

func (v *VoteInstruction) LastVotedSlot() (uint64, bool) {
	if len(v.Slots) == 0 {
		return 0, false
	}
	return v.Slots[len(v.Slots)-1], true
}

// ParseVoteInstruction decodes instruction data into a vote instruction.
func ParseVoteInstruction(data []byte) (*VoteInstruction, error) {
	v := &VoteInstruction{}
	if _, err := Codec.Unmarshal(data, v); err != nil {
		return nil, err
	}
	if v.Kind > TowerSyncSwitch {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVoteKind, v.Kind)
	}
	return v, nil
}

func (v *VoteInstruction) Bytes() ([]byte, error) {
	if len(v.Slots) == 0 {
		return nil, ErrEmptyVote
	}
	return Codec.Marshal(CodecVersion, v)
}
