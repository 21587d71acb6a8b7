// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package snapshot

import (
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"

	"github.com/luxfi/votestage/packet"
)

// ExecutableTx is a sanitized transaction bound to the snapshot it was
// built against. It is rebuilt every time its packet is attempted.
type ExecutableTx struct {
	message      *packet.Message
	messageHash  ids.ID
	isSimpleVote bool
	writable     []bool
}

// BuildExecutable sanitizes p. In vote-only mode anything but a simple vote
// is rejected. Reserved keys and keys invoked as programs are demoted to
// read-only.
func BuildExecutable(p *packet.Packet, voteOnly bool, reserved set.Set[ids.ID]) (*ExecutableTx, error) {
	if voteOnly && !p.IsSimpleVote() {
		return nil, ErrNotSimpleVote
	}
	tx := p.Transaction()
	if err := tx.Sanitize(); err != nil {
		return nil, err
	}
	if !tx.Verify() {
		return nil, ErrSignatureFailure
	}

	msg := &tx.Message
	programs := set.NewSet[int](len(msg.Instructions))
	for _, ix := range msg.Instructions {
		programs.Add(int(ix.ProgramIDIndex))
	}
	writable := make([]bool, len(msg.AccountKeys))
	for i, key := range msg.AccountKeys {
		writable[i] = msg.IsWritableIndex(i) &&
			!reserved.Contains(key) &&
			!programs.Contains(i)
	}
	return &ExecutableTx{
		message:      msg,
		messageHash:  p.MessageHash(),
		isSimpleVote: p.IsSimpleVote(),
		writable:     writable,
	}, nil
}

func (t *ExecutableTx) Message() *packet.Message {
	return t.message
}

func (t *ExecutableTx) AccountKeys() []ids.ID {
	return t.message.AccountKeys
}

func (t *ExecutableTx) FeePayer() ids.ID {
	return t.message.FeePayer()
}

func (t *ExecutableTx) MessageHash() ids.ID {
	return t.messageHash
}

func (t *ExecutableTx) IsSimpleVote() bool {
	return t.isSimpleVote
}

func (t *ExecutableTx) IsWritable(i int) bool {
	return i < len(t.writable) && t.writable[i]
}

func (t *ExecutableTx) NumSignatures() int {
	return int(t.message.Header.NumRequiredSignatures)
}

// WritableAccounts returns the keys the transaction write-locks.
func (t *ExecutableTx) WritableAccounts() []ids.ID {
	keys := make([]ids.ID, 0, len(t.writable))
	for i, w := range t.writable {
		if w {
			keys = append(keys, t.message.AccountKeys[i])
		}
	}
	return keys
}
