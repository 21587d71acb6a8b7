// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package packet

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"
)

var (
	ErrDiscarded   = errors.New("packet marked for discard")
	ErrEmptyPacket = errors.New("empty packet")
	ErrTooLarge    = errors.New("packet exceeds maximum size")
	ErrDecode      = errors.New("failed to decode transaction")
	ErrSanitize    = errors.New("transaction failed sanitization")
)

// Flags are the metadata bits attached to a received packet.
type Flags uint8

const (
	FlagDiscard Flags = 1 << iota
	// FlagSimpleVote is set by signature verification for transactions that
	// contain a single vote instruction.
	FlagSimpleVote
	FlagForwarded
)

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

// Packet is an immutable, decoded transaction packet. It is shared by
// pointer and must not be modified after Parse returns.
type Packet struct {
	bytes       []byte
	tx          Transaction
	messageHash ids.ID
	flags       Flags
}

// Parse decodes and structurally sanitizes a raw packet.
func Parse(b []byte, flags Flags) (*Packet, error) {
	switch {
	case flags.Has(FlagDiscard):
		return nil, ErrDiscarded
	case len(b) == 0:
		return nil, ErrEmptyPacket
	case len(b) > MaxPacketSize:
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), MaxPacketSize)
	}

	p := &Packet{
		bytes: b,
		flags: flags,
	}
	if _, err := Codec.Unmarshal(b, &p.tx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := p.tx.Sanitize(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSanitize, err)
	}
	hash, err := p.tx.Message.Hash()
	if err != nil {
		return nil, err
	}
	p.messageHash = hash
	return p, nil
}

// New encodes tx and parses it back into a packet.
func New(tx *Transaction, flags Flags) (*Packet, error) {
	b, err := Codec.Marshal(CodecVersion, tx)
	if err != nil {
		return nil, err
	}
	return Parse(b, flags)
}

func (p *Packet) Bytes() []byte {
	return p.bytes
}

// Transaction returns the decoded transaction. The result must be treated
// as read-only.
func (p *Packet) Transaction() *Transaction {
	return &p.tx
}

func (p *Packet) MessageHash() ids.ID {
	return p.messageHash
}

func (p *Packet) Flags() Flags {
	return p.flags
}

func (p *Packet) IsSimpleVote() bool {
	return p.flags.Has(FlagSimpleVote)
}
