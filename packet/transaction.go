// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package packet

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/luxfi/ids"
)

const SignatureLen = ed25519.SignatureSize

var (
	ErrNoAccountKeys          = errors.New("message has no account keys")
	ErrSignatureCountMismatch = errors.New("signature count does not match required signers")
	ErrInvalidHeader          = errors.New("message header exceeds account keys")
	ErrInvalidProgramIndex    = errors.New("instruction program index out of range")
	ErrInvalidAccountIndex    = errors.New("instruction account index out of range")
)

type Signature [SignatureLen]byte

// Header describes how the account keys of a message are partitioned. Keys
// are ordered as writable signers, readonly signers, writable non-signers
// and readonly non-signers.
type Header struct {
	NumRequiredSignatures uint8 `serialize:"true" json:"numRequiredSignatures"`
	NumReadonlySigned     uint8 `serialize:"true" json:"numReadonlySigned"`
	NumReadonlyUnsigned   uint8 `serialize:"true" json:"numReadonlyUnsigned"`
}

type Instruction struct {
	ProgramIDIndex uint8  `serialize:"true" json:"programIDIndex"`
	Accounts       []byte `serialize:"true" json:"accounts"`
	Data           []byte `serialize:"true" json:"data"`
}

type Message struct {
	Header          Header        `serialize:"true" json:"header"`
	AccountKeys     []ids.ID      `serialize:"true" json:"accountKeys"`
	RecentBlockhash ids.ID        `serialize:"true" json:"recentBlockhash"`
	Instructions    []Instruction `serialize:"true" json:"instructions"`
}

// Bytes returns the canonical encoding of the message, which is what
// signers sign over.
func (m *Message) Bytes() ([]byte, error) {
	return Codec.Marshal(CodecVersion, m)
}

// Hash returns the sha256 of the canonical message encoding.
func (m *Message) Hash() (ids.ID, error) {
	b, err := m.Bytes()
	if err != nil {
		return ids.Empty, err
	}
	return sha256.Sum256(b), nil
}

// FeePayer is the first account key. Callers must have checked that the
// message has at least one key.
func (m *Message) FeePayer() ids.ID {
	return m.AccountKeys[0]
}

func (m *Message) IsSigner(i int) bool {
	return i < int(m.Header.NumRequiredSignatures)
}

// IsWritableIndex reports the writability encoded by the header alone,
// before any reserved-key demotion.
func (m *Message) IsWritableIndex(i int) bool {
	numSigned := int(m.Header.NumRequiredSignatures)
	if i < numSigned {
		return i < numSigned-int(m.Header.NumReadonlySigned)
	}
	return i < len(m.AccountKeys)-int(m.Header.NumReadonlyUnsigned)
}

// Sanitize checks the structural consistency of the message.
func (m *Message) Sanitize() error {
	numKeys := len(m.AccountKeys)
	if numKeys == 0 {
		return ErrNoAccountKeys
	}
	h := m.Header
	if int(h.NumRequiredSignatures)+int(h.NumReadonlyUnsigned) > numKeys ||
		h.NumReadonlySigned >= h.NumRequiredSignatures {
		return ErrInvalidHeader
	}
	for i, ix := range m.Instructions {
		// The fee payer can never be invoked as a program.
		if ix.ProgramIDIndex == 0 || int(ix.ProgramIDIndex) >= numKeys {
			return fmt.Errorf("%w: instruction %d", ErrInvalidProgramIndex, i)
		}
		for _, a := range ix.Accounts {
			if int(a) >= numKeys {
				return fmt.Errorf("%w: instruction %d", ErrInvalidAccountIndex, i)
			}
		}
	}
	return nil
}

// ProgramID returns the program invoked by the instruction at index i.
func (m *Message) ProgramID(i int) ids.ID {
	return m.AccountKeys[m.Instructions[i].ProgramIDIndex]
}

type Transaction struct {
	Signatures []Signature `serialize:"true" json:"signatures"`
	Message    Message     `serialize:"true" json:"message"`
}

// Sanitize checks the message and that exactly one signature is present for
// every required signer.
func (t *Transaction) Sanitize() error {
	if err := t.Message.Sanitize(); err != nil {
		return err
	}
	if len(t.Signatures) != int(t.Message.Header.NumRequiredSignatures) {
		return ErrSignatureCountMismatch
	}
	return nil
}

// Sign fills in the signatures of the transaction. keys must be given in
// signer order.
func (t *Transaction) Sign(keys ...ed25519.PrivateKey) error {
	if len(keys) != int(t.Message.Header.NumRequiredSignatures) {
		return ErrSignatureCountMismatch
	}
	msg, err := t.Message.Bytes()
	if err != nil {
		return err
	}
	t.Signatures = make([]Signature, len(keys))
	for i, key := range keys {
		copy(t.Signatures[i][:], ed25519.Sign(key, msg))
	}
	return nil
}

// Verify checks every signature against the corresponding signer key.
func (t *Transaction) Verify() bool {
	msg, err := t.Message.Bytes()
	if err != nil {
		return false
	}
	for i, sig := range t.Signatures {
		pub := t.Message.AccountKeys[i]
		if !ed25519.Verify(pub[:], msg, sig[:]) {
			return false
		}
	}
	return true
}
