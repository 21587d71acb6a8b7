// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package snapshot

import "errors"

var (
	ErrNotSimpleVote           = errors.New("transaction is not a simple vote")
	ErrSignatureFailure        = errors.New("transaction signature verification failed")
	ErrTooManyAccountLocks     = errors.New("transaction locks too many accounts")
	ErrAccountLoadedTwice      = errors.New("transaction loads an account twice")
	ErrAccountNotFound         = errors.New("fee payer account not found")
	ErrAccountInUse            = errors.New("fee payer account is locked by an in-flight batch")
	ErrInsufficientFundsForFee = errors.New("fee payer has insufficient funds for fee")
)

// ErrorMetrics counts per-reason transaction failures for a single round.
// It is not safe for concurrent use.
type ErrorMetrics struct {
	AccountNotFound     uint64
	AccountInUse        uint64
	InsufficientFunds   uint64
	TooManyAccountLocks uint64
	AccountLoadedTwice  uint64
	SanitizeFailure     uint64
}

func (m *ErrorMetrics) Accumulate(other *ErrorMetrics) {
	m.AccountNotFound += other.AccountNotFound
	m.AccountInUse += other.AccountInUse
	m.InsufficientFunds += other.InsufficientFunds
	m.TooManyAccountLocks += other.TooManyAccountLocks
	m.AccountLoadedTwice += other.AccountLoadedTwice
	m.SanitizeFailure += other.SanitizeFailure
}
