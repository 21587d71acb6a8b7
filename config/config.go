// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/votestage/snapshot"
	"github.com/luxfi/votestage/votepool"
)

var (
	ErrNoValidators        = errors.New("at least one validator is required")
	ErrInvalidRounds       = errors.New("rounds must be positive")
	ErrInvalidRate         = errors.New("votes per second must be positive")
	ErrInvalidRetryPercent = errors.New("retry percent must be in [0, 100]")
	ErrInvalidRoundLength  = errors.New("round interval must be positive")
	ErrInvalidCapacity     = errors.New("round capacity must be positive")
	ErrInvalidEpochLength  = errors.New("rounds per epoch must be positive")

	DefaultBankConfig = BankConfig{
		VoteOnly:             true,
		AccountLockLimit:     snapshot.DefaultAccountLockLimit,
		LamportsPerSignature: snapshot.DefaultBankConfig.LamportsPerSignature,
		RentExemptMinimum:    snapshot.DefaultBankConfig.RentExemptMinimum,
	}

	DefaultSimulatorConfig = SimulatorConfig{
		Validators:     200,
		Rounds:         10,
		VotesPerSecond: 2_000,
		RoundInterval:  400 * time.Millisecond,
		RoundCapacity:  256,
		RoundsPerEpoch: 32,
		RetryPercent:   10,
	}

	DefaultConfig = Config{
		Pool:      votepool.DefaultConfig,
		Bank:      DefaultBankConfig,
		Simulator: DefaultSimulatorConfig,
	}
)

// BankConfig is the execution snapshot the simulated leader votes against.
type BankConfig struct {
	VoteOnly             bool   `json:"vote-only"`
	LegacyVoteDeprecated bool   `json:"legacy-vote-deprecated"`
	AccountLockLimit     int    `json:"account-lock-limit"`
	LamportsPerSignature uint64 `json:"lamports-per-signature"`
	RentExemptMinimum    uint64 `json:"rent-exempt-minimum"`
}

// Snapshot converts c into the configuration of an in-memory bank.
func (c BankConfig) Snapshot() snapshot.BankConfig {
	return snapshot.BankConfig{
		VoteOnly:             c.VoteOnly,
		LegacyVoteDeprecated: c.LegacyVoteDeprecated,
		AccountLockLimit:     c.AccountLockLimit,
		LamportsPerSignature: c.LamportsPerSignature,
		RentExemptMinimum:    c.RentExemptMinimum,
	}
}

// SimulatorConfig drives the producer and consumer of votesim.
type SimulatorConfig struct {
	Validators     int `json:"validators"`
	Rounds         int `json:"rounds"`
	VotesPerSecond int `json:"votes-per-second"`
	RoundsPerEpoch int `json:"rounds-per-epoch"`

	// RoundInterval is encoded in JSON as an integer number of nanoseconds.
	// The round-interval flag takes a duration string instead.
	RoundInterval time.Duration `json:"round-interval"`
	// RoundCapacity is the number of votes the simulated execution step
	// commits before it signals the end of the slot.
	RoundCapacity int `json:"round-capacity"`
	// RetryPercent is the share of every candidate batch the simulated
	// execution step reports as retryable.
	RetryPercent int `json:"retry-percent"`
}

type Config struct {
	Pool      votepool.Config `json:"pool"`
	Bank      BankConfig      `json:"bank"`
	Simulator SimulatorConfig `json:"simulator"`
}

// GetConfig returns a Config
// input is unmarshalled into a Config previously
// initialized with default values
func GetConfig(b []byte) (*Config, error) {
	c := DefaultConfig

	// if bytes are empty keep default values
	if len(b) == 0 {
		return &c, nil
	}

	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, c.Verify()
}

func (c *Config) Verify() error {
	switch {
	case c.Simulator.Validators <= 0:
		return ErrNoValidators
	case c.Simulator.Rounds <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidRounds, c.Simulator.Rounds)
	case c.Simulator.VotesPerSecond <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidRate, c.Simulator.VotesPerSecond)
	case c.Simulator.RetryPercent < 0 || c.Simulator.RetryPercent > 100:
		return fmt.Errorf("%w: %d", ErrInvalidRetryPercent, c.Simulator.RetryPercent)
	case c.Simulator.RoundInterval <= 0:
		return ErrInvalidRoundLength
	case c.Simulator.RoundCapacity <= 0:
		return ErrInvalidCapacity
	case c.Simulator.RoundsPerEpoch <= 0:
		return ErrInvalidEpochLength
	default:
		return nil
	}
}
