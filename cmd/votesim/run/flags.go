// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"os"

	"github.com/spf13/pflag"

	"github.com/luxfi/votestage/config"
)

const (
	ConfigFileKey     = "config-file"
	ValidatorsKey     = "validators"
	RoundsKey         = "rounds"
	VotesPerSecondKey = "votes-per-second"
	RoundIntervalKey  = "round-interval"
	RoundCapacityKey  = "round-capacity"
	RetryPercentKey   = "retry-percent"
	LockLimitKey      = "account-lock-limit"
)

func AddFlags(flags *pflag.FlagSet) {
	defaults := config.DefaultSimulatorConfig
	flags.String(ConfigFileKey, "", "JSON config file; flags that are set override its values")
	flags.Int(ValidatorsKey, defaults.Validators, "Number of staked validators producing votes")
	flags.Int(RoundsKey, defaults.Rounds, "Number of leader slots to process")
	flags.Int(VotesPerSecondKey, defaults.VotesPerSecond, "Rate at which gossiped votes are received")
	flags.Duration(RoundIntervalKey, defaults.RoundInterval, "Time between leader slots")
	flags.Int(RoundCapacityKey, defaults.RoundCapacity, "Votes committed per slot before the slot ends")
	flags.Int(RetryPercentKey, defaults.RetryPercent, "Percent of every batch reported as retryable")
	flags.Int(LockLimitKey, config.DefaultBankConfig.AccountLockLimit, "Maximum number of accounts a transaction may lock")
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*config.Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	path, err := flags.GetString(ConfigFileKey)
	if err != nil {
		return nil, err
	}
	var b []byte
	if path != "" {
		b, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}
	c, err := config.GetConfig(b)
	if err != nil {
		return nil, err
	}

	intFlags := []struct {
		key string
		dst *int
	}{
		{ValidatorsKey, &c.Simulator.Validators},
		{RoundsKey, &c.Simulator.Rounds},
		{VotesPerSecondKey, &c.Simulator.VotesPerSecond},
		{RoundCapacityKey, &c.Simulator.RoundCapacity},
		{RetryPercentKey, &c.Simulator.RetryPercent},
		{LockLimitKey, &c.Bank.AccountLockLimit},
	}
	for _, f := range intFlags {
		if !flags.Changed(f.key) && path != "" {
			continue
		}
		if *f.dst, err = flags.GetInt(f.key); err != nil {
			return nil, err
		}
	}
	if flags.Changed(RoundIntervalKey) || path == "" {
		if c.Simulator.RoundInterval, err = flags.GetDuration(RoundIntervalKey); err != nil {
			return nil, err
		}
	}
	return c, c.Verify()
}
