// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package snapshot

import (
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

// DefaultAccountLockLimit is the maximum number of accounts a transaction
// may lock.
const DefaultAccountLockLimit = 64

// ValidateAccountLocks checks that keys fit within limit and that no key
// appears twice.
func ValidateAccountLocks(keys []ids.ID, limit int) error {
	if len(keys) > limit {
		return fmt.Errorf("%w: %d > %d", ErrTooManyAccountLocks, len(keys), limit)
	}
	seen := set.NewSet[ids.ID](len(keys))
	for _, key := range keys {
		if seen.Contains(key) {
			return fmt.Errorf("%w: %s", ErrAccountLoadedTwice, key)
		}
		seen.Add(key)
	}
	return nil
}
