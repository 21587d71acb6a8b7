// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stage

import "github.com/luxfi/votestage/utils/timer/mockable"

func (s *VoteStorage) Clock() *mockable.Clock {
	return &s.clock
}
