// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stage

import (
	"sync/atomic"

	"github.com/luxfi/log"
)

// BankingStageStats are counters shared by every storage instance of a
// stage. They are updated without locks.
type BankingStageStats struct {
	PacketConversionElapsed       atomic.Uint64
	ConsumeBufferedPacketsElapsed atomic.Uint64
	RebufferedPackets             atomic.Uint64
	FilteredPackets               atomic.Uint64
	ProcessedRounds               atomic.Uint64
}

// Report logs the counters accumulated since the last report and resets
// them.
func (s *BankingStageStats) Report(logger log.Logger) {
	rounds := s.ProcessedRounds.Swap(0)
	if rounds == 0 {
		return
	}
	logger.Info("banking stage stats",
		log.Uint64("rounds", rounds),
		log.Uint64("packetConversionElapsedUs", s.PacketConversionElapsed.Swap(0)),
		log.Uint64("consumeBufferedPacketsElapsedUs", s.ConsumeBufferedPacketsElapsed.Swap(0)),
		log.Uint64("rebufferedPackets", s.RebufferedPackets.Swap(0)),
		log.Uint64("filteredPackets", s.FilteredPackets.Swap(0)),
	)
}
