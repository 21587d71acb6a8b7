// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package votepool keeps the latest pending vote of every staked validator
// and drains them in stake-weighted random order.
package votepool

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
	"gonum.org/v1/gonum/stat/sampleuv"

	lru "github.com/hashicorp/golang-lru"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/votestage/packet"
	"github.com/luxfi/votestage/snapshot"
)

const defaultTreeDegree = 32

// Config tunes the pool.
type Config struct {
	// Namespace prefixes the pool's metrics.
	Namespace string `json:"namespace"`
	// EpochStakesCacheSize is the number of epochs whose stake tables are
	// kept for draining.
	EpochStakesCacheSize int `json:"epoch-stakes-cache-size"`
}

var DefaultConfig = Config{
	Namespace:            "vote_pool",
	EpochStakesCacheSize: 4,
}

// InsertionMetrics reports the votes an insertion dropped, by source.
type InsertionMetrics struct {
	NumDroppedGossip int
	NumDroppedTPU    int
}

func (m InsertionMetrics) TotalDropped() int {
	return m.NumDroppedGossip + m.NumDroppedTPU
}

func (m *InsertionMetrics) countDropped(v *VotePacket) {
	switch v.source {
	case Gossip:
		m.NumDroppedGossip++
	case TPU:
		m.NumDroppedTPU++
	}
}

// Pool is safe for concurrent use by one producer and one consumer. A
// drain is a point-in-time snapshot and does not observe racing inserts.
type Pool struct {
	log     log.Logger
	metrics *poolMetrics

	mu             sync.RWMutex
	votes          map[ids.ID]*VotePacket
	index          *btree.BTreeG[ids.ID]
	numUnprocessed int
	cachedStakes   map[ids.ID]uint64
	currentEpoch   uint64

	epochStakes *lru.Cache

	deprecateLegacyVoteIxs atomic.Bool
}

func New(
	bank snapshot.EpochInfo,
	config Config,
	log log.Logger,
	registerer metric.Registerer,
) (*Pool, error) {
	if config.EpochStakesCacheSize <= 0 {
		config.EpochStakesCacheSize = DefaultConfig.EpochStakesCacheSize
	}
	metrics, err := newMetrics(config.Namespace, registerer)
	if err != nil {
		return nil, err
	}
	epochStakes, err := lru.New(config.EpochStakesCacheSize)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		log:          log,
		metrics:      metrics,
		votes:        make(map[ids.ID]*VotePacket),
		index:        btree.NewG(defaultTreeDegree, lessID),
		cachedStakes: bank.VoteAccountStakes(),
		currentEpoch: bank.Epoch(),
		epochStakes:  epochStakes,
	}
	p.epochStakes.Add(p.currentEpoch, p.cachedStakes)
	p.deprecateLegacyVoteIxs.Store(bank.IsLegacyVoteDeprecated())
	return p, nil
}

func lessID(a, b ids.ID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.numUnprocessed
}

func (p *Pool) IsEmpty() bool {
	return p.Len() == 0
}

// ShouldDeprecateLegacyVoteIxs reports whether only tower sync votes may
// enter the pool.
func (p *Pool) ShouldDeprecateLegacyVoteIxs() bool {
	return p.deprecateLegacyVoteIxs.Load()
}

// InsertBatch inserts votes. Without replenish a vote that was already
// drained is never restored; with replenish a drained vote is restored by a
// vote that is not older than it.
func (p *Pool) InsertBatch(votes []*VotePacket, replenish bool) InsertionMetrics {
	var m InsertionMetrics

	p.mu.Lock()
	for _, vote := range votes {
		if dropped := p.updateLatestVote(vote, replenish); dropped != nil {
			m.countDropped(dropped)
		}
	}
	pending := p.numUnprocessed
	p.mu.Unlock()

	p.metrics.observeInsert(pending, m)
	return m
}

// updateLatestVote returns the vote that lost its place, if any. Must be
// called with mu held.
func (p *Pool) updateLatestVote(vote *VotePacket, replenish bool) *VotePacket {
	key := vote.voteAccount
	if p.cachedStakes[key] == 0 {
		return vote
	}

	existing, ok := p.votes[key]
	if !ok {
		p.votes[key] = vote
		p.index.ReplaceOrInsert(key)
		p.numUnprocessed++
		return nil
	}

	if vote.isNewerThan(existing) {
		p.votes[key] = vote
		if existing.taken {
			p.numUnprocessed++
			return nil
		}
		return existing
	}

	if replenish && existing.taken && !existing.isNewerThan(vote) {
		p.votes[key] = vote
		p.numUnprocessed++
		return nil
	}
	return vote
}

// DrainUnprocessed takes every pending vote of a validator staked in the
// bank's epoch, in stake-weighted random order. Votes for slots that are
// not on the bank's fork stay pending.
func (p *Pool) DrainUnprocessed(bank snapshot.EpochInfo) []*packet.Packet {
	stakes := p.stakesFor(bank)
	slotHashes := bank.SlotHashes()

	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		candidates = make([]*VotePacket, 0, p.numUnprocessed)
		weights    = make([]float64, 0, p.numUnprocessed)
	)
	p.index.Ascend(func(key ids.ID) bool {
		vote := p.votes[key]
		stake := stakes[key]
		if vote.taken || stake == 0 {
			return true
		}
		candidates = append(candidates, vote)
		weights = append(weights, float64(stake))
		return true
	})

	drained := make([]*packet.Packet, 0, len(candidates))
	if len(candidates) == 0 {
		return drained
	}
	sampler := sampleuv.NewWeighted(weights, nil)
	for {
		i, ok := sampler.Take()
		if !ok {
			break
		}
		vote := candidates[i]
		if !isValidForOurFork(vote, slotHashes) {
			continue
		}
		vote.taken = true
		p.numUnprocessed--
		drained = append(drained, vote.packet)
	}

	p.metrics.numPending.Set(float64(p.numUnprocessed))
	p.metrics.numDrained.Add(float64(len(drained)))
	return drained
}

func (p *Pool) stakesFor(bank snapshot.EpochInfo) map[ids.ID]uint64 {
	epoch := bank.Epoch()
	if cached, ok := p.epochStakes.Get(epoch); ok {
		return cached.(map[ids.ID]uint64)
	}
	stakes := bank.VoteAccountStakes()
	p.epochStakes.Add(epoch, stakes)
	return stakes
}

// isValidForOurFork accepts votes newer than the bank's latest slot and
// votes whose (slot, hash) is in the bank's slot hashes.
func isValidForOurFork(vote *VotePacket, slotHashes []snapshot.SlotHash) bool {
	if len(slotHashes) == 0 {
		return true
	}
	if vote.slot > slotHashes[0].Slot {
		return true
	}
	for _, slotHash := range slotHashes {
		if slotHash.Slot == vote.slot {
			return slotHash.Hash == vote.hash
		}
	}
	return false
}

// CacheEpochBoundaryInfo refreshes the cached stakes and legacy vote policy
// once the bank enters a new epoch, and evicts votes of validators that no
// longer have stake.
func (p *Pool) CacheEpochBoundaryInfo(bank snapshot.EpochInfo) {
	epoch := bank.Epoch()

	p.mu.Lock()
	defer p.mu.Unlock()

	if epoch <= p.currentEpoch {
		return
	}
	stakes := bank.VoteAccountStakes()
	p.cachedStakes = stakes
	p.currentEpoch = epoch
	p.epochStakes.Add(epoch, stakes)
	p.deprecateLegacyVoteIxs.Store(bank.IsLegacyVoteDeprecated())

	var evicted int
	for key, vote := range p.votes {
		if stakes[key] != 0 {
			continue
		}
		if !vote.taken {
			p.numUnprocessed--
		}
		delete(p.votes, key)
		p.index.Delete(key)
		evicted++
	}

	p.metrics.numPending.Set(float64(p.numUnprocessed))
	p.metrics.numEvicted.Add(float64(evicted))
	p.log.Info("cached epoch boundary info",
		log.Uint64("epoch", epoch),
		log.Int("stakedValidators", len(stakes)),
		log.Int("evictedVotes", evicted),
		log.Bool("deprecateLegacyVoteIxs", p.deprecateLegacyVoteIxs.Load()),
	)
}

// Clear marks every pending vote as drained.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, vote := range p.votes {
		vote.taken = true
	}
	p.numUnprocessed = 0
	p.metrics.numPending.Set(0)
}
