// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package stage admits buffered vote transactions into bounded batches,
// hands them to a processing step and requeues whatever the step did not
// consume.
package stage

import (
	"errors"

	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/votestage/packet"
	"github.com/luxfi/votestage/snapshot"
	"github.com/luxfi/votestage/utils/timer/mockable"
	"github.com/luxfi/votestage/votepool"
)

const (
	// UnprocessedBufferStepSize is the width of a candidate batch, equal to
	// the maximum entry size of the downstream execution step.
	UnprocessedBufferStepSize = 64

	// MaxNumVotesReceive bounds the packets a single receive call accepts.
	MaxNumVotesReceive = 10_000
)

var (
	_ VotePool = (*votepool.Pool)(nil)

	ErrGossipConsumer = errors.New("gossip vote storage cannot process packets")
)

// VotePool is the shared pending-vote container. Insert and drain must be
// safe to interleave.
type VotePool interface {
	InsertBatch(votes []*votepool.VotePacket, replenish bool) votepool.InsertionMetrics
	DrainUnprocessed(bank snapshot.EpochInfo) []*packet.Packet
	IsEmpty() bool
	Len() int
	Clear()
	CacheEpochBoundaryInfo(bank snapshot.EpochInfo)
	ShouldDeprecateLegacyVoteIxs() bool
}

// VoteStorage is the intake side of a vote pool for one source. It only
// inserts and queries. Use TPUVoteStorage to process packets.
type VoteStorage struct {
	pool    VotePool
	source  votepool.VoteSource
	log     log.Logger
	metrics *Metrics
	clock   mockable.Clock
}

// New returns a storage fed by source. A nil metrics records into an
// unexported registry.
func New(pool VotePool, source votepool.VoteSource, logger log.Logger, metrics *Metrics) *VoteStorage {
	if metrics == nil {
		// A fresh registry cannot have conflicting registrations.
		metrics, _ = NewMetrics("", metric.NewRegistry())
	}
	return &VoteStorage{
		pool:    pool,
		source:  source,
		log:     logger,
		metrics: metrics,
	}
}

// NewGossip returns the storage used by the gossip vote receiver.
func NewGossip(pool VotePool, logger log.Logger, metrics *Metrics) *VoteStorage {
	return New(pool, votepool.Gossip, logger, metrics)
}

// NewTPU returns the storage used by the directly submitted vote consumer.
func NewTPU(pool VotePool, logger log.Logger, metrics *Metrics) *TPUVoteStorage {
	return &TPUVoteStorage{
		VoteStorage: New(pool, votepool.TPU, logger, metrics),
	}
}

func (s *VoteStorage) Source() votepool.VoteSource {
	return s.source
}

func (s *VoteStorage) IsEmpty() bool {
	return s.pool.IsEmpty()
}

func (s *VoteStorage) Len() int {
	return s.pool.Len()
}

func (*VoteStorage) MaxReceiveSize() int {
	return MaxNumVotesReceive
}

// InsertBatch converts packets into pool entries tagged with this storage's
// source and inserts them without replenishing drained votes. Packets that
// are not recognizable votes are dropped.
func (s *VoteStorage) InsertBatch(packets []*packet.Packet) votepool.InsertionMetrics {
	deprecateLegacyVoteIxs := s.pool.ShouldDeprecateLegacyVoteIxs()
	votes := make([]*votepool.VotePacket, 0, len(packets))
	for _, p := range packets {
		vote, err := votepool.NewVotePacket(p, s.source, deprecateLegacyVoteIxs)
		if err != nil {
			continue
		}
		votes = append(votes, vote)
	}

	m := s.pool.InsertBatch(votes, false)
	s.metrics.inserted.Add(float64(len(votes)))
	s.metrics.conversionFailures.Add(float64(len(packets) - len(votes)))
	s.metrics.insertDropped.Add(float64(m.TotalDropped()))
	return m
}

func (s *VoteStorage) Clear() {
	s.pool.Clear()
}

// ShouldNotProcess reports whether the caller's scheduler should skip this
// storage. Gossip votes are processed through the TPU storage.
func (s *VoteStorage) ShouldNotProcess() bool {
	return s.source == votepool.Gossip
}

// Consumer returns the processing view of a storage that was built through
// New.
func (s *VoteStorage) Consumer() (*TPUVoteStorage, error) {
	if s.source == votepool.Gossip {
		return nil, ErrGossipConsumer
	}
	return &TPUVoteStorage{VoteStorage: s}, nil
}

// MustConsumer is Consumer for wiring code where a gossip storage reaching
// the consumer is a programming error.
func (s *VoteStorage) MustConsumer() *TPUVoteStorage {
	c, err := s.Consumer()
	if err != nil {
		panic(errGossipProcessing)
	}
	return c
}

const errGossipProcessing = "gossip vote thread should not be processing transactions"

// assertProcessable aborts when a gossip storage reached a processing path,
// including through a TPUVoteStorage built by hand.
func (s *VoteStorage) assertProcessable() {
	if s.source == votepool.Gossip {
		panic(errGossipProcessing)
	}
}

// TPUVoteStorage adds round processing to a storage fed by directly
// submitted votes.
type TPUVoteStorage struct {
	*VoteStorage
}

// CacheEpochBoundaryInfo refreshes the pool's epoch-dependent state.
func (s *TPUVoteStorage) CacheEpochBoundaryInfo(bank snapshot.EpochInfo) {
	s.assertProcessable()
	s.pool.CacheEpochBoundaryInfo(bank)
}
