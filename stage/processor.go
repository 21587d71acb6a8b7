// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stage

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/luxfi/votestage/snapshot"
)

// BatchContext is handed to the processing step once per chunk.
type BatchContext struct {
	// Candidates is the number of packets admitted from the chunk. Retry
	// indices address this candidate batch.
	Candidates int
	// ReachedEndOfSlot may be set by the step. Once set, packets of the
	// remaining chunks are admitted without sanitization.
	ReachedEndOfSlot bool
	// Transactions holds the executable transactions built for this chunk,
	// in admission order. The step may consume or replace it.
	Transactions []*snapshot.ExecutableTx
	Metrics      *LeaderSlotMetricsTracker
}

// Processor executes one candidate batch and reports which candidates must
// go back to the pool.
type Processor interface {
	Process(ctx *BatchContext) Outcome
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx *BatchContext) Outcome

func (f ProcessorFunc) Process(ctx *BatchContext) Outcome {
	return f(ctx)
}

type outcomeKind uint8

const (
	requeueAll outcomeKind = iota
	retrySubset
)

// Outcome is the verdict of a processing step. The zero value requeues
// every candidate.
type Outcome struct {
	kind    outcomeKind
	indices *bitset.BitSet
}

// RequeueAll returns every candidate of the batch to the pool. It is the
// verdict for a step that cannot tell what was durably consumed.
func RequeueAll() Outcome {
	return Outcome{kind: requeueAll}
}

// RetryIndices returns only the candidates at the set indices to the pool.
// An empty or nil set returns nothing.
func RetryIndices(indices *bitset.BitSet) Outcome {
	if indices == nil {
		indices = bitset.New(0)
	}
	return Outcome{
		kind:    retrySubset,
		indices: indices,
	}
}

// Retry is RetryIndices over a list of indices.
func Retry(indices ...uint) Outcome {
	set := bitset.New(UnprocessedBufferStepSize)
	for _, i := range indices {
		set.Set(i)
	}
	return RetryIndices(set)
}

// RetryRange returns the candidates in [0, n) to the pool.
func RetryRange(n int) Outcome {
	set := bitset.New(uint(n))
	for i := 0; i < n; i++ {
		set.Set(uint(i))
	}
	return RetryIndices(set)
}

func (o Outcome) IsRequeueAll() bool {
	return o.kind == requeueAll
}

// Indices returns the retry set. ok is false for RequeueAll.
func (o Outcome) Indices() (*bitset.BitSet, bool) {
	if o.kind != retrySubset {
		return nil, false
	}
	return o.indices, true
}
