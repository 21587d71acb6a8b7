// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package votepool

import (
	"errors"

	"github.com/luxfi/metric"

	utilmetric "github.com/luxfi/votestage/utils/metric"
)

const sourceLabel = "source"

type poolMetrics struct {
	numPending metric.Gauge
	numDrained metric.Counter
	numDropped metric.CounterVec
	numEvicted metric.Counter
}

func newMetrics(namespace string, registerer metric.Registerer) (*poolMetrics, error) {
	m := &poolMetrics{
		numPending: metric.NewGauge(metric.GaugeOpts{
			Name: utilmetric.AppendNamespace(namespace, "pending_votes"),
			Help: "Number of votes waiting to be drained",
		}),
		numDrained: metric.NewCounter(metric.CounterOpts{
			Name: utilmetric.AppendNamespace(namespace, "drained_votes"),
			Help: "Number of votes drained for processing",
		}),
		numDropped: metric.NewCounterVec(
			metric.CounterOpts{
				Name: utilmetric.AppendNamespace(namespace, "dropped_votes"),
				Help: "Number of votes dropped on insertion because they were superseded or unstaked",
			},
			[]string{sourceLabel},
		),
		numEvicted: metric.NewCounter(metric.CounterOpts{
			Name: utilmetric.AppendNamespace(namespace, "evicted_votes"),
			Help: "Number of votes evicted at an epoch boundary because their validator lost its stake",
		}),
	}

	err := errors.Join(
		registerer.Register(metric.AsCollector(m.numPending)),
		registerer.Register(metric.AsCollector(m.numDrained)),
		registerer.Register(metric.AsCollector(m.numDropped)),
		registerer.Register(metric.AsCollector(m.numEvicted)),
	)
	return m, err
}

func (m *poolMetrics) observeInsert(pending int, dropped InsertionMetrics) {
	m.numPending.Set(float64(pending))
	if dropped.NumDroppedGossip > 0 {
		m.numDropped.With(metric.Labels{
			sourceLabel: Gossip.String(),
		}).Add(float64(dropped.NumDroppedGossip))
	}
	if dropped.NumDroppedTPU > 0 {
		m.numDropped.With(metric.Labels{
			sourceLabel: TPU.String(),
		}).Add(float64(dropped.NumDroppedTPU))
	}
}
