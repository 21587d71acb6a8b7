// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stage

import (
	"errors"

	"github.com/luxfi/metric"

	"github.com/luxfi/votestage/snapshot"

	utilmetric "github.com/luxfi/votestage/utils/metric"
)

const reasonLabel = "reason"

// Metrics are the metrics of a vote storage.
type Metrics struct {
	rounds             metric.Counter
	chunks             metric.Counter
	admitted           metric.Counter
	fastAdmitted       metric.Counter
	rejected           metric.Counter
	requeued           metric.Counter
	outOfRangeIndices  metric.Counter
	inserted           metric.Counter
	conversionFailures metric.Counter
	insertDropped      metric.Counter
	txErrors           metric.CounterVec
	drainedPerRound    utilmetric.Averager
	conversionUs       utilmetric.Averager
}

func NewMetrics(namespace string, registerer metric.Registerer) (*Metrics, error) {
	counter := func(name, help string) metric.Counter {
		return metric.NewCounter(metric.CounterOpts{
			Name: utilmetric.AppendNamespace(namespace, name),
			Help: help,
		})
	}
	m := &Metrics{
		rounds:             counter("rounds", "Number of drain-process-reconcile rounds"),
		chunks:             counter("chunks", "Number of candidate batches handed to the processing step"),
		admitted:           counter("admitted_packets", "Number of packets admitted into a candidate batch"),
		fastAdmitted:       counter("fast_admitted_packets", "Number of packets admitted without sanitization after the round ended"),
		rejected:           counter("rejected_packets", "Number of packets rejected by the admission filter"),
		requeued:           counter("requeued_packets", "Number of candidates returned to the pool"),
		outOfRangeIndices:  counter("retry_index_out_of_range", "Number of retry indices outside the candidate batch"),
		inserted:           counter("inserted_packets", "Number of packets converted into pool entries on intake"),
		conversionFailures: counter("conversion_failures", "Number of packets that were not recognizable votes on intake"),
		insertDropped:      counter("insert_dropped_votes", "Number of votes the pool dropped on intake"),
		txErrors: metric.NewCounterVec(
			metric.CounterOpts{
				Name: utilmetric.AppendNamespace(namespace, "tx_errors"),
				Help: "Number of admission failures by reason",
			},
			[]string{reasonLabel},
		),
	}

	drainedPerRound, drainedErr := utilmetric.NewAverager(namespace, "drained_per_round", "votes drained from the pool per round", registerer)
	m.drainedPerRound = drainedPerRound
	conversionUs, conversionErr := utilmetric.NewAverager(namespace, "packet_conversion_us", "time spent building executable transactions from packets", registerer)
	m.conversionUs = conversionUs

	err := errors.Join(
		drainedErr,
		conversionErr,
		registerer.Register(metric.AsCollector(m.rounds)),
		registerer.Register(metric.AsCollector(m.chunks)),
		registerer.Register(metric.AsCollector(m.admitted)),
		registerer.Register(metric.AsCollector(m.fastAdmitted)),
		registerer.Register(metric.AsCollector(m.rejected)),
		registerer.Register(metric.AsCollector(m.requeued)),
		registerer.Register(metric.AsCollector(m.outOfRangeIndices)),
		registerer.Register(metric.AsCollector(m.inserted)),
		registerer.Register(metric.AsCollector(m.conversionFailures)),
		registerer.Register(metric.AsCollector(m.insertDropped)),
		registerer.Register(metric.AsCollector(m.txErrors)),
	)
	return m, err
}

func (m *Metrics) observeErrors(errs *snapshot.ErrorMetrics) {
	add := func(reason string, n uint64) {
		if n > 0 {
			m.txErrors.With(metric.Labels{
				reasonLabel: reason,
			}).Add(float64(n))
		}
	}
	add("account_not_found", errs.AccountNotFound)
	add("account_in_use", errs.AccountInUse)
	add("insufficient_funds", errs.InsufficientFunds)
	add("too_many_account_locks", errs.TooManyAccountLocks)
	add("account_loaded_twice", errs.AccountLoadedTwice)
	add("sanitize_failure", errs.SanitizeFailure)
}
