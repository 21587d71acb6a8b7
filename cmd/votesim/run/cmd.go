// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/votestage/simulator"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Runs a vote stage simulation",
		RunE:  runFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func runFunc(c *cobra.Command, args []string) error {
	config, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}

	logger := log.NewLogger("votesim")
	registry := metric.NewRegistry()
	sim, err := simulator.New(config, logger, registry)
	if err != nil {
		return err
	}

	result, err := sim.Run(c.Context())
	if err != nil {
		return err
	}
	logger.Info("simulation complete",
		log.Int("rounds", result.Rounds),
		log.Int("reachedEndOfSlot", result.ReachedEndOfSlot),
		log.Uint64("committed", result.Committed),
		log.Int("pending", result.Pending),
	)
	return logMetrics(logger, registry)
}

// logMetrics logs the current value of every metric in g.
func logMetrics(logger log.Logger, g metric.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, family := range families {
		for _, m := range family.Metrics {
			labels := make([]string, 0, len(m.Labels))
			for _, label := range m.Labels {
				labels = append(labels, label.Name+"="+label.Value)
			}
			logger.Info("metric",
				log.String("name", family.Name),
				log.String("labels", strings.Join(labels, ",")),
				log.String("value", strconv.FormatFloat(m.Value.Value, 'f', -1, 64)),
			)
		}
	}
	return nil
}
