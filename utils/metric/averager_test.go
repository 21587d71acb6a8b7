// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utilmetric

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/metric"
)

func TestAverager(t *testing.T) {
	require := require.New(t)

	registry := metric.NewRegistry()
	a, err := NewAverager("ns", "latency", "latency in us", registry)
	require.NoError(err)

	a.Observe(3)
	a.Observe(5)

	families, err := registry.Gather()
	require.NoError(err)
	values := make(map[string]float64)
	for _, family := range families {
		for _, m := range family.Metrics {
			values[family.Name] += m.Value.Value
		}
	}
	require.Equal(map[string]float64{
		"ns_latency_count": 2,
		"ns_latency_sum":   8,
	}, values)
}

func TestAppendNamespace(t *testing.T) {
	tests := []struct {
		prefix   string
		suffix   string
		expected string
	}{
		{"a", "b", "a_b"},
		{"", "b", "b"},
		{"a", "", "a"},
	}
	for _, test := range tests {
		require.Equal(t, test.expected, AppendNamespace(test.prefix, test.suffix))
	}
}
