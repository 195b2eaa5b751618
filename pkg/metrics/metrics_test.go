package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "bloodbank", "api")

	m.Allocations.WithLabelValues("fulfilled").Inc()
	m.UnitsAssigned.Add(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Allocations.WithLabelValues("fulfilled")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.UnitsAssigned))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["bloodbank_api_allocations_total"])
	assert.True(t, names["bloodbank_api_allocation_units_assigned_total"])
}

func TestNewNopDoesNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop()
		NewNop()
	})
}
