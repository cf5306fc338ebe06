package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryGathersRegisteredMetrics(t *testing.T) {
	ReconciliationTicksTotal.WithLabelValues("success").Inc()
	DriverErrorsTotal.WithLabelValues("get_or_create_pool", "driver_transient").Inc()

	families, err := Registry.Gather()
	assert.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	assert.True(t, names["coreloop_reconciliation_ticks_total"])
	assert.True(t, names["coreloop_driver_errors_total"])
	assert.True(t, names["coreloop_known_pools"])
}
