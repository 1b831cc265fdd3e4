package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(RegistryRequests.WithLabelValues("fetch", "404"))
	RecordRegistryRequest("fetch", 404)
	assert.Equal(t, before+1, testutil.ToFloat64(RegistryRequests.WithLabelValues("fetch", "404")))

	SetReady(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(Ready))
	SetReady(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(Ready))
}
