package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	bus := quietBus(WithMetrics(m), WithMaxDepth(2))

	src := bus.Attach(&recorder{})
	other := bus.Attach(&recorder{})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LiveNodes))

	require.NoError(t, bus.Broadcast(src, KindValueChanged, "/x", nil, 0))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Broadcasts.WithLabelValues(string(KindValueChanged))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Broadcasts.WithLabelValues(string(KindSpecificationChanged))))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deliveries))

	assert.Error(t, bus.Broadcast(src, KindValueChanged, "/x", nil, 2))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped))

	require.NoError(t, bus.Destroy(other))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveNodes))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	bus := quietBus()
	src := bus.Attach(&recorder{})
	assert.NotPanics(t, func() {
		_ = bus.Broadcast(src, KindValueChanged, "/x", nil, 0)
	})
}
