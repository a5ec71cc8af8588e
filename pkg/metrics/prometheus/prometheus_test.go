package prometheus

import (
	"testing"
	"time"

	"peachcash/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := New("peach")
	reg := prometheus.NewRegistry()
	require.Nil(t, c.Register(reg))

	c.RecordExchange("completed", 10*time.Millisecond)
	c.RecordExchange("completed", 12*time.Millisecond)
	c.RecordExchange("insufficient_funds", time.Millisecond)
	c.RecordRate("coingecko", false, time.Second)
	c.RecordCacheLookup(true)
	c.RecordCircuitState("coingecko", metrics.CircuitOpen)
	c.RecordCircuitState("coingecko", metrics.CircuitHalfOpen)
	c.RecordReconcile("recorded")

	require.Equal(t, 2.0, testutil.ToFloat64(c.exchanges.WithLabelValues("completed")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.exchanges.WithLabelValues("insufficient_funds")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.rateLookups.WithLabelValues("coingecko", "false")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("true")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.circuitState.WithLabelValues("coingecko")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.circuitOpens.WithLabelValues("coingecko")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.reconciled.WithLabelValues("recorded")))

	// a second registration of the same names fails
	require.NotNil(t, New("peach").Register(reg))
}
