package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		ObserveUpload("success", 0.4)
		IncDelivery("delivered")
		IncDrain("manual")
		IncRelayForward("2xx")
	})
}

func TestGauges(t *testing.T) {
	SetQueueDepth(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(queueDepth))

	SetQueueDepth(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(queueDepth))

	SetConnectivity(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(connectivity))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(deliveries.WithLabelValues("queued"))
	IncDelivery("queued")
	IncDelivery("queued")
	assert.Equal(t, before+2, testutil.ToFloat64(deliveries.WithLabelValues("queued")))
}
