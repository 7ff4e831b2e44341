package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTrackedOrdersGauge(t *testing.T) {
	TrackedOrders.Set(0)
	TrackedOrders.Set(4)
	if got := testutil.ToFloat64(TrackedOrders); got != 4 {
		t.Errorf("expected TrackedOrders to be 4, got %f", got)
	}
	TrackedOrders.Set(0)
}

func TestReentriesByMode(t *testing.T) {
	before := testutil.ToFloat64(ReentriesTotal.WithLabelValues("AUTOMATIC"))
	ReentriesTotal.WithLabelValues("AUTOMATIC").Inc()
	ReentriesTotal.WithLabelValues("MANUAL").Inc()
	after := testutil.ToFloat64(ReentriesTotal.WithLabelValues("AUTOMATIC"))
	if after != before+1 {
		t.Errorf("expected AUTOMATIC counter to advance by 1, got %f -> %f", before, after)
	}
}

func TestBrokerErrorsByOp(t *testing.T) {
	before := testutil.ToFloat64(BrokerErrors.WithLabelValues("submit"))
	BrokerErrors.WithLabelValues("submit").Inc()
	if got := testutil.ToFloat64(BrokerErrors.WithLabelValues("submit")); got != before+1 {
		t.Errorf("expected submit error counter to advance, got %f", got)
	}
}
