package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)
	require.NotNil(t, collector)
}

func TestRecordSubmittedAndRejected(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	assert.NotPanics(t, func() {
		for i := 0; i < 5; i++ {
			collector.RecordSubmitted()
		}
		collector.RecordRejected()
	})
}

func TestRecordSettled(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	outcomes := []string{"completed", "failed", "timeout", "cancelled"}
	for _, outcome := range outcomes {
		assert.NotPanics(t, func() {
			collector.RecordSettled("mock", 0.05, outcome)
		}, "RecordSettled should not panic for outcome %q", outcome)
	}
}

func TestRecordBackendCall(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	assert.NotPanics(t, func() {
		collector.RecordBackendCall("http", "success")
		collector.RecordBackendCall("http", "failure")
		collector.RecordBackendCall("native-local", "success")
	})
}

func TestSetBackendReady(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	assert.NotPanics(t, func() {
		collector.SetBackendReady("http", true)
		collector.SetBackendReady("http", false)
		collector.SetBackendReady("mock", true)
	})
}

func TestSetCircuitBreakerOpen(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	assert.NotPanics(t, func() {
		collector.SetCircuitBreakerOpen(true)
		collector.SetCircuitBreakerOpen(false)
	})
}

func TestUpdatePoolStats(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	cases := []struct {
		workerCount, idleCount, queueLength int
	}{
		{0, 0, 0},
		{2, 2, 0},
		{8, 0, 256},
	}
	for _, tc := range cases {
		assert.NotPanics(t, func() {
			collector.UpdatePoolStats(tc.workerCount, tc.idleCount, tc.queueLength)
		})
	}
}

func TestSetPatternCount(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	assert.NotPanics(t, func() {
		collector.SetPatternCount(0)
		collector.SetPatternCount(1000)
	})
}

func TestCollectorIsolation(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()

	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)
	require.NotNil(t, c1)
	require.NotNil(t, c2)

	assert.Panics(t, func() {
		NewCollector(reg1)
	}, "registering a second collector against the same registry should panic on duplicate metric names")
}

func TestConcurrentMetricUpdates(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	done := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() {
			collector.RecordSubmitted()
			collector.RecordSettled("mock", 0.01, "completed")
			collector.UpdatePoolStats(2, 1, 0)
			done <- true
		}()
	}
	for i := 0; i < 100; i++ {
		<-done
	}
}

func TestFullTaskLifecycle(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	assert.NotPanics(t, func() {
		collector.RecordSubmitted()
		collector.UpdatePoolStats(2, 1, 0)
		collector.RecordBackendCall("mock", "success")
		collector.RecordSettled("mock", 0.12, "completed")
		collector.UpdatePoolStats(2, 2, 0)
	})
}
