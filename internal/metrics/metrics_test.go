package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// Each test swaps in a fresh registry so repeated NewCollector calls do
// not collide on registration.
func freshCollector() *Collector {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	return NewCollector()
}

func TestNewCollector(t *testing.T) {
	c := freshCollector()

	assert.NotNil(t, c.jobsSubmitted)
	assert.NotNil(t, c.jobsCompleted)
	assert.NotNil(t, c.jobsFailed)
	assert.NotNil(t, c.jobsRejected)
	assert.NotNil(t, c.jobLatency)
	assert.NotNil(t, c.jobsPending)
	assert.NotNil(t, c.workerCount)
}

func TestCounters(t *testing.T) {
	c := freshCollector()

	c.RecordSubmitted()
	c.RecordSubmitted()
	c.RecordCompleted(0.05)
	c.RecordFailed()
	c.RecordRejected()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobsSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsRejected))
}

func TestGauges(t *testing.T) {
	c := freshCollector()

	c.SetPending(7)
	c.SetWorkers(4)
	assert.Equal(t, 7.0, testutil.ToFloat64(c.jobsPending))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.workerCount))

	c.SetPending(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.jobsPending))
}

// A nil collector must be a no-op everywhere; the pool runs without
// metrics in most tests.
func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordSubmitted()
		c.RecordCompleted(0.1)
		c.RecordFailed()
		c.RecordRejected()
		c.SetPending(3)
		c.SetWorkers(2)
	})
}
