package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordStatusCounts(t *testing.T) {
	p := New()
	p.RecordStatus("enriched")
	p.RecordStatus("enriched")
	p.RecordStatus("unresolved")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.records.WithLabelValues("enriched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.records.WithLabelValues("unresolved")))
}

func TestObserveRequest(t *testing.T) {
	p := New()
	p.ObserveRequest("textsearch", "ok", 20*time.Millisecond)
	p.ObserveRequest("textsearch", "error", 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.requests.WithLabelValues("textsearch", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.latency))
}

func TestNilPipelineIsNoop(t *testing.T) {
	var p *Pipeline
	assert.NotPanics(t, func() {
		p.RecordStatus("enriched")
		p.ObserveRequest("details", "ok", time.Second)
		p.InFlight(1)
		p.CheckpointFlushed()
		p.Serve(":0", nil)
	})
}
