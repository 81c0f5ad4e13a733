package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline instruments the enrichment run. A nil *Pipeline is valid and records nothing.
type Pipeline struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	records   *prometheus.CounterVec
	inFlight  prometheus.Gauge
	lastFlush prometheus.Gauge

	server *http.Server
}

// New registers the pipeline collectors on a private registry.
func New() *Pipeline {
	p := &Pipeline{registry: prometheus.NewRegistry()}

	p.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inspector",
		Name:      "places_requests_total",
		Help:      "Place API requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})
	p.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inspector",
		Name:      "places_request_duration_seconds",
		Help:      "Place API request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})
	p.records = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inspector",
		Name:      "records_processed_total",
		Help:      "Records processed by the enricher, by final status",
	}, []string{"status"})
	p.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "inspector",
		Name:      "records_in_flight",
		Help:      "Records currently being resolved or fetched",
	})
	p.lastFlush = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "inspector",
		Name:      "checkpoint_last_flush_timestamp_seconds",
		Help:      "Unix timestamp of the last checkpoint flush",
	})

	p.registry.MustRegister(p.requests, p.latency, p.records, p.inFlight, p.lastFlush)
	return p
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Pipeline) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

func (p *Pipeline) ObserveRequest(endpoint, outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.requests.WithLabelValues(endpoint, outcome).Inc()
	p.latency.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (p *Pipeline) RecordStatus(status string) {
	if p == nil {
		return
	}
	p.records.WithLabelValues(status).Inc()
}

func (p *Pipeline) InFlight(delta float64) {
	if p == nil {
		return
	}
	p.inFlight.Add(delta)
}

func (p *Pipeline) CheckpointFlushed() {
	if p == nil {
		return
	}
	p.lastFlush.SetToCurrentTime()
}

// Serve exposes /metrics and /healthz on addr in the background.
func (p *Pipeline) Serve(addr string, onErr func(error)) {
	if p == nil || addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	p.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && onErr != nil {
			onErr(err)
		}
	}()
}

// Shutdown stops the metrics server if one was started.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if p == nil || p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}
