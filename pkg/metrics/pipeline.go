package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline holds the chunking, retrieval and HTTP collectors. All methods
// are safe on a nil *Pipeline, so components can run without metrics.
type Pipeline struct {
	chunkRuns         *prometheus.CounterVec
	chunkDuration     *prometheus.HistogramVec
	units             *prometheus.CounterVec
	degraded          *prometheus.CounterVec
	retrievals        *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	sanitized         *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewPipeline registers the pipeline collectors on r.
func NewPipeline(r *Registry) *Pipeline {
	return &Pipeline{
		chunkRuns:         r.Counter("chunk_runs_total", "Chunking runs by outcome.", "outcome"),
		chunkDuration:     r.Histogram("chunk_duration_seconds", "Chunking run duration.", nil),
		units:             r.Counter("units_total", "Content units produced by type.", "type"),
		degraded:          r.Counter("degraded_units_total", "Units whose soft step produced nothing, by stage.", "stage"),
		retrievals:        r.Counter("retrievals_total", "Retrievals by outcome.", "outcome"),
		retrievalDuration: r.Histogram("retrieval_duration_seconds", "Retrieval duration.", nil),
		sanitized:         r.Counter("sanitized_results_total", "Sanitizer verdicts.", "verdict"),
		httpRequests:      r.Counter("http_requests_total", "HTTP requests.", "method", "route", "status"),
		httpDuration:      r.Histogram("http_request_duration_seconds", "HTTP request duration.", nil, "route"),
	}
}

// ObserveChunk records one chunking run.
func (p *Pipeline) ObserveChunk(success bool, d time.Duration) {
	if p == nil {
		return
	}
	p.chunkRuns.WithLabelValues(outcome(success)).Inc()
	p.chunkDuration.WithLabelValues().Observe(d.Seconds())
}

// AddUnits counts produced units of one type.
func (p *Pipeline) AddUnits(unitType string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.units.WithLabelValues(unitType).Add(float64(n))
}

// Degraded counts a unit degraded at stage ("vision", "embed", "resolve").
func (p *Pipeline) Degraded(stage string) {
	if p == nil {
		return
	}
	p.degraded.WithLabelValues(stage).Inc()
}

// ObserveRetrieval records one retrieval.
func (p *Pipeline) ObserveRetrieval(success bool, d time.Duration) {
	if p == nil {
		return
	}
	p.retrievals.WithLabelValues(outcome(success)).Inc()
	p.retrievalDuration.WithLabelValues().Observe(d.Seconds())
}

// Sanitized records a sanitizer verdict ("kept", "trimmed", "dropped", "failed").
func (p *Pipeline) Sanitized(verdict string) {
	if p == nil {
		return
	}
	p.sanitized.WithLabelValues(verdict).Inc()
}

// ObserveHTTP records one HTTP request.
func (p *Pipeline) ObserveHTTP(method, route string, status int, d time.Duration) {
	if p == nil {
		return
	}
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
