package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipeline_Counters(t *testing.T) {
	r := New()
	p := NewPipeline(r)

	p.ObserveChunk(true, time.Second)
	p.ObserveChunk(false, time.Second)
	p.ObserveChunk(true, time.Second)
	p.AddUnits("text", 4)
	p.AddUnits("image", 0)
	p.Degraded("vision")
	p.Sanitized("dropped")

	if got := testutil.ToFloat64(p.chunkRuns.WithLabelValues("success")); got != 2 {
		t.Errorf("success runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.units.WithLabelValues("text")); got != 4 {
		t.Errorf("text units = %v, want 4", got)
	}
	if got := testutil.ToFloat64(p.degraded.WithLabelValues("vision")); got != 1 {
		t.Errorf("degraded = %v, want 1", got)
	}
}

func TestPipeline_NilSafe(t *testing.T) {
	var p *Pipeline
	p.ObserveChunk(true, time.Second)
	p.AddUnits("text", 1)
	p.Degraded("embed")
	p.ObserveRetrieval(false, time.Second)
	p.Sanitized("kept")
	p.ObserveHTTP("GET", "/api/health", 200, time.Millisecond)
}

func TestHandler(t *testing.T) {
	r := New()
	p := NewPipeline(r)
	p.ObserveHTTP("POST", "/api/search", 200, 20*time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`pdftutor_http_requests_total{method="POST",route="/api/search",status="200"} 1`,
		"pdftutor_http_request_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("output missing %q", want)
		}
	}
}
