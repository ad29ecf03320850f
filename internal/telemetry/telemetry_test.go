package telemetry_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jonesrussell/north-cloud/veritas/internal/telemetry"
)

func TestProvider_RecordsAndExposes(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := telemetry.NewProvider(reg)

	p.RecordCacheLookup(telemetry.CacheHit)
	p.RecordCacheLookup(telemetry.CacheHit)
	p.RecordAnalysis(telemetry.OutcomeRemote)
	p.ObserveRemote("success", 1500*time.Millisecond)

	if got := testutil.ToFloat64(p.Metrics.CacheLookups.WithLabelValues(telemetry.CacheHit)); got != 2 {
		t.Errorf("cache hits = %v, want 2", got)
	}

	w := httptest.NewRecorder()
	p.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	body := w.Body.String()
	for _, name := range []string{"veritas_cache_lookups_total", "veritas_analyses_total", "veritas_remote_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestProvider_NilIsNoOp(t *testing.T) {
	var p *telemetry.Provider

	p.RecordAnalysis("x")
	p.RecordCacheLookup("x")
	p.RecordProvisionalHint()
	p.ObserveRemote("x", time.Second)
	p.RecordTimeout()
	p.RecordLateResultDropped()
	p.RecordInFlightRejected()
	p.RecordBreakerState("open")
}
