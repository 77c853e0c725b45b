package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ObserveJob("curation_cycle", "succeeded", time.Second)
	m.ObservePass("approval", map[string]int{"approved": 1}, time.Second)
	m.IncVerdict("exact_fingerprint")
	m.IncSlot("filled")
	m.IncHealthAlert("warning", "runway")
	m.SetRunway(2)
	if err := m.CollectQueue(context.Background(), nil); err != nil {
		t.Fatalf("CollectQueue on nil: %v", err)
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled handler status = %d", rec.Code)
	}
}

func TestMetricsExposition(t *testing.T) {
	m := newMetrics()
	m.ObservePass("dedup", map[string]int{"processed": 4, "duplicates": 1, "errors": 0}, 50*time.Millisecond)
	m.IncVerdict("exact_fingerprint")
	m.IncVerdict("exact_fingerprint")

	if got := testutil.ToFloat64(m.passItems.WithLabelValues("dedup", "processed")); got != 4 {
		t.Fatalf("processed = %v", got)
	}
	if got := testutil.ToFloat64(m.verdicts.WithLabelValues("exact_fingerprint")); got != 2 {
		t.Fatalf("verdicts = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `curator_pass_items_total{outcome="duplicates",pass="dedup"} 1`) {
		t.Fatalf("exposition missing pass counter:\n%s", body)
	}
	if strings.Contains(body, `outcome="errors"`) {
		t.Fatalf("zero counts should not create series")
	}
}
