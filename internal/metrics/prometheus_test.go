package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler(t *testing.T) {
	m := New()
	m.Inc(Registered)
	m.Inc(Registered)
	m.Inc(DropTargetNotFound)

	ts := httptest.NewServer(PrometheusHandler(m))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(body)

	if !strings.Contains(out, `vidwire_signal_events_total{event="registered"} 2`) {
		t.Errorf("missing registered counter:\n%s", out)
	}
	if !strings.Contains(out, `vidwire_signal_events_total{event="drop_target_not_found"} 1`) {
		t.Errorf("missing drop counter:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE vidwire_signal_events_total counter") {
		t.Errorf("missing TYPE line:\n%s", out)
	}
}

func TestPrometheusHandler_NilMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := New()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				m.Inc(RelayedCandidate)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	if got := m.Get(RelayedCandidate); got != 800 {
		t.Fatalf("counter = %d, want 800", got)
	}
}
