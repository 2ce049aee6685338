package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorderCounters(t *testing.T) {
	pr := NewPrometheusRecorder(prom.NewRegistry())

	pr.IncStageResult("ingestion", ResultSuccess)
	pr.IncStageResult("ingestion", ResultSuccess)
	pr.IncStageResult("validation", ResultFallback)
	pr.IncRunOutcome("success")
	pr.IncRetry("extraction")
	pr.IncRecovered("extraction")

	if got := testutil.ToFloat64(pr.stageResults.WithLabelValues("ingestion", "success")); got != 2 {
		t.Errorf("stage_results{ingestion,success} = %v", got)
	}
	if got := testutil.ToFloat64(pr.stageResults.WithLabelValues("validation", "fallback")); got != 1 {
		t.Errorf("stage_results{validation,fallback} = %v", got)
	}
	if got := testutil.ToFloat64(pr.runOutcome.WithLabelValues("success")); got != 1 {
		t.Errorf("run_outcomes{success} = %v", got)
	}
	if got := testutil.ToFloat64(pr.retries.WithLabelValues("extraction")); got != 1 {
		t.Errorf("stage_retries{extraction} = %v", got)
	}
	if got := testutil.ToFloat64(pr.recovered.WithLabelValues("extraction")); got != 1 {
		t.Errorf("stage_recoveries{extraction} = %v", got)
	}
}

func TestPrometheusRecorderHandlerExposesMetrics(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.ObserveStageDuration("generation", 120*time.Millisecond)
	pr.ObserveRunDuration(time.Second)

	rec := httptest.NewRecorder()
	pr.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{"docgen_stage_duration_seconds", "docgen_run_duration_seconds"} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %s", want)
		}
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObserveStageDuration("x", time.Second)
	pr.ObserveRunDuration(time.Second)
	pr.IncStageResult("x", ResultFatal)
	pr.IncRunOutcome("failed")
	pr.IncRetry("x")
	pr.IncRecovered("x")
}

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStageDuration("x", time.Second)
	r.IncRunOutcome("success")
}
