package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPrediction(t *testing.T) {
	before := testutil.ToFloat64(PredictionsTotal.WithLabelValues("ev-range", "ok"))
	RecordPrediction("ev-range", "ok")
	RecordPrediction("ev-range", "ok")

	if got := testutil.ToFloat64(PredictionsTotal.WithLabelValues("ev-range", "ok")) - before; got != 2 {
		t.Errorf("expected 2 new predictions, got %v", got)
	}
}

func TestSetModelAvailable(t *testing.T) {
	SetModelAvailable("heart-disease", true)
	if got := testutil.ToFloat64(ModelAvailable.WithLabelValues("heart-disease")); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	SetModelAvailable("heart-disease", false)
	if got := testutil.ToFloat64(ModelAvailable.WithLabelValues("heart-disease")); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestHealth(t *testing.T) {
	SetHealthy()
	if testutil.ToFloat64(HealthStatus) != 1 {
		t.Error("expected healthy")
	}
	SetUnhealthy()
	if testutil.ToFloat64(HealthStatus) != 0 {
		t.Error("expected unhealthy")
	}
}

func TestRecordCacheLookup(t *testing.T) {
	before := testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("memory", "hit"))
	RecordCacheLookup("memory", "hit")
	if got := testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("memory", "hit")) - before; got != 1 {
		t.Errorf("expected 1 new hit, got %v", got)
	}
}
