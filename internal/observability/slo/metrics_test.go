package slo

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestTargetsAreReasonable(t *testing.T) {
	if BatchSuccessRatioTarget <= 0 || BatchSuccessRatioTarget > 1 {
		t.Errorf("BatchSuccessRatioTarget = %v, should be between 0 and 1", BatchSuccessRatioTarget)
	}
	if BatchDurationP95Target <= 0 {
		t.Errorf("BatchDurationP95Target = %v, should be positive", BatchDurationP95Target)
	}
	if BatchDurationP99Target <= BatchDurationP95Target {
		t.Errorf("BatchDurationP99Target = %v, should be greater than p95 target %v", BatchDurationP99Target, BatchDurationP95Target)
	}
	if SubtaskErrorRateTarget < 0 || SubtaskErrorRateTarget > 1 {
		t.Errorf("SubtaskErrorRateTarget = %v, should be between 0 and 1", SubtaskErrorRateTarget)
	}
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	metric := &io_prometheus_client.Metric{}
	if err := g.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.GetGauge().GetValue()
}

func TestRecordBatchOutcome_Success(t *testing.T) {
	RecordBatchOutcome(true, 42.5)

	if got := gaugeValue(t, BatchSuccess); got != 1 {
		t.Errorf("BatchSuccess = %v, want 1", got)
	}
	if got := gaugeValue(t, BatchDurationSeconds); got != 42.5 {
		t.Errorf("BatchDurationSeconds = %v, want 42.5", got)
	}
}

func TestRecordBatchOutcome_Failure(t *testing.T) {
	RecordBatchOutcome(false, 10)

	if got := gaugeValue(t, BatchSuccess); got != 0 {
		t.Errorf("BatchSuccess = %v, want 0", got)
	}
}

func TestRecordSubtaskErrorRate(t *testing.T) {
	RecordSubtaskErrorRate(1, 4)
	if got := gaugeValue(t, SubtaskErrorRate); got != 0.25 {
		t.Errorf("SubtaskErrorRate = %v, want 0.25", got)
	}
}

func TestRecordSubtaskErrorRate_ZeroTotal(t *testing.T) {
	RecordSubtaskErrorRate(0, 0)
	if got := gaugeValue(t, SubtaskErrorRate); got != 0 {
		t.Errorf("SubtaskErrorRate = %v, want 0 for zero total", got)
	}
}

func TestMetricsAreRegistered(t *testing.T) {
	collectors := []prometheus.Collector{
		BatchSuccess,
		BatchDurationSeconds,
		SubtaskErrorRate,
	}

	for _, c := range collectors {
		desc := make(chan *prometheus.Desc, 1)
		c.Describe(desc)
		select {
		case d := <-desc:
			if d == nil {
				t.Error("metric descriptor is nil")
			}
		default:
			t.Error("no descriptor received")
		}
	}
}
