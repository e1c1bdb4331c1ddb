package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.now = func() time.Time { return time.Unix(1_760_000_000, 0) }

	m.ObserveRun("outbox-retention", 250*time.Millisecond, nil)
	m.ObserveRun("outbox-retention", time.Second, errors.New("db down"))
	m.IncSkipped("outbox-retention")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for outcome, want := range map[string]float64{CronSucceeded: 1, CronFailed: 1, CronSkipped: 1} {
		if got, err := fetchCounterValue(mfs, "storefront_cron_job_runs_total", "outcome", outcome); err != nil || got != want {
			t.Fatalf("outcome %s: got %f (%v), want %f", outcome, got, err, want)
		}
	}
	if got, err := fetchHistogramSum(mfs, "storefront_cron_job_duration_seconds", "job", "outbox-retention"); err != nil || got != 1.25 {
		t.Fatalf("expected duration sum 1.25, got %f (%v)", got, err)
	}
	mf := findMetricFamily(mfs, "storefront_cron_job_last_success_timestamp_seconds")
	if mf == nil || mf.GetMetric()[0].GetGauge().GetValue() != 1_760_000_000 {
		t.Fatalf("expected last success gauge to hold the success time")
	}
}

func TestInventoryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInventoryMetrics(reg)
	m.ObserveReserve(ReserveSuccess, 3, 10*time.Millisecond)
	m.ObserveReserve(ReserveOutOfStock, 5, time.Millisecond)
	m.ObserveRelease(true, 3)
	m.ObserveRelease(false, 3)
	m.SetViolations(2)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, _ := fetchCounterValue(mfs, "storefront_reservations_total", "result", ReserveOutOfStock); got != 1 {
		t.Fatalf("expected one out_of_stock, got %f", got)
	}
	if got := fetchPlainCounter(mfs, "storefront_reserved_units_total"); got != 3 {
		t.Fatalf("only successful draws count, got %f", got)
	}
	if got, _ := fetchCounterValue(mfs, "storefront_releases_total", "result", "noop"); got != 1 {
		t.Fatalf("expected one noop release, got %f", got)
	}
	if got := fetchPlainCounter(mfs, "storefront_released_units_total"); got != 3 {
		t.Fatalf("expected 3 released units, got %f", got)
	}
	mf := findMetricFamily(mfs, "storefront_inventory_conservation_violations")
	if mf == nil || mf.GetMetric()[0].GetGauge().GetValue() != 2 {
		t.Fatalf("expected violations gauge of 2")
	}
}

func TestOrderMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)
	m.Observe("created", nil)
	m.Observe("created", errors.New("boom"))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, _ := fetchCounterValue(mfs, "storefront_order_events_total", "result", "error"); got != 1 {
		t.Fatalf("expected one error, got %f", got)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	NewInventoryMetrics(nil).ObserveReserve(ReserveSuccess, 1, time.Second)
	NewOrderMetrics(nil).Observe("created", nil)
	NewCronJobMetrics(nil).ObserveRun("x", time.Second, nil)
	var cron *CronJobMetrics
	cron.IncSkipped("x")
	var m *InventoryMetrics
	m.ObserveRelease(true, 1)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchPlainCounter(mfs []*dto.MetricFamily, name string) float64 {
	mf := findMetricFamily(mfs, name)
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0
	}
	return mf.GetMetric()[0].GetCounter().GetValue()
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
