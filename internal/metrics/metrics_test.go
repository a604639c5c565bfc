package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"classattend/internal/attendance"
)

func TestObserveVerification(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveVerification(attendance.OutcomeMarked, 0.21)
	m.ObserveVerification(attendance.OutcomeMarked, 0.35)
	m.ObserveVerification(attendance.OutcomeNotRecognized, 0.8)
	m.ObserveVerification(attendance.OutcomeOutsideWindow, 0)

	if got := testutil.ToFloat64(m.verifications.WithLabelValues(attendance.OutcomeMarked)); got != 2 {
		t.Errorf("marked = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.verifications.WithLabelValues(attendance.OutcomeOutsideWindow)); got != 1 {
		t.Errorf("outside_window = %v, want 1", got)
	}
	// one histogram series per matcher outcome
	if n := testutil.CollectAndCount(m.distance); n != 2 {
		t.Errorf("distance series = %d, want 2", n)
	}

	m.ObserveEvent("stored")
	if got := testutil.ToFloat64(m.events.WithLabelValues("stored")); got != 1 {
		t.Errorf("stored = %v, want 1", got)
	}
}
