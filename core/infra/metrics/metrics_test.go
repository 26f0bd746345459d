package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromCounters(t *testing.T) {
	p := NewProm("filegate_test")

	p.IncFragments("merged")
	p.IncFragments("merged")
	p.IncBindings("heuristic")
	p.IncEvaluations("deferred")
	p.IncActions("block")
	p.IncAlerts("sent")
	p.IncHostErrors("erase")

	if got := testutil.ToFloat64(p.fragments.WithLabelValues("merged")); got != 2 {
		t.Fatalf("fragments counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.bindings.WithLabelValues("heuristic")); got != 1 {
		t.Fatalf("bindings counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.actions.WithLabelValues("block")); got != 1 {
		t.Fatalf("actions counter = %v, want 1", got)
	}
}

func TestNoopSatisfiesInterface(t *testing.T) {
	var m Metrics = Noop{}
	m.IncFragments("merged")
	m.IncBindings("direct")
	m.IncEvaluations("matched")
	m.IncActions("notify")
	m.IncAlerts("skipped")
	m.IncHostErrors("cancel")
}
