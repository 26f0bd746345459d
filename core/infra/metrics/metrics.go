package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics captures counters for correlation and decision events.
type Metrics interface {
	IncFragments(outcome string)
	IncBindings(method string)
	IncEvaluations(outcome string)
	IncActions(action string)
	IncAlerts(status string)
	IncHostErrors(op string)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncFragments(string)   {}
func (Noop) IncBindings(string)    {}
func (Noop) IncEvaluations(string) {}
func (Noop) IncActions(string)     {}
func (Noop) IncAlerts(string)      {}
func (Noop) IncHostErrors(string)  {}

// Prom implements Metrics backed by Prometheus counters.
type Prom struct {
	fragments   *prometheus.CounterVec
	bindings    *prometheus.CounterVec
	evaluations *prometheus.CounterVec
	actions     *prometheus.CounterVec
	alerts      *prometheus.CounterVec
	hostErrors  *prometheus.CounterVec
	once        sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		fragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_fragments_total",
			Help:      "Metadata fragments by outcome",
		}, []string{"outcome"}),
		bindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bindings_total",
			Help:      "Download binding resolutions by method",
		}, []string{"method"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Policy evaluations by outcome",
		}, []string{"outcome"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Enforced actions by kind",
		}, []string{"action"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert deliveries by status",
		}, []string{"status"}),
		hostErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_errors_total",
			Help:      "Host primitive failures by operation",
		}, []string{"op"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.fragments, p.bindings, p.evaluations, p.actions, p.alerts, p.hostErrors)
	})
}

func (p *Prom) IncFragments(outcome string) {
	p.fragments.WithLabelValues(outcome).Inc()
}

func (p *Prom) IncBindings(method string) {
	p.bindings.WithLabelValues(method).Inc()
}

func (p *Prom) IncEvaluations(outcome string) {
	p.evaluations.WithLabelValues(outcome).Inc()
}

func (p *Prom) IncActions(action string) {
	p.actions.WithLabelValues(action).Inc()
}

func (p *Prom) IncAlerts(status string) {
	p.alerts.WithLabelValues(status).Inc()
}

func (p *Prom) IncHostErrors(op string) {
	p.hostErrors.WithLabelValues(op).Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
