package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Orchestrator holds the Prometheus metrics for the orchestrator service
type Orchestrator struct {
	Registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	RegistrationsTotal prometheus.Counter
	HeartbeatsTotal    prometheus.Counter
	CommandsQueued     prometheus.Counter
	CommandsDrained    prometheus.Counter
	NodesRegistered    prometheus.GaugeFunc
}

// NewOrchestrator registers the orchestrator collectors on a fresh registry.
// nodeCount backs the registered-nodes gauge.
func NewOrchestrator(nodeCount func() float64) *Orchestrator {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	if nodeCount == nil {
		nodeCount = func() float64 { return 0 }
	}
	return &Orchestrator{
		Registry: reg,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portmap_orchestrator_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		RegistrationsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "portmap_orchestrator_registrations_total",
			Help: "Total number of node registrations",
		}),
		HeartbeatsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "portmap_orchestrator_heartbeats_total",
			Help: "Total number of accepted heartbeats",
		}),
		CommandsQueued: f.NewCounter(prometheus.CounterOpts{
			Name: "portmap_orchestrator_commands_queued_total",
			Help: "Total number of commands enqueued",
		}),
		CommandsDrained: f.NewCounter(prometheus.CounterOpts{
			Name: "portmap_orchestrator_commands_drained_total",
			Help: "Total number of commands delivered through heartbeats",
		}),
		NodesRegistered: f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "portmap_orchestrator_nodes",
			Help: "Number of nodes in the registry",
		}, nodeCount),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Orchestrator) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Master holds the Prometheus metrics for the master service
type Master struct {
	Registry *prometheus.Registry

	ReportsTotal       prometheus.Counter
	MalformedTotal     prometheus.Counter
	DecisionsTotal     *prometheus.CounterVec
	ForwardErrorsTotal prometheus.Counter
	AuditErrorsTotal   prometheus.Counter
}

func NewMaster() *Master {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Master{
		Registry: reg,
		ReportsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "portmap_master_reports_total",
			Help: "Total number of telemetry reports accepted",
		}),
		MalformedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "portmap_master_malformed_total",
			Help: "Total number of malformed telemetry payloads",
		}),
		DecisionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portmap_master_decisions_total",
			Help: "Remediation decisions by action",
		}, []string{"action"}),
		ForwardErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "portmap_master_forward_errors_total",
			Help: "Total number of failed command forwards to the orchestrator",
		}),
		AuditErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "portmap_master_audit_errors_total",
			Help: "Total number of audit sink failures",
		}),
	}
}

func (m *Master) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
