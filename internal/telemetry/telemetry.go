package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	activeRuns    prometheus.Gauge
	eventsEmitted *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
)

func initMetrics() {
	once.Do(func() {
		runsStarted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glassmind_runs_started_total",
			Help: "Runs accepted via POST /v1/query.",
		})
		runsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glassmind_runs_finished_total",
			Help: "Runs that reached a terminal event, by outcome.",
		}, []string{"outcome"})
		activeRuns = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "glassmind_active_runs",
			Help: "Runs currently registered in the stream registry.",
		})
		eventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glassmind_events_emitted_total",
			Help: "Events emitted onto run streams, by type.",
		}, []string{"type"})
		toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glassmind_tool_calls_total",
			Help: "Collaborator tool invocations, by tool.",
		}, []string{"tool"})
		prometheus.MustRegister(runsStarted, runsFinished, activeRuns, eventsEmitted, toolCalls)
	})
}

// Telemetry records run and event counters. The zero-value-less constructor
// registers the collectors once per process.
type Telemetry struct{}

func New() *Telemetry {
	initMetrics()
	return &Telemetry{}
}

func (t *Telemetry) RunStarted() {
	runsStarted.Inc()
	activeRuns.Inc()
}

func (t *Telemetry) RunFinished(outcome string) {
	runsFinished.WithLabelValues(outcome).Inc()
	activeRuns.Dec()
}

func (t *Telemetry) EventEmitted(eventType string) {
	eventsEmitted.WithLabelValues(eventType).Inc()
}

func (t *Telemetry) ToolCalled(tool string) {
	toolCalls.WithLabelValues(tool).Inc()
}
