package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	turnsTotal       prometheus.Counter
	retryTotal       *prometheus.CounterVec
	failoverTotal    *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	queueDepth         *prometheus.GaugeVec
	eventsEmittedTotal *prometheus.CounterVec
	activeSessions     prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_run_total",
					Help: "Total agent runs by model and status.",
				},
				[]string{"model", "status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by model.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"model"},
			),
			turnsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "agent_turns_total",
					Help: "Total inner-loop turns across all runs.",
				},
			),
			retryTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_retry_total",
					Help: "Total backoff retries by error category.",
				},
				[]string{"category"},
			),
			failoverTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_failover_total",
					Help: "Total model failovers by target model.",
				},
				[]string{"to_model"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_errors_total",
					Help: "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			queueDepth: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "interrupt_queue_depth",
					Help: "Pending entries in the steering/follow-up queues.",
				},
				[]string{"queue"},
			),
			eventsEmittedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "events_emitted_total",
					Help: "Total engine events emitted by type.",
				},
				[]string{"type"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Number of persisted sessions on disk.",
				},
			),
		}

		prometheus.MustRegister(
			m.agentRunTotal,
			m.agentRunDuration,
			m.turnsTotal,
			m.retryTotal,
			m.failoverTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.queueDepth,
			m.eventsEmittedTotal,
			m.activeSessions,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is
// called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler exposes the prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordAgentRun(model string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.agentRunTotal.WithLabelValues(model, status).Inc()
	m.agentRunDuration.WithLabelValues(model).Observe(duration.Seconds())
}

func RecordTurn() {
	getMetrics().turnsTotal.Inc()
}

func RecordRetry(category string) {
	getMetrics().retryTotal.WithLabelValues(category).Inc()
}

func RecordFailover(toModel string) {
	getMetrics().failoverTotal.WithLabelValues(toModel).Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func SetQueueDepth(queue string, depth int) {
	getMetrics().queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordEvent(eventType string) {
	getMetrics().eventsEmittedTotal.WithLabelValues(eventType).Inc()
}
