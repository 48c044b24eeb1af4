package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	agentLabel   = "agent"
	outcomeLabel = "outcome"
)

type Collector struct {
	Registerer prometheus.Registerer

	QueueSize        prometheus.Gauge
	AgentCount       prometheus.Gauge
	AgentFails       prometheus.Counter
	JobReschedules   prometheus.Counter
	TriggerFailures  prometheus.Counter
	ConversionErrors prometheus.Counter

	BuildResults *prometheus.CounterVec
}

func NewCollector(registerer prometheus.Registerer) *Collector {
	c := &Collector{Registerer: registerer}

	c.QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "buildhub",
		Subsystem: "orchestrator",
		Name:      "queue_size",
		Help:      "Number of build jobs currently pending",
	})
	c.Registerer.MustRegister(c.QueueSize)

	c.AgentCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "buildhub",
		Subsystem: "orchestrator",
		Name:      "agent_count",
		Help:      "Number of registered build agents",
	})
	c.Registerer.MustRegister(c.AgentCount)

	c.AgentFails = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "buildhub",
		Subsystem: "orchestrator",
		Name:      "agent_fails_count",
		Help:      "Number of agent heartbeat expirations",
	})
	c.Registerer.MustRegister(c.AgentFails)

	c.JobReschedules = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "buildhub",
		Subsystem: "orchestrator",
		Name:      "job_reschedule_count",
		Help:      "Number of jobs returned to the pending partition after agent failure",
	})
	c.Registerer.MustRegister(c.JobReschedules)

	c.TriggerFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "buildhub",
		Subsystem: "orchestrator",
		Name:      "trigger_failures_count",
		Help:      "Number of build trigger attempts rejected by the CI backend",
	})
	c.Registerer.MustRegister(c.TriggerFailures)

	c.ConversionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "buildhub",
		Subsystem: "orchestrator",
		Name:      "conversion_errors_count",
		Help:      "Number of build notifications the converter rejected as malformed",
	})
	c.Registerer.MustRegister(c.ConversionErrors)

	c.BuildResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buildhub",
		Subsystem: "orchestrator",
		Name:      "build_results_count",
		Help:      "Number of build results received from agents",
	}, []string{agentLabel, outcomeLabel})
	c.Registerer.MustRegister(c.BuildResults)

	return c
}

func (c *Collector) NewBuildResult(agent string, successful bool) {
	outcome := "failed"
	if successful {
		outcome = "successful"
	}
	c.BuildResults.With(prometheus.Labels{
		agentLabel:   agent,
		outcomeLabel: outcome,
	}).Inc()
}
