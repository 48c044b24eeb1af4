package orchestrator

import (
	"context"
	"time"

	"buildhub/lib/logger"
)

// recoveryLoop periodically removes agents that stopped heartbeating and
// returns their in-flight jobs to the queue, so a crashed agent never
// strands a build in the processing partition.
func (o *Orchestrator) recoveryLoop() {
	cfg := o.core.Config.Orchestrator
	ticker := time.NewTicker(cfg.AgentRecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.core.StopCtx.Done():
			return
		case <-ticker.C:
			o.recoverAgents(o.core.StopCtx)
		}
	}
}

func (o *Orchestrator) recoverAgents(ctx context.Context) {
	cfg := o.core.Config.Orchestrator

	expired, err := o.store.ExpireAgents(ctx, cfg.AgentTimeout)
	if err != nil {
		logger.Warn("Agent recovery pass failed: %v", err)
		return
	}
	for _, name := range expired.Agents {
		logger.Warn("Agent %s missed its heartbeat window, removing it", name)
		o.core.Metrics.AgentFails.Inc()
	}
	for _, jobID := range expired.RequeuedJobIDs {
		logger.Info("Returned job %s to the queue after its agent disappeared", jobID)
		o.core.Metrics.JobReschedules.Inc()
		o.core.Metrics.QueueSize.Inc()
	}

	agents, err := o.store.ListAgents(ctx)
	if err != nil {
		return
	}
	o.core.Metrics.AgentCount.Set(float64(len(agents)))
}
