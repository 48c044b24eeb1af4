package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"buildhub/common"
	"buildhub/common/config"
	"buildhub/common/connectors/orchestratorconn"
	"buildhub/lib/logger"
	"buildhub/queue"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

const resultReportMaxElapsedTime = time.Minute

// Agent pulls build jobs from the orchestrator, runs them and reports the
// results back. It holds no authoritative state: after a crash it simply
// registers again and the orchestrator requeues whatever it was building.
type Agent struct {
	core   *common.Core
	config *config.AgentConfig
	conn   *orchestratorconn.Connector
	runner Runner

	name string
	// epoch is minted once per process start; the orchestrator drops status
	// updates from older epochs of the same agent name.
	epoch string

	slots chan struct{}

	jobsLock    sync.Mutex
	currentJobs queue.Set[string]
}

func SetupAgent(core *common.Core) error {
	if core.Config.Agent == nil {
		return errors.New("agent is not configured")
	}
	if core.OrchestratorConn == nil {
		return errors.New("agent requires an OrchestratorConnection")
	}
	cfg := core.Config.Agent

	name := cfg.Name
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return err
		}
		name = fmt.Sprintf("%s:%d", hostname, core.Config.Port)
	}

	a := &Agent{
		core:        core,
		config:      cfg,
		conn:        core.OrchestratorConn,
		runner:      NewExecRunner(cfg),
		name:        name,
		epoch:       uuid.Must(uuid.NewV6()).String(),
		slots:       make(chan struct{}, cfg.Capacity),
		currentJobs: queue.NewSet[string](),
	}
	for i := 0; i < cfg.Capacity; i++ {
		a.slots <- struct{}{}
	}

	core.AddProcess(a.heartbeatLoop)
	core.AddProcess(a.pollLoop)

	logger.Info("Configured agent %s with capacity %d", name, cfg.Capacity)
	return nil
}

func (a *Agent) status() *queue.AgentInfo {
	a.jobsLock.Lock()
	jobs := a.currentJobs.Items()
	a.jobsLock.Unlock()

	return &queue.AgentInfo{
		Name:          a.name,
		Capacity:      a.config.Capacity,
		Languages:     a.config.Languages,
		CurrentJobIDs: jobs,
		LastHeartbeat: time.Now(),
		Epoch:         a.epoch,
	}
}

func (a *Agent) register(ctx context.Context) error {
	return a.conn.RegisterAgent(ctx, a.status())
}

func (a *Agent) heartbeatLoop() {
	ctx := a.core.StopCtx

	if err := a.register(ctx); err != nil {
		logger.Warn("Initial registration failed, will retry with the next heartbeat: %v", err)
	}

	ticker := time.NewTicker(a.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		known, err := a.conn.SendHeartbeat(ctx, a.name)
		if err != nil {
			logger.Warn("Heartbeat failed: %v", err)
			continue
		}
		if !known {
			logger.Info("Orchestrator does not know this agent, registering again")
			if err := a.register(ctx); err != nil {
				logger.Warn("Registration failed: %v", err)
			}
		}
	}
}

func (a *Agent) pollLoop() {
	ctx := a.core.StopCtx
	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		select {
		case <-ctx.Done():
			return
		case <-a.slots:
		}

		job, err := a.conn.PollJob(ctx, &orchestratorconn.PollRequest{
			AgentName: a.name,
			Languages: a.config.Languages,
		})
		if err != nil {
			logger.Warn("Polling for work failed: %v", err)
		}
		if job == nil {
			a.slots <- struct{}{}
			continue
		}

		a.jobsLock.Lock()
		a.currentJobs.Add(job.ID)
		a.jobsLock.Unlock()

		a.core.Go(func() {
			defer func() {
				a.slots <- struct{}{}
			}()
			a.runJob(ctx, job)
		})
	}
}

func (a *Agent) runJob(ctx context.Context, job *queue.BuildJob) {
	logger.Info("Running build job %s for participation %d", job.ID, job.ParticipationID)

	notification := a.runner.Run(ctx, job)

	a.jobsLock.Lock()
	a.currentJobs.Remove(job.ID)
	a.jobsLock.Unlock()

	result := &orchestratorconn.AgentJobResult{
		JobID:        job.ID,
		Notification: notification,
		AgentStatus:  a.status(),
	}

	// Results must not get lost to a transient network failure; if the
	// orchestrator stays unreachable its agent recovery requeues the job.
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, a.conn.SendJobResult(ctx, result)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(resultReportMaxElapsedTime))
	if err != nil {
		logger.Error("Gave up reporting result for job %s: %v", job.ID, err)
	}
}
