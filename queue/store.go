package queue

import (
	"context"
	"errors"
	"time"

	"buildhub/common/config"
)

// ErrDuplicateJob is returned by Enqueue when a pending or processing job
// already exists for the participation. Callers must cancel the old job
// before enqueueing a superseding one.
var ErrDuplicateJob = errors.New("active build job already exists for participation")

// ExpiredAgents reports the outcome of one agent recovery pass.
type ExpiredAgents struct {
	Agents         []string
	RequeuedJobIDs []string
}

/*
Store is the single source of truth for what is queued and what is processing,
shared by every application instance. All mutating operations are atomic with
respect to concurrent callers on other nodes.

A participation has at most one active (pending or processing) job at a time.
Everything else in the orchestration core is local computation over data read
from here.
*/
type Store interface {
	// Enqueue puts a job into the pending partition.
	// Fails with ErrDuplicateJob if the participation already has an active job.
	Enqueue(ctx context.Context, job *BuildJob) error

	// DequeueNext atomically removes the highest priority pending job the
	// agent can build and moves it to the processing partition tagged with
	// the agent's name. Returns (nil, nil) when nothing is eligible; it
	// never blocks waiting for work.
	DequeueNext(ctx context.Context, agentName string, languages []string) (*BuildJob, error)

	// Complete removes a finished job from the store and returns it.
	// Completing an unknown or already completed job is a no-op returning
	// (nil, nil): result notifications may be duplicated by the network.
	Complete(ctx context.Context, jobID string) (*BuildJob, error)

	// Cancel removes the pending or processing job of a participation.
	// Returns false if there was none.
	Cancel(ctx context.Context, participationID uint64) (bool, error)

	QueuedJobFor(ctx context.Context, participationID uint64) (*BuildJob, error)
	ProcessingJobFor(ctx context.Context, participationID uint64) (*BuildJob, error)

	// RegisterAgent upserts the agent record. Updates with an Epoch not
	// newer than the stored one are dropped.
	RegisterAgent(ctx context.Context, info *AgentInfo) error

	// Heartbeat refreshes the agent's liveness timestamp.
	// Returns false if the agent is not registered (it should re-register).
	Heartbeat(ctx context.Context, agentName string) (bool, error)

	UnregisterAgent(ctx context.Context, agentName string) error
	ListAgents(ctx context.Context) ([]*AgentInfo, error)

	// ExpireAgents removes agents whose last heartbeat is older than the
	// window and returns their in-flight jobs to the pending partition.
	ExpireAgents(ctx context.Context, window time.Duration) (*ExpiredAgents, error)
}

// NewStore selects the store implementation configured at startup.
func NewStore(cfg *config.QueueConfig) (Store, error) {
	switch cfg.Store {
	case config.QueueStoreMemory:
		return NewMemoryStore(), nil
	case config.QueueStoreRedis:
		return NewRedisStore(cfg.Redis), nil
	default:
		return nil, errors.New("unknown queue store: " + cfg.Store)
	}
}
