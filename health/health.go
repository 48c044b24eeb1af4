package health

import (
	"context"

	"buildhub/common/connectors/ciconn"
	"buildhub/queue"
)

const (
	ReasonStoreUnavailable = "queue backend unavailable"
	ReasonNoAgents         = "no build agents"
	ReasonBackendDown      = "ci backend unhealthy"
)

// Aggregate merges agent liveness from the store with the CI backend's own
// health into one reportable status. It never fails; every error path
// degrades to an unhealthy report with a reason.
func Aggregate(ctx context.Context, store queue.Store, backend ciconn.Backend) *ciconn.Health {
	result := &ciconn.Health{
		Up:      true,
		Details: make(map[string]any),
	}

	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(ctx); err != nil {
			result.Up = false
			result.Details["reason"] = ReasonStoreUnavailable
			result.Details["error"] = err.Error()
			return result
		}
	}

	agents, err := store.ListAgents(ctx)
	if err != nil {
		result.Up = false
		result.Details["reason"] = ReasonStoreUnavailable
		result.Details["error"] = err.Error()
		return result
	}

	result.Details["agentCount"] = len(agents)
	agentNames := make([]string, 0, len(agents))
	for _, agent := range agents {
		agentNames = append(agentNames, agent.Name)
	}
	result.Details["agents"] = agentNames

	if len(agents) == 0 {
		result.Up = false
		result.Details["reason"] = ReasonNoAgents
	}

	if backend != nil {
		backendHealth := backend.Health(ctx)
		result.Details["backend"] = backendHealth.Details
		if !backendHealth.Up {
			result.Up = false
			if _, ok := result.Details["reason"]; !ok {
				result.Details["reason"] = ReasonBackendDown
			}
		}
	}

	return result
}
