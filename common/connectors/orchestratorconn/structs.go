package orchestratorconn

import (
	"buildhub/common/connectors/ciconn"
	"buildhub/queue"
)

// PollRequest is sent by an agent asking for its next build job.
type PollRequest struct {
	AgentName string   `json:"AgentName" binding:"required"`
	Languages []string `json:"Languages"`
}

// AgentJobResult reports one finished build back to the orchestrator.
// The agent's current status piggybacks on the result, like a heartbeat.
type AgentJobResult struct {
	JobID        string                    `json:"JobID" binding:"required"`
	Notification *ciconn.BuildNotification `json:"Notification" binding:"required"`
	AgentStatus  *queue.AgentInfo          `json:"AgentStatus,omitempty"`
}

// BuildRequest is the inbound trigger request from the submission collaborator.
type BuildRequest struct {
	ParticipationID uint64              `json:"ParticipationID" binding:"required"`
	ExerciseID      uint64              `json:"ExerciseID" binding:"required"`
	CommitHash      string              `json:"CommitHash,omitempty"`
	TriggerSource   queue.TriggerSource `json:"TriggerSource"`
	Priority        int                 `json:"Priority"`

	Repository queue.RepositoryInfo `json:"Repository"`
	Build      queue.BuildConfig    `json:"Build"`
}

type BuildResponse struct {
	JobID string `json:"JobID"`
}

type StatusResponse struct {
	ParticipationID uint64            `json:"ParticipationID"`
	Status          queue.BuildStatus `json:"Status"`
}
