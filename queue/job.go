package queue

import (
	"fmt"
	"time"

	"buildhub/lib/customfields"
)

type TriggerSource string

const (
	TriggerPush         TriggerSource = "PUSH"
	TriggerManual       TriggerSource = "MANUAL"
	TriggerLinkedResult TriggerSource = "LINKED_RESULT"
)

// Scheduling priorities. Lower value means higher urgency.
const (
	PriorityHighest = 1
	PriorityDefault = 4
	PriorityLowest  = 9
)

// NormalizePriority maps the zero value to the default and clamps
// everything else into the valid range.
func NormalizePriority(p int) int {
	switch {
	case p == 0:
		return PriorityDefault
	case p < PriorityHighest:
		return PriorityHighest
	case p > PriorityLowest:
		return PriorityLowest
	default:
		return p
	}
}

// RepositoryInfo points at the source to check out. The queue never
// interprets it, agents pass it to the build script.
type RepositoryInfo struct {
	URL        string `json:"URL"`
	CommitHash string `json:"CommitHash,omitempty"`
}

// BuildConfig is the script contract produced by the external templating
// collaborator. Opaque to the queue.
type BuildConfig struct {
	Script      string                   `json:"Script"`
	Image       string                   `json:"Image,omitempty"`
	Language    string                   `json:"Language,omitempty"`
	TimeLimit   customfields.Time        `json:"TimeLimit,omitempty"`
	MemoryLimit customfields.MemoryLimit `json:"MemoryLimit,omitempty"`
}

// BuildJob is the unit of work. Identity fields are never mutated after
// enqueue; only partition membership changes.
type BuildJob struct {
	ID              string        `json:"ID"`
	ParticipationID uint64        `json:"ParticipationID"`
	ExerciseID      uint64        `json:"ExerciseID"`
	Priority        int           `json:"Priority"`
	SubmissionDate  time.Time     `json:"SubmissionDate"`
	TriggerSource   TriggerSource `json:"TriggerSource"`

	Repository RepositoryInfo `json:"Repository"`
	Build      BuildConfig    `json:"Build"`
}

func (j BuildJob) String() string {
	return fmt.Sprintf("ID: %s Participation: %d Exercise: %d Priority: %d", j.ID, j.ParticipationID, j.ExerciseID, j.Priority)
}

// AgentInfo is the registration record of one build agent.
type AgentInfo struct {
	Name          string    `json:"Name"`
	Capacity      int       `json:"Capacity"`
	Languages     []string  `json:"Languages"`
	CurrentJobIDs []string  `json:"CurrentJobIDs,omitempty"`
	LastHeartbeat time.Time `json:"LastHeartbeat"`

	// Epoch orders status updates from the same agent; stale updates are dropped.
	Epoch string `json:"Epoch,omitempty"`
}
