package ciconn

import (
	"fmt"
	"time"

	"buildhub/queue"
)

// TriggerRequest asks a backend to run one build. Triggering is stateless
// from the caller's perspective: a compliant backend materializes whatever
// backend side resources it needs from this request alone.
type TriggerRequest struct {
	JobID           string              `json:"JobID"`
	ParticipationID uint64              `json:"ParticipationID"`
	ExerciseID      uint64              `json:"ExerciseID"`
	CommitHash      string              `json:"CommitHash,omitempty"`
	TriggerSource   queue.TriggerSource `json:"TriggerSource"`
	Repository      queue.RepositoryInfo `json:"Repository"`
	Build           queue.BuildConfig   `json:"Build"`
}

// TestCaseResult is one executed test inside a build notification.
type TestCaseResult struct {
	Name     string   `json:"Name"`
	Messages []string `json:"Messages,omitempty"`
}

// JobReport bundles the test executions of one build module. A notification
// may carry several, e.g. one per gradle subproject.
type JobReport struct {
	FailedTests     []TestCaseResult `json:"FailedTests,omitempty"`
	SuccessfulTests []TestCaseResult `json:"SuccessfulTests,omitempty"`
}

// StaticAnalysisIssue is one finding of a static code analysis tool.
type StaticAnalysisIssue struct {
	Rule     string `json:"Rule"`
	Message  string `json:"Message"`
	FilePath string `json:"FilePath,omitempty"`
	Line     int    `json:"Line,omitempty"`
	Severity string `json:"Severity,omitempty"`
}

// StaticAnalysisReport is the output of one analysis tool run.
type StaticAnalysisReport struct {
	Tool   string                `json:"Tool"`
	Issues []StaticAnalysisIssue `json:"Issues,omitempty"`
}

// BuildNotification is the raw result a backend posts after a build.
// The converter normalizes it into a structured result.
type BuildNotification struct {
	JobID          string     `json:"JobID"`
	Successful     bool       `json:"Successful"`
	CompletionDate time.Time  `json:"CompletionDate"`
	Jobs           []JobReport `json:"Jobs"`

	StaticCodeAnalysisReports []StaticAnalysisReport `json:"StaticCodeAnalysisReports,omitempty"`

	// Logs carries the raw build output for the logs endpoint.
	Logs string `json:"Logs,omitempty"`
}

// Health is the reportable state of a backend or of the whole connector stack.
type Health struct {
	Up      bool           `json:"Up"`
	Details map[string]any `json:"Details,omitempty"`
}

// TriggerError signals that the backend rejected a build request or was
// unreachable. It is not retried at this layer; the caller rolls back the
// queue entry instead.
type TriggerError struct {
	Backend string
	Err     error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("build trigger failed on backend %s: %v", e.Backend, e.Err)
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}
