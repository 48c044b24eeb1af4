package ciconn

import (
	"context"

	"buildhub/queue"
)

/*
Backend is the contract toward a pluggable CI implementation. The queued
agent pool and a remote CI microservice both satisfy it, which keeps the
orchestration core backend agnostic.

Implementations hold no per-build state for the caller: TriggerBuild alone
must be sufficient to run a build. The concrete backend is selected once at
process startup from configuration.
*/
type Backend interface {
	// TriggerBuild hands one build request to the backend.
	// Failures are reported as *TriggerError.
	TriggerBuild(ctx context.Context, request *TriggerRequest) error

	// BuildStatus reports the backend's own view of a participation's build,
	// nil when the backend has none.
	BuildStatus(ctx context.Context, participationID uint64) (*queue.BuildStatus, error)

	// BuildLogs returns raw build output, "" when none is known.
	BuildLogs(ctx context.Context, participationID uint64, jobID string) (string, error)

	// Health never fails; it degrades to an unhealthy report instead.
	Health(ctx context.Context) *Health

	SupportedLanguages() []string

	// DefaultTemplate returns a starting build script for the language and
	// exercise type, false when the backend has none.
	DefaultTemplate(language string, exerciseType string) (string, bool)
}
