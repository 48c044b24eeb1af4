package queue

import "context"

// BuildStatus is the externally visible build state of one participation.
type BuildStatus string

const (
	StatusInactive BuildStatus = "INACTIVE"
	StatusQueued   BuildStatus = "QUEUED"
	StatusBuilding BuildStatus = "BUILDING"
)

// ResolveStatus derives the status from the store's current content.
// The one-active-job invariant guarantees that at most one of the two
// partitions holds a job for the participation.
func ResolveStatus(ctx context.Context, store Store, participationID uint64) (BuildStatus, error) {
	job, err := store.QueuedJobFor(ctx, participationID)
	if err != nil {
		return StatusInactive, err
	}
	if job != nil {
		return StatusQueued, nil
	}

	job, err = store.ProcessingJobFor(ctx, participationID)
	if err != nil {
		return StatusInactive, err
	}
	if job != nil {
		return StatusBuilding, nil
	}

	return StatusInactive, nil
}
