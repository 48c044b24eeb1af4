package queue

import (
	"fmt"
	"strings"
)

// Less is the scheduling order over build jobs: lower priority number first,
// then older submission first (FIFO within a priority class), then job ID so
// that the order is total and deterministic.
func Less(a, b *BuildJob) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.SubmissionDate.Equal(b.SubmissionDate) {
		return a.SubmissionDate.Before(b.SubmissionDate)
	}
	return a.ID < b.ID
}

// RankKey encodes the same order as Less into a fixed width string, so that
// lexicographic comparison of rank keys agrees with Less. Rank keys are the
// members of the pending sorted set in the redis store.
func RankKey(j *BuildJob) string {
	return fmt.Sprintf("%03d:%020d:%s", j.Priority, j.SubmissionDate.UnixNano(), j.ID)
}

// JobIDFromRankKey extracts the job ID back out of a rank key.
func JobIDFromRankKey(rank string) string {
	parts := strings.SplitN(rank, ":", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}
