package queue

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(id string, participation uint64, priority int, submitted time.Time) *BuildJob {
	return &BuildJob{
		ID:              id,
		ParticipationID: participation,
		ExerciseID:      1,
		Priority:        priority,
		SubmissionDate:  submitted,
		TriggerSource:   TriggerPush,
	}
}

func TestLessOrdersByPriorityThenTime(t *testing.T) {
	base := time.Now()
	urgent := newJob("a", 1, 1, base.Add(time.Hour))
	old := newJob("b", 2, 5, base)
	newer := newJob("c", 3, 5, base.Add(time.Minute))

	assert.True(t, Less(urgent, old))
	assert.True(t, Less(urgent, newer))
	assert.True(t, Less(old, newer))
	assert.False(t, Less(newer, old))
}

func TestLessIsDeterministicOnTies(t *testing.T) {
	at := time.Now()
	first := newJob("aaa", 1, 4, at)
	second := newJob("bbb", 2, 4, at)

	assert.True(t, Less(first, second))
	assert.False(t, Less(second, first))
}

func TestRankKeyAgreesWithLess(t *testing.T) {
	base := time.Unix(1700000000, 0)
	jobs := []*BuildJob{
		newJob("d", 1, 9, base),
		newJob("c", 2, 1, base.Add(time.Second)),
		newJob("b", 3, 1, base),
		newJob("a", 4, 4, base),
		newJob("e", 5, 4, base),
	}

	byLess := append([]*BuildJob{}, jobs...)
	sort.Slice(byLess, func(i, j int) bool { return Less(byLess[i], byLess[j]) })

	byRank := append([]*BuildJob{}, jobs...)
	sort.Slice(byRank, func(i, j int) bool { return RankKey(byRank[i]) < RankKey(byRank[j]) })

	for i := range byLess {
		assert.Equal(t, byLess[i].ID, byRank[i].ID, "position %d", i)
	}
}

func TestJobIDFromRankKey(t *testing.T) {
	job := newJob("some-uuid-with:colon", 1, 2, time.Now())
	require.Equal(t, "some-uuid-with:colon", JobIDFromRankKey(RankKey(job)))
	require.Equal(t, "", JobIDFromRankKey("garbage"))
}

func TestNormalizePriority(t *testing.T) {
	assert.Equal(t, PriorityDefault, NormalizePriority(0))
	assert.Equal(t, PriorityHighest, NormalizePriority(-5))
	assert.Equal(t, PriorityLowest, NormalizePriority(100))
	assert.Equal(t, 2, NormalizePriority(2))
}
