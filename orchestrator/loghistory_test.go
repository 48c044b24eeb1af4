package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogHistoryKeepsLatestPerParticipation(t *testing.T) {
	h := NewLogHistory(1024)

	h.Add(1, "job-a", "first run")
	h.Add(1, "job-b", "second run")

	logs, ok := h.Get("job-a")
	require.True(t, ok)
	assert.Equal(t, "first run", logs)

	latest, ok := h.Latest(1)
	require.True(t, ok)
	assert.Equal(t, "second run", latest)

	_, ok = h.Latest(2)
	assert.False(t, ok)
}

func TestLogHistoryEvictsOldestWhenOverBudget(t *testing.T) {
	h := NewLogHistory(25)

	h.Add(1, "job-a", "aaaaaaaaaa")
	h.Add(2, "job-b", "bbbbbbbbbb")
	h.Add(3, "job-c", "cccccccccc")

	_, ok := h.Get("job-a")
	assert.False(t, ok)
	_, ok = h.Latest(1)
	assert.False(t, ok)

	logs, ok := h.Get("job-c")
	require.True(t, ok)
	assert.Equal(t, "cccccccccc", logs)
	assert.Equal(t, 2, h.Len())
}

func TestLogHistoryKeepsOversizedNewestEntry(t *testing.T) {
	h := NewLogHistory(4)

	h.Add(1, "job-a", "this entry alone exceeds the budget")

	logs, ok := h.Get("job-a")
	require.True(t, ok)
	assert.Equal(t, "this entry alone exceeds the budget", logs)
}

func TestLogHistoryReplacesEntryForSameJob(t *testing.T) {
	h := NewLogHistory(1024)

	h.Add(1, "job-a", "partial")
	h.Add(1, "job-a", "complete output")

	logs, ok := h.Get("job-a")
	require.True(t, ok)
	assert.Equal(t, "complete output", logs)
	assert.Equal(t, 1, h.Len())
}
