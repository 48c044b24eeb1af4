package queue

import (
	"context"
	"testing"
	"time"

	"buildhub/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	server := miniredis.RunT(t)
	return NewRedisStore(&config.RedisConfig{
		Address:   server.Addr(),
		KeyPrefix: "buildhub",
	})
}

func TestRedisEnqueueRejectsDuplicate(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	base := time.Now()

	require.Nil(t, store.Enqueue(ctx, newJob("a", 1, 4, base)))
	assert.ErrorIs(t, store.Enqueue(ctx, newJob("b", 1, 4, base.Add(time.Second))), ErrDuplicateJob)

	// still a duplicate while the first job is building
	picked, err := store.DequeueNext(ctx, "agent-1", nil)
	require.Nil(t, err)
	require.NotNil(t, picked)
	assert.ErrorIs(t, store.Enqueue(ctx, newJob("c", 1, 4, base.Add(2*time.Second))), ErrDuplicateJob)
}

func TestRedisDequeueOrdering(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	base := time.Now()

	require.Nil(t, store.Enqueue(ctx, newJob("slow", 1, 5, base)))
	require.Nil(t, store.Enqueue(ctx, newJob("urgent", 2, 1, base.Add(time.Second))))
	require.Nil(t, store.Enqueue(ctx, newJob("next", 3, 5, base.Add(2*time.Second))))

	var order []string
	for {
		job, err := store.DequeueNext(ctx, "agent-1", nil)
		require.Nil(t, err)
		if job == nil {
			break
		}
		order = append(order, job.ID)
	}
	assert.Equal(t, []string{"urgent", "slow", "next"}, order)
}

func TestRedisDequeueLanguageEligibility(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	base := time.Now()

	javaJob := newJob("j", 1, 4, base)
	javaJob.Build.Language = "java"
	require.Nil(t, store.Enqueue(ctx, javaJob))
	require.Nil(t, store.Enqueue(ctx, newJob("any", 2, 5, base.Add(time.Second))))

	// a python agent skips the java job but may take the unrestricted one
	job, err := store.DequeueNext(ctx, "py-agent", []string{"python"})
	require.Nil(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "any", job.ID)

	job, err = store.DequeueNext(ctx, "py-agent", []string{"python"})
	require.Nil(t, err)
	assert.Nil(t, job)

	job, err = store.DequeueNext(ctx, "java-agent", []string{"java", "python"})
	require.Nil(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "j", job.ID)
}

func TestRedisCompleteIsIdempotent(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	require.Nil(t, store.Enqueue(ctx, newJob("a", 1, 4, time.Now())))
	_, err := store.DequeueNext(ctx, "agent-1", nil)
	require.Nil(t, err)

	job, err := store.Complete(ctx, "a")
	require.Nil(t, err)
	require.NotNil(t, job)
	assert.Equal(t, uint64(1), job.ParticipationID)

	again, err := store.Complete(ctx, "a")
	require.Nil(t, err)
	assert.Nil(t, again)

	// the participation's slot is free again
	require.Nil(t, store.Enqueue(ctx, newJob("b", 1, 4, time.Now())))
}

func TestRedisCompleteClearsLargeParticipationID(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	// large enough that naive number-to-string rendering in the script
	// would switch to exponent form and miss the active hash field
	const participation = uint64(200000000000001)

	require.Nil(t, store.Enqueue(ctx, newJob("a", participation, 4, time.Now())))
	_, err := store.DequeueNext(ctx, "agent-1", nil)
	require.Nil(t, err)

	job, err := store.Complete(ctx, "a")
	require.Nil(t, err)
	require.NotNil(t, job)

	status, err := ResolveStatus(ctx, store, participation)
	require.Nil(t, err)
	assert.Equal(t, StatusInactive, status)
	require.Nil(t, store.Enqueue(ctx, newJob("b", participation, 4, time.Now())))
}

func TestRedisCancelFreesSlot(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	require.Nil(t, store.Enqueue(ctx, newJob("a", 1, 4, time.Now())))
	removed, err := store.Cancel(ctx, 1)
	require.Nil(t, err)
	assert.True(t, removed)

	removed, err = store.Cancel(ctx, 1)
	require.Nil(t, err)
	assert.False(t, removed)

	require.Nil(t, store.Enqueue(ctx, newJob("b", 1, 4, time.Now())))

	// cancelling a building job discards its late result
	_, err = store.DequeueNext(ctx, "agent-1", nil)
	require.Nil(t, err)
	removed, err = store.Cancel(ctx, 1)
	require.Nil(t, err)
	assert.True(t, removed)

	job, err := store.Complete(ctx, "b")
	require.Nil(t, err)
	assert.Nil(t, job)
}

func TestRedisStatusPartitionsAreExclusive(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	require.Nil(t, store.Enqueue(ctx, newJob("a", 1, 4, time.Now())))
	queued, err := store.QueuedJobFor(ctx, 1)
	require.Nil(t, err)
	require.NotNil(t, queued)
	building, err := store.ProcessingJobFor(ctx, 1)
	require.Nil(t, err)
	assert.Nil(t, building)

	_, err = store.DequeueNext(ctx, "agent-1", nil)
	require.Nil(t, err)

	queued, err = store.QueuedJobFor(ctx, 1)
	require.Nil(t, err)
	assert.Nil(t, queued)
	building, err = store.ProcessingJobFor(ctx, 1)
	require.Nil(t, err)
	require.NotNil(t, building)
	assert.Equal(t, "a", building.ID)
}

func TestRedisExpireAgentsRequeuesInFlightJobs(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	require.Nil(t, store.Enqueue(ctx, newJob("a", 1, 4, time.Now())))
	picked, err := store.DequeueNext(ctx, "agent-1", nil)
	require.Nil(t, err)
	require.NotNil(t, picked)

	time.Sleep(5 * time.Millisecond)
	expired, err := store.ExpireAgents(ctx, time.Millisecond)
	require.Nil(t, err)
	assert.Equal(t, []string{"agent-1"}, expired.Agents)
	assert.Equal(t, []string{"a"}, expired.RequeuedJobIDs)

	status, err := ResolveStatus(ctx, store, 1)
	require.Nil(t, err)
	assert.Equal(t, StatusQueued, status)

	agents, err := store.ListAgents(ctx)
	require.Nil(t, err)
	assert.Empty(t, agents)

	// another agent can pick the requeued job up
	job, err := store.DequeueNext(ctx, "agent-2", nil)
	require.Nil(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "a", job.ID)
}

func TestRedisHeartbeatKeepsAgentAlive(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	require.Nil(t, store.RegisterAgent(ctx, &AgentInfo{Name: "agent-1", Capacity: 2}))

	time.Sleep(5 * time.Millisecond)
	found, err := store.Heartbeat(ctx, "agent-1")
	require.Nil(t, err)
	assert.True(t, found)

	expired, err := store.ExpireAgents(ctx, time.Minute)
	require.Nil(t, err)
	assert.Empty(t, expired.Agents)

	// the record survives a heartbeat rewrite through the script
	agents, err := store.ListAgents(ctx)
	require.Nil(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "agent-1", agents[0].Name)

	found, err = store.Heartbeat(ctx, "unknown")
	require.Nil(t, err)
	assert.False(t, found)
}

func TestRedisRegisterAgentEpochs(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	require.Nil(t, store.RegisterAgent(ctx, &AgentInfo{Name: "a", Capacity: 2, Epoch: "0002"}))
	require.Nil(t, store.RegisterAgent(ctx, &AgentInfo{Name: "a", Capacity: 9, Epoch: "0001"}))

	agents, err := store.ListAgents(ctx)
	require.Nil(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, 2, agents[0].Capacity)

	require.Nil(t, store.RegisterAgent(ctx, &AgentInfo{Name: "a", Capacity: 4, Epoch: "0002"}))
	agents, err = store.ListAgents(ctx)
	require.Nil(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, 4, agents[0].Capacity)
}

func TestRedisUnregisterAgentRequeues(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	require.Nil(t, store.Enqueue(ctx, newJob("a", 1, 4, time.Now())))
	_, err := store.DequeueNext(ctx, "agent-1", nil)
	require.Nil(t, err)

	require.Nil(t, store.UnregisterAgent(ctx, "agent-1"))

	status, err := ResolveStatus(ctx, store, 1)
	require.Nil(t, err)
	assert.Equal(t, StatusQueued, status)
}
