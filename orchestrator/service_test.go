package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"buildhub/common"
	"buildhub/common/config"
	"buildhub/common/connectors/ciconn"
	"buildhub/common/connectors/orchestratorconn"
	"buildhub/common/db"
	"buildhub/common/db/models"
	"buildhub/common/metrics"
	"buildhub/converter"
	"buildhub/queue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	triggerErr error
	triggered  []*ciconn.TriggerRequest
}

func (b *fakeBackend) TriggerBuild(_ context.Context, request *ciconn.TriggerRequest) error {
	b.triggered = append(b.triggered, request)
	return b.triggerErr
}

func (b *fakeBackend) BuildStatus(context.Context, uint64) (*queue.BuildStatus, error) {
	return nil, nil
}

func (b *fakeBackend) BuildLogs(context.Context, uint64, string) (string, error) {
	return "", nil
}

func (b *fakeBackend) Health(context.Context) *ciconn.Health {
	return &ciconn.Health{Up: true}
}

func (b *fakeBackend) SupportedLanguages() []string { return nil }

func (b *fakeBackend) DefaultTemplate(string, string) (string, bool) { return "", false }

func newTestOrchestrator(t *testing.T, backend ciconn.Backend) *Orchestrator {
	t.Helper()
	return &Orchestrator{
		core: &common.Core{
			Metrics: metrics.NewCollector(prometheus.NewRegistry()),
		},
		store:      queue.NewMemoryStore(),
		backend:    backend,
		logs:       NewLogHistory(1 << 20),
		catalogues: nullCatalogueSource{},
	}
}

func buildRequest(participation uint64) *orchestratorconn.BuildRequest {
	return &orchestratorconn.BuildRequest{
		ParticipationID: participation,
		ExerciseID:      7,
		Repository:      queue.RepositoryInfo{URL: "https://git.example/p", CommitHash: "abc123"},
		Build:           queue.BuildConfig{Script: "./build.sh"},
	}
}

func notification(jobID string, successful bool) *ciconn.BuildNotification {
	return &ciconn.BuildNotification{
		JobID:          jobID,
		Successful:     successful,
		CompletionDate: time.Now(),
		Jobs:           []ciconn.JobReport{},
	}
}

func TestBuildEnqueuesAndTriggers(t *testing.T) {
	backend := &fakeBackend{}
	o := newTestOrchestrator(t, backend)
	ctx := context.Background()

	job, err := o.Build(ctx, buildRequest(1))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, queue.PriorityDefault, job.Priority)
	assert.Equal(t, queue.TriggerPush, job.TriggerSource)

	require.Len(t, backend.triggered, 1)
	assert.Equal(t, job.ID, backend.triggered[0].JobID)
	assert.Equal(t, "abc123", backend.triggered[0].CommitHash)

	status, err := queue.ResolveStatus(ctx, o.store, 1)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusQueued, status)
}

func TestBuildRejectsSecondJobForParticipation(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{})
	ctx := context.Background()

	_, err := o.Build(ctx, buildRequest(1))
	require.NoError(t, err)

	_, err = o.Build(ctx, buildRequest(1))
	assert.ErrorIs(t, err, queue.ErrDuplicateJob)
}

func TestBuildRollsBackOnTriggerFailure(t *testing.T) {
	backend := &fakeBackend{
		triggerErr: &ciconn.TriggerError{Backend: "external", Err: errors.New("connection refused")},
	}
	o := newTestOrchestrator(t, backend)
	ctx := context.Background()

	_, err := o.Build(ctx, buildRequest(1))
	var triggerErr *ciconn.TriggerError
	require.ErrorAs(t, err, &triggerErr)

	status, err := queue.ResolveStatus(ctx, o.store, 1)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusInactive, status)

	// the rollback freed the participation's slot
	backend.triggerErr = nil
	_, err = o.Build(ctx, buildRequest(1))
	assert.NoError(t, err)
}

func TestJobResultClearsEntryAndKeepsLogs(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{})
	ctx := context.Background()

	job, err := o.Build(ctx, buildRequest(1))
	require.NoError(t, err)

	picked, err := o.store.DequeueNext(ctx, "agent-1", nil)
	require.NoError(t, err)
	require.NotNil(t, picked)

	n := notification(job.ID, true)
	n.Logs = "compiling\nall tests passed\n"
	err = o.HandleJobResult(ctx, &orchestratorconn.AgentJobResult{JobID: job.ID, Notification: n})
	require.NoError(t, err)

	status, err := queue.ResolveStatus(ctx, o.store, 1)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusInactive, status)

	logs, ok := o.logs.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, n.Logs, logs)

	latest, ok := o.logs.Latest(1)
	require.True(t, ok)
	assert.Equal(t, n.Logs, latest)
}

func TestJobResultDuplicateDeliveryIsDropped(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{})
	ctx := context.Background()

	job, err := o.Build(ctx, buildRequest(1))
	require.NoError(t, err)
	_, err = o.store.DequeueNext(ctx, "agent-1", nil)
	require.NoError(t, err)

	result := &orchestratorconn.AgentJobResult{JobID: job.ID, Notification: notification(job.ID, true)}
	require.NoError(t, o.HandleJobResult(ctx, result))
	require.NoError(t, o.HandleJobResult(ctx, result))
}

func TestMalformedResultStillClearsEntry(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{})
	ctx := context.Background()

	job, err := o.Build(ctx, buildRequest(1))
	require.NoError(t, err)
	_, err = o.store.DequeueNext(ctx, "agent-1", nil)
	require.NoError(t, err)

	broken := notification(job.ID, false)
	broken.CompletionDate = time.Time{}
	err = o.HandleJobResult(ctx, &orchestratorconn.AgentJobResult{JobID: job.ID, Notification: broken})
	assert.ErrorIs(t, err, converter.ErrMalformedNotification)

	// the participation is not stuck in BUILDING
	status, err := queue.ResolveStatus(ctx, o.store, 1)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusInactive, status)
}

func TestJobResultRefreshesAgentStatus(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{})
	ctx := context.Background()

	job, err := o.Build(ctx, buildRequest(1))
	require.NoError(t, err)
	_, err = o.store.DequeueNext(ctx, "agent-1", nil)
	require.NoError(t, err)

	result := &orchestratorconn.AgentJobResult{
		JobID:        job.ID,
		Notification: notification(job.ID, true),
		AgentStatus:  &queue.AgentInfo{Name: "agent-1", Capacity: 2, LastHeartbeat: time.Now()},
	}
	require.NoError(t, o.HandleJobResult(ctx, result))

	agents, err := o.store.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "agent-1", agents[0].Name)
}

func TestRecoverAgentsRequeuesLostJobs(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{})
	o.core.Config = &config.Config{
		Orchestrator: &config.OrchestratorConfig{
			AgentTimeout:          time.Millisecond,
			AgentRecoveryInterval: time.Hour,
		},
	}
	ctx := context.Background()

	_, err := o.Build(ctx, buildRequest(1))
	require.NoError(t, err)
	picked, err := o.store.DequeueNext(ctx, "agent-1", nil)
	require.NoError(t, err)
	require.NotNil(t, picked)

	time.Sleep(5 * time.Millisecond)
	o.recoverAgents(ctx)

	status, err := queue.ResolveStatus(ctx, o.store, 1)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusQueued, status)
}

func TestDBCatalogueSource(t *testing.T) {
	gdb, err := db.NewDB(&config.DBConfig{InMemory: true})
	require.NoError(t, err)

	require.NoError(t, gdb.Create(&models.TestCase{ExerciseID: 7, Name: "testAdd", Active: true, Weight: 2}).Error)
	require.NoError(t, gdb.Create(&models.TestCase{ExerciseID: 7, Name: "testOld", Active: false, Weight: 1}).Error)
	require.NoError(t, gdb.Create(&models.ExerciseBuildSettings{ExerciseID: 7, StaticCodeAnalysisEnabled: true}).Error)

	source := &dbCatalogueSource{db: gdb}
	catalogue, scaEnabled, err := source.Catalogue(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, scaEnabled)
	assert.True(t, catalogue.Contains("testAdd"))
	assert.False(t, catalogue.Contains("testOld"))

	catalogue, scaEnabled, err = source.Catalogue(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, scaEnabled)
	assert.False(t, catalogue.Contains("testAdd"))
}
