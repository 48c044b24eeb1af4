package orchestrator

import (
	"context"
	"errors"
	"time"

	"buildhub/common/connectors/ciconn"
	"buildhub/common/connectors/orchestratorconn"
	"buildhub/common/db/models"
	"buildhub/converter"
	"buildhub/lib/logger"
	"buildhub/queue"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const persistMaxElapsedTime = 10 * time.Second

// Build enqueues a job for the participation and triggers it on the CI
// backend. The queue entry is the commit point: when the trigger fails,
// the entry is rolled back so the participation can submit again.
func (o *Orchestrator) Build(ctx context.Context, request *orchestratorconn.BuildRequest) (*queue.BuildJob, error) {
	job := &queue.BuildJob{
		ID:              uuid.NewString(),
		ParticipationID: request.ParticipationID,
		ExerciseID:      request.ExerciseID,
		Priority:        queue.NormalizePriority(request.Priority),
		SubmissionDate:  time.Now(),
		TriggerSource:   request.TriggerSource,
		Repository:      request.Repository,
		Build:           request.Build,
	}
	if job.TriggerSource == "" {
		job.TriggerSource = queue.TriggerPush
	}
	if job.Repository.CommitHash == "" {
		job.Repository.CommitHash = request.CommitHash
	}

	if err := o.store.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	o.core.Metrics.QueueSize.Inc()

	trigger := &ciconn.TriggerRequest{
		JobID:           job.ID,
		ParticipationID: job.ParticipationID,
		ExerciseID:      job.ExerciseID,
		CommitHash:      job.Repository.CommitHash,
		TriggerSource:   job.TriggerSource,
		Repository:      job.Repository,
		Build:           job.Build,
	}
	if err := o.backend.TriggerBuild(ctx, trigger); err != nil {
		o.core.Metrics.TriggerFailures.Inc()
		if _, cancelErr := o.store.Cancel(ctx, job.ParticipationID); cancelErr != nil {
			logger.Error("Can not roll back queue entry for participation %d: %v", job.ParticipationID, cancelErr)
		} else {
			o.core.Metrics.QueueSize.Dec()
		}
		return nil, err
	}

	logger.Debug("Triggered build job [%v]", job)
	return job, nil
}

// HandleJobResult takes a finished build reported by an agent, clears the
// queue entry and converts the notification into a persisted result.
//
// Clearing happens first: a malformed notification must not leave the
// participation stuck in BUILDING. Duplicate deliveries find no entry and
// are dropped.
func (o *Orchestrator) HandleJobResult(ctx context.Context, result *orchestratorconn.AgentJobResult) error {
	agentName := "unknown"
	if result.AgentStatus != nil {
		agentName = result.AgentStatus.Name
		if err := o.store.RegisterAgent(ctx, result.AgentStatus); err != nil {
			logger.Warn("Can not refresh status of agent %s: %v", agentName, err)
		}
	}

	job, err := o.store.Complete(ctx, result.JobID)
	if err != nil {
		return err
	}
	if job == nil {
		logger.Debug("Dropping result for unknown job %s (duplicate delivery or cancelled)", result.JobID)
		return nil
	}

	o.core.Metrics.NewBuildResult(agentName, result.Notification.Successful)
	if result.Notification.Logs != "" {
		o.logs.Add(job.ParticipationID, job.ID, result.Notification.Logs)
	}

	catalogue, scaEnabled, err := o.catalogues.Catalogue(ctx, job.ExerciseID)
	if err != nil {
		// Degrade to an empty catalogue: the result is still stored, its
		// test feedback just stays unmatched.
		logger.Warn("Can not load test catalogue for exercise %d: %v", job.ExerciseID, err)
		catalogue = nil
	}

	buildResult, err := converter.Convert(result.Notification, catalogue, scaEnabled)
	if err != nil {
		o.core.Metrics.ConversionErrors.Inc()
		return err
	}
	buildResult.ParticipationID = job.ParticipationID
	buildResult.ExerciseID = job.ExerciseID

	return o.saveResult(ctx, buildResult)
}

func (o *Orchestrator) saveResult(ctx context.Context, result *models.BuildResult) error {
	if o.core.DB == nil {
		return nil
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, o.core.DB.WithContext(ctx).Create(result).Error
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(persistMaxElapsedTime))
	return err
}

// CatalogueSource resolves the active test case catalogue and the static
// analysis switch of an exercise.
type CatalogueSource interface {
	Catalogue(ctx context.Context, exerciseID uint64) (*converter.TestCatalogue, bool, error)
}

type dbCatalogueSource struct {
	db *gorm.DB
}

func (s *dbCatalogueSource) Catalogue(ctx context.Context, exerciseID uint64) (*converter.TestCatalogue, bool, error) {
	var cases []models.TestCase
	err := s.db.WithContext(ctx).
		Where("exercise_id = ? AND active = ?", exerciseID, true).
		Find(&cases).Error
	if err != nil {
		return nil, false, err
	}

	catalogue := converter.NewTestCatalogue()
	for _, testCase := range cases {
		catalogue.Add(testCase.Name, testCase.Weight)
	}

	var settings models.ExerciseBuildSettings
	err = s.db.WithContext(ctx).Where("exercise_id = ?", exerciseID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return catalogue, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return catalogue, settings.StaticCodeAnalysisEnabled, nil
}

// nullCatalogueSource serves instances running without a database.
type nullCatalogueSource struct{}

func (nullCatalogueSource) Catalogue(context.Context, uint64) (*converter.TestCatalogue, bool, error) {
	return nil, false, nil
}
