package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"buildhub/common/config"
	"buildhub/common/connectors/ciconn"
	"buildhub/queue"
)

// Runner executes one build job and produces the raw notification. It never
// fails outright: every error path degrades to a failed build notification
// carrying the error in its logs.
type Runner interface {
	Run(ctx context.Context, job *queue.BuildJob) *ciconn.BuildNotification
}

const resultFileName = "build-result.json"

// ExecRunner runs the job's build script in a per-job directory below the
// configured work dir. The script reports structured results by writing
// $BUILD_RESULT_FILE; without one the process exit code decides the outcome.
type ExecRunner struct {
	config *config.AgentConfig
}

func NewExecRunner(cfg *config.AgentConfig) *ExecRunner {
	return &ExecRunner{config: cfg}
}

func (r *ExecRunner) Run(ctx context.Context, job *queue.BuildJob) *ciconn.BuildNotification {
	timeLimit := job.Build.TimeLimit.Duration()
	if timeLimit == 0 {
		timeLimit = r.config.DefaultTimeLimit.Duration()
	}
	ctx, cancel := context.WithTimeout(ctx, timeLimit)
	defer cancel()

	workDir := filepath.Join(r.config.WorkDir, job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return failedNotification(job, fmt.Sprintf("can not create work dir: %v", err))
	}
	defer func() {
		_ = os.RemoveAll(workDir)
	}()

	scriptPath := filepath.Join(workDir, "build.sh")
	if err := os.WriteFile(scriptPath, []byte(job.Build.Script), 0o755); err != nil {
		return failedNotification(job, fmt.Sprintf("can not write build script: %v", err))
	}

	cmd := exec.CommandContext(ctx, "/bin/bash", scriptPath)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"BUILD_JOB_ID="+job.ID,
		fmt.Sprintf("BUILD_PARTICIPATION_ID=%d", job.ParticipationID),
		fmt.Sprintf("BUILD_EXERCISE_ID=%d", job.ExerciseID),
		"BUILD_REPOSITORY_URL="+job.Repository.URL,
		"BUILD_COMMIT_HASH="+job.Repository.CommitHash,
		"BUILD_RESULT_FILE="+resultFileName,
	)
	if job.Build.MemoryLimit.Val() != 0 {
		cmd.Env = append(cmd.Env, "BUILD_MEMORY_LIMIT="+job.Build.MemoryLimit.String())
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	runErr := cmd.Run()

	notification, readErr := r.readResultFile(filepath.Join(workDir, resultFileName))
	if readErr == nil {
		notification.JobID = job.ID
		if notification.CompletionDate.IsZero() {
			notification.CompletionDate = time.Now()
		}
		if notification.Logs == "" {
			notification.Logs = output.String()
		}
		return notification
	}

	if runErr != nil {
		return failedNotification(job, fmt.Sprintf("%sbuild script failed: %v", output.String(), runErr))
	}
	return failedNotification(job, fmt.Sprintf("%sno build result file: %v", output.String(), readErr))
}

func (r *ExecRunner) readResultFile(path string) (*ciconn.BuildNotification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	notification := new(ciconn.BuildNotification)
	if err := json.Unmarshal(data, notification); err != nil {
		return nil, err
	}
	if notification.Jobs == nil {
		notification.Jobs = []ciconn.JobReport{}
	}
	return notification, nil
}

func failedNotification(job *queue.BuildJob, logs string) *ciconn.BuildNotification {
	return &ciconn.BuildNotification{
		JobID:          job.ID,
		Successful:     false,
		CompletionDate: time.Now(),
		Jobs:           []ciconn.JobReport{},
		Logs:           logs,
	}
}
