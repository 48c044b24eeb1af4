package orchestrator

import (
	"context"

	"buildhub/common/connectors/ciconn"
	"buildhub/health"
	"buildhub/lib/logger"
	"buildhub/queue"
)

// queuedBackend serves builds from the shared agent pool. Triggering needs
// no backend side call: the queue entry itself is the build order, agents
// pick it up by polling.
type queuedBackend struct {
	o *Orchestrator
}

func (b *queuedBackend) TriggerBuild(ctx context.Context, request *ciconn.TriggerRequest) error {
	if request.Build.Language != "" && !b.languageCovered(ctx, request.Build.Language) {
		// Not fatal: a capable agent may register before the job is picked up.
		logger.Warn("No registered agent can build language %s, job %s stays queued", request.Build.Language, request.JobID)
	}
	return nil
}

func (b *queuedBackend) languageCovered(ctx context.Context, language string) bool {
	agents, err := b.o.store.ListAgents(ctx)
	if err != nil {
		return true
	}
	for _, agent := range agents {
		if len(agent.Languages) == 0 {
			return true
		}
		for _, known := range agent.Languages {
			if known == language {
				return true
			}
		}
	}
	return false
}

func (b *queuedBackend) BuildStatus(ctx context.Context, participationID uint64) (*queue.BuildStatus, error) {
	status, err := queue.ResolveStatus(ctx, b.o.store, participationID)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (b *queuedBackend) BuildLogs(_ context.Context, participationID uint64, jobID string) (string, error) {
	if jobID != "" {
		logs, _ := b.o.logs.Get(jobID)
		return logs, nil
	}
	logs, _ := b.o.logs.Latest(participationID)
	return logs, nil
}

func (b *queuedBackend) Health(ctx context.Context) *ciconn.Health {
	return health.Aggregate(ctx, b.o.store, nil)
}

// SupportedLanguages is the union over the currently registered agents. An
// agent with no declared languages accepts anything, which the empty union
// cannot express, so such agents are simply skipped here.
func (b *queuedBackend) SupportedLanguages() []string {
	agents, err := b.o.store.ListAgents(context.Background())
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var languages []string
	for _, agent := range agents {
		for _, language := range agent.Languages {
			if _, ok := seen[language]; ok {
				continue
			}
			seen[language] = struct{}{}
			languages = append(languages, language)
		}
	}
	return languages
}

var defaultTemplates = map[string]string{
	"java":   "#!/usr/bin/env bash\nset -e\n./gradlew clean test\n",
	"python": "#!/usr/bin/env bash\nset -e\npython3 -m pytest --junit-xml=test-results.xml\n",
	"c":      "#!/usr/bin/env bash\nset -e\nmake test\n",
}

func (b *queuedBackend) DefaultTemplate(language string, exerciseType string) (string, bool) {
	if template, ok := defaultTemplates[language+"/"+exerciseType]; ok {
		return template, true
	}
	template, ok := defaultTemplates[language]
	return template, ok
}
