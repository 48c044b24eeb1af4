package queue

import (
	"context"
	"slices"
	"sync"
	"time"
)

type agentState struct {
	info *AgentInfo
	jobs Set[string]
}

// MemoryStore keeps the shared queue state in process memory. It backs
// single node deployments and tests; multi instance deployments use the
// redis store with the same semantics.
type MemoryStore struct {
	mutex sync.Mutex

	jobs       map[string]*BuildJob
	pending    Set[string]
	processing map[string]string // job id -> agent name
	active     map[uint64]string // participation id -> job id
	agents     map[string]*agentState

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:       make(map[string]*BuildJob),
		pending:    NewSet[string](),
		processing: make(map[string]string),
		active:     make(map[uint64]string),
		agents:     make(map[string]*agentState),
		now:        time.Now,
	}
}

func (s *MemoryStore) Enqueue(_ context.Context, job *BuildJob) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.active[job.ParticipationID]; ok {
		return ErrDuplicateJob
	}

	stored := *job
	s.jobs[stored.ID] = &stored
	s.pending.Add(stored.ID)
	s.active[stored.ParticipationID] = stored.ID
	return nil
}

func agentCanBuild(job *BuildJob, languages []string) bool {
	if job.Build.Language == "" {
		return true
	}
	return slices.Contains(languages, job.Build.Language)
}

func (s *MemoryStore) DequeueNext(_ context.Context, agentName string, languages []string) (*BuildJob, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var next *BuildJob
	for _, id := range s.pending.Items() {
		job := s.jobs[id]
		if !agentCanBuild(job, languages) {
			continue
		}
		if next == nil || Less(job, next) {
			next = job
		}
	}
	if next == nil {
		return nil, nil
	}

	s.pending.Remove(next.ID)
	s.processing[next.ID] = agentName

	// A polling agent is alive even if its record expired in the meantime.
	agent := s.agents[agentName]
	if agent == nil {
		agent = &agentState{
			info: &AgentInfo{Name: agentName, Languages: languages},
			jobs: NewSet[string](),
		}
		s.agents[agentName] = agent
	}
	agent.info.LastHeartbeat = s.now()
	agent.jobs.Add(next.ID)

	result := *next
	return &result, nil
}

func (s *MemoryStore) Complete(_ context.Context, jobID string) (*BuildJob, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, nil
	}
	s.removeJob(job)
	return job, nil
}

func (s *MemoryStore) Cancel(_ context.Context, participationID uint64) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id, ok := s.active[participationID]
	if !ok {
		return false, nil
	}
	s.removeJob(s.jobs[id])
	return true, nil
}

// removeJob drops a job from every partition. Caller holds the mutex.
func (s *MemoryStore) removeJob(job *BuildJob) {
	s.pending.Remove(job.ID)
	if agentName, ok := s.processing[job.ID]; ok {
		delete(s.processing, job.ID)
		if agent, ok := s.agents[agentName]; ok {
			agent.jobs.Remove(job.ID)
		}
	}
	if s.active[job.ParticipationID] == job.ID {
		delete(s.active, job.ParticipationID)
	}
	delete(s.jobs, job.ID)
}

func (s *MemoryStore) QueuedJobFor(_ context.Context, participationID uint64) (*BuildJob, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id, ok := s.active[participationID]
	if !ok || !s.pending.Contains(id) {
		return nil, nil
	}
	job := *s.jobs[id]
	return &job, nil
}

func (s *MemoryStore) ProcessingJobFor(_ context.Context, participationID uint64) (*BuildJob, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id, ok := s.active[participationID]
	if !ok {
		return nil, nil
	}
	if _, ok := s.processing[id]; !ok {
		return nil, nil
	}
	job := *s.jobs[id]
	return &job, nil
}

func (s *MemoryStore) RegisterAgent(_ context.Context, info *AgentInfo) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stored := *info
	if stored.LastHeartbeat.IsZero() {
		stored.LastHeartbeat = s.now()
	}

	agent, ok := s.agents[stored.Name]
	if !ok {
		s.agents[stored.Name] = &agentState{info: &stored, jobs: NewSet[string]()}
		return nil
	}
	if stored.Epoch != "" && agent.info.Epoch > stored.Epoch {
		return nil
	}
	agent.info = &stored
	return nil
}

func (s *MemoryStore) Heartbeat(_ context.Context, agentName string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	agent, ok := s.agents[agentName]
	if !ok {
		return false, nil
	}
	agent.info.LastHeartbeat = s.now()
	return true, nil
}

func (s *MemoryStore) UnregisterAgent(_ context.Context, agentName string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.expireAgent(agentName)
	return nil
}

func (s *MemoryStore) ListAgents(_ context.Context) ([]*AgentInfo, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	agents := make([]*AgentInfo, 0, len(s.agents))
	for _, agent := range s.agents {
		info := *agent.info
		info.CurrentJobIDs = agent.jobs.Items()
		agents = append(agents, &info)
	}
	return agents, nil
}

func (s *MemoryStore) ExpireAgents(_ context.Context, window time.Duration) (*ExpiredAgents, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	expired := &ExpiredAgents{}
	deadline := s.now().Add(-window)
	for name, agent := range s.agents {
		if agent.info.LastHeartbeat.After(deadline) {
			continue
		}
		expired.Agents = append(expired.Agents, name)
		expired.RequeuedJobIDs = append(expired.RequeuedJobIDs, s.expireAgent(name)...)
	}
	return expired, nil
}

// expireAgent removes the agent and requeues its in-flight jobs.
// Caller holds the mutex.
func (s *MemoryStore) expireAgent(agentName string) []string {
	agent, ok := s.agents[agentName]
	if !ok {
		return nil
	}
	var requeued []string
	for _, id := range agent.jobs.Items() {
		if _, ok := s.processing[id]; ok {
			delete(s.processing, id)
			s.pending.Add(id)
			requeued = append(requeued, id)
		}
	}
	delete(s.agents, agentName)
	return requeued
}
