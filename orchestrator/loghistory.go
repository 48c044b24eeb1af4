package orchestrator

import (
	"container/list"
	"sync"
)

// LogHistory keeps the raw logs of recently finished builds in memory for
// the logs endpoint, bounded by total size. Oldest entries go first.
type LogHistory struct {
	mutex sync.Mutex

	limit uint64
	size  uint64

	order  *list.List
	byJob  map[string]*list.Element
	latest map[uint64]string
}

type logEntry struct {
	jobID           string
	participationID uint64
	logs            string
}

func NewLogHistory(limit uint64) *LogHistory {
	return &LogHistory{
		limit:  limit,
		order:  list.New(),
		byJob:  make(map[string]*list.Element),
		latest: make(map[uint64]string),
	}
}

func (h *LogHistory) Add(participationID uint64, jobID string, logs string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if element, ok := h.byJob[jobID]; ok {
		entry := element.Value.(*logEntry)
		h.size -= uint64(len(entry.logs))
		entry.logs = logs
		h.size += uint64(len(logs))
		h.order.MoveToFront(element)
	} else {
		entry := &logEntry{jobID: jobID, participationID: participationID, logs: logs}
		h.byJob[jobID] = h.order.PushFront(entry)
		h.size += uint64(len(logs))
	}
	h.latest[participationID] = jobID

	// the newest entry stays even when it alone exceeds the budget
	for h.size > h.limit && h.order.Len() > 1 {
		h.evictOldest()
	}
}

func (h *LogHistory) evictOldest() {
	element := h.order.Back()
	entry := element.Value.(*logEntry)

	h.order.Remove(element)
	delete(h.byJob, entry.jobID)
	if h.latest[entry.participationID] == entry.jobID {
		delete(h.latest, entry.participationID)
	}
	h.size -= uint64(len(entry.logs))
}

func (h *LogHistory) Get(jobID string) (string, bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	element, ok := h.byJob[jobID]
	if !ok {
		return "", false
	}
	return element.Value.(*logEntry).logs, true
}

// Latest returns the logs of the participation's most recent build.
func (h *LogHistory) Latest(participationID uint64) (string, bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	jobID, ok := h.latest[participationID]
	if !ok {
		return "", false
	}
	element, ok := h.byJob[jobID]
	if !ok {
		return "", false
	}
	return element.Value.(*logEntry).logs, true
}

func (h *LogHistory) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.order.Len()
}
