package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event types published during a run. The llm type carries the streaming
// kinds (prompt/chunk/done/error) from the inference client.
const (
	TypeSection = "section"
	TypeKV      = "kv"
	TypeBlock   = "block"
	TypeLLM     = "llm"
	TypeDone    = "done"
)

// Event is one progress notification within a run. Events are append-only
// and FIFO-ordered per run; there is no cross-run ordering.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
	TS   time.Time      `json:"ts"`
}

// Per-run buffer. A consumer slower than this loses events; late subscribers
// already have to tolerate gaps, so dropping beats blocking the cascade.
const runBuffer = 1024

// Registry owns the runId -> channel map for live progress observers. It is
// created once by the process and passed by reference to the cascade and the
// stream endpoint.
type Registry struct {
	mu   sync.Mutex
	runs map[string]chan Event
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]chan Event)}
}

// CreateRun registers a fresh run channel and returns its id.
func (r *Registry) CreateRun() string {
	runID := uuid.NewString()
	r.mu.Lock()
	r.runs[runID] = make(chan Event, runBuffer)
	r.mu.Unlock()
	return runID
}

// Publish appends an event to the run's queue. Unknown or already retired
// runs are a silent no-op so emitters never have to care about lifecycle.
func (r *Registry) Publish(runID, typ string, data map[string]any) {
	if runID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.runs[runID]
	if !ok {
		return
	}
	select {
	case ch <- Event{Type: typ, Data: data, TS: time.Now().UTC()}:
	default:
		logrus.WithFields(logrus.Fields{"run": runID, "type": typ}).Warn("run event buffer full, dropping event")
	}
}

// Subscribe returns the run's event channel. The channel sees only events
// published after the run was created; there is no replay buffer.
func (r *Registry) Subscribe(runID string) (<-chan Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.runs[runID]
	return ch, ok
}

// CloseRun emits the terminal done event and retires the channel. Publishes
// arriving after CloseRun are dropped.
func (r *Registry) CloseRun(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.runs[runID]
	if !ok {
		return
	}
	select {
	case ch <- Event{Type: TypeDone, Data: map[string]any{}, TS: time.Now().UTC()}:
	default:
	}
	delete(r.runs, runID)
	close(ch)
}
