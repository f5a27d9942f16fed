package audit

import (
	"context"
	"sync"
)

// recorderBuffer is how many entries may wait for the writer before new
// ones are dropped.
const recorderBuffer = 256

// Logger is the logging dependency of Recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder writes entries asynchronously through a single goroutine so
// request handlers never wait on the audit table. Recording is best-effort:
// a full buffer drops the entry with a warning.
type Recorder struct {
	repo   Repository
	logger Logger
	ch     chan *Entry

	wg   sync.WaitGroup
	once sync.Once
}

// NewRecorder creates a Recorder. Call Start before Record.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		ch:     make(chan *Entry, recorderBuffer),
	}
}

// Start launches the writer goroutine.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.drain()
}

// Record enqueues an entry. It never blocks. A nil Recorder is a no-op.
func (r *Recorder) Record(action, entityType, entityID, userID string, details map[string]any) {
	if r == nil {
		return
	}
	e := &Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Source:     "api",
		Details:    details,
	}
	select {
	case r.ch <- e:
	default:
		r.logger.Warn("audit buffer full, dropping entry", "action", action, "entity_type", entityType)
	}
}

// Close stops accepting entries and waits until the buffer is written.
// Record must not be called after Close.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.once.Do(func() { close(r.ch) })
	r.wg.Wait()
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for e := range r.ch {
		if err := r.repo.Create(context.Background(), e); err != nil {
			r.logger.Error("audit write failed", "action", e.Action, "entity_type", e.EntityType, "error", err)
		}
	}
}
