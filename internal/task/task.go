// Package task runs chat turns asynchronously on a bounded worker pool.
//
// Submit returns a task token immediately; callers poll Status for the
// outcome. Status entries live in a TTL store, so a poller that waits too
// long observes "not found" as if the task never existed. There is no
// cancellation: once submitted, a task runs to completion or failure. That
// is a deliberate limitation, not an oversight; the pipeline has no safe
// interruption points mid-turn.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calagem/calagem/internal/cache"
	"github.com/calagem/calagem/internal/chatbot"
)

// State is a task's lifecycle phase as seen by pollers.
type State string

const (
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// Status is the pollable record for one task. Exactly one terminal write
// occurs per task: completed with a result, or error with a message.
type Status struct {
	State  State           `json:"status"`
	Result *chatbot.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ErrBusy is returned by Submit when the queue is full.
var ErrBusy = errors.New("task queue is full")

// statusKeyPrefix namespaces task entries in the status store.
const statusKeyPrefix = "chat_status_"

// Pipeline is the chat capability a Runner executes. *chatbot.Engine
// satisfies it.
type Pipeline interface {
	Chat(ctx context.Context, sessionID, question, choice string) chatbot.Result
}

type job struct {
	id        string
	sessionID string
	question  string
	choice    string
}

// Runner is the worker pool. Construct with New, then Start; Close waits
// for in-flight tasks to finish.
type Runner struct {
	pipeline Pipeline
	statuses *cache.Store[Status]
	ttl      time.Duration
	logger   *slog.Logger

	jobs chan job
	wg   sync.WaitGroup
}

// Config configures a Runner.
type Config struct {
	Pipeline Pipeline
	Workers  int
	Queue    int
	TTL      time.Duration
	Logger   *slog.Logger
}

// New creates a Runner. Workers defaults to 2, the queue to 100 and the
// status TTL to 60 seconds.
func New(cfg Config) (*Runner, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 100
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{
		pipeline: cfg.Pipeline,
		statuses: cache.New[Status](),
		ttl:      cfg.TTL,
		logger:   logger,
		jobs:     make(chan job, cfg.Queue),
	}
	r.start(cfg.Workers)
	return r, nil
}

func (r *Runner) start(workers int) {
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for j := range r.jobs {
				r.run(j)
			}
		}()
	}
}

// Submit enqueues a chat turn and returns its task token. It never blocks:
// a full queue yields ErrBusy so the caller can shed load.
func (r *Runner) Submit(sessionID, question, choice string) (string, error) {
	id := uuid.NewString()
	r.setStatus(id, Status{State: StateProcessing})

	select {
	case r.jobs <- job{id: id, sessionID: sessionID, question: question, choice: choice}:
		r.logger.Debug("task submitted", "task", id, "session", sessionID)
		return id, nil
	default:
		r.statuses.Delete(statusKeyPrefix + id)
		return "", ErrBusy
	}
}

// Status returns the pollable record for a task token. ok is false for
// unknown or expired tokens; that is not an error condition.
func (r *Runner) Status(id string) (Status, bool) {
	return r.statuses.Get(statusKeyPrefix + id)
}

// Close stops accepting work and waits for in-flight tasks to finish.
func (r *Runner) Close() {
	close(r.jobs)
	r.wg.Wait()
}

// run executes one task. The background context outlives any originating
// request; a submitted task always runs to a terminal state.
func (r *Runner) run(j job) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("task panicked", "task", j.id, "panic", rec)
			r.setStatus(j.id, Status{
				State: StateError,
				Error: fmt.Sprintf("internal error: %v", rec),
			})
		}
	}()

	result := r.pipeline.Chat(context.Background(), j.sessionID, j.question, j.choice)
	r.setStatus(j.id, Status{State: StateCompleted, Result: &result})
	r.logger.Debug("task completed", "task", j.id)
}

func (r *Runner) setStatus(id string, s Status) {
	r.statuses.Set(statusKeyPrefix+id, s, r.ttl)
}
