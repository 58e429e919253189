package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"liquidity_go/internal/domain"
	"liquidity_go/internal/infra"
	"liquidity_go/internal/infra/storage"
)

// Handler executes one deferred job. Params is the JSON blob recorded when
// the job was deferred. Handlers must be idempotent: a crash between
// execution and row removal re-delivers the job on the next start.
type Handler func(ctx context.Context, params json.RawMessage) error

const defaultWakeInterval = 5 * time.Second

// Executor is a durable at-least-once task queue. Defer persists a job row;
// the run loop dispatches every ready job in its own goroutine and deletes
// the row only after the handler returns nil. A failing handler keeps its
// row and is re-dispatched after an exponential backoff, so side effects
// survive both errors and process restarts.
//
// The dispatched-set is memory only. Any row still present at startup is
// eligible for re-dispatch.
type Executor struct {
	store    *storage.Storage
	handlers map[string]Handler

	mu       sync.Mutex
	cond     *sync.Cond
	busy     map[uint]struct{}
	attempts map[uint]int
	wg       sync.WaitGroup

	wakeInterval time.Duration
	logger       *slog.Logger
}

// NewExecutor creates an executor over the given store.
func NewExecutor(store *storage.Storage) *Executor {
	e := &Executor{
		store:        store,
		handlers:     make(map[string]Handler),
		busy:         make(map[uint]struct{}),
		attempts:     make(map[uint]int),
		wakeInterval: defaultWakeInterval,
		logger:       slog.Default().With("module", "jobs"),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Register binds the handler invoked for jobs deferred under the given
// name. Must be called before Run, never concurrently with dispatch.
func (e *Executor) Register(name string, handler Handler) {
	if _, dup := e.handlers[name]; dup {
		panic(fmt.Sprintf("jobs: duplicate handler %q", name))
	}
	e.handlers[name] = handler
}

// Defer persists a new job and wakes the run loop. params is marshaled to
// JSON and handed back to the handler verbatim.
func (e *Executor) Defer(name string, params any) error {
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal job params: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.AddJob(&domain.Job{HandlerName: name, Params: string(b)}); err != nil {
		return fmt.Errorf("persist job: %w", err)
	}
	e.cond.Signal()
	return nil
}

// Run drives job execution until the context is cancelled, then waits for
// in-flight handlers to finish so the store is never torn down under them.
func (e *Executor) Run(ctx context.Context) {
	// The cond has no timed wait; a side goroutine broadcasts on a short
	// interval so backoff expiries are picked up. After cancellation it
	// keeps nudging until the dispatch loop has observed shutdown, then
	// stops.
	stopWake := make(chan struct{})
	wakeDone := make(chan struct{})
	go func() {
		defer close(wakeDone)
		ticker := time.NewTicker(e.wakeInterval)
		defer ticker.Stop()
		for {
			e.cond.Broadcast()
			select {
			case <-stopWake:
				return
			case <-ctx.Done():
				select {
				case <-stopWake:
					return
				case <-time.After(10 * time.Millisecond):
				}
			case <-ticker.C:
			}
		}
	}()

	for ctx.Err() == nil {
		e.mu.Lock()
		ready := e.collectReadyLocked()
		if len(ready) == 0 {
			e.cond.Wait()
			e.mu.Unlock()
			continue
		}
		for _, job := range ready {
			e.busy[job.ID] = struct{}{}
		}
		e.mu.Unlock()

		for _, job := range ready {
			e.wg.Add(1)
			go e.process(ctx, job)
		}
	}

	close(stopWake)
	<-wakeDone
	e.wg.Wait()
}

// collectReadyLocked loads jobs not already dispatched in this process and
// whose not-before timestamp has passed. Caller holds e.mu.
func (e *Executor) collectReadyLocked() []domain.Job {
	jobs, err := e.store.GetJobs()
	if err != nil {
		e.logger.Error("failed to load jobs", slog.Any("error", err))
		return nil
	}

	now := time.Now()
	var ready []domain.Job
	for _, job := range jobs {
		if _, dispatched := e.busy[job.ID]; dispatched {
			continue
		}
		if job.Ready(now) {
			ready = append(ready, job)
		}
	}
	return ready
}

func (e *Executor) process(ctx context.Context, job domain.Job) {
	defer e.wg.Done()

	handler, ok := e.handlers[job.HandlerName]
	var err error
	if !ok {
		// A row deferred under a name this build no longer registers.
		// Keep retrying: dropping it would silently lose the side effect.
		err = fmt.Errorf("no handler registered for %q", job.HandlerName)
	} else {
		err = handler(ctx, json.RawMessage(job.Params))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		attempt := e.attempts[job.ID]
		e.attempts[job.ID] = attempt + 1
		delay := infra.CalculateBackoff(attempt)
		e.logger.Warn("job failed, rescheduling",
			slog.Uint64("job_id", uint64(job.ID)),
			slog.String("handler", job.HandlerName),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err))
		if rerr := e.store.RescheduleJob(job.ID, time.Now().Add(delay)); rerr != nil {
			e.logger.Error("failed to reschedule job", slog.Uint64("job_id", uint64(job.ID)), slog.Any("error", rerr))
		}
		infra.GlobalMetrics.RecordJobRetried()
	} else {
		if rerr := e.store.RemoveJob(job.ID); rerr != nil {
			e.logger.Error("failed to remove job", slog.Uint64("job_id", uint64(job.ID)), slog.Any("error", rerr))
		}
		delete(e.attempts, job.ID)
		infra.GlobalMetrics.RecordJobExecuted()
	}

	delete(e.busy, job.ID)
	e.cond.Signal()
}
