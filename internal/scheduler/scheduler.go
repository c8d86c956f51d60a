// Package scheduler runs submitted programs on a bounded pool of workers
// and records every outcome in a store.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/taskvm/taskvm"
	"github.com/taskvm/taskvm/internal/store"
)

var (
	// ErrQueueFull is returned by Submit when no more tasks can be queued.
	ErrQueueFull = errors.New("task queue is full")

	// ErrStopped is returned once the scheduler has been stopped.
	ErrStopped = errors.New("scheduler is stopped")
)

// Config sizes the worker pool and bounds each execution.
type Config struct {
	Workers   int
	QueueSize int
	StepLimit int64         // 0 means unlimited
	Timeout   time.Duration // 0 means unlimited
}

// EventType names what changed.
type EventType string

const (
	// EventQueue is sent when a task is queued, starts or leaves the queue.
	EventQueue EventType = "queue"

	// EventHistory is sent when a finished task has been stored.
	EventHistory EventType = "history"
)

// Event is delivered to listeners.
type Event struct {
	Type   EventType `json:"type"`
	TaskID string    `json:"task_id,omitempty"`
}

// Listener receives events. It is called synchronously from the goroutine
// that caused the event and must not block.
type Listener func(Event)

// Scheduler owns the task queue and the worker pool.
type Scheduler struct {
	cfg   Config
	store store.Store
	log   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan *store.Task
	wg     sync.WaitGroup

	mu           sync.Mutex
	pending      []*store.Task
	listeners    map[int]Listener
	nextListener int
	started      bool
	stopped      bool
	errs         *multierror.Error
}

// New returns a scheduler that stores results in st. Workers are started
// by Start.
func New(st store.Store, cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:       cfg,
		store:     st,
		log:       logger.With().Str("component", "scheduler").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(chan *store.Task, cfg.QueueSize),
		listeners: map[int]Listener{},
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.log.Info().Int("workers", s.cfg.Workers).Msg("scheduler started")
}

// Submit queues a program and returns the new task's ID.
func (s *Scheduler) Submit(name, source string) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("failed to generate task id: %w", err)
	}
	task := &store.Task{
		ID:        id.String(),
		Name:      name,
		Source:    source,
		Status:    store.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return "", ErrStopped
	}
	select {
	case s.jobs <- task:
		s.pending = append(s.pending, task)
	default:
		s.mu.Unlock()
		return "", ErrQueueFull
	}
	s.mu.Unlock()

	s.log.Debug().Str("task_id", task.ID).Str("name", name).Msg("task queued")
	s.notify(Event{Type: EventQueue, TaskID: task.ID})
	return task.ID, nil
}

// Queue returns the tasks that are waiting or running, oldest first.
func (s *Scheduler) Queue() []store.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make([]store.Task, len(s.pending))
	for i, t := range s.pending {
		tasks[i] = *t
	}
	return tasks
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Scheduler) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Stop cancels running programs, records the tasks still queued as failed
// and waits for the workers to exit or for ctx to expire. The returned error
// combines every failure to store a result.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.stopped = true
	started := s.started
	close(s.jobs)
	s.mu.Unlock()

	s.cancel()
	if !started {
		// Nobody will drain the queue.
		s.wg.Add(1)
		go s.worker(0)
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var result *multierror.Error
	select {
	case <-done:
	case <-ctx.Done():
		result = multierror.Append(result, fmt.Errorf("waiting for workers: %w", ctx.Err()))
	}
	s.mu.Lock()
	if s.errs != nil {
		result = multierror.Append(result, s.errs.Errors...)
	}
	s.mu.Unlock()
	s.log.Info().Msg("scheduler stopped")
	return result.ErrorOrNil()
}

func (s *Scheduler) worker(n int) {
	defer s.wg.Done()
	log := s.log.With().Int("worker", n).Logger()
	for task := range s.jobs {
		s.run(log, task)
	}
}

func (s *Scheduler) run(log zerolog.Logger, task *store.Task) {
	var result taskvm.Result
	if s.ctx.Err() != nil {
		result = taskvm.Result{ErrorMessage: ErrStopped.Error()}
	} else {
		s.setStatus(task, store.StatusRunning)
		s.notify(Event{Type: EventQueue, TaskID: task.ID})
		result = taskvm.CompileAndRun(s.ctx, task.Source,
			taskvm.WithFilename(task.Name),
			taskvm.WithStepLimit(s.cfg.StepLimit),
			taskvm.WithTimeout(s.cfg.Timeout))
	}

	finished := s.finish(task, result)
	log.Info().
		Str("task_id", finished.ID).
		Str("name", finished.Name).
		Int64("elapsed_ms", finished.ExecMillis).
		Bool("success", result.Success).
		Msg("task finished")

	if err := s.store.SaveTask(context.Background(), &finished); err != nil {
		log.Error().Err(err).Str("task_id", finished.ID).Msg("failed to store task")
		s.mu.Lock()
		s.errs = multierror.Append(s.errs, err)
		s.mu.Unlock()
	} else {
		s.notify(Event{Type: EventHistory, TaskID: finished.ID})
	}
	s.notify(Event{Type: EventQueue, TaskID: finished.ID})
}

func (s *Scheduler) setStatus(task *store.Task, status store.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.Status = status
}

// finish records the result on the task, removes it from the queue and
// returns a copy for storage.
func (s *Scheduler) finish(task *store.Task, result taskvm.Result) store.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.Output = result.Output
	task.ErrorMessage = result.ErrorMessage
	task.ExecMillis = result.ElapsedMillis
	if result.Success {
		task.Status = store.StatusSucceeded
	} else {
		task.Status = store.StatusFailed
	}
	for i, t := range s.pending {
		if t == task {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	return *task
}

func (s *Scheduler) notify(e Event) {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()
	for _, l := range listeners {
		l(e)
	}
}
