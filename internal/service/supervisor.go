package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/CZERTAINLY/Evaluator/internal/log"
	"github.com/CZERTAINLY/Evaluator/internal/model"
)

const (
	DefaultKillGrace    = 10 * time.Second
	DefaultDrainTimeout = 5 * time.Second
)

var ErrClosed = errors.New("supervisor closed")

type Supervisor struct {
	registry       *Registry
	maxConcurrency int
	killGrace      time.Duration
	drainTimeout   time.Duration
	queueSize      int

	admitMx sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

type Option func(*Supervisor)

// WithKillGrace sets how long a terminated process may take to exit before it
// gets killed.
func WithKillGrace(d time.Duration) Option {
	return func(s *Supervisor) { s.killGrace = d }
}

// WithDrainTimeout bounds the wait for output pipes to be closed after the
// process exited.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.drainTimeout = d }
}

// WithQueueSize sets the capacity of the per stream line channel.
func WithQueueSize(n int) Option {
	return func(s *Supervisor) { s.queueSize = n }
}

func NewSupervisor(registry *Registry, maxConcurrency int, opts ...Option) *Supervisor {
	if registry == nil {
		registry = NewRegistry()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = model.DefaultMaxConcurrency
	}
	s := &Supervisor{
		registry:       registry,
		maxConcurrency: maxConcurrency,
		killGrace:      DefaultKillGrace,
		drainTimeout:   DefaultDrainTimeout,
		queueSize:      defaultQueueSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Supervisor) Registry() *Registry {
	return s.registry
}

func (s *Supervisor) MaxConcurrency() int {
	return s.maxConcurrency
}

func (s *Supervisor) RunningCount() int {
	return s.registry.Running()
}

// Start spawns the command as task taskID. It returns false without any side
// effect when the concurrency ceiling is reached, when taskID is already in
// progress or when the process can't be spawned. There is no queue, callers
// retry later.
func (s *Supervisor) Start(ctx context.Context, taskID string, cmd Command, onComplete CompleteFunc) bool {
	ctx = log.ContextAttrs(ctx, slog.String("task_id", taskID))

	s.admitMx.Lock()
	defer s.admitMx.Unlock()

	if s.closed {
		slog.WarnContext(ctx, "supervisor closed: rejecting")
		return false
	}
	if running := s.registry.Running(); running >= s.maxConcurrency {
		slog.WarnContext(ctx, "max concurrency reached: rejecting", "running", running, "max", s.maxConcurrency)
		return false
	}
	if prev, ok := s.registry.Get(taskID); ok && prev.Status() == model.StatusInProgress {
		slog.WarnContext(ctx, "task already in progress: rejecting")
		return false
	}

	t := newTask(taskID, cmd, s.queueSize)
	p, err := t.spawn(ctx, s.killGrace)
	if err != nil {
		slog.ErrorContext(ctx, "spawning process failed", "path", cmd.Path, "error", err)
		return false
	}
	s.registry.put(t)
	slog.InfoContext(ctx, "process started", "path", cmd.Path, "args", cmd.Args, "dir", cmd.Dir, "pid", p.cmd.Process.Pid)

	// the monitor must outlive the request which started it
	mctx := context.WithoutCancel(ctx)
	s.wg.Go(func() {
		t.monitor(mctx, p, s.drainTimeout, onComplete)
	})
	return true
}

// Stop asks the process of taskID to terminate. Returns false when there is
// nothing to stop: unknown task, finished task or a stop already in flight.
func (s *Supervisor) Stop(ctx context.Context, taskID string) bool {
	t, ok := s.registry.Get(taskID)
	if !ok {
		return false
	}
	if !t.requestStop() {
		return false
	}
	slog.InfoContext(ctx, "terminating process", "task_id", taskID)
	return true
}

// Alive reports if taskID has a live OS process.
func (s *Supervisor) Alive(taskID string) bool {
	t, ok := s.registry.Get(taskID)
	return ok && t.running()
}

// Status collects whatever output is queued and returns the task snapshot.
// It never waits for the process. ok is false for unknown tasks.
func (s *Supervisor) Status(taskID string) (Snapshot, bool) {
	t, ok := s.registry.Get(taskID)
	if !ok {
		return Snapshot{}, false
	}
	snap := t.snapshot()
	snap.RunningCount = s.RunningCount()
	snap.MaxConcurrency = s.maxConcurrency
	return snap, true
}

// Close rejects new tasks, terminates the running ones and waits for their
// monitors. Returns ctx.Err() if they don't finish in time.
func (s *Supervisor) Close(ctx context.Context) error {
	s.admitMx.Lock()
	s.closed = true
	s.admitMx.Unlock()

	for _, t := range s.registry.List() {
		if t.requestStop() {
			slog.DebugContext(ctx, "terminating process on close", "task_id", t.ID)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
