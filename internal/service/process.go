package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/CZERTAINLY/Evaluator/internal/model"
)

// Command describes a job to execute.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env replaces the environment of the child, nil inherits the current one.
	Env map[string]string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

func (c Command) environ() []string {
	if c.Env == nil {
		return nil
	}
	env := make([]string, 0, len(c.Env))
	for _, k := range slices.Sorted(maps.Keys(c.Env)) {
		env = append(env, k+"="+c.Env[k])
	}
	return env
}

// CompleteFunc is called exactly once, from the monitor goroutine, after the
// process of a task exited and its output was collected.
type CompleteFunc func(taskID string, exitCode int)

// Snapshot is a point in time view of a task.
type Snapshot struct {
	TaskID         string       `json:"process_id"`
	Status         model.Status `json:"status"`
	StartTime      time.Time    `json:"start_time"`
	EndTime        *time.Time   `json:"end_time,omitempty"`
	ExitCode       *int         `json:"return_code"`
	Stdout         []string     `json:"stdout"`
	Stderr         []string     `json:"stderr"`
	RunningCount   int          `json:"running_count"`
	MaxConcurrency int          `json:"max_processes"`
}

// Task is the job record of a single process.
type Task struct {
	ID      string
	Command Command

	mx        sync.RWMutex
	status    model.Status
	started   time.Time
	stopped   time.Time
	exitCode  *int
	cancelled bool

	stdout *stream
	stderr *stream
	cancel context.CancelFunc
	done   chan struct{}
}

func newTask(id string, cmd Command, queueSize int) *Task {
	return &Task{
		ID:      id,
		Command: cmd,
		status:  model.StatusNotStarted,
		stdout:  newStream("stdout", queueSize),
		stderr:  newStream("stderr", queueSize),
		done:    make(chan struct{}),
	}
}

func (t *Task) Status() model.Status {
	t.mx.RLock()
	defer t.mx.RUnlock()
	return t.status
}

// Done is closed once the task reached a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) stoppedAt() (time.Time, bool) {
	t.mx.RLock()
	defer t.mx.RUnlock()
	return t.stopped, t.status.Terminal()
}

func (t *Task) snapshot() Snapshot {
	stdout := t.stdout.snapshot()
	stderr := t.stderr.snapshot()

	t.mx.RLock()
	defer t.mx.RUnlock()
	s := Snapshot{
		TaskID:    t.ID,
		Status:    t.status,
		StartTime: t.started,
		Stdout:    stdout,
		Stderr:    stderr,
	}
	if t.status.Terminal() {
		stopped := t.stopped
		s.EndTime = &stopped
	}
	if t.exitCode != nil {
		code := *t.exitCode
		s.ExitCode = &code
	}
	return s
}

// requestStop marks the task as cancelled and cancels the process context.
// Returns false if the task is not running or the stop was already requested.
func (t *Task) requestStop() bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.status != model.StatusInProgress || t.cancelled || t.cancel == nil {
		return false
	}
	t.cancelled = true
	t.cancel()
	return true
}

func (t *Task) stopRequested() bool {
	t.mx.RLock()
	defer t.mx.RUnlock()
	return t.cancelled
}

// running reports if the OS process is still alive.
func (t *Task) running() bool {
	select {
	case <-t.done:
		return false
	default:
		return t.Status() == model.StatusInProgress
	}
}

// process holds what the monitor needs after a successful spawn.
type process struct {
	cmd     *exec.Cmd
	readers []*os.File
	drains  sync.WaitGroup
}

// spawn starts the OS process of t and its two drain goroutines. The process
// lives until it exits or t.cancel is called, it does not depend on ctx.
func (t *Task) spawn(ctx context.Context, killGrace time.Duration) (*process, error) {
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	cmd := exec.CommandContext(pctx, t.Command.Path, t.Command.Args...)
	cmd.Dir = t.Command.Dir
	cmd.Env = t.Command.environ()
	cmd.SysProcAttr = sysProcAttr()
	cmd.Cancel = func() error {
		return terminate(cmd.Process)
	}
	cmd.WaitDelay = killGrace

	outR, outW, err := os.Pipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		cancel()
		closeAll(outR, outW)
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	err = cmd.Start()
	// the child owns the write ends now
	closeAll(outW, errW)
	if err != nil {
		cancel()
		closeAll(outR, errR)
		return nil, err
	}

	t.mx.Lock()
	t.status = model.StatusInProgress
	t.started = time.Now().UTC()
	t.cancel = cancel
	t.mx.Unlock()

	p := &process{cmd: cmd, readers: []*os.File{outR, errR}}
	p.drains.Go(func() { t.stdout.drain(ctx, outR) })
	p.drains.Go(func() { t.stderr.drain(ctx, errR) })
	return p, nil
}

// monitor blocks until the process exits, then finalizes the task and calls
// onComplete.
func (t *Task) monitor(ctx context.Context, p *process, drainTimeout time.Duration, onComplete CompleteFunc) {
	err := p.cmd.Wait()
	if t.stopRequested() {
		// children ignoring SIGTERM would keep the pipes open
		killGroup(p.cmd.Process.Pid)
	}
	p.waitDrains(drainTimeout)

	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	status := t.finish(code)
	slog.InfoContext(ctx, "process finished", "exit_code", code, "status", status, "wait_error", err)

	if onComplete == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "completion callback panicked", "panic", r)
		}
	}()
	onComplete(t.ID, code)
}

// finish performs the final drain and the single terminal transition.
func (t *Task) finish(code int) model.Status {
	t.stdout.collect()
	t.stderr.collect()

	t.mx.Lock()
	defer t.mx.Unlock()
	if t.cancelled {
		t.status = model.StatusAborted
	} else {
		t.status = model.StatusFromExitCode(code)
	}
	t.stopped = time.Now().UTC()
	t.exitCode = &code
	if t.cancel != nil {
		t.cancel()
	}
	close(t.done)
	return t.status
}

// waitDrains waits for both drains to reach EOF. A grandchild may inherit the
// pipes and keep them open, so after timeout the read ends are closed.
func (p *process) waitDrains(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		p.drains.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		closeAll(p.readers...)
		<-done
	}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
