// Package evaluate manages evaluation records and their jobs: it turns a
// record into a command, runs it under the supervisor and serves its status
// and results.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/CZERTAINLY/Evaluator/internal/log"
	"github.com/CZERTAINLY/Evaluator/internal/model"
	"github.com/CZERTAINLY/Evaluator/internal/result"
	"github.com/CZERTAINLY/Evaluator/internal/service"
)

var (
	ErrBusy           = errors.New("maximum number of running evaluations reached, try again later")
	ErrSpawn          = errors.New("evaluation process could not be started")
	ErrAlreadyRunning = model.ErrAlreadyRunning
	ErrIncomplete     = errors.New("interpreter and script are required")
	ErrInputMissing   = errors.New("input directory does not exist")
)

const deleteWait = 30 * time.Second

// NewEvaluation is the user supplied part of an evaluation record.
type NewEvaluation struct {
	Type           int    `json:"evaluate_type"`
	DatasetUUID    string `json:"dataset_uuid,omitempty"`
	Interpreter    string `json:"interpreter"`
	Script         string `json:"script"`
	EnvDir         string `json:"env_dir,omitempty"`
	InputDir       string `json:"input_dir,omitempty"`
	ExtraParameter string `json:"extra_parameter,omitempty"`
}

// RunInfo describes a started job.
type RunInfo struct {
	ProcessID      string `json:"process_id"`
	Command        string `json:"command"`
	WorkDir        string `json:"work_dir"`
	RunningCount   int    `json:"running_count"`
	MaxConcurrency int    `json:"max_processes"`
}

// Status is the live snapshot of a job, or the one rebuilt from the durable
// record when the process is not known (not started yet, evicted or started by
// a previous instance).
type Status struct {
	service.Snapshot
	Live bool `json:"live"`
}

type Service struct {
	store      model.Store
	supervisor *service.Supervisor
	notifier   *service.Notifier
	canceller  *service.Canceller
	reader     *result.Reader
	root       *os.Root
	rootDir    string
	storage    model.Storage
	now        func() time.Time
}

// New returns the evaluation service. root is the storage root shared with
// the jobs, storage names its subdirectories.
func New(store model.Store, supervisor *service.Supervisor, root *os.Root, storage model.Storage, opts ...result.Option) (*Service, error) {
	rootDir, err := filepath.Abs(root.Name())
	if err != nil {
		return nil, fmt.Errorf("resolving storage root: %w", err)
	}

	layout := result.DefaultLayout()
	layout.DatasetDir = storage.DatasetDir
	opts = append([]result.Option{result.WithLayout(layout)}, opts...)

	return &Service{
		store:      store,
		supervisor: supervisor,
		notifier:   service.NewNotifier(store, supervisor.Registry()),
		canceller:  service.NewCanceller(supervisor, store),
		reader:     result.NewReader(root.FS(), opts...),
		root:       root,
		rootDir:    rootDir,
		storage:    storage,
		now:        time.Now,
	}, nil
}

func (s *Service) Supervisor() *service.Supervisor {
	return s.supervisor
}

// Capacity returns the number of running jobs and the ceiling.
func (s *Service) Capacity() (running, maxConcurrency int) {
	return s.supervisor.RunningCount(), s.supervisor.MaxConcurrency()
}

// Create stores a NOT_STARTED record.
func (s *Service) Create(ctx context.Context, n NewEvaluation) (model.Evaluation, error) {
	if !model.ValidType(n.Type) {
		return model.Evaluation{}, fmt.Errorf("%d: %w", n.Type, model.ErrInvalidType)
	}
	e := model.Evaluation{
		UUID:           model.NewEvaluationID(),
		Type:           n.Type,
		DatasetUUID:    n.DatasetUUID,
		Interpreter:    n.Interpreter,
		Script:         n.Script,
		EnvDir:         n.EnvDir,
		InputDir:       n.InputDir,
		ExtraParameter: n.ExtraParameter,
		Status:         model.StatusNotStarted,
		StartTime:      s.now().UTC(),
	}
	if err := s.store.Create(ctx, e); err != nil {
		return model.Evaluation{}, err
	}
	slog.InfoContext(ctx, "evaluation created", "task_id", e.UUID, "evaluate_type", e.Type)
	return e, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Evaluation, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]model.Evaluation, error) {
	return s.store.List(ctx)
}

// Run starts the job of record id. The record is claimed (moved to
// IN_PROGRESS in one store operation) before the output directory is emptied,
// so of two concurrent runs only one touches the files and spawns a process;
// the other gets ErrAlreadyRunning. When the supervisor refuses the job the
// claim is released, the record goes back to NOT_STARTED and ErrBusy or
// ErrSpawn is returned.
func (s *Service) Run(ctx context.Context, id string) (RunInfo, error) {
	ctx = log.ContextAttrs(ctx, slog.String("task_id", id))
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return RunInfo{}, err
	}
	if e.Status == model.StatusInProgress || s.supervisor.Alive(id) {
		return RunInfo{}, fmt.Errorf("%s: %w", id, ErrAlreadyRunning)
	}
	if e.Interpreter == "" || e.Script == "" {
		return RunInfo{}, fmt.Errorf("%s: %w", id, ErrIncomplete)
	}

	var input string
	if e.InputDir != "" && e.Type != model.TypeSurface {
		rel := path.Join(s.storage.DatasetDir, filepath.ToSlash(e.InputDir))
		if _, err := s.root.Stat(rel); err != nil {
			return RunInfo{}, fmt.Errorf("%s: %w", rel, ErrInputMissing)
		}
		input = filepath.Join(s.rootDir, filepath.FromSlash(rel))
	}

	// IN_PROGRESS is written before the spawn, so a job finishing right away
	// can't be overwritten by it
	e, err = s.store.Claim(ctx, id)
	if err != nil {
		return RunInfo{}, err
	}
	release := func() {
		if err := s.store.Release(ctx, id); err != nil {
			slog.ErrorContext(ctx, "reverting status failed", "error", err)
		}
	}

	outRel := s.outputDir(id)
	if err := s.root.RemoveAll(outRel); err != nil {
		release()
		return RunInfo{}, fmt.Errorf("clearing output directory: %w", err)
	}
	if err := s.root.MkdirAll(outRel, 0o755); err != nil {
		release()
		return RunInfo{}, fmt.Errorf("creating output directory: %w", err)
	}
	output := filepath.Join(s.rootDir, filepath.FromSlash(outRel))
	cmd := buildCommand(s.rootDir, e, input, output)

	if !s.supervisor.Start(ctx, id, cmd, s.notifier.OnComplete) {
		release()
		if s.supervisor.RunningCount() >= s.supervisor.MaxConcurrency() {
			return RunInfo{}, ErrBusy
		}
		return RunInfo{}, fmt.Errorf("%s: %w", id, ErrSpawn)
	}

	return RunInfo{
		ProcessID:      id,
		Command:        cmd.String(),
		WorkDir:        cmd.Dir,
		RunningCount:   s.supervisor.RunningCount(),
		MaxConcurrency: s.supervisor.MaxConcurrency(),
	}, nil
}

// Stop cancels the job of record id, see service.Canceller.
func (s *Service) Stop(ctx context.Context, id string) (bool, error) {
	return s.canceller.Stop(ctx, id)
}

// Status returns the live snapshot of the job or falls back to the record.
func (s *Service) Status(ctx context.Context, id string) (Status, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return Status{}, err
	}
	if snap, ok := s.supervisor.Status(id); ok {
		return Status{Snapshot: snap, Live: true}, nil
	}
	return Status{
		Snapshot: service.Snapshot{
			TaskID:         e.UUID,
			Status:         e.Status,
			StartTime:      e.StartTime,
			EndTime:        e.EndTime,
			ExitCode:       e.ExitCode,
			Stdout:         []string{},
			Stderr:         []string{},
			RunningCount:   s.supervisor.RunningCount(),
			MaxConcurrency: s.supervisor.MaxConcurrency(),
		},
	}, nil
}

// Result reads the results of record id at index, nil means the latest one.
// The payload type depends on the evaluation type.
func (s *Service) Result(ctx context.Context, id string, index *int) (any, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	target := result.NewTarget(s.storage.EvaluateDir, id, s.storage.OutputDir, e.DatasetUUID)
	return s.reader.Read(ctx, e.Type, target, index)
}

// Delete stops the job if it runs, then removes its files and the record.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	if s.supervisor.Stop(ctx, id) {
		if t, ok := s.supervisor.Registry().Get(id); ok {
			select {
			case <-t.Done():
			case <-time.After(deleteWait):
				slog.WarnContext(ctx, "job did not stop in time, removing files anyway", "task_id", id)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	taskDir := path.Join(s.storage.EvaluateDir, id)
	if err := s.root.RemoveAll(taskDir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", taskDir, err)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "evaluation deleted", "task_id", id)
	return nil
}

func (s *Service) outputDir(id string) string {
	return path.Join(s.storage.EvaluateDir, id, s.storage.OutputDir)
}
