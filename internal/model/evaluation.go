package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const evaluatePrefix = "EVALUATE-"

// Evaluation types select the layout of the files the job produces.
const (
	TypePathLoss  = 1 // growing table of measure/predict/rmse rows
	TypeElevation = 2 // elevation and path loss matrices, one pair per index
	TypePDP       = 3 // two singleton images plus gen_0/gen_1 pairs
	TypeSurface   = 4 // pdp, pl and sf image triples
)

// Evaluation is the durable record of a validation job.
type Evaluation struct {
	UUID           string     `json:"uuid" bson:"_id"`
	Type           int        `json:"evaluate_type" bson:"evaluate_type"`
	DatasetUUID    string     `json:"dataset_uuid,omitempty" bson:"dataset_uuid,omitempty"`
	Interpreter    string     `json:"interpreter,omitempty" bson:"interpreter,omitempty"`
	Script         string     `json:"script,omitempty" bson:"script,omitempty"`
	EnvDir         string     `json:"env_dir,omitempty" bson:"env_dir,omitempty"`
	InputDir       string     `json:"input_dir,omitempty" bson:"input_dir,omitempty"`
	ExtraParameter string     `json:"extra_parameter,omitempty" bson:"extra_parameter,omitempty"`
	Status         Status     `json:"evaluate_status" bson:"evaluate_status"`
	StartTime      time.Time  `json:"start_time" bson:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty" bson:"end_time,omitempty"`
	ExitCode       *int       `json:"exit_code,omitempty" bson:"exit_code,omitempty"`
}

// NewEvaluationID returns a fresh EVALUATE-<hex> identifier.
func NewEvaluationID() string {
	return evaluatePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func ValidType(t int) bool {
	return t >= TypePathLoss && t <= TypeSurface
}

// Finalization is the terminal update written once a job ends.
type Finalization struct {
	ID       string
	Status   Status
	EndTime  time.Time
	ExitCode *int
}

// Apply copies the terminal fields into e. Only an IN_PROGRESS record may be
// finalized. A record already in f.Status is left as is apart from a missing
// exit code, so a cancellation followed by the completion of the same job
// keeps the first end time. Any other record returns ErrInvalidTransition.
func (f Finalization) Apply(e *Evaluation) error {
	if e.Status == f.Status && f.Status.Terminal() {
		if e.ExitCode == nil && f.ExitCode != nil {
			code := *f.ExitCode
			e.ExitCode = &code
		}
		return nil
	}
	if !e.Status.CanTransition(f.Status) || !f.Status.Terminal() {
		return fmt.Errorf("%s: %s -> %s: %w", e.UUID, e.Status, f.Status, ErrInvalidTransition)
	}
	e.Status = f.Status
	end := f.EndTime
	e.EndTime = &end
	if f.ExitCode != nil {
		code := *f.ExitCode
		e.ExitCode = &code
	}
	return nil
}

// Claim moves e to IN_PROGRESS for a new run. The end time and exit code of a
// previous run are cleared. A record already in progress returns
// ErrAlreadyRunning.
func (e *Evaluation) Claim() error {
	if e.Status == StatusInProgress {
		return fmt.Errorf("%s: %w", e.UUID, ErrAlreadyRunning)
	}
	e.Status = StatusInProgress
	e.EndTime = nil
	e.ExitCode = nil
	return nil
}

// Release returns a claimed record whose process never started to NOT_STARTED.
func (e *Evaluation) Release() error {
	if e.Status != StatusInProgress {
		return fmt.Errorf("%s: %s -> %s: %w", e.UUID, e.Status, StatusNotStarted, ErrInvalidTransition)
	}
	e.Status = StatusNotStarted
	return nil
}

// Store persists evaluation records. Implementations must return an error
// wrapping ErrNotFound for unknown ids.
type Store interface {
	Create(ctx context.Context, e Evaluation) error
	Get(ctx context.Context, id string) (Evaluation, error)
	List(ctx context.Context) ([]Evaluation, error)
	// Claim atomically moves a record which is not IN_PROGRESS to
	// IN_PROGRESS, see Evaluation.Claim, and returns the claimed record.
	Claim(ctx context.Context, id string) (Evaluation, error)
	// Release undoes Claim, see Evaluation.Release.
	Release(ctx context.Context, id string) error
	// Finalize writes the terminal state, see Finalization.Apply.
	Finalize(ctx context.Context, f Finalization) error
	Delete(ctx context.Context, id string) error
	Close() error
}
