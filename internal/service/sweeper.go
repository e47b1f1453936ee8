package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/CZERTAINLY/Evaluator/internal/model"
)

// Sweeper periodically evicts finished tasks older than the retention period
// from the registry. Durable records are left untouched.
type Sweeper struct {
	registry  *Registry
	retention time.Duration
	scheduler gocron.Scheduler
	now       func() time.Time
}

// NewSweeper schedules the eviction. every is either a cron expression
// (5 fields or a @macro) or a Go/ISO-8601 duration.
func NewSweeper(ctx context.Context, registry *Registry, retention time.Duration, every string) (*Sweeper, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	s := &Sweeper{
		registry:  registry,
		retention: retention,
		now:       time.Now,
	}

	job, err := sweepJob(ctx, every)
	if err != nil {
		return nil, err
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		job,
		gocron.NewTask(func() {
			if n := s.Sweep(); n > 0 {
				slog.InfoContext(ctx, "evicted finished tasks", "count", n)
			}
		}),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	s.scheduler = scheduler
	return s, nil
}

func sweepJob(ctx context.Context, every string) (gocron.JobDefinition, error) {
	every = strings.TrimSpace(every)
	if _, err := model.ParseCron(every); err == nil {
		slog.DebugContext(ctx, "successfully parsed", "cron", every)
		return gocron.CronJob(every, false), nil
	}
	d, err := model.ParseDuration(every)
	if err != nil {
		return nil, fmt.Errorf("parsing service.sweep %q: neither cron nor duration", every)
	}
	if d <= 0 {
		return nil, fmt.Errorf("parsing service.sweep %q: must be positive", every)
	}
	slog.DebugContext(ctx, "successfully parsed", "duration", d.String())
	return gocron.DurationJob(d), nil
}

// Sweep evicts now and returns the number of evicted tasks.
func (s *Sweeper) Sweep() int {
	return len(s.registry.Evict(s.now().Add(-s.retention)))
}

func (s *Sweeper) Start() {
	s.scheduler.Start()
}

func (s *Sweeper) Shutdown(ctx context.Context) {
	if err := s.scheduler.Shutdown(); err != nil {
		slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
	}
}
