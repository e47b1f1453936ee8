package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CZERTAINLY/Evaluator/internal/api"
	"github.com/CZERTAINLY/Evaluator/internal/evaluate"
	"github.com/CZERTAINLY/Evaluator/internal/log"
	"github.com/CZERTAINLY/Evaluator/internal/model"
	"github.com/CZERTAINLY/Evaluator/internal/service"
	"github.com/CZERTAINLY/Evaluator/internal/store"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// Evaluator is a component, which owns the storage root, the durable store,
// the supervisor and the retention sweeper.
type Evaluator struct {
	root        *os.Root
	store       model.Store
	supervisor  *service.Supervisor
	sweeper     *service.Sweeper
	evaluations *evaluate.Service
}

func NewEvaluator(ctx context.Context, config model.Config) (*Evaluator, error) {
	if config.Version != 0 {
		return nil, fmt.Errorf("config version %d is not supported, expected 0", config.Version)
	}
	killGrace, err := config.Service.KillGraceDuration()
	if err != nil {
		return nil, fmt.Errorf("service.kill_grace: %w", err)
	}
	retention, err := config.Service.RetentionDuration()
	if err != nil {
		return nil, fmt.Errorf("service.retention: %w", err)
	}

	if err := os.MkdirAll(config.Storage.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	root, err := os.OpenRoot(config.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("opening storage root: %w", err)
	}

	e := &Evaluator{root: root}
	e.store, err = store.Open(ctx, config.Store, config.Storage.Root)
	if err != nil {
		_ = root.Close()
		return nil, err
	}

	e.supervisor = service.NewSupervisor(
		service.NewRegistry(),
		config.Service.MaxConcurrency,
		service.WithKillGrace(killGrace),
	)
	e.sweeper, err = service.NewSweeper(ctx, e.supervisor.Registry(), retention, config.Service.Sweep)
	if err != nil {
		_ = e.close(ctx)
		return nil, fmt.Errorf("service.sweep: %w", err)
	}
	e.evaluations, err = evaluate.New(e.store, e.supervisor, root, config.Storage)
	if err != nil {
		_ = e.close(ctx)
		return nil, err
	}
	return e, nil
}

// Serve runs the HTTP API on listen until ctx is done, then stops the running
// jobs and releases the resources.
func (e *Evaluator) Serve(ctx context.Context, listen string) error {
	server := &http.Server{
		Addr:              listen,
		Handler:           api.NewRouter(e.evaluations),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	e.sweeper.Start()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.InfoContext(ctx, "listening", "addr", listen, "max_concurrency", e.supervisor.MaxConcurrency())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		slog.InfoContext(sctx, "shutting down")
		return errors.Join(server.Shutdown(sctx), e.close(sctx))
	})
	return g.Wait()
}

func (e *Evaluator) close(ctx context.Context) error {
	var errs []error
	if e.supervisor != nil {
		errs = append(errs, e.supervisor.Close(ctx))
	}
	if e.sweeper != nil {
		e.sweeper.Shutdown(ctx)
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	errs = append(errs, e.root.Close())
	return errors.Join(errs...)
}

func doServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("evaluator",
		slog.String("cmd", "serve"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	evaluator, err := NewEvaluator(ctx, config)
	if err != nil {
		return err
	}
	return evaluator.Serve(ctx, config.Service.Listen)
}

// abortedError carries the exit code of an aborted exec job.
type abortedError struct {
	code int
}

func (e abortedError) Error() string {
	return fmt.Sprintf("job aborted with exit code %d", e.code)
}

func exitCode(err error) int {
	var aborted abortedError
	if errors.As(err, &aborted) && aborted.code > 0 {
		return aborted.code
	}
	return 1
}

// doExec runs a single job with the supervisor semantics: output capture,
// graceful stop on SIGINT/SIGTERM and the final snapshot printed as JSON.
func doExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("evaluator",
		slog.String("cmd", "exec"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	killGrace, err := config.Service.KillGraceDuration()
	if err != nil {
		return fmt.Errorf("service.kill_grace: %w", err)
	}
	supervisor := service.NewSupervisor(nil, 1, service.WithKillGrace(killGrace))
	defer func() {
		_ = supervisor.Close(context.WithoutCancel(ctx))
	}()

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	id := model.NewEvaluationID()
	job := service.Command{Path: args[0], Args: args[1:], Dir: wd}
	sig, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if !supervisor.Start(ctx, id, job, nil) {
		return fmt.Errorf("starting %s failed", job)
	}
	task, _ := supervisor.Registry().Get(id)

	select {
	case <-task.Done():
	case <-sig.Done():
		supervisor.Stop(ctx, id)
		<-task.Done()
	}

	snap, _ := supervisor.Status(id)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return err
	}
	if snap.Status == model.StatusAborted {
		code := 0
		if snap.ExitCode != nil {
			code = *snap.ExitCode
		}
		return abortedError{code: code}
	}
	return nil
}
