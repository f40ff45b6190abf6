// Package scheduler runs deferred tasks persisted in storage and recurring jobs.
//
// Both are best effort at least once: a task may run again if the process stops between executing
// it and deleting it, so handlers must be idempotent.
package scheduler

import (
	"context"
	"errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"sessionchat/internal/clock"
	"sessionchat/internal/storage"
	"time"
)

// Handler executes a deferred task. A returned error reschedules the task.
type Handler func(ctx context.Context, t storage.Task) error

// Job is a recurring operation
type Job func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	fn       Job
}

// Runner defines fields used for executing tasks and jobs
type Runner struct {
	logger   *zap.SugaredLogger
	store    *storage.Store
	clock    clock.Clock
	cfg      Config
	handlers map[string]Handler
	jobs     []job
}

// NewRunner returns Runner polling provided store
func NewRunner(logger *zap.SugaredLogger, store *storage.Store, opts ...Option) *Runner {
	r := &Runner{
		logger:   logger,
		store:    store,
		clock:    clock.Real(),
		cfg:      DefaultConfig(),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt.apply(r)
	}
	return r
}

// Handle registers handler for tasks of kind. It must be called before Run.
func (r *Runner) Handle(kind string, h Handler) {
	r.handlers[kind] = h
}

// Every registers fn to run each interval. It must be called before Run.
func (r *Runner) Every(name string, interval time.Duration, fn Job) {
	r.jobs = append(r.jobs, job{name: name, interval: interval, fn: fn})
}

// RunDue executes one batch of due tasks and returns how many succeeded.
// Failed tasks are rescheduled with linear backoff until MaxAttempts, then dropped.
// Tasks of unknown kind are dropped.
func (r *Runner) RunDue(ctx context.Context) (int, error) {
	now := r.clock.Now()

	tasks, err := r.store.DueTasks(ctx, now, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, t := range tasks {
		h, ok := r.handlers[t.Kind]
		if !ok {
			r.logger.Warnf("Dropping task (id: %d) of unknown kind (%s)", t.ID, t.Kind)
			if err := r.store.DeleteTask(ctx, t.ID); err != nil {
				return done, err
			}
			continue
		}

		if err := h(ctx, t); err != nil {
			attempts := t.Attempts + 1
			if attempts >= r.cfg.MaxAttempts {
				r.logger.Errorf("Dropping task (id: %d, kind: %s) after %d attempts: %v", t.ID, t.Kind, attempts, err)
				if err := r.store.DeleteTask(ctx, t.ID); err != nil {
					return done, err
				}
				continue
			}

			r.logger.Warnf("Task (id: %d, kind: %s) failed, attempt %d: %v", t.ID, t.Kind, attempts, err)
			runAt := now.Add(time.Duration(attempts) * r.cfg.RetryBackoff)
			if err := r.store.RescheduleTask(ctx, t.ID, runAt, attempts); err != nil {
				return done, err
			}
			continue
		}

		if err := r.store.DeleteTask(ctx, t.ID); err != nil {
			return done, err
		}
		done++
	}

	return done, nil
}

// Run polls the task queue and runs every registered job until ctx is cancelled.
// Failures of a single pass are logged and do not stop the loops.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.loop(ctx, "tasks", r.cfg.PollInterval, func(ctx context.Context) error {
			_, err := r.RunDue(ctx)
			return err
		})
	})

	for _, j := range r.jobs {
		j := j
		g.Go(func() error {
			return r.loop(ctx, j.name, j.interval, j.fn)
		})
	}

	r.logger.Infof("Scheduler started with %d jobs", len(r.jobs))

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	r.logger.Info("Scheduler is stopped")

	return err
}

func (r *Runner) loop(ctx context.Context, name string, interval time.Duration, fn Job) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				r.logger.Errorf("Job (%s) failed: %v", name, err)
			}
		}
	}
}
