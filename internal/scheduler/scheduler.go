// Package scheduler runs recurring jobs on fixed intervals. Each job
// fires once at startup and then on its ticker; a failing job logs and
// waits for the next tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one recurring unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives a set of jobs until its context is canceled.
type Scheduler struct {
	jobs   []Job
	logger *zap.Logger
}

// New creates an empty Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger}
}

// Add registers a job. Jobs with a non-positive interval are dropped.
func (s *Scheduler) Add(name string, interval time.Duration, run func(ctx context.Context) error) {
	if interval <= 0 {
		s.logger.Warn("skipping job with non-positive interval", zap.String("job", name))
		return
	}
	s.jobs = append(s.jobs, Job{Name: name, Interval: interval, Run: run})
}

// Run blocks until ctx is canceled, driving every registered job on
// its own ticker.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.runJob(ctx, j)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, j Job) {
	s.logger.Info("job scheduled", zap.String("job", j.Name), zap.Duration("interval", j.Interval))

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	s.fire(ctx, j)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, j)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, j Job) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	if err := j.Run(ctx); err != nil {
		s.logger.Error("job failed", zap.String("job", j.Name), zap.Error(err))
		return
	}
	s.logger.Info("job finished", zap.String("job", j.Name), zap.Duration("took", time.Since(started)))
}
