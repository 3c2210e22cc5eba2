// Package worker completes queued generation requests out of band. A queued
// generator writes a pending job; the worker claims it, checks the requester,
// calls the backend and writes the response or an error code back.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"groupchat/metrics"
	"groupchat/model"
	"groupchat/provider"
	"groupchat/ratelimit"
)

// Queue is the part of the request queue the worker drives.
type Queue interface {
	PendingJobs(ctx context.Context, limit int) ([]model.GenerationJob, error)
	ClaimJob(ctx context.Context, id string) (model.GenerationJob, bool, error)
	CompleteJob(ctx context.Context, job model.GenerationJob) error
}

// Worker answers queued generation jobs against a provider backend.
type Worker struct {
	queue       Queue
	backend     model.Provider
	limiter     ratelimit.Limiter
	concurrency int
	interval    time.Duration
	logger      zerolog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithConcurrency caps how many jobs run at once. Default 10.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithPollInterval sets how often Run looks for pending jobs.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLogger sets the worker logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// New creates a worker. A nil backend fails every job as
// backend_unavailable; a nil limiter applies no limit.
func New(queue Queue, backend model.Provider, limiter ratelimit.Limiter, opts ...Option) *Worker {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	w := &Worker{
		queue:       queue,
		backend:     backend,
		limiter:     limiter,
		concurrency: 10,
		interval:    500 * time.Millisecond,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls for pending jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("concurrency", w.concurrency).Dur("interval", w.interval).Msg("generation worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("failed to process pending jobs")
		}

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("generation worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessPending handles one batch of pending jobs, at most concurrency at a
// time, and returns how many it completed.
func (w *Worker) ProcessPending(ctx context.Context) (int, error) {
	jobs, err := w.queue.PendingJobs(ctx, w.concurrency*2)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	completed := make([]bool, len(jobs))
	for i, job := range jobs {
		g.Go(func() error {
			done, err := w.Process(gctx, job.ID)
			completed[i] = done
			return err
		})
	}
	err = g.Wait()

	n := 0
	for _, done := range completed {
		if done {
			n++
		}
	}
	return n, err
}

// Process claims and completes a single job. It returns false when another
// worker already claimed it. Generation failures are written to the job,
// not returned; only queue errors are.
func (w *Worker) Process(ctx context.Context, id string) (bool, error) {
	job, ok, err := w.queue.ClaimJob(ctx, id)
	if err != nil || !ok {
		return false, err
	}

	log := w.logger.With().Str("job", job.ID).Str("role", string(job.Role)).Logger()

	text, genErr := w.generate(ctx, job)
	if genErr != nil {
		job.Status = model.JobFailed
		job.ErrorCode = model.JobErrorCode(genErr)
		job.Error = causeMessage(genErr)
		log.Warn().Err(genErr).Str("code", job.ErrorCode).Msg("generation job failed")
	} else {
		job.Status = model.JobDone
		job.Response = text
		log.Debug().Msg("generation job done")
	}

	if err := w.queue.CompleteJob(context.WithoutCancel(ctx), job); err != nil {
		return false, err
	}
	metrics.JobsProcessed.WithLabelValues(string(job.Status)).Inc()
	return true, nil
}

func (w *Worker) generate(ctx context.Context, job model.GenerationJob) (string, error) {
	if err := provider.CheckRequester(ctx, w.limiter, job.RequestedBy, "worker"); err != nil {
		return "", model.NewGenerationError(job.Role, err)
	}
	return provider.Complete(ctx, w.backend, job.Role, job.Prompt)
}

// causeMessage drops the GenerationError prefix; the polling side adds its
// own.
func causeMessage(err error) string {
	var ge *model.GenerationError
	if errors.As(err, &ge) && ge.Cause != nil {
		return ge.Cause.Error()
	}
	return err.Error()
}
