package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"groupchat/metrics"
	"groupchat/model"
)

// JobQueue is the part of the request queue a QueuedGenerator needs.
type JobQueue interface {
	EnqueueJob(ctx context.Context, job model.GenerationJob) (model.GenerationJob, error)
	GetJob(ctx context.Context, id string) (model.GenerationJob, error)
}

// QueuedGenerator writes each request as a GenerationJob and polls until a
// worker fills in the result or the polling window runs out.
type QueuedGenerator struct {
	queue    JobQueue
	interval time.Duration
	ticks    int
	logger   zerolog.Logger
}

type QueuedOption func(*QueuedGenerator)

// WithPolling sets the poll interval and the number of polls before giving
// up. Non-positive values keep the defaults (1s, 30).
func WithPolling(interval time.Duration, ticks int) QueuedOption {
	return func(q *QueuedGenerator) {
		if interval > 0 {
			q.interval = interval
		}
		if ticks > 0 {
			q.ticks = ticks
		}
	}
}

func WithQueueLogger(l zerolog.Logger) QueuedOption {
	return func(q *QueuedGenerator) { q.logger = l }
}

func NewQueuedGenerator(queue JobQueue, opts ...QueuedOption) *QueuedGenerator {
	q := &QueuedGenerator{
		queue:    queue,
		interval: time.Second,
		ticks:    30,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Generate implements model.Generator.
func (q *QueuedGenerator) Generate(ctx context.Context, req model.GenerationRequest) (string, error) {
	start := time.Now()
	defer func() {
		metrics.GenerationDuration.WithLabelValues(model.RoleLabel(req.Role)).Observe(time.Since(start).Seconds())
	}()

	job, err := q.queue.EnqueueJob(ctx, model.GenerationJob{
		ConversationID: req.ConversationID,
		Role:           req.Role,
		Prompt:         BuildPrompt(req.Role, req.History),
		RequestedBy:    req.RequestedBy,
	})
	if err != nil {
		return "", q.fail(req.Role, fmt.Errorf("failed to enqueue generation request: %w", err))
	}

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for tick := 1; tick <= q.ticks; tick++ {
		select {
		case <-ctx.Done():
			return "", q.fail(req.Role, fmt.Errorf("%w: %w", model.ErrTimeout, ctx.Err()))
		case <-ticker.C:
		}

		current, err := q.queue.GetJob(ctx, job.ID)
		if err != nil {
			q.logger.Warn().Err(err).Str("job", job.ID).Msg("poll failed")
			continue
		}

		switch current.Status {
		case model.JobDone:
			text := strings.TrimSpace(current.Response)
			if text == "" {
				return "", q.fail(req.Role, model.ErrEmptyResponse)
			}
			q.logger.Debug().Str("job", job.ID).Int("polls", tick).Msg("received generated reply")
			return text, nil
		case model.JobFailed:
			return "", q.fail(req.Role, model.JobErrorCause(current.ErrorCode, current.Error))
		}
	}

	return "", q.fail(req.Role, fmt.Errorf("%w: no result after %d polls", model.ErrTimeout, q.ticks))
}

func (q *QueuedGenerator) fail(role model.Role, cause error) error {
	metrics.GenerationFailures.WithLabelValues(model.RoleLabel(role), causeLabel(cause)).Inc()
	return model.NewGenerationError(role, cause)
}
