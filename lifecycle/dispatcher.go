package lifecycle

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"groupchat/model"
)

// Runner is satisfied by *Controller.
type Runner interface {
	Run(ctx context.Context, in RunInput) Outcome
}

// Dispatcher fans a send event out to every AI participant without making
// the sender wait.
type Dispatcher struct {
	runner  Runner
	stagger time.Duration
	logger  zerolog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithStagger delays each participant's start by d after the previous one.
func WithStagger(d time.Duration) DispatcherOption {
	return func(ds *Dispatcher) {
		if d >= 0 {
			ds.stagger = d
		}
	}
}

// WithDispatchLogger sets the dispatcher logger.
func WithDispatchLogger(l zerolog.Logger) DispatcherOption {
	return func(ds *Dispatcher) { ds.logger = l }
}

// NewDispatcher creates a dispatcher with a one second stagger.
func NewDispatcher(runner Runner, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{runner: runner, stagger: time.Second, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchInput is one send event.
type DispatchInput struct {
	ConversationID string
	Participants   []model.AIParticipant
	History        []model.Message
	// PromptLimit trims the history handed to the generator. Zero keeps all.
	PromptLimit int
	RequestedBy string
}

// Batch tracks the runs started by one Dispatch.
type Batch struct {
	done     chan struct{}
	outcomes []Outcome
}

// Done is closed once every run has finished.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Wait blocks until every run has finished or ctx ends. Outcomes are in
// participant order.
func (b *Batch) Wait(ctx context.Context) ([]Outcome, error) {
	select {
	case <-b.done:
		return b.outcomes, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dispatch starts one run per participant and returns immediately. Each run
// sees the same history snapshot. Cancelling ctx does not stop runs already
// scheduled.
func (d *Dispatcher) Dispatch(ctx context.Context, in DispatchInput) *Batch {
	participants := slices.Clone(in.Participants)
	history := slices.Clone(in.History)
	ctx = context.WithoutCancel(ctx)

	b := &Batch{
		done:     make(chan struct{}),
		outcomes: make([]Outcome, len(participants)),
	}

	go func() {
		defer close(b.done)

		var g errgroup.Group
		for i, p := range participants {
			if i > 0 && d.stagger > 0 {
				time.Sleep(d.stagger)
			}
			g.Go(func() error {
				b.outcomes[i] = d.runner.Run(ctx, RunInput{
					ConversationID: in.ConversationID,
					Participant:    p,
					History:        history,
					PromptLimit:    in.PromptLimit,
					RequestedBy:    in.RequestedBy,
				})
				return nil
			})
		}
		_ = g.Wait()

		d.logger.Debug().
			Str("conversation", in.ConversationID).
			Int("participants", len(participants)).
			Msg("dispatch finished")
	}()

	return b
}
