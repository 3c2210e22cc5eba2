package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"groupchat/model"
	"groupchat/provider/testutil"
	"groupchat/ratelimit"
)

func TestRoleGeneratorSuccess(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	mock.CompleteFunc = func(ctx context.Context, prompt string) (string, error) {
		return "  Let's keep it friendly.\n", nil
	}
	gen := NewRoleGenerator(mock, nil)

	text, err := gen.Generate(context.Background(), model.GenerationRequest{
		ConversationID: "c1",
		Role:           model.RoleModerator,
		History:        "User (Bob): you're wrong",
		RequestedBy:    "bob",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "Let's keep it friendly." {
		t.Errorf("Generate() = %q, want trimmed reply", text)
	}

	prompts := mock.Prompts()
	if len(prompts) != 1 {
		t.Fatalf("provider called %d times, want 1", len(prompts))
	}
	if !strings.Contains(prompts[0], "User (Bob): you're wrong") {
		t.Errorf("prompt missing history: %s", prompts[0])
	}
}

func TestRoleGeneratorFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider model.Provider
		limiter  ratelimit.Limiter
		req      model.GenerationRequest
		want     error
	}{
		{
			name:     "anonymous requester",
			provider: testutil.NewMockProvider("m"),
			req:      model.GenerationRequest{Role: model.RolePlanner},
			want:     model.ErrUnauthenticated,
		},
		{
			name:     "rate limited",
			provider: testutil.NewMockProvider("m"),
			limiter:  ratelimit.NewMemory(1, time.Hour),
			req:      model.GenerationRequest{Role: model.RolePlanner, RequestedBy: "spammer"},
			want:     model.ErrRateLimited,
		},
		{
			name: "empty reply",
			provider: func() model.Provider {
				m := testutil.NewMockProvider("m")
				m.CompleteFunc = func(context.Context, string) (string, error) { return "   ", nil }
				return m
			}(),
			req:  model.GenerationRequest{Role: model.RolePlanner, RequestedBy: "u"},
			want: model.ErrEmptyResponse,
		},
		{
			name: "deadline exceeded",
			provider: func() model.Provider {
				m := testutil.NewMockProvider("m")
				m.CompleteFunc = func(context.Context, string) (string, error) { return "", context.DeadlineExceeded }
				return m
			}(),
			req:  model.GenerationRequest{Role: model.RolePlanner, RequestedBy: "u"},
			want: model.ErrTimeout,
		},
		{
			name:     "no backend",
			provider: nil,
			req:      model.GenerationRequest{Role: model.RolePlanner, RequestedBy: "u"},
			want:     model.ErrBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewRoleGenerator(tt.provider, tt.limiter)
			if tt.name == "rate limited" {
				// first request spends the only token
				if _, err := gen.Generate(context.Background(), tt.req); err != nil {
					t.Fatalf("first Generate() error = %v", err)
				}
			}

			_, err := gen.Generate(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Generate() error = %v, want %v", err, tt.want)
			}
			var ge *model.GenerationError
			if !errors.As(err, &ge) {
				t.Errorf("error %T is not a *model.GenerationError", err)
			} else if ge.Role != model.RolePlanner {
				t.Errorf("GenerationError.Role = %q, want planner", ge.Role)
			}
		})
	}
}

func TestCauseLabel(t *testing.T) {
	tests := map[error]string{
		model.ErrTimeout:            "timeout",
		model.ErrRateLimited:        "rate_limited",
		model.ErrUnauthenticated:    "unauthenticated",
		model.ErrBackendUnavailable: "backend_unavailable",
		model.ErrEmptyResponse:      "empty_response",
		errors.New("boom"):          "upstream",
	}
	for err, want := range tests {
		if got := causeLabel(model.NewGenerationError(model.RoleModerator, err)); got != want {
			t.Errorf("causeLabel(%v) = %q, want %q", err, got, want)
		}
	}
}
