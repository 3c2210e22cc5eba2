package provider_test

import (
	"context"
	"testing"
	"time"

	"groupchat/model"
	"groupchat/provider/testutil"
)

// TestProviderContract defines the contract all providers must satisfy.
// Real backends need network access and credentials, so only the mock runs
// here.
func TestProviderContract(t *testing.T) {
	tests := []struct {
		name     string
		provider model.Provider
	}{
		{"Mock", testutil.NewMockProvider("test-model")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Run("Complete", func(t *testing.T) {
				testProviderComplete(t, tt.provider)
			})
			t.Run("Model", func(t *testing.T) {
				if tt.provider.GetModel() == "" {
					t.Error("GetModel() returned empty string")
				}
			})
			t.Run("HealthCheck", func(t *testing.T) {
				testProviderHealthCheck(t, tt.provider)
			})
		})
	}
}

func testProviderComplete(t *testing.T, p model.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text, err := p.Complete(ctx, "Hello")
	if err != nil {
		t.Errorf("Complete() error = %v", err)
	}
	if text == "" {
		t.Error("Complete() returned no text")
	}
}

func testProviderHealthCheck(t *testing.T, p model.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

// TestMockImplementsInterfaces ensures the mocks satisfy the interfaces
func TestMockImplementsInterfaces(t *testing.T) {
	var _ model.Provider = (*testutil.MockProvider)(nil)
	var _ model.Generator = (*testutil.MockGenerator)(nil)
}
