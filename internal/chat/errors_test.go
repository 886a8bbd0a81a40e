package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ent0n29/audiodiary/internal/completion"
	"github.com/ent0n29/audiodiary/internal/reliability"
)

func TestWrapKeepsSentinelAndCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := wrap(ErrGatewayFailure, cause, "s1", "complete reply")
	if !errors.Is(err, ErrGatewayFailure) {
		t.Fatalf("errors.Is(err, ErrGatewayFailure) = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false, want true")
	}
	if IsClientError(err) {
		t.Fatalf("IsClientError(gateway failure) = true, want false")
	}
}

func TestProviderErrorLabels(t *testing.T) {
	gw := completion.NewMockGateway()
	tests := []struct {
		err      error
		provider string
		code     string
	}{
		{&reliability.StatusError{Provider: "anthropic", Code: 529}, "anthropic", "529"},
		{fmt.Errorf("openai reply completion: %w", context.DeadlineExceeded), "mock", "timeout"},
		{errors.New("boom"), "mock", "error"},
	}
	for _, tt := range tests {
		provider, code := providerErrorLabels(gw, tt.err)
		if provider != tt.provider || code != tt.code {
			t.Fatalf("providerErrorLabels(%v) = (%q, %q), want (%q, %q)", tt.err, provider, code, tt.provider, tt.code)
		}
	}
}
