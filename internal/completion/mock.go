package completion

import (
	"context"
	"fmt"
	"strings"
)

// MockGateway provides deterministic local replies when no provider is
// configured.
type MockGateway struct{}

func NewMockGateway() *MockGateway { return &MockGateway{} }

func (g *MockGateway) Complete(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}
	return Response{Text: buildMockReply(req), Provider: "mock"}, nil
}

func buildMockReply(req Request) string {
	switch req.Kind {
	case KindOpening:
		return "Hi! How was your day? Tell me about it."
	case KindSummary:
		return "- You talked about your day.\n- You shared how you felt."
	default:
		last := lastUserLine(req.Prompt)
		if last == "" {
			return "I am listening."
		}
		return fmt.Sprintf("I heard you: %s", last)
	}
}

func lastUserLine(prompt string) string {
	lines := strings.Split(prompt, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if rest, ok := strings.CutPrefix(line, "User:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
