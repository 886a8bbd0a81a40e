// Package completion is the boundary to the text-generation providers the
// diary conversation runs on.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind tags what a completion is used for. Providers may use it for
// logging and canned replies; metrics are labeled by it.
type Kind string

const (
	KindOpening Kind = "opening"
	KindReply   Kind = "reply"
	KindSummary Kind = "summary"
)

// Request is a single prompt. System is sent with system role, Prompt
// with user role; either may be empty but not both.
type Request struct {
	Kind        Kind
	SessionID   string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64
}

type Response struct {
	Text     string
	Provider string
}

// Gateway turns a prompt into generated text. Implementations must honor
// ctx cancellation.
type Gateway interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Config controls gateway construction.
type Config struct {
	Mode       string
	Timeout    time.Duration
	MaxRetries int

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string

	HTTPURL string
}

// Temperature returns a pointer for Request.Temperature.
func Temperature(v float64) *float64 { return &v }

func NewGateway(cfg Config) (Gateway, error) {
	gw, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewResilient(gw, cfg.Timeout, cfg.MaxRetries), nil
}

func newProvider(cfg Config) (Gateway, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoGateway(cfg)
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("openai api key is required for openai mode")
		}
		return NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, errors.New("anthropic api key is required for anthropic mode")
		}
		return NewAnthropicGateway(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.AnthropicModel), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("completion HTTP url is required for http mode")
		}
		return NewHTTPGateway(cfg.HTTPURL), nil
	case "mock":
		return NewMockGateway(), nil
	default:
		return nil, fmt.Errorf("unsupported completion mode %q", cfg.Mode)
	}
}

// newAutoGateway prefers hosted providers in the order openai, anthropic,
// then a custom HTTP endpoint, and falls back to the mock.
func newAutoGateway(cfg Config) (Gateway, error) {
	var chain []Gateway
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		gw, err := NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		chain = append(chain, gw)
	}
	if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
		chain = append(chain, NewAnthropicGateway(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.AnthropicModel))
	}
	if len(chain) == 0 && strings.TrimSpace(cfg.HTTPURL) != "" {
		chain = append(chain, NewHTTPGateway(cfg.HTTPURL))
	}

	switch len(chain) {
	case 0:
		return NewMockGateway(), nil
	case 1:
		return chain[0], nil
	default:
		return NewFallbackGateway(chain[0], chain[1]), nil
	}
}

// ProviderName reports the provider label of gw for logs and metrics.
func ProviderName(gw Gateway) string {
	switch g := gw.(type) {
	case *Resilient:
		return ProviderName(g.next)
	case *FallbackGateway:
		return ProviderName(g.primary) + "+" + ProviderName(g.fallback)
	case *OpenAIGateway:
		return "openai"
	case *AnthropicGateway:
		return "anthropic"
	case *HTTPGateway:
		return "http"
	case *MockGateway:
		return "mock"
	default:
		return "custom"
	}
}
