package completion

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultOpenAIModel = "gpt-4"

// OpenAIGateway talks to any OpenAI-compatible chat completions endpoint.
type OpenAIGateway struct {
	llm   *openai.LLM
	model string
}

func NewOpenAIGateway(apiKey, baseURL, model string) (*OpenAIGateway, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultOpenAIModel
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
		openai.WithCallback(LogCallbackHandler{}),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &OpenAIGateway{llm: llm, model: model}, nil
}

func (g *OpenAIGateway) Complete(ctx context.Context, req Request) (Response, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	if req.Prompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))
	}

	callOpts := make([]llms.CallOption, 0, 2)
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature != nil {
		callOpts = append(callOpts, llms.WithTemperature(*req.Temperature))
	}

	resp, err := g.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return Response{}, fmt.Errorf("openai %s completion: %w", req.Kind, err)
	}
	if len(resp.Choices) == 0 {
		return Response{Provider: "openai"}, nil
	}
	return Response{Text: resp.Choices[0].Content, Provider: "openai"}, nil
}
