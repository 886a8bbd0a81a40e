package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/audiodiary/internal/reliability"
)

// HTTPGateway forwards requests to a self-hosted completion endpoint.
// The endpoint receives the JSON payload below and may answer with a JSON
// object carrying the text, or with plain text.
type HTTPGateway struct {
	url    string
	client *http.Client
}

type httpPayload struct {
	Kind        Kind     `json:"kind"`
	SessionID   string   `json:"session_id,omitempty"`
	System      string   `json:"system,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

func NewHTTPGateway(url string) *HTTPGateway {
	return &HTTPGateway{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (g *HTTPGateway) Complete(ctx context.Context, req Request) (Response, error) {
	payload, err := json.Marshal(httpPayload{
		Kind:        req.Kind,
		SessionID:   req.SessionID,
		System:      req.System,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := g.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Response{}, &reliability.StatusError{
			Provider: "completion",
			Code:     res.StatusCode,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return Response{Text: strings.TrimSpace(string(body)), Provider: "http"}, nil
	}
	return Response{Text: extractText(obj), Provider: "http"}, nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "output", "message", "content"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
