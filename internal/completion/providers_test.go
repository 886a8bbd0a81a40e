package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ent0n29/audiodiary/internal/reliability"
)

func TestHTTPGatewayJSONResponse(t *testing.T) {
	var got httpPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":"こんばんは！"}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL)
	resp, err := gw.Complete(context.Background(), Request{
		Kind:      KindOpening,
		SessionID: "s1",
		System:    "Greet the user.",
		MaxTokens: 150,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "こんばんは！" {
		t.Fatalf("resp.Text = %q, want %q", resp.Text, "こんばんは！")
	}
	if got.Kind != KindOpening || got.SessionID != "s1" || got.MaxTokens != 150 {
		t.Fatalf("payload = %+v", got)
	}
}

func TestHTTPGatewayPlainTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "  hello there \n")
	}))
	defer srv.Close()

	resp, err := NewHTTPGateway(srv.URL).Complete(context.Background(), Request{Kind: KindReply, Prompt: "x"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "hello there" {
		t.Fatalf("resp.Text = %q, want %q", resp.Text, "hello there")
	}
}

func TestHTTPGatewayStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPGateway(srv.URL).Complete(context.Background(), Request{Kind: KindReply, Prompt: "x"})
	var statusErr *reliability.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want StatusError", err)
	}
	if statusErr.Code != http.StatusServiceUnavailable {
		t.Fatalf("Code = %d, want 503", statusErr.Code)
	}
	if !reliability.IsRetryable(err) {
		t.Fatalf("503 should be retryable")
	}
}

func TestOpenAIGatewayGeneratesContent(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q, want chat completions", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Good evening!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
		}`)
	}))
	defer srv.Close()

	gw, err := NewOpenAIGateway("sk-test", srv.URL, "")
	if err != nil {
		t.Fatalf("NewOpenAIGateway() error = %v", err)
	}
	resp, err := gw.Complete(context.Background(), Request{
		Kind:        KindReply,
		System:      "Be a warm diary companion.",
		Prompt:      "User: I went for a walk",
		Temperature: Temperature(0.7),
		MaxTokens:   1000,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "Good evening!" || resp.Provider != "openai" {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.Contains(body, `"system"`) || !strings.Contains(body, "I went for a walk") {
		t.Fatalf("request body = %s, want system and user messages", body)
	}
	if !strings.Contains(body, `"gpt-4"`) {
		t.Fatalf("request body = %s, want default model", body)
	}
}

func TestAnthropicGatewaySendsSystemOnlyPromptAsUserMessage(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q, want /v1/messages", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "こんばんは！"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	gw := NewAnthropicGateway("ak-test", srv.URL, "")
	resp, err := gw.Complete(context.Background(), Request{
		Kind:      KindOpening,
		System:    "Open the conversation.",
		MaxTokens: 150,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "こんばんは！" {
		t.Fatalf("resp.Text = %q", resp.Text)
	}
	if _, ok := payload["system"]; ok {
		t.Fatalf("payload has system field, want prompt moved to user message: %v", payload)
	}
	msgs, _ := payload["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v, want one user message", payload["messages"])
	}
	if got, _ := payload["max_tokens"].(float64); got != 150 {
		t.Fatalf("max_tokens = %v, want 150", payload["max_tokens"])
	}
}

func TestAnthropicGatewayMapsStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	_, err := NewAnthropicGateway("ak-test", srv.URL, "").Complete(context.Background(), Request{Kind: KindReply, Prompt: "x"})
	var statusErr *reliability.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want StatusError", err)
	}
	if statusErr.Code != http.StatusTooManyRequests {
		t.Fatalf("Code = %d, want 429", statusErr.Code)
	}
}
