package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/ent0n29/audiodiary/internal/chat"
	"github.com/ent0n29/audiodiary/internal/conversation"
	"github.com/ent0n29/audiodiary/internal/diary"
)

func TestChatFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	var opening chat.Opening
	status := env.do(t, http.MethodPost, "/chat/context", "", map[string]string{
		"date":        "2024-05-01",
		"time_of_day": "evening",
		"location":    "home",
		"companion":   "spouse",
		"mood":        "happy",
	}, &opening)
	if status != http.StatusOK {
		t.Fatalf("context status = %d, want %d", status, http.StatusOK)
	}
	if opening.Message == "" {
		t.Fatalf("initial_message is empty")
	}
	if opening.Context.Location != "home" || opening.Context.Date.Format("2006-01-02") != "2024-05-01" {
		t.Fatalf("context = %+v", opening.Context)
	}

	var reply messageResponse
	if status := env.do(t, http.MethodPost, "/chat/message", "", map[string]string{"content": "I went for a walk"}, &reply); status != http.StatusOK {
		t.Fatalf("message status = %d, want %d", status, http.StatusOK)
	}
	if reply.Content != "I heard you: I went for a walk" {
		t.Fatalf("reply = %q", reply.Content)
	}

	var history historyResponse
	env.do(t, http.MethodGet, "/chat/history", "", nil, &history)
	if len(history.Turns) != 3 {
		t.Fatalf("history turns = %d, want 3", len(history.Turns))
	}
	if history.Turns[1].Role != conversation.RoleUser {
		t.Fatalf("turn[1].role = %q, want user", history.Turns[1].Role)
	}

	var sum summaryResponse
	if status := env.do(t, http.MethodPost, "/chat/summarize", "", nil, &sum); status != http.StatusOK {
		t.Fatalf("summarize status = %d, want %d", status, http.StatusOK)
	}
	if !strings.HasPrefix(sum.Summary, "- ") {
		t.Fatalf("summary = %q", sum.Summary)
	}

	var cached summaryResponse
	if status := env.do(t, http.MethodGet, "/chat/summary", "", nil, &cached); status != http.StatusOK {
		t.Fatalf("cached summary status = %d, want %d", status, http.StatusOK)
	}
	if cached.Summary != sum.Summary {
		t.Fatalf("cached summary = %q, want %q", cached.Summary, sum.Summary)
	}

	var st statusResponse
	env.do(t, http.MethodGet, "/chat/status", "", nil, &st)
	if st.Phase != chat.PhaseSummarized || st.Turns != 0 || !st.HasCachedSummary || st.ExchangeCount != 1 {
		t.Fatalf("status = %+v", st)
	}

	var entry diary.Entry
	if status := env.do(t, http.MethodPost, "/chat/save", "", nil, &entry); status != http.StatusCreated {
		t.Fatalf("save status = %d, want %d", status, http.StatusCreated)
	}
	if entry.ID == 0 || entry.Summary != sum.Summary {
		t.Fatalf("entry = %+v", entry)
	}
	if len(entry.Contexts) != 1 || entry.Contexts[0].Mood != "happy" {
		t.Fatalf("entry contexts = %+v", entry.Contexts)
	}

	if status := env.do(t, http.MethodGet, "/chat/summary", "", nil, nil); status != http.StatusNotFound {
		t.Fatalf("cached summary after save status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestSetContextValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	var errBody errorResponse
	status := env.do(t, http.MethodPost, "/chat/context", "", map[string]string{"time_of_day": "morning"}, &errBody)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", status, http.StatusBadRequest)
	}
	if errBody.Code != "invalid_request" {
		t.Fatalf("code = %q, want invalid_request", errBody.Code)
	}

	status = env.do(t, http.MethodPost, "/chat/context", "", map[string]string{
		"date":        "yesterday",
		"time_of_day": "morning",
		"location":    "office",
		"companion":   "none",
		"mood":        "ok",
	}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("bad date status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestGetContextBeforeAndAfterMessage(t *testing.T) {
	env := newTestEnv(t, nil)

	var before contextResponse
	env.do(t, http.MethodGet, "/chat/context", "", nil, &before)
	if before.Context != nil {
		t.Fatalf("context before message = %+v, want nil", before.Context)
	}

	env.do(t, http.MethodPost, "/chat/message", "", map[string]string{"content": "hello"}, nil)

	var after contextResponse
	env.do(t, http.MethodGet, "/chat/context", "", nil, &after)
	if after.Context == nil || after.Context.Mood != conversation.Unknown {
		t.Fatalf("context after message = %+v, want default", after.Context)
	}
}

func TestMessageErrors(t *testing.T) {
	t.Run("blank content", func(t *testing.T) {
		env := newTestEnv(t, nil)
		status := env.do(t, http.MethodPost, "/chat/message", "", map[string]string{"content": "   "}, nil)
		if status != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", status, http.StatusBadRequest)
		}
	})

	t.Run("empty completion", func(t *testing.T) {
		env := newTestEnv(t, stubGateway{text: "  "})
		var errBody errorResponse
		status := env.do(t, http.MethodPost, "/chat/message", "", map[string]string{"content": "hi"}, &errBody)
		if status != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", status, http.StatusBadRequest)
		}
		if errBody.Code != "empty_completion" || !errBody.Retryable {
			t.Fatalf("error body = %+v", errBody)
		}
	})

	t.Run("gateway failure", func(t *testing.T) {
		env := newTestEnv(t, stubGateway{err: errors.New("connection refused")})
		var errBody errorResponse
		status := env.do(t, http.MethodPost, "/chat/message", "", map[string]string{"content": "hi"}, &errBody)
		if status != http.StatusInternalServerError {
			t.Fatalf("status = %d, want %d", status, http.StatusInternalServerError)
		}
		if errBody.Code != "gateway_failure" {
			t.Fatalf("code = %q, want gateway_failure", errBody.Code)
		}
	})
}

func TestSummarizeEmptyMemory(t *testing.T) {
	env := newTestEnv(t, nil)

	var errBody errorResponse
	status := env.do(t, http.MethodPost, "/chat/summarize", "", nil, &errBody)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", status, http.StatusBadRequest)
	}
	if errBody.Code != "nothing_to_summarize" {
		t.Fatalf("code = %q, want nothing_to_summarize", errBody.Code)
	}
}

func TestSaveWithSuppliedSummary(t *testing.T) {
	env := newTestEnv(t, stubGateway{err: errors.New("must not be called")})

	var entry diary.Entry
	status := env.do(t, http.MethodPost, "/chat/save", "", map[string]any{
		"summary": "- walked by the river",
		"context": map[string]string{
			"time_of_day": "afternoon",
			"location":    "park",
			"companion":   "dog",
			"mood":        "calm",
		},
	}, &entry)
	if status != http.StatusCreated {
		t.Fatalf("save status = %d, want %d", status, http.StatusCreated)
	}
	if entry.Summary != "- walked by the river" {
		t.Fatalf("summary = %q", entry.Summary)
	}
	if len(entry.Contexts) != 1 || entry.Contexts[0].Location != "park" {
		t.Fatalf("contexts = %+v", entry.Contexts)
	}

	if _, ok, _ := env.cache.Get(context.Background(), "default"); ok {
		t.Fatalf("supplied save wrote to the summary cache")
	}
}

func TestSaveRejectsTruncatedBody(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if err := env.cache.Put(ctx, "default", "- cached summary"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var errBody errorResponse
	status := env.do(t, http.MethodPost, "/chat/save", "", rawBody(`{"summary": "my own text`), &errBody)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", status, http.StatusBadRequest)
	}
	if errBody.Code != "invalid_request" {
		t.Fatalf("code = %q, want invalid_request", errBody.Code)
	}
	if cached, ok, _ := env.cache.Get(ctx, "default"); !ok || cached != "- cached summary" {
		t.Fatalf("cache = %q, %v; want cached summary untouched", cached, ok)
	}
	if entries, _ := env.repo.List(ctx); len(entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(entries))
	}
}

func TestSaveRejectsBlankSummary(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if err := env.cache.Put(ctx, "default", "- cached summary"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var errBody errorResponse
	status := env.do(t, http.MethodPost, "/chat/save", "", map[string]string{"summary": "   "}, &errBody)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", status, http.StatusBadRequest)
	}
	if errBody.Code != "invalid_request" || errBody.Retryable {
		t.Fatalf("error = %+v, want non-retryable invalid_request", errBody)
	}
	if _, ok, _ := env.cache.Get(ctx, "default"); !ok {
		t.Fatalf("blank summary consumed the cached summary")
	}
}

func TestSaveWithEmptyBodyUsesCache(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if err := env.cache.Put(ctx, "default", "- cached summary"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var entry diary.Entry
	status := env.do(t, http.MethodPost, "/chat/save", "", rawBody(""), &entry)
	if status != http.StatusCreated {
		t.Fatalf("status = %d, want %d", status, http.StatusCreated)
	}
	if entry.Summary != "- cached summary" {
		t.Fatalf("summary = %q, want cached summary", entry.Summary)
	}
}

func TestQuickChatUsesDefaultSession(t *testing.T) {
	env := newTestEnv(t, stubGateway{text: "tell me more"})

	var reply quickChatResponse
	status := env.do(t, http.MethodPost, "/chat", "", map[string]string{"content": "I went hiking"}, &reply)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if reply.Response != "tell me more" {
		t.Fatalf("response = %q, want %q", reply.Response, "tell me more")
	}

	var hist historyResponse
	env.do(t, http.MethodGet, "/chat/history", "", nil, &hist)
	if len(hist.Turns) != 2 || hist.Turns[0].Content != "I went hiking" {
		t.Fatalf("history = %+v, want the quick chat exchange", hist.Turns)
	}

	var errBody errorResponse
	if status := env.do(t, http.MethodPost, "/chat", "", map[string]string{"content": ""}, &errBody); status != http.StatusBadRequest {
		t.Fatalf("empty content status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestSaveWithoutSummaryOrConversation(t *testing.T) {
	env := newTestEnv(t, nil)

	var errBody errorResponse
	status := env.do(t, http.MethodPost, "/chat/save", "", map[string]any{}, &errBody)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", status, http.StatusBadRequest)
	}
	if errBody.Code != "no_summary_available" {
		t.Fatalf("code = %q, want no_summary_available", errBody.Code)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t, nil)

	var a, b struct {
		SessionID string `json:"session_id"`
	}
	env.do(t, http.MethodPost, "/v1/sessions", "", map[string]string{"user_id": "a"}, &a)
	env.do(t, http.MethodPost, "/v1/sessions", "", map[string]string{"user_id": "b"}, &b)

	env.do(t, http.MethodPost, "/chat/message", a.SessionID, map[string]string{"content": "only for a"}, nil)

	var histA, histB historyResponse
	env.do(t, http.MethodGet, "/chat/history", a.SessionID, nil, &histA)
	env.do(t, http.MethodGet, "/chat/history", b.SessionID, nil, &histB)
	if len(histA.Turns) != 2 {
		t.Fatalf("session a turns = %d, want 2", len(histA.Turns))
	}
	if len(histB.Turns) != 0 {
		t.Fatalf("session b turns = %d, want 0", len(histB.Turns))
	}
}
