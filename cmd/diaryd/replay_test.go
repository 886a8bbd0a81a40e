package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/audiodiary/internal/chat"
	"github.com/ent0n29/audiodiary/internal/completion"
	"github.com/ent0n29/audiodiary/internal/config"
	"github.com/ent0n29/audiodiary/internal/diary"
	"github.com/ent0n29/audiodiary/internal/httpapi"
	"github.com/ent0n29/audiodiary/internal/observability"
	"github.com/ent0n29/audiodiary/internal/session"
	"github.com/ent0n29/audiodiary/internal/summary"
)

func TestWSURLForSession(t *testing.T) {
	got, err := wsURLForSession("https://diary.example/base/", "abc")
	if err != nil {
		t.Fatalf("wsURLForSession() error = %v", err)
	}
	if want := "wss://diary.example/base/chat/ws?session_id=abc"; got != want {
		t.Fatalf("wsURLForSession() = %q, want %q", got, want)
	}
	if _, err := wsURLForSession("ftp://diary.example", "abc"); err == nil {
		t.Fatalf("wsURLForSession(ftp) error = nil, want error")
	}
}

func TestSplitUtterances(t *testing.T) {
	got := splitUtterances(" one | | two ")
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("splitUtterances() = %q", got)
	}
	if got := splitUtterances(""); len(got) != len(defaultUtterances) {
		t.Fatalf("splitUtterances(\"\") len = %d, want %d", len(got), len(defaultUtterances))
	}
}

func TestRunReplayAgainstServer(t *testing.T) {
	repo := diary.NewInMemoryRepository()
	metrics := observability.NewMetrics(fmt.Sprintf("test_replay_%d", time.Now().UnixNano()), nil)
	sessions := session.NewManager(time.Minute)
	svc := chat.New(completion.NewMockGateway(), repo, summary.NewMemoryCache(), metrics, 5)
	ts := httptest.NewServer(httpapi.New(config.Config{}, sessions, svc, repo, metrics).Router())
	defer ts.Close()

	opts := replayOptions{
		baseURL:     ts.URL,
		userID:      "replay-test",
		turns:       3,
		texts:       []string{"a walk", "a book"},
		summarize:   true,
		save:        true,
		turnTimeout: 5 * time.Second,
	}
	if err := opts.validate(); err != nil {
		t.Fatalf("validate() error = %v", err)
	}

	var out bytes.Buffer
	report, err := runReplay(context.Background(), opts, &out)
	if err != nil {
		t.Fatalf("runReplay() error = %v", err)
	}
	if len(report.Turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(report.Turns))
	}

	entries, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if sessions.ActiveCount() != 0 {
		t.Fatalf("active sessions = %d, want 0 after replay", sessions.ActiveCount())
	}

	printReport(&out, report)
	if !strings.Contains(out.String(), "turns=3") {
		t.Fatalf("report = %q, want turns=3", out.String())
	}
}
