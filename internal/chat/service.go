// Package chat sequences the diary conversation of each session: context
// setting, message exchange, summarization and saving the summary as a
// diary entry.
package chat

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/audiodiary/internal/completion"
	"github.com/ent0n29/audiodiary/internal/conversation"
	"github.com/ent0n29/audiodiary/internal/diary"
	"github.com/ent0n29/audiodiary/internal/logging"
	"github.com/ent0n29/audiodiary/internal/observability"
	"github.com/ent0n29/audiodiary/internal/policy"
	"github.com/ent0n29/audiodiary/internal/reliability"
	"github.com/ent0n29/audiodiary/internal/summary"
)

//go:embed prompts/opening.txt
var openingPromptTemplate string

//go:embed prompts/reply.txt
var replyPromptTemplate string

//go:embed prompts/summary.txt
var summaryPromptTemplate string

const (
	openingMaxTokens   = 150
	replyMaxTokens     = 1000
	replyTemperature   = 0.7
	summaryMaxTokens   = 200
	logPreviewMaxRunes = 80
)

// Phase is the position of a session in its conversation cycle.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseActive        Phase = "active"
	PhaseSummarized    Phase = "summarized"
)

type Opening struct {
	Message string               `json:"initial_message"`
	Context conversation.Context `json:"context"`
}

// SaveRequest optionally carries an explicit summary and context. A blank
// Summary means the cached (or freshly generated) summary is used.
type SaveRequest struct {
	Summary string
	Context *conversation.Context
}

type Status struct {
	SessionID        string `json:"session_id"`
	Phase            Phase  `json:"phase"`
	HasContext       bool   `json:"has_context"`
	Turns            int    `json:"turns"`
	Capacity         int    `json:"capacity"`
	HasCachedSummary bool   `json:"has_cached_summary"`
}

// conversationState is the mutable state of one session. mu is held for
// the whole of every operation, gateway call included.
type conversationState struct {
	mu      sync.Mutex
	memory  *conversation.Memory
	context *conversation.ContextStore
	phase   Phase
}

// Service owns the conversation state of every live session.
type Service struct {
	gateway completion.Gateway
	repo    diary.Repository
	cache   summary.Cache
	metrics *observability.Metrics
	window  int
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*conversationState
}

func New(
	gateway completion.Gateway,
	repo diary.Repository,
	cache summary.Cache,
	metrics *observability.Metrics,
	window int,
) *Service {
	if window <= 0 {
		window = conversation.DefaultWindow
	}
	return &Service{
		gateway:  gateway,
		repo:     repo,
		cache:    cache,
		metrics:  metrics,
		window:   window,
		now:      time.Now,
		sessions: make(map[string]*conversationState),
	}
}

// BeginSession replaces the session context, clears its memory and asks
// the gateway for an opening line. The new context stays active even when
// the gateway fails.
func (s *Service) BeginSession(ctx context.Context, sessionID string, c conversation.Context) (Opening, error) {
	st := s.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return s.beginLocked(ctx, sessionID, st, c)
}

func (s *Service) beginLocked(ctx context.Context, sessionID string, st *conversationState, c conversation.Context) (Opening, error) {
	if c.Date.IsZero() {
		c.Date = s.now()
	}
	st.context.Set(c)
	st.phase = PhaseActive

	slog.InfoContext(ctx, "conversation context set",
		"session_id", sessionID,
		"time_of_day", c.TimeOfDay,
		"location", c.Location,
		"companion", c.Companion,
		"mood", c.Mood,
	)

	prompt := render(openingPromptTemplate, map[string]string{
		"context": c.Format(),
	})
	text, err := s.complete(ctx, completion.Request{
		Kind:      completion.KindOpening,
		SessionID: sessionID,
		System:    prompt,
		MaxTokens: openingMaxTokens,
	})
	if err != nil {
		return Opening{}, err
	}
	if text == "" {
		return Opening{}, fail(ErrEmptyCompletion, sessionID, "begin session")
	}

	st.memory.Append(conversation.AssistantTurn(text))
	return Opening{Message: text, Context: c}, nil
}

// SendMessage records the user turn and returns the assistant reply. A
// session without context is opened with the default context first. The
// user turn is kept when the gateway fails.
func (s *Service) SendMessage(ctx context.Context, sessionID, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fail(ErrValidation, sessionID, "send message: content is required")
	}

	st := s.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	active, ok := st.context.Get()
	if !ok {
		// The user spoke first, so no opening line is requested.
		active = st.context.GetOrDefault(s.now())
		s.metrics.ObserveIndicator("auto_context")
		slog.InfoContext(ctx, "conversation opened with default context", "session_id", sessionID)
	}

	history := st.memory.Snapshot()
	st.memory.Append(conversation.UserTurn(content))
	st.phase = PhaseActive

	slog.DebugContext(ctx, "user message",
		"session_id", sessionID,
		"preview", policy.LogPreview(content, logPreviewMaxRunes),
	)

	prompt := render(replyPromptTemplate, map[string]string{
		"context": active.Format(),
		"history": conversation.FormatTurns(history),
		"message": content,
	})
	text, err := s.complete(ctx, completion.Request{
		Kind:        completion.KindReply,
		SessionID:   sessionID,
		Prompt:      prompt,
		MaxTokens:   replyMaxTokens,
		Temperature: completion.Temperature(replyTemperature),
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fail(ErrEmptyCompletion, sessionID, "send message")
	}

	st.memory.Append(conversation.AssistantTurn(text))
	return text, nil
}

// Summarize condenses the session memory, caches the result and clears
// the memory.
func (s *Service) Summarize(ctx context.Context, sessionID string) (string, error) {
	st := s.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return s.summarizeLocked(ctx, sessionID, st)
}

func (s *Service) summarizeLocked(ctx context.Context, sessionID string, st *conversationState) (string, error) {
	if st.memory.IsEmpty() {
		return "", fail(ErrNothingToSummarize, sessionID, "summarize")
	}

	prompt := render(summaryPromptTemplate, map[string]string{
		"conversation": conversation.FormatTurns(st.memory.Snapshot()),
	})
	text, err := s.complete(ctx, completion.Request{
		Kind:      completion.KindSummary,
		SessionID: sessionID,
		System:    prompt,
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fail(ErrEmptySummary, sessionID, "summarize")
	}

	if err := s.cache.Put(ctx, sessionID, text); err != nil {
		return "", wrap(ErrPersistenceFailure, err, sessionID, "cache summary")
	}
	st.memory.Clear()
	st.phase = PhaseSummarized

	slog.InfoContext(ctx, "conversation summarized",
		"session_id", sessionID,
		"summary_runes", len([]rune(text)),
	)
	return text, nil
}

// SaveDiary persists a diary entry. An explicit summary is stored as is and
// never touches the cache. Otherwise the cached summary is used, generating
// one first when the cache is empty; the cache is cleared only after the
// entry was written.
func (s *Service) SaveDiary(ctx context.Context, sessionID string, req SaveRequest) (diary.Entry, error) {
	// A summary field that is present but blank is rejected instead of
	// falling through to the cached summary.
	if req.Summary != "" && strings.TrimSpace(req.Summary) == "" {
		return diary.Entry{}, fail(ErrValidation, sessionID, "save diary: summary is blank")
	}

	st := s.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if supplied := strings.TrimSpace(req.Summary); supplied != "" {
		contexts := []conversation.Context{}
		if req.Context != nil {
			contexts = append(contexts, *req.Context)
		}
		entry, err := s.persist(ctx, sessionID, "supplied", diary.Entry{
			Date:     s.now().UTC(),
			Contexts: contexts,
			Summary:  supplied,
		})
		if err != nil {
			return diary.Entry{}, err
		}
		return entry, nil
	}

	text, ok, err := s.cache.Get(ctx, sessionID)
	if err != nil {
		return diary.Entry{}, wrap(ErrPersistenceFailure, err, sessionID, "read cached summary")
	}
	if !ok || strings.TrimSpace(text) == "" {
		text, err = s.summarizeLocked(ctx, sessionID, st)
		if errors.Is(err, ErrNothingToSummarize) {
			return diary.Entry{}, fail(ErrNoSummaryAvailable, sessionID, "save diary")
		}
		if err != nil {
			return diary.Entry{}, err
		}
	}

	contexts := []conversation.Context{}
	if active, ok := st.context.Get(); ok {
		contexts = append(contexts, active)
	}
	entry, err := s.persist(ctx, sessionID, "cache", diary.Entry{
		Date:     s.now().UTC(),
		Contexts: contexts,
		Summary:  text,
	})
	if err != nil {
		return diary.Entry{}, err
	}

	if err := s.cache.Delete(ctx, sessionID); err != nil {
		slog.WarnContext(ctx, "failed to clear cached summary",
			"session_id", sessionID,
			"entry_id", entry.ID,
			"error", err,
		)
	}
	return entry, nil
}

func (s *Service) persist(ctx context.Context, sessionID, source string, entry diary.Entry) (diary.Entry, error) {
	start := time.Now()
	created, err := s.repo.Create(ctx, entry)
	if err != nil {
		s.metrics.DiaryWrite(source, "error")
		slog.ErrorContext(ctx, "diary save failed", "session_id", sessionID, "source", source, "error", err)
		return diary.Entry{}, wrap(ErrPersistenceFailure, err, sessionID, "save diary")
	}
	s.metrics.DiaryWrite(source, "ok")
	s.metrics.ObserveStage(observability.StageDiarySave, time.Since(start))
	slog.InfoContext(ctx, "diary entry saved",
		"session_id", sessionID,
		"entry_id", created.ID,
		"source", source,
		logging.TelegramKey, true,
	)
	return created, nil
}

// GetContext returns the active context of the session, if any.
func (s *Service) GetContext(sessionID string) (conversation.Context, bool) {
	st := s.lookup(sessionID)
	if st == nil {
		return conversation.Context{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.context.Get()
}

// History returns the retained turns of the session in order.
func (s *Service) History(sessionID string) []conversation.Turn {
	st := s.lookup(sessionID)
	if st == nil {
		return []conversation.Turn{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.memory.Snapshot()
}

// CachedSummary returns the summary waiting to be saved, if any.
func (s *Service) CachedSummary(ctx context.Context, sessionID string) (string, bool, error) {
	text, ok, err := s.cache.Get(ctx, sessionID)
	if err != nil {
		return "", false, wrap(ErrPersistenceFailure, err, sessionID, "read cached summary")
	}
	return text, ok, nil
}

func (s *Service) Status(ctx context.Context, sessionID string) (Status, error) {
	out := Status{
		SessionID: sessionID,
		Phase:     PhaseUninitialized,
		Capacity:  2 * s.window,
	}
	if st := s.lookup(sessionID); st != nil {
		st.mu.Lock()
		_, out.HasContext = st.context.Get()
		out.Turns = st.memory.Len()
		out.Phase = st.phase
		st.mu.Unlock()
	}
	_, ok, err := s.CachedSummary(ctx, sessionID)
	if err != nil {
		return Status{}, err
	}
	out.HasCachedSummary = ok
	return out, nil
}

// Discard drops the conversation state and cached summary of a session.
func (s *Service) Discard(ctx context.Context, sessionID string) {
	s.mu.Lock()
	st := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	// Wait for an in-flight operation on the session so it cannot write
	// the cache after it is cleared.
	if st != nil {
		st.mu.Lock()
		defer st.mu.Unlock()
	}
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		slog.WarnContext(ctx, "failed to discard cached summary", "session_id", sessionID, "error", err)
	}
}

func (s *Service) state(sessionID string) *conversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		mem := conversation.NewMemory(s.window)
		st = &conversationState{
			memory:  mem,
			context: conversation.NewContextStore(mem),
			phase:   PhaseUninitialized,
		}
		s.sessions[sessionID] = st
	}
	return st
}

func (s *Service) lookup(sessionID string) *conversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID]
}

// complete calls the gateway and returns the trimmed reply text.
func (s *Service) complete(ctx context.Context, req completion.Request) (string, error) {
	start := time.Now()
	resp, err := s.gateway.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveCompletion(string(req.Kind), "error", elapsed)
		s.metrics.ProviderError(providerErrorLabels(s.gateway, err))
		slog.ErrorContext(ctx, "completion failed",
			"session_id", req.SessionID,
			"kind", req.Kind,
			"elapsed", elapsed,
			"error", err,
		)
		return "", wrap(ErrGatewayFailure, err, req.SessionID, "complete "+string(req.Kind))
	}

	text := strings.TrimSpace(resp.Text)
	outcome := "ok"
	if text == "" {
		outcome = "empty"
	}
	s.metrics.ObserveCompletion(string(req.Kind), outcome, elapsed)
	slog.DebugContext(ctx, "completion done",
		"session_id", req.SessionID,
		"kind", req.Kind,
		"provider", resp.Provider,
		"elapsed", elapsed,
		"preview", policy.LogPreview(text, logPreviewMaxRunes),
	)
	return text, nil
}

// providerErrorLabels names the failing provider and an error code: the
// HTTP status when the provider returned one, else timeout or error.
func providerErrorLabels(gw completion.Gateway, err error) (string, string) {
	var statusErr *reliability.StatusError
	switch {
	case errors.As(err, &statusErr):
		return statusErr.Provider, strconv.Itoa(statusErr.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return completion.ProviderName(gw), "timeout"
	default:
		return completion.ProviderName(gw), "error"
	}
}

// render fills {key} placeholders in a single pass, so values that happen
// to contain placeholder text are left alone.
func render(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(template))
}
