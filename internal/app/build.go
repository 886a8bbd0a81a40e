// Package app assembles the diary service from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/do"

	"github.com/ent0n29/audiodiary/internal/chat"
	"github.com/ent0n29/audiodiary/internal/completion"
	"github.com/ent0n29/audiodiary/internal/config"
	"github.com/ent0n29/audiodiary/internal/diary"
	"github.com/ent0n29/audiodiary/internal/httpapi"
	"github.com/ent0n29/audiodiary/internal/observability"
	"github.com/ent0n29/audiodiary/internal/session"
	"github.com/ent0n29/audiodiary/internal/summary"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Chat     *chat.Service
	Diary    diary.Repository
	Metrics  *observability.Metrics
	Provider string

	// Cleanup releases the diary store and summary cache.
	Cleanup func() error
}

// Build wires every service of the diary server into a do injector and
// resolves the HTTP API from it.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	di := do.New()
	do.ProvideValue(di, ctx)
	do.ProvideValue(di, cfg)
	opened := &closers{}
	do.ProvideValue(di, opened)
	do.Provide(di, newMetrics)
	do.Provide(di, newRepository)
	do.Provide(di, newCache)
	do.Provide(di, newGateway)
	do.Provide(di, newSessions)
	do.Provide(di, newChat)
	do.Provide(di, newAPI)

	api, err := do.Invoke[*httpapi.Server](di)
	if err != nil {
		_ = opened.close()
		return nil, err
	}

	sessions := do.MustInvoke[*session.Manager](di)
	chatService := do.MustInvoke[*chat.Service](di)
	metrics := do.MustInvoke[*observability.Metrics](di)
	sessions.SetExpireHook(func(s *session.Session) {
		chatService.Discard(context.Background(), s.ID)
		metrics.SessionEvent("expired")
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Chat:     chatService,
		Diary:    do.MustInvoke[diary.Repository](di),
		Metrics:  metrics,
		Provider: completion.ProviderName(do.MustInvoke[completion.Gateway](di)),
		Cleanup:  opened.close,
	}, nil
}

// BuildRepository opens only the diary store, for CLI commands that do not
// run the server.
func BuildRepository(ctx context.Context, cfg config.Config) (diary.Repository, error) {
	di := do.New()
	do.ProvideValue(di, ctx)
	do.ProvideValue(di, cfg)
	do.ProvideValue(di, &closers{})
	do.Provide(di, newRepository)
	return do.Invoke[diary.Repository](di)
}

func newMetrics(i *do.Injector) (*observability.Metrics, error) {
	cfg := do.MustInvoke[config.Config](i)
	targets := make(map[observability.Stage]time.Duration, len(cfg.LatencyTargets))
	for stage, d := range cfg.LatencyTargets {
		targets[observability.Stage(stage)] = d
	}
	return observability.NewMetrics(cfg.MetricsNamespace, targets), nil
}

func newRepository(i *do.Injector) (diary.Repository, error) {
	ctx := do.MustInvoke[context.Context](i)
	cfg := do.MustInvoke[config.Config](i)
	repo, err := diary.NewRepository(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("diary store init failed: %w", err)
	}
	do.MustInvoke[*closers](i).add(repo.Close)
	return repo, nil
}

func newCache(i *do.Injector) (summary.Cache, error) {
	ctx := do.MustInvoke[context.Context](i)
	cfg := do.MustInvoke[config.Config](i)
	cache, err := summary.NewCache(ctx, cfg.RedisURL, cfg.SummaryCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("summary cache init failed: %w", err)
	}
	do.MustInvoke[*closers](i).add(cache.Close)
	return cache, nil
}

func newGateway(i *do.Injector) (completion.Gateway, error) {
	cfg := do.MustInvoke[config.Config](i)
	gw, err := completion.NewGateway(completion.Config{
		Mode:             cfg.CompletionMode,
		Timeout:          cfg.CompletionTimeout,
		MaxRetries:       cfg.CompletionMaxRetries,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		OpenAIModel:      cfg.OpenAIModel,
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		AnthropicModel:   cfg.AnthropicModel,
		HTTPURL:          cfg.CompletionHTTPURL,
	})
	if err != nil {
		return nil, fmt.Errorf("completion gateway init failed: %w", err)
	}
	slog.Info("completion provider selected", "provider", completion.ProviderName(gw))
	return gw, nil
}

func newSessions(i *do.Injector) (*session.Manager, error) {
	cfg := do.MustInvoke[config.Config](i)
	return session.NewManager(cfg.SessionInactivityTimeout), nil
}

func newChat(i *do.Injector) (*chat.Service, error) {
	cfg := do.MustInvoke[config.Config](i)
	gw, err := do.Invoke[completion.Gateway](i)
	if err != nil {
		return nil, err
	}
	repo, err := do.Invoke[diary.Repository](i)
	if err != nil {
		return nil, err
	}
	cache, err := do.Invoke[summary.Cache](i)
	if err != nil {
		return nil, err
	}
	return chat.New(gw, repo, cache, do.MustInvoke[*observability.Metrics](i), cfg.MemoryWindow), nil
}

func newAPI(i *do.Injector) (*httpapi.Server, error) {
	chatService, err := do.Invoke[*chat.Service](i)
	if err != nil {
		return nil, err
	}
	return httpapi.New(
		do.MustInvoke[config.Config](i),
		do.MustInvoke[*session.Manager](i),
		chatService,
		do.MustInvoke[diary.Repository](i),
		do.MustInvoke[*observability.Metrics](i),
	), nil
}

// closers collects the Close funcs of stores opened by providers, so a
// partial build can be unwound.
type closers struct {
	fns []func() error
}

func (c *closers) add(fn func() error) {
	c.fns = append(c.fns, fn)
}

func (c *closers) close() error {
	var errs []string
	for i := len(c.fns) - 1; i >= 0; i-- {
		if err := c.fns[i](); err != nil {
			errs = append(errs, err.Error())
		}
	}
	c.fns = nil
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
