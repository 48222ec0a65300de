package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrUnknownProvider = errors.New("llm: unsupported provider")

// Config selects and tunes a provider. Provider is one of the keys of
// providers.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	RPS     float64
	Burst   int
	Retries int
	Timeout time.Duration

	Logger *zap.Logger
}

type constructor func(ctx context.Context, cfg Config) (Client, error)

var providers = map[string]constructor{
	"openai": func(_ context.Context, cfg Config) (Client, error) {
		return NewOpenAIClient(cfg.APIKey, cfg.Model, WithBaseURL(cfg.BaseURL))
	},
	"groq": func(_ context.Context, cfg Config) (Client, error) {
		return NewGroqClient(cfg.APIKey, cfg.Model, WithBaseURL(cfg.BaseURL))
	},
	"anthropic": func(_ context.Context, cfg Config) (Client, error) {
		return NewAnthropicClient(cfg.APIKey, cfg.Model)
	},
	"gemini": func(ctx context.Context, cfg Config) (Client, error) {
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	},
	"fake": func(context.Context, Config) (Client, error) {
		return NewFakeClient(), nil
	},
}

// Providers lists the supported provider names.
func Providers() []string {
	out := make([]string, 0, len(providers))
	for k := range providers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewClient builds the configured provider wrapped in logging, rate
// limiting, retry and per-call timeout middleware, outermost first.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = "openai"
	}
	ctor, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownProvider, cfg.Provider, strings.Join(Providers(), ", "))
	}
	inner, err := ctor(ctx, cfg)
	if err != nil {
		return nil, err
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	return Wrap(inner,
		WithLogging(cfg.Logger),
		RateLimit(cfg.RPS, cfg.Burst),
		Retry(retries, 500*time.Millisecond),
		Timeout(cfg.Timeout),
	), nil
}
