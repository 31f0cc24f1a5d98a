// Package llmclient defines the LLM provider abstraction used by every
// race arm and the reply pipeline, plus a registry of provider factories
// and a fallback wrapper for within-arm provider failover.
package llmclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Image is one inline image attached to a completion request.
type Image struct {
	MimeType string
	Data     []byte
}

// Request is a single one-shot multimodal completion call. Unlike the
// teacher's chat-oriented StreamChat, every caller in this orchestrator
// wants one finished string back (merge-step analysis and reply
// generation are both one-shot, not multi-turn).
type Request struct {
	SystemPrompt string
	Prompt       string
	Images       []Image
	Temperature  float64
	MaxTokens    int
}

// Usage is the provider-reported token accounting for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is the common interface every provider adapter implements.
type Client interface {
	Complete(ctx context.Context, req Request) (text string, usage *Usage, err error)
	IsTransientError(err error) bool
}

// FallbackClient tries each client in order, retrying transient failures
// per client before moving to the next. Mirrors the teacher's
// FallbackClient.StreamChat retry shape, adapted to a single-shot call.
type FallbackClient struct {
	Clients    []Client
	MaxRetries int
	RetryDelay time.Duration
}

var _ Client = (*FallbackClient)(nil)

func (f *FallbackClient) Complete(ctx context.Context, req Request) (string, *Usage, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			slog.WarnContext(ctx, "previous provider failed, trying fallback", "index", i)
		}

		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				select {
				case <-ctx.Done():
					return "", nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			text, usage, err := client.Complete(ctx, req)
			if err == nil {
				return text, usage, nil
			}

			lastErr = err

			if client.IsTransientError(err) && retry < maxRetries {
				slog.WarnContext(ctx, "provider call failed with transient error, retrying", "index", i, "error", err)
				continue
			}

			slog.ErrorContext(ctx, "provider call failed", "index", i, "error", err)
			break
		}
	}
	return "", nil, fmt.Errorf("all fallback providers failed: %w", lastErr)
}

func (f *FallbackClient) IsTransientError(error) bool {
	return false
}

// ProviderGroupConfig is the per-arm configuration block unmarshalled out
// of config.json's "providers" map.
type ProviderGroupConfig struct {
	Type    string         `json:"type"`
	APIKeys []string       `json:"api_keys"`
	Models  []string       `json:"models"`
	BaseURL string         `json:"base_url"`
	Options map[string]any `json:"options"`
}

// ProviderFactory constructs one or more atomic Clients from a group
// config — one Client per (APIKeys x Models) combination, fanning out
// round-robin-able fallback targets.
type ProviderFactory interface {
	Create(cfg ProviderGroupConfig) ([]Client, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ProviderFactory)
)

// RegisterProvider makes a factory available under name (e.g. "gemini",
// "openai", "ollama"). Called from each provider package's init().
func RegisterProvider(name string, f ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// GetProviderFactory looks up a previously registered factory.
func GetProviderFactory(name string) (ProviderFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// NewFromConfig builds one Client for an arm from its raw provider-group
// JSON: a single atomic client if only one group/client resulted, or a
// FallbackClient wrapping all of them in the configured order.
func NewFromConfig(raw jsoniter.RawMessage, maxRetries int, retryDelay time.Duration) (Client, error) {
	var groups []ProviderGroupConfig
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("llmclient: parse provider groups: %w", err)
	}

	var clients []Client
	for _, g := range groups {
		factory, ok := GetProviderFactory(g.Type)
		if !ok {
			return nil, fmt.Errorf("llmclient: no provider factory registered for type %q", g.Type)
		}
		cs, err := factory.Create(g)
		if err != nil {
			return nil, fmt.Errorf("llmclient: create provider %q: %w", g.Type, err)
		}
		clients = append(clients, cs...)
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("llmclient: no clients configured")
	}
	if len(clients) == 1 {
		return clients[0], nil
	}
	return &FallbackClient{Clients: clients, MaxRetries: maxRetries, RetryDelay: retryDelay}, nil
}
