// Package gemini adapts google.golang.org/genai into llmclient.Client,
// used for the orchestrator's "premium" race arm.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"chatcoach/internal/llmclient"
)

// Client wraps a single Gemini model.
type Client struct {
	client  *genai.Client
	model   string
	options map[string]any
}

// New creates a Gemini client for one API key and model.
func New(ctx context.Context, apiKey, model string, options map[string]any) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{client: gc, model: model, options: options}, nil
}

var _ llmclient.Client = (*Client)(nil)

// Complete implements llmclient.Client with a single non-streaming call.
func (c *Client) Complete(ctx context.Context, req llmclient.Request) (string, *llmclient.Usage, error) {
	var parts []*genai.Part
	parts = append(parts, &genai.Part{Text: req.Prompt})
	for _, img := range req.Images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: img.MimeType, Data: img.Data},
		})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	genConfig := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		genConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.Temperature > 0 {
		t32 := float32(req.Temperature)
		genConfig.Temperature = &t32
	}
	if req.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genConfig)
	if err != nil {
		return "", nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if !part.Thought {
				sb.WriteString(part.Text)
			}
		}
	}

	var usage *llmclient.Usage
	if resp.UsageMetadata != nil {
		u := resp.UsageMetadata
		usage = &llmclient.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	return sb.String(), usage, nil
}

// IsTransientError implements llmclient.Client.
func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "503"), strings.Contains(msg, "overloaded"):
		return true
	case strings.Contains(msg, "429"), strings.Contains(msg, "resource exhausted"):
		return true
	case strings.Contains(msg, "500"), strings.Contains(msg, "internal error"):
		return true
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "context deadline exceeded"):
		return true
	default:
		return false
	}
}

// Factory is the llmclient.ProviderFactory for Gemini, registered under
// the name "gemini".
type Factory struct{}

func (Factory) Create(cfg llmclient.ProviderGroupConfig) ([]llmclient.Client, error) {
	if len(cfg.APIKeys) == 0 || len(cfg.Models) == 0 {
		return nil, fmt.Errorf("gemini: provider group requires at least one api key and model")
	}
	ctx := context.Background()
	var clients []llmclient.Client
	for _, key := range cfg.APIKeys {
		for _, model := range cfg.Models {
			c, err := New(ctx, key, model, cfg.Options)
			if err != nil {
				return nil, err
			}
			clients = append(clients, c)
		}
	}
	return clients, nil
}

func init() {
	llmclient.RegisterProvider("gemini", Factory{})
}
