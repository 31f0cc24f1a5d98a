// Package ollama adapts github.com/ollama/ollama/api into
// llmclient.Client, used for a local/self-hosted race arm.
package ollama

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"chatcoach/internal/llmclient"
)

// Client wraps a single Ollama model.
type Client struct {
	client  *api.Client
	model   string
	options map[string]any
}

// New creates a Client against baseURL (or the environment default if
// empty) for the given model.
func New(baseURL, model string, options map[string]any) (*Client, error) {
	var client *api.Client
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("ollama: invalid base url: %w", err)
		}
		client = api.NewClient(u, nil)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama: client from environment: %w", err)
		}
	}
	return &Client{client: client, model: model, options: options}, nil
}

var _ llmclient.Client = (*Client)(nil)

// Complete implements llmclient.Client with a single non-streaming call.
func (c *Client) Complete(ctx context.Context, req llmclient.Request) (string, *llmclient.Usage, error) {
	var images []api.ImageData
	for _, img := range req.Images {
		images = append(images, api.ImageData(img.Data))
	}

	var messages []api.Message
	if req.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt, Images: images})

	noStream := false
	apiReq := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Options:  c.options,
		Stream:   &noStream,
	}

	var text string
	var usage *llmclient.Usage
	err := c.client.Chat(ctx, apiReq, func(resp api.ChatResponse) error {
		text += resp.Message.Content
		if resp.Done {
			usage = &llmclient.Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			}
		}
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("ollama: chat: %w", err)
	}

	return text, usage, nil
}

// IsTransientError implements llmclient.Client.
func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof")
}

// Factory is the llmclient.ProviderFactory for Ollama, registered under
// the name "ollama".
type Factory struct{}

func (Factory) Create(cfg llmclient.ProviderGroupConfig) ([]llmclient.Client, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("ollama: provider group requires at least one model")
	}
	var clients []llmclient.Client
	for _, model := range cfg.Models {
		c, err := New(cfg.BaseURL, model, cfg.Options)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}

func init() {
	llmclient.RegisterProvider("ollama", Factory{})
}
