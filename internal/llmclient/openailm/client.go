// Package openailm adapts github.com/openai/openai-go/v3 into
// llmclient.Client, used for the orchestrator's "multimodal" race arm
// (and any OpenAI-compatible self-hosted endpoint via BaseURL).
package openailm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"chatcoach/internal/llmclient"
)

// Client wraps a single OpenAI-compatible chat model.
type Client struct {
	client *openai.Client
	model  string
}

// New creates a Client for one API key, model, and optional base URL
// override (self-hosted/compatible endpoints).
func New(apiKey, model, baseURL string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := openai.NewClient(opts...)
	return &Client{client: &c, model: model}
}

var _ llmclient.Client = (*Client)(nil)

// Complete implements llmclient.Client with a single non-streaming call.
func (c *Client) Complete(ctx context.Context, req llmclient.Request) (string, *llmclient.Usage, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Role:    "system",
				Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(req.SystemPrompt)},
			},
		})
	}

	if len(req.Images) == 0 {
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Role:    "user",
				Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(req.Prompt)},
			},
		})
	} else {
		parts := []openai.ChatCompletionContentPartUnionParam{
			{OfText: &openai.ChatCompletionContentPartTextParam{Type: "text", Text: req.Prompt}},
		}
		for _, img := range req.Images {
			dataURL := fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data))
			parts = append(parts, openai.ChatCompletionContentPartUnionParam{
				OfImageURL: &openai.ChatCompletionContentPartImageParam{
					Type:     "image_url",
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
				},
			})
		}
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Role:    "user",
				Content: openai.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts},
			},
		})
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", nil, fmt.Errorf("openailm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("openailm: empty choices in response")
	}

	usage := &llmclient.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}

	return resp.Choices[0].Message.Content, usage, nil
}

// IsTransientError implements llmclient.Client.
func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "503")
}

// Factory is the llmclient.ProviderFactory for OpenAI-compatible
// providers, registered under the name "openai".
type Factory struct{}

func (Factory) Create(cfg llmclient.ProviderGroupConfig) ([]llmclient.Client, error) {
	if len(cfg.APIKeys) == 0 || len(cfg.Models) == 0 {
		return nil, fmt.Errorf("openailm: provider group requires at least one api key and model")
	}
	var clients []llmclient.Client
	for _, key := range cfg.APIKeys {
		for _, model := range cfg.Models {
			clients = append(clients, New(key, model, cfg.BaseURL))
		}
	}
	return clients, nil
}

func init() {
	llmclient.RegisterProvider("openai", Factory{})
}
