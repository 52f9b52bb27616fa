package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/halo-research/halo/config"
)

// Provider is the completion/embedding surface the pipeline depends on. The
// default implementation talks to any OpenAI-compatible endpoint.
type Provider interface {
	// Chat returns a plain-text completion.
	Chat(ctx context.Context, model, system, user string) (string, error)
	// ChatJSON requests a JSON-object response and returns the raw text.
	ChatJSON(ctx context.Context, model, system, user string) (string, error)
	// Vision runs a multimodal completion over one image URL.
	Vision(ctx context.Context, model, prompt, imageURL string) (string, error)
	// Embed returns the embedding vector for one input.
	Embed(ctx context.Context, model, input string) ([]float32, error)
}

// Client implements Provider over go-openai.
type Client struct {
	api *openai.Client
}

// New builds a client for the configured endpoint. BaseURL empty means the
// upstream OpenAI API.
func New(cfg config.LLMConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm api key not set")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{api: openai.NewClientWithConfig(oc)}, nil
}

func (c *Client) Chat(ctx context.Context, model, system, user string) (string, error) {
	return c.complete(ctx, model, system, user, nil)
}

func (c *Client) ChatJSON(ctx context.Context, model, system, user string) (string, error) {
	format := &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}
	return c.complete(ctx, model, system, user, format)
}

func (c *Client) complete(ctx context.Context, model, system, user string, format *openai.ChatCompletionResponseFormat) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: format,
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) Vision(ctx context.Context, model, prompt, imageURL string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
					},
				},
			},
		},
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("vision completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) Embed(ctx context.Context, model, input string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(model),
		Input: []string{input},
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response empty")
	}
	return resp.Data[0].Embedding, nil
}
