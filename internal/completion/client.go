// Package completion calls the OpenAI chat completion API through langchaingo.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// CompletionError is a failed completion call.
type CompletionError struct {
	Model string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion with model %s failed: %v", e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// Config configures the completion client.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Client sends a system and a user message and returns the first choice.
type Client struct {
	llm   llms.Model
	model string
}

// New creates a client. An empty model selects DefaultModel.
func New(cfg Config) (*Client, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	opts := []openai.Option{
		openai.WithModel(model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return &Client{llm: llm, model: model}, nil
}

// Model returns the configured model id.
func (c *Client) Model() string {
	return c.model
}

// Complete returns the text of the first choice. A response without choices
// yields an empty string and no error.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	zerolog.Ctx(ctx).Debug().Str("model", c.model).Int("prompt_chars", len(system)+len(user)).Msg("Calling completion API")

	resp, err := c.llm.GenerateContent(ctx, messages)
	if isEmptyResponse(err) {
		return "", nil
	}
	if err != nil {
		return "", &CompletionError{Model: c.model, Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", nil
	}
	return resp.Choices[0].Content, nil
}

// isEmptyResponse matches the "no choices" errors of both the langchaingo
// wrapper and its internal OpenAI client, which does not export its own.
func isEmptyResponse(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, openai.ErrEmptyResponse) || strings.Contains(err.Error(), "empty response")
}
