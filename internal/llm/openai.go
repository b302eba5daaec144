package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Compile-time interface check
var _ Completer = (*OpenAI)(nil)

// ErrEmptyCompletion is returned when the endpoint answers without any choices.
var ErrEmptyCompletion = errors.New("completion returned no choices")

// ChatCompletionsService defines the interface for making chat completion API calls.
// This abstraction enables testing without calling the real API.
type ChatCompletionsService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures the OpenAI-compatible client.
type Options struct {
	APIKey     string
	BaseURL    string // empty selects the OpenAI default
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAI implements Completer against any OpenAI-compatible chat completions endpoint
type OpenAI struct {
	completions ChatCompletionsService
	model       openai.ChatModel
}

// NewOpenAI creates a new chat completion client
func NewOpenAI(opts Options) *OpenAI {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}

	client := openai.NewClient(reqOpts...)
	return &OpenAI{
		completions: client.Chat.Completions,
		model:       openai.ChatModel(opts.Model),
	}
}

// Complete sends the messages and returns the text of the first choice
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	messages, err := toParams(req.Messages)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	params := openai.ChatCompletionNewParams{
		Messages:    openai.F(messages),
		Model:       openai.F(o.model),
		Temperature: openai.F(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.F(int64(req.MaxTokens))
	}

	resp, err := o.completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion failed: %w", ErrEmptyCompletion)
	}

	return resp.Choices[0].Message.Content, nil
}

// ModelName returns the chat model name
func (o *OpenAI) ModelName() string {
	return string(o.model)
}

func toParams(msgs []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return out, nil
}
