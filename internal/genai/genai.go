// Package genai provides text and image generation over OpenAI-compatible APIs.
package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var (
	// ErrMissingAPIKey is returned when a client is used without credentials.
	ErrMissingAPIKey = errors.New("genai: API key not set")
	// ErrNoChoicesReturned is returned when a completion has no choices.
	ErrNoChoicesReturned = errors.New("genai: no choices returned")
	// ErrNoImageReturned is returned when an image response is empty.
	ErrNoImageReturned = errors.New("genai: no image returned")
)

const (
	DefaultTemperature = 0.4
	DefaultTimeout     = 60 * time.Second
)

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// imageService defines the minimal interface for image generation.
type imageService interface {
	Generate(ctx context.Context, body openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error)
}

type settings struct {
	baseURL     string
	model       string
	temperature float64
	timeout     time.Duration
}

// Option configures a client.
type Option func(*settings)

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithModel selects the model name. An empty name keeps the default.
func WithModel(model string) Option {
	return func(s *settings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithTemperature sets the sampling temperature for completions.
func WithTemperature(t float64) Option {
	return func(s *settings) { s.temperature = t }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func requestOptions(apiKey string, s settings) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(s.timeout),
	}
	if s.baseURL != "" {
		opts = append(opts, option.WithBaseURL(s.baseURL))
	}
	return opts
}

// TextClient generates text with a chat completion model.
type TextClient struct {
	chat        chatService
	model       string
	temperature float64
}

// NewTextClient builds a chat client. A missing key is an error because no
// step can run without text generation.
func NewTextClient(apiKey string, opts ...Option) (*TextClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	s := settings{model: string(openai.ChatModelGPT4oMini), temperature: DefaultTemperature, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&s)
	}
	cli := openai.NewClient(requestOptions(apiKey, s)...)
	slog.Debug("GenAI text client created", "model", s.model, "base_url", s.baseURL)
	return &TextClient{chat: &cli.Chat.Completions, model: s.model, temperature: s.temperature}, nil
}

// Complete sends a system and a user message and returns the first choice.
func (c *TextClient) Complete(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(c.temperature),
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

// ImageClient generates images. It can be built without a key; generation
// then fails per call so the rest of the pipeline keeps running.
type ImageClient struct {
	images imageService
	model  string
}

// NewImageClient builds an image client.
func NewImageClient(apiKey string, opts ...Option) *ImageClient {
	s := settings{model: string(openai.ImageModelDallE3), timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&s)
	}
	if apiKey == "" {
		slog.Warn("Image API key not set, image generation will fail")
		return &ImageClient{model: s.model}
	}
	cli := openai.NewClient(requestOptions(apiKey, s)...)
	return &ImageClient{images: &cli.Images, model: s.model}
}

// Generate returns decoded PNG bytes for prompt.
func (c *ImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if c.images == nil {
		return nil, ErrMissingAPIKey
	}
	resp, err := c.images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(c.model),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
		Size:           openai.ImageGenerateParamsSize1024x1024,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, ErrNoImageReturned
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return data, nil
}
