// Package assistant wires the inbound message pipeline: rate limiting,
// context loading, text generation, command processing and persistence.
package assistant

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/timeout"
)

// Chat roles understood by the generator.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to the generator.
type Message struct {
	Role    string
	Content string
}

// Generator produces the assistant reply for a conversation.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// GeneratorConfig configures an OpenAI-compatible chat endpoint.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultGeneratorConfig targets DeepSeek's OpenAI-compatible API.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		BaseURL:     "https://api.deepseek.com/v1",
		Model:       "deepseek-chat",
		Temperature: 0.3,
		MaxTokens:   800,
		Timeout:     timeout.GenerationTimeout,
	}
}

// OpenAIGenerator implements Generator with go-openai.
type OpenAIGenerator struct {
	client *openai.Client
	config GeneratorConfig
}

// NewOpenAIGenerator creates a generator for cfg.
func NewOpenAIGenerator(cfg GeneratorConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("generator API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("generator model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeout.GenerationTimeout
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Generate sends messages to the chat completion endpoint.
func (g *OpenAIGenerator) Generate(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.config.Model,
		Messages:    chatMessages,
		Temperature: g.config.Temperature,
		MaxTokens:   g.config.MaxTokens,
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
