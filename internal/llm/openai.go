package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI client
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// OpenAIClient implements Provider over the chat completions API
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
	recorder  RequestRecorder
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		recorder:  nopRecorder{},
	}, nil
}

// WithRecorder reports every API call to r
func (c *OpenAIClient) WithRecorder(r RequestRecorder) *OpenAIClient {
	if r != nil {
		c.recorder = r
	}
	return c
}

// Name returns the provider name
func (c *OpenAIClient) Name() string {
	return ProviderOpenAI
}

// Model returns the model being used
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete sends one system/user exchange and returns the first choice
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		c.recorder.RecordLLMRequest(ProviderOpenAI, c.model, "error", time.Since(start), 0, 0)
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	c.recorder.RecordLLMRequest(ProviderOpenAI, c.model, "success", time.Since(start),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}

	return resp.Choices[0].Message.Content, nil
}
