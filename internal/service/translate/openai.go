package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI translates with a chat completion.
type OpenAI struct {
	client *openai.Client
	cfg    Config
}

// NewOpenAI creates an OpenAI translator. A non-empty Endpoint replaces the
// API base URL.
func NewOpenAI(cfg Config) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" && cfg.Endpoint != DefaultDeepLEndpoint {
		clientConfig.BaseURL = cfg.Endpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}
}

// Name returns "openai".
func (o *OpenAI) Name() string { return ProviderOpenAI }

// Translate asks the model for the translation only.
func (o *OpenAI) Translate(ctx context.Context, text, sourceLang string) ([]LanguageString, error) {
	if text == "" {
		return nil, nil
	}

	system := fmt.Sprintf(
		"You translate live captions from %s to %s. Reply with the translation only.",
		sourceLang, o.cfg.Target,
	)
	if o.cfg.Formality != "" && o.cfg.Formality != "default" {
		system += fmt.Sprintf(" Use a %s register.", o.cfg.Formality)
	}

	req := openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.2,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat completion: no response choices")
	}

	return []LanguageString{{
		Language: strings.ToLower(o.cfg.Target),
		Detected: sourceLang,
		Text:     strings.TrimSpace(resp.Choices[0].Message.Content),
	}}, nil
}
