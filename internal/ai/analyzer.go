// Package ai asks an OpenAI-compatible chat model to comment on alerts.
package ai

import (
	"NetVerdict/internal/config"
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const promptTemplate = "You are a senior network security analyst. " +
	"Please analyze the following alert summary from the NetVerdict flow verdict engine. " +
	"Each alert comes from one batch of classified network flows and lists the triggered rule, " +
	"the observed value and the riskiest flows. " +
	"Provide a concise analysis of the likely threat, its severity, and recommended next steps for investigation. " +
	"Answer in Markdown.\n\n" +
	"--- Alert Data ---\n%s\n--- End of Alert Data ---"

// chatClient is the part of *openai.Client the analyzer uses.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// AlertAnalyzer implements model.Analyzer with the chat completions API.
type AlertAnalyzer struct {
	model  string
	client chatClient
}

// NewAlertAnalyzer creates an analyzer from the alerter's AI settings.
func NewAlertAnalyzer(cfg config.AIAnalysisConfig) (*AlertAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI API key is not configured")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &AlertAnalyzer{model: model, client: openai.NewClientWithConfig(clientConfig)}, nil
}

// Analyze returns the model's write-up of input.
func (a *AlertAnalyzer) Analyze(ctx context.Context, input string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(promptTemplate, input)},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("AI request timeout: %w", err)
		}
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("AI request canceled: %w", err)
		}
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI API returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
