package ai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIModel calls the chat completions API. It is text only: audio
// analysis falls back to the transcript.
type OpenAIModel struct {
	client *openai.Client
	model  string
}

var _ Model = (*OpenAIModel)(nil)

func NewOpenAIModel(apiKey, model string) *OpenAIModel {
	return NewOpenAIModelWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAIModelWithConfig allows a custom base URL or HTTP client.
func NewOpenAIModelWithConfig(cfg openai.ClientConfig, model string) *OpenAIModel {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(cfg), model: model}
}

func (m *OpenAIModel) Name() string { return "openai:" + m.model }

func (m *OpenAIModel) Generate(ctx context.Context, p Prompt) (string, error) {
	if p.Audio != nil {
		return "", ErrAudioUnsupported
	}
	resp, err := m.client.CreateChatCompletion(ctx, openAIRequest(m.model, p))
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func openAIRequest(model string, p Prompt) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if p.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.Text})

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: p.Temperature,
	}
	if p.MaxTokens > 0 {
		req.MaxTokens = p.MaxTokens
	}
	if p.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return req
}
