package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"
)

// GeminiModel calls Gemini through the Google Gen AI SDK. It accepts inline
// audio, so recordings can be analyzed directly.
type GeminiModel struct {
	client *genai.Client
	model  string
}

var _ Model = (*GeminiModel)(nil)

func NewGeminiModel(ctx context.Context, apiKey, model string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &GeminiModel{client: client, model: model}, nil
}

func (m *GeminiModel) Name() string { return "gemini:" + m.model }

func (m *GeminiModel) Generate(ctx context.Context, p Prompt) (string, error) {
	contents, config := geminiRequest(p)
	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func geminiRequest(p Prompt) ([]*genai.Content, *genai.GenerateContentConfig) {
	content := &genai.Content{Role: genai.RoleUser}
	// Audio goes first so the instruction text reads as a question about it.
	if p.Audio != nil && len(p.Audio.Data) > 0 {
		content.Parts = append(content.Parts, &genai.Part{
			InlineData: &genai.Blob{Data: p.Audio.Data, MIMEType: p.Audio.MIMEType},
		})
	}
	content.Parts = append(content.Parts, &genai.Part{Text: p.Text})

	config := &genai.GenerateContentConfig{}
	if p.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: p.System}},
		}
	}
	temp := p.Temperature
	config.Temperature = &temp
	if p.MaxTokens > 0 {
		// #nosec G115 -- bounded by min
		config.MaxOutputTokens = int32(min(p.MaxTokens, math.MaxInt32))
	}
	if p.JSON {
		config.ResponseMIMEType = "application/json"
	}
	return []*genai.Content{content}, config
}
