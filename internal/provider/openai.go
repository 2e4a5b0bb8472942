package provider

import (
	"context"
	"encoding/json"

	"github.com/go-resty/resty/v2"
)

// openAIResponsesAnalyzer calls the OpenAI responses API with an
// input_text/input_image pair.
type openAIResponsesAnalyzer struct {
	client  *resty.Client
	apiKey  string
	baseURL string
	model   string
}

type responsesRequest struct {
	Model string          `json:"model"`
	Input []responsesItem `json:"input"`
}

type responsesItem struct {
	Role    string          `json:"role"`
	Content []responsesPart `json:"content"`
}

type responsesPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

func (a *openAIResponsesAnalyzer) Name() string {
	return VariantOpenAI
}

func (a *openAIResponsesAnalyzer) Analyze(ctx context.Context, img ImageInput, prompt string) (json.RawMessage, error) {
	body := responsesRequest{
		Model: a.model,
		Input: []responsesItem{{
			Role: "user",
			Content: []responsesPart{
				{Type: "input_text", Text: prompt},
				{Type: "input_image", ImageURL: img.Ref()},
			},
		}},
	}

	headers := map[string]string{"Authorization": "Bearer " + a.apiKey}
	return postJSON(ctx, a.client, a.baseURL+"/responses", headers, nil, body)
}
