package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/go-resty/resty/v2"
)

const anthropicVersion = "2023-06-01"

// claudeAnalyzer calls the Anthropic messages API. Uploaded images travel as
// base64 source blocks; remote images as url source blocks.
type claudeAnalyzer struct {
	client    *resty.Client
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string        `json:"role"`
	Content []claudeBlock `json:"content"`
}

type claudeBlock struct {
	Type   string        `json:"type"`
	Source *claudeSource `json:"source,omitempty"`
	Text   string        `json:"text,omitempty"`
}

type claudeSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

func (a *claudeAnalyzer) Name() string {
	return VariantClaude
}

func (a *claudeAnalyzer) Analyze(ctx context.Context, img ImageInput, prompt string) (json.RawMessage, error) {
	var source *claudeSource
	if img.Remote() {
		source = &claudeSource{Type: "url", URL: img.URL}
	} else {
		source = &claudeSource{
			Type:      "base64",
			MediaType: img.MIMEType,
			Data:      base64.StdEncoding.EncodeToString(img.Data),
		}
	}

	body := claudeRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []claudeMessage{{
			Role: "user",
			Content: []claudeBlock{
				{Type: "image", Source: source},
				{Type: "text", Text: prompt},
			},
		}},
	}

	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}
	return postJSON(ctx, a.client, a.baseURL+"/v1/messages", headers, nil, body)
}
