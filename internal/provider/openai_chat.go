package provider

import (
	"context"
	"encoding/json"

	"github.com/go-resty/resty/v2"
	openai "github.com/sashabaranov/go-openai"
)

// openAIChatAnalyzer calls the chat-completions API with a system persona
// and a multimodal user message. Request bodies are built from go-openai's
// types so the wire shape matches the API exactly; the POST itself goes
// through the shared client to keep the raw-response semantics.
type openAIChatAnalyzer struct {
	client  *resty.Client
	apiKey  string
	baseURL string
	model   string
}

func (a *openAIChatAnalyzer) Name() string {
	return VariantOpenAIChat
}

func (a *openAIChatAnalyzer) Analyze(ctx context.Context, img ImageInput, prompt string) (json.RawMessage, error) {
	body := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: agronomistSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: img.Ref()},
					},
				},
			},
		},
		MaxTokens: 800,
	}

	headers := map[string]string{"Authorization": "Bearer " + a.apiKey}
	return postJSON(ctx, a.client, a.baseURL+"/chat/completions", headers, nil, body)
}
