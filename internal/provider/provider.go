package provider

import (
	"bytes"
	"context"
	"encoding/json"

	"crop-vision-api/internal/config"
	apperrors "crop-vision-api/internal/errors"
	"crop-vision-api/internal/intake"

	"github.com/go-resty/resty/v2"
)

// Variant names select which provider adapter handles a request.
const (
	VariantOpenAI     = "openai"
	VariantOpenAIChat = "openai-chat"
	VariantClaude     = "claude"
	VariantGemini     = "gemini"
)

// Variants lists every supported provider variant.
func Variants() []string {
	return []string{VariantOpenAI, VariantOpenAIChat, VariantClaude, VariantGemini}
}

// CropAnalysisPrompt is the fixed instruction text sent with every image.
const CropAnalysisPrompt = "Analyze this crop image. Identify the crop and its growth stage, " +
	"describe any visible signs of disease, pest damage, water stress or nutrient deficiency, " +
	"and give short practical recommendations for the grower."

// agronomistSystemPrompt is the persona used by the chat-completions variant.
const agronomistSystemPrompt = "You are an experienced agronomist. You examine crop photographs " +
	"and report on plant health, diseases, pests and nutrient deficiencies in clear, practical language."

// ImageInput is either an in-memory validated upload or a remote URL that
// the provider fetches itself.
type ImageInput struct {
	Data     []byte
	MIMEType string
	URL      string
}

// UploadInput wraps a validated upload for provider consumption.
func UploadInput(img *intake.ValidatedImage) ImageInput {
	return ImageInput{Data: img.Data, MIMEType: img.MIMEType}
}

// URLInput wraps a remote image reference for provider consumption.
func URLInput(imageURL string) ImageInput {
	return ImageInput{URL: imageURL}
}

// Remote reports whether the image is referenced by URL rather than held
// in memory.
func (in ImageInput) Remote() bool {
	return in.URL != ""
}

// Ref returns the image as a URL string: the remote URL as-is, or the
// in-memory bytes embedded in a data URL.
func (in ImageInput) Ref() string {
	if in.Remote() {
		return in.URL
	}
	return intake.EncodeDataURL(in.Data, in.MIMEType)
}

// Analyzer is the capability shared by all provider variants: analyze one
// image with one prompt in a single outbound call and hand back the raw
// provider response for normalization.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, img ImageInput, prompt string) (json.RawMessage, error)
}

// NewClient builds the HTTP client shared by all analyzers. resty performs
// no retries by default, which matches the single-attempt contract.
func NewClient(cfg *config.Config) *resty.Client {
	return resty.New().SetTimeout(cfg.RequestTimeout)
}

// New constructs the analyzer for the named variant. A missing credential is
// a configuration error raised here, before any network I/O is attempted.
func New(name string, cfg *config.Config, client *resty.Client) (Analyzer, error) {
	switch name {
	case VariantOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, apperrors.NewConfigurationError("OPENAI_API_KEY is not configured")
		}
		return &openAIResponsesAnalyzer{
			client:  client,
			apiKey:  cfg.OpenAIAPIKey,
			baseURL: cfg.OpenAIBaseURL,
			model:   cfg.OpenAIModel,
		}, nil
	case VariantOpenAIChat:
		if cfg.OpenAIAPIKey == "" {
			return nil, apperrors.NewConfigurationError("OPENAI_API_KEY is not configured")
		}
		return &openAIChatAnalyzer{
			client:  client,
			apiKey:  cfg.OpenAIAPIKey,
			baseURL: cfg.OpenAIBaseURL,
			model:   cfg.OpenAIModel,
		}, nil
	case VariantClaude:
		if cfg.AnthropicAPIKey == "" {
			return nil, apperrors.NewConfigurationError("ANTHROPIC_API_KEY is not configured")
		}
		return &claudeAnalyzer{
			client:    client,
			apiKey:    cfg.AnthropicAPIKey,
			baseURL:   cfg.AnthropicBaseURL,
			model:     cfg.AnthropicModel,
			maxTokens: cfg.AnthropicMaxTokens,
		}, nil
	case VariantGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, apperrors.NewConfigurationError("GEMINI_API_KEY is not configured")
		}
		return &geminiAnalyzer{
			client:  client,
			apiKey:  cfg.GeminiAPIKey,
			baseURL: cfg.GeminiBaseURL,
			model:   cfg.GeminiModel,
		}, nil
	default:
		return nil, apperrors.NewValidationError("unknown provider", nil).WithDetails(name)
	}
}

// postJSON issues the single outbound POST for an analyzer. The response
// status code is intentionally not inspected and an unparseable body
// degrades to an empty object, so normalization falls back to its fixed
// string instead of failing the request.
func postJSON(ctx context.Context, client *resty.Client, url string, headers, query map[string]string, body any) (json.RawMessage, error) {
	req := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	for k, v := range headers {
		req.SetHeader(k, v)
	}
	for k, v := range query {
		req.SetQueryParam(k, v)
	}

	resp, err := req.Post(url)
	if err != nil {
		return nil, apperrors.NewProviderError("provider request failed", err)
	}

	raw := bytes.TrimSpace(resp.Body())
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(raw), nil
}
