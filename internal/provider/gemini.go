package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// geminiNativeBaseURL is a var so tests can stand in for the native host.
var geminiNativeBaseURL = "https://generativelanguage.googleapis.com"

// geminiAnalyzer calls the generateContent endpoint. Against the native
// endpoint the API key travels as a query parameter; a custom base URL
// switches authentication to a Bearer header.
type geminiAnalyzer struct {
	client  *resty.Client
	apiKey  string
	baseURL string
	model   string
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiBlob     `json:"inlineData,omitempty"`
	FileData   *geminiFileData `json:"fileData,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

func (a *geminiAnalyzer) Name() string {
	return VariantGemini
}

func (a *geminiAnalyzer) Analyze(ctx context.Context, img ImageInput, prompt string) (json.RawMessage, error) {
	parts := []geminiPart{{Text: prompt}}
	if img.Remote() {
		parts = append(parts, geminiPart{FileData: &geminiFileData{FileURI: img.URL}})
	} else {
		parts = append(parts, geminiPart{InlineData: &geminiBlob{
			MimeType: img.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}})
	}

	body := geminiRequest{Contents: []geminiContent{{Parts: parts}}}

	base := a.baseURL
	headers := map[string]string{}
	query := map[string]string{}
	if base == "" {
		base = geminiNativeBaseURL
		query["key"] = a.apiKey
	} else {
		headers["Authorization"] = "Bearer " + a.apiKey
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, a.model)
	return postJSON(ctx, a.client, url, headers, query, body)
}
