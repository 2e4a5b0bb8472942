package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crop-vision-api/internal/config"
	apperrors "crop-vision-api/internal/errors"
)

type capturedRequest struct {
	path    string
	headers http.Header
	query   map[string][]string
	body    map[string]any
	count   int
}

// captureServer records every request and replies with the given status and
// body.
func captureServer(t *testing.T, status int, responseBody string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.count++
		captured.path = r.URL.Path
		captured.headers = r.Header.Clone()
		captured.query = r.URL.Query()

		data, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("Failed to read request body: %v", err)
		}
		captured.body = map[string]any{}
		if err := json.Unmarshal(data, &captured.body); err != nil {
			t.Errorf("Request body was not valid JSON: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(responseBody))
	}))

	return server, captured
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		RequestTimeout:     5 * time.Second,
		OpenAIAPIKey:       "test-openai-key",
		OpenAIBaseURL:      baseURL,
		OpenAIModel:        "gpt-4o-mini",
		AnthropicAPIKey:    "test-anthropic-key",
		AnthropicBaseURL:   baseURL,
		AnthropicModel:     "claude-3-5-sonnet-20241022",
		AnthropicMaxTokens: 1024,
		GeminiAPIKey:       "test-gemini-key",
		GeminiBaseURL:      baseURL,
		GeminiModel:        "gemini-1.5-flash",
	}
}

func testUpload() ImageInput {
	return ImageInput{Data: []byte{0x89, 0x50, 0x4E, 0x47}, MIMEType: "image/png"}
}

func arrayAt(t *testing.T, m map[string]any, key string) []any {
	t.Helper()
	arr, ok := m[key].([]any)
	if !ok {
		t.Fatalf("Expected %q to be an array, got %T", key, m[key])
	}
	return arr
}

func mapAt(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("Expected object, got %T", v)
	}
	return m
}

func TestOpenAIResponses_RequestShape(t *testing.T) {
	server, captured := captureServer(t, 200, `{"output_text":"ok"}`)
	defer server.Close()

	cfg := testConfig(server.URL)
	analyzer, err := New(VariantOpenAI, cfg, NewClient(cfg))
	if err != nil {
		t.Fatalf("Failed to create analyzer: %v", err)
	}

	raw, err := analyzer.Analyze(context.Background(), testUpload(), "inspect the crop")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("Expected raw response")
	}

	if captured.path != "/responses" {
		t.Errorf("Expected path /responses, got %s", captured.path)
	}
	if got := captured.headers.Get("Authorization"); got != "Bearer test-openai-key" {
		t.Errorf("Expected Bearer auth header, got %q", got)
	}

	input := arrayAt(t, captured.body, "input")
	message := mapAt(t, input[0])
	if message["role"] != "user" {
		t.Errorf("Expected user role, got %v", message["role"])
	}
	content := arrayAt(t, message, "content")
	if len(content) != 2 {
		t.Fatalf("Expected 2 content parts, got %d", len(content))
	}

	textPart := mapAt(t, content[0])
	if textPart["type"] != "input_text" || textPart["text"] != "inspect the crop" {
		t.Errorf("Unexpected text part: %v", textPart)
	}
	imagePart := mapAt(t, content[1])
	if imagePart["type"] != "input_image" {
		t.Errorf("Expected input_image part, got %v", imagePart["type"])
	}
	imageURL, _ := imagePart["image_url"].(string)
	if !strings.HasPrefix(imageURL, "data:image/png;base64,") {
		t.Errorf("Expected data URL image, got %q", imageURL)
	}
}

func TestOpenAIResponses_RemoteURLPassedThrough(t *testing.T) {
	server, captured := captureServer(t, 200, `{"output_text":"ok"}`)
	defer server.Close()

	cfg := testConfig(server.URL)
	analyzer, _ := New(VariantOpenAI, cfg, NewClient(cfg))

	_, err := analyzer.Analyze(context.Background(), URLInput("https://example.com/leaf.jpg"), "inspect")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	input := arrayAt(t, captured.body, "input")
	content := arrayAt(t, mapAt(t, input[0]), "content")
	imagePart := mapAt(t, content[1])
	if imagePart["image_url"] != "https://example.com/leaf.jpg" {
		t.Errorf("Expected remote URL unchanged, got %v", imagePart["image_url"])
	}
}

func TestOpenAIChat_RequestShape(t *testing.T) {
	server, captured := captureServer(t, 200, `{"choices":[]}`)
	defer server.Close()

	cfg := testConfig(server.URL)
	analyzer, err := New(VariantOpenAIChat, cfg, NewClient(cfg))
	if err != nil {
		t.Fatalf("Failed to create analyzer: %v", err)
	}

	if _, err := analyzer.Analyze(context.Background(), testUpload(), "inspect the crop"); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if captured.path != "/chat/completions" {
		t.Errorf("Expected path /chat/completions, got %s", captured.path)
	}
	if got := captured.headers.Get("Authorization"); got != "Bearer test-openai-key" {
		t.Errorf("Expected Bearer auth header, got %q", got)
	}

	messages := arrayAt(t, captured.body, "messages")
	if len(messages) != 2 {
		t.Fatalf("Expected system and user messages, got %d", len(messages))
	}

	system := mapAt(t, messages[0])
	if system["role"] != "system" {
		t.Errorf("Expected system role first, got %v", system["role"])
	}
	if content, _ := system["content"].(string); !strings.Contains(content, "agronomist") {
		t.Errorf("Expected agronomist persona, got %q", content)
	}

	user := mapAt(t, messages[1])
	if user["role"] != "user" {
		t.Errorf("Expected user role, got %v", user["role"])
	}
	content := arrayAt(t, user, "content")
	if len(content) != 2 {
		t.Fatalf("Expected 2 content blocks, got %d", len(content))
	}

	textBlock := mapAt(t, content[0])
	if textBlock["type"] != "text" {
		t.Errorf("Expected text block, got %v", textBlock["type"])
	}
	imageBlock := mapAt(t, content[1])
	if imageBlock["type"] != "image_url" {
		t.Errorf("Expected image_url block, got %v", imageBlock["type"])
	}
	url, _ := mapAt(t, imageBlock["image_url"])["url"].(string)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("Expected data URL, got %q", url)
	}
}

func TestClaude_RequestShape(t *testing.T) {
	server, captured := captureServer(t, 200, `{"content":[{"text":"Healthy crop."}]}`)
	defer server.Close()

	cfg := testConfig(server.URL)
	analyzer, err := New(VariantClaude, cfg, NewClient(cfg))
	if err != nil {
		t.Fatalf("Failed to create analyzer: %v", err)
	}

	img := testUpload()
	if _, err := analyzer.Analyze(context.Background(), img, "inspect the crop"); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if captured.path != "/v1/messages" {
		t.Errorf("Expected path /v1/messages, got %s", captured.path)
	}
	if got := captured.headers.Get("x-api-key"); got != "test-anthropic-key" {
		t.Errorf("Expected x-api-key header, got %q", got)
	}
	if got := captured.headers.Get("anthropic-version"); got != anthropicVersion {
		t.Errorf("Expected anthropic-version %s, got %q", anthropicVersion, got)
	}

	if captured.body["model"] != "claude-3-5-sonnet-20241022" {
		t.Errorf("Unexpected model: %v", captured.body["model"])
	}
	if captured.body["max_tokens"] != float64(1024) {
		t.Errorf("Expected max_tokens 1024, got %v", captured.body["max_tokens"])
	}

	messages := arrayAt(t, captured.body, "messages")
	content := arrayAt(t, mapAt(t, messages[0]), "content")
	if len(content) != 2 {
		t.Fatalf("Expected image and text blocks, got %d", len(content))
	}

	imageBlock := mapAt(t, content[0])
	if imageBlock["type"] != "image" {
		t.Errorf("Expected image block first, got %v", imageBlock["type"])
	}
	source := mapAt(t, imageBlock["source"])
	if source["type"] != "base64" || source["media_type"] != "image/png" {
		t.Errorf("Unexpected image source: %v", source)
	}
	if source["data"] != base64.StdEncoding.EncodeToString(img.Data) {
		t.Error("Image bytes were not base64-encoded verbatim")
	}

	textBlock := mapAt(t, content[1])
	if textBlock["type"] != "text" || textBlock["text"] != "inspect the crop" {
		t.Errorf("Unexpected text block: %v", textBlock)
	}
}

func TestGemini_RequestShape_CustomBaseURL(t *testing.T) {
	server, captured := captureServer(t, 200, `{"candidates":[]}`)
	defer server.Close()

	cfg := testConfig(server.URL)
	analyzer, err := New(VariantGemini, cfg, NewClient(cfg))
	if err != nil {
		t.Fatalf("Failed to create analyzer: %v", err)
	}

	img := testUpload()
	if _, err := analyzer.Analyze(context.Background(), img, "inspect the crop"); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if captured.path != "/v1beta/models/gemini-1.5-flash:generateContent" {
		t.Errorf("Unexpected path: %s", captured.path)
	}

	// Custom base URL authenticates with a Bearer header, not a query key
	if got := captured.headers.Get("Authorization"); got != "Bearer test-gemini-key" {
		t.Errorf("Expected Bearer auth, got %q", got)
	}
	if _, present := captured.query["key"]; present {
		t.Error("Expected no key query parameter with a custom base URL")
	}

	contents := arrayAt(t, captured.body, "contents")
	parts := arrayAt(t, mapAt(t, contents[0]), "parts")
	if len(parts) != 2 {
		t.Fatalf("Expected text and inlineData parts, got %d", len(parts))
	}
	if mapAt(t, parts[0])["text"] != "inspect the crop" {
		t.Errorf("Unexpected text part: %v", parts[0])
	}
	inline := mapAt(t, mapAt(t, parts[1])["inlineData"])
	if inline["mimeType"] != "image/png" {
		t.Errorf("Expected mimeType image/png, got %v", inline["mimeType"])
	}
	if inline["data"] != base64.StdEncoding.EncodeToString(img.Data) {
		t.Error("Image bytes were not base64-encoded verbatim")
	}
}

func TestGemini_RequestShape_NativeEndpointQueryKey(t *testing.T) {
	server, captured := captureServer(t, 200, `{"candidates":[]}`)
	defer server.Close()

	original := geminiNativeBaseURL
	geminiNativeBaseURL = server.URL
	defer func() { geminiNativeBaseURL = original }()

	cfg := testConfig(server.URL)
	cfg.GeminiBaseURL = "" // empty selects the native endpoint
	analyzer, err := New(VariantGemini, cfg, NewClient(cfg))
	if err != nil {
		t.Fatalf("Failed to create analyzer: %v", err)
	}

	if _, err := analyzer.Analyze(context.Background(), testUpload(), "inspect the crop"); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if captured.path != "/v1beta/models/gemini-1.5-flash:generateContent" {
		t.Errorf("Unexpected path: %s", captured.path)
	}

	// Native endpoint authenticates with the key as a query parameter
	keys, present := captured.query["key"]
	if !present || len(keys) != 1 || keys[0] != "test-gemini-key" {
		t.Errorf("Expected key query parameter, got %v", captured.query)
	}
	if got := captured.headers.Get("Authorization"); got != "" {
		t.Errorf("Expected no Authorization header on the native endpoint, got %q", got)
	}
}

func TestAnalyze_SingleAttemptNoStatusCheck(t *testing.T) {
	server, captured := captureServer(t, 500, `{"error":{"message":"overloaded"}}`)
	defer server.Close()

	cfg := testConfig(server.URL)
	analyzer, _ := New(VariantClaude, cfg, NewClient(cfg))

	raw, err := analyzer.Analyze(context.Background(), testUpload(), "inspect")
	if err != nil {
		t.Fatalf("A provider 5xx must not be a transport error, got: %v", err)
	}
	if captured.count != 1 {
		t.Errorf("Expected exactly 1 attempt, got %d", captured.count)
	}
	if !strings.Contains(string(raw), "overloaded") {
		t.Errorf("Expected error body passed through raw, got %s", raw)
	}
}

func TestAnalyze_NonJSONBodyBecomesEmptyObject(t *testing.T) {
	textServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>Bad Gateway</html>"))
	}))
	defer textServer.Close()

	cfg := testConfig(textServer.URL)
	analyzer, _ := New(VariantOpenAI, cfg, NewClient(cfg))

	raw, err := analyzer.Analyze(context.Background(), testUpload(), "inspect")
	if err != nil {
		t.Fatalf("Non-JSON body must not error, got: %v", err)
	}
	if string(raw) != "{}" {
		t.Errorf("Expected empty object, got %s", raw)
	}
}

func TestAnalyze_NetworkFailure(t *testing.T) {
	// Point at a server that is already closed
	server, _ := captureServer(t, 200, `{}`)
	serverURL := server.URL
	server.Close()

	cfg := testConfig(serverURL)
	analyzer, _ := New(VariantOpenAI, cfg, NewClient(cfg))

	_, err := analyzer.Analyze(context.Background(), testUpload(), "inspect")
	if err == nil {
		t.Fatal("Expected provider error on network failure")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeProvider) {
		t.Errorf("Expected provider error type, got: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	tests := []struct {
		variant string
		clear   func(cfg *config.Config)
	}{
		{VariantOpenAI, func(cfg *config.Config) { cfg.OpenAIAPIKey = "" }},
		{VariantOpenAIChat, func(cfg *config.Config) { cfg.OpenAIAPIKey = "" }},
		{VariantClaude, func(cfg *config.Config) { cfg.AnthropicAPIKey = "" }},
		{VariantGemini, func(cfg *config.Config) { cfg.GeminiAPIKey = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			cfg := testConfig("http://localhost:0")
			tt.clear(cfg)

			_, err := New(tt.variant, cfg, NewClient(cfg))
			if err == nil {
				t.Fatal("Expected configuration error for missing credential")
			}
			if !apperrors.IsType(err, apperrors.ErrorTypeConfiguration) {
				t.Errorf("Expected configuration error, got: %v", err)
			}
		})
	}
}

func TestNew_UnknownVariant(t *testing.T) {
	cfg := testConfig("http://localhost:0")
	_, err := New("mystery-model", cfg, NewClient(cfg))
	if err == nil {
		t.Fatal("Expected error for unknown variant")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error, got: %v", err)
	}
}
