package intake

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// EncodeDataURL embeds image bytes in a data:<mime>;base64,<payload> string
// suitable for providers that accept inline images.
func EncodeDataURL(data []byte, mimeType string) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// decodeDataURL reverses EncodeDataURL, returning the raw bytes and MIME type.
func decodeDataURL(dataURL string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URL: no payload separator")
	}
	mimeType, encoding, ok := strings.Cut(meta, ";")
	if !ok || encoding != "base64" {
		return nil, "", fmt.Errorf("unsupported data URL encoding: %q", meta)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 payload: %w", err)
	}
	return data, mimeType, nil
}
