// Package normalizer extracts a single human-readable analysis string from
// the heterogeneous JSON shapes the providers return. Extraction is total:
// any structural surprise degrades to "no fragment found" for that node,
// and an empty result becomes a fixed fallback string so callers always
// receive prose.
package normalizer

import (
	"encoding/json"
	"sort"
	"strings"

	"crop-vision-api/internal/provider"
)

// Fallback is returned whenever no text fragment can be extracted.
const Fallback = "No analysis returned from model."

// Normalize extracts the analysis text for the given provider variant.
// It never panics and never returns an empty string.
func Normalize(raw json.RawMessage, variant string) string {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Fallback
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return Fallback
	}

	var items []string
	switch variant {
	case provider.VariantOpenAI:
		items = extractOpenAIResponses(root)
	case provider.VariantOpenAIChat:
		items = extractOpenAIChat(root)
	case provider.VariantClaude:
		items = textItems(arrayField(root, "content"))
	case provider.VariantGemini:
		items = extractGemini(root)
	}

	// Unknown variant or nothing found: walk any top-level array of
	// content blocks before giving up.
	if len(items) == 0 {
		items = genericWalk(root)
	}
	if len(items) == 0 {
		return Fallback
	}
	return strings.Join(items, "\n\n")
}

func extractOpenAIResponses(root map[string]any) []string {
	if s, ok := root["output_text"].(string); ok && s != "" {
		return []string{s}
	}
	return textItems(arrayField(root, "output"))
}

func extractOpenAIChat(root map[string]any) []string {
	var items []string
	for _, choice := range arrayField(root, "choices") {
		m, ok := choice.(map[string]any)
		if !ok {
			continue
		}
		msg, ok := m["message"].(map[string]any)
		if !ok {
			continue
		}
		switch content := msg["content"].(type) {
		case string:
			if content != "" {
				items = append(items, content)
			}
		case []any:
			if frags := textItems(content); len(frags) > 0 {
				items = append(items, strings.Join(frags, " "))
			}
		}
	}
	return items
}

func extractGemini(root map[string]any) []string {
	var items []string
	for _, candidate := range arrayField(root, "candidates") {
		m, ok := candidate.(map[string]any)
		if !ok {
			continue
		}
		content, ok := m["content"].(map[string]any)
		if !ok {
			continue
		}
		if frags := textItems(arrayField(content, "parts")); len(frags) > 0 {
			items = append(items, strings.Join(frags, " "))
		}
	}
	return items
}

// genericWalk scans every top-level array value for content-block shapes.
// Keys are visited in sorted order so the same response always yields the
// same string; decoded maps carry no document order to preserve.
func genericWalk(root map[string]any) []string {
	keys := make([]string, 0, len(root))
	for k := range root {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var items []string
	for _, k := range keys {
		if arr, ok := root[k].([]any); ok {
			items = append(items, textItems(arr)...)
		}
	}
	return items
}

// textItems collects text from an array of content blocks, one result entry
// per top-level block. Fragments inside a single block (its own text plus
// nested content/parts arrays) join with a single space.
func textItems(blocks []any) []string {
	var items []string
	for _, block := range blocks {
		switch v := block.(type) {
		case string:
			if v != "" {
				items = append(items, v)
			}
		case map[string]any:
			var frags []string
			if s, ok := v["text"].(string); ok && s != "" {
				frags = append(frags, s)
			}
			for _, key := range []string{"content", "parts"} {
				if nested, ok := v[key].([]any); ok {
					frags = append(frags, textItems(nested)...)
				}
			}
			if len(frags) > 0 {
				items = append(items, strings.Join(frags, " "))
			}
		}
	}
	return items
}

func arrayField(m map[string]any, key string) []any {
	arr, _ := m[key].([]any)
	return arr
}
