package models

import "encoding/json"

// URLAnalysisRequest is the JSON body accepted by the analyze endpoint when
// the caller supplies a remote image instead of uploading one.
type URLAnalysisRequest struct {
	ImageURL string `json:"imageUrl"`
}

// AnalysisResponse is the success envelope. Analysis is never empty; Raw
// echoes the provider's response object for diagnostics.
type AnalysisResponse struct {
	Analysis string          `json:"analysis"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// ErrorResponse is the failure envelope. Details carries a short,
// client-safe hint; credentials and stack traces never appear here.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
