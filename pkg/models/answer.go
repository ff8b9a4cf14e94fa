package models

// Outcome is the user-visible result class of a request.
type Outcome string

const (
	OutcomeHit        Outcome = "hit"
	OutcomeFresh      Outcome = "fresh"
	OutcomeNoDocument Outcome = "no_document"
	OutcomeError      Outcome = "error"
)

// AskResult is the answer to a question about a document.
type AskResult struct {
	DocumentID string  `json:"document_id,omitempty"`
	Query      string  `json:"query"`
	Response   string  `json:"response,omitempty"`
	Message    string  `json:"message,omitempty"`
	Outcome    Outcome `json:"outcome"`
	Score      float64 `json:"score,omitempty"`
}

// SummaryResult is the summary of a document.
type SummaryResult struct {
	DocumentID string  `json:"document_id,omitempty"`
	Summary    string  `json:"summary,omitempty"`
	Message    string  `json:"message,omitempty"`
	Outcome    Outcome `json:"outcome"`
}

// FieldsResult holds structured fields extracted from a document.
type FieldsResult struct {
	DocumentID string         `json:"document_id,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Message    string         `json:"message,omitempty"`
	Outcome    Outcome        `json:"outcome"`
}
