package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/docqa/docqa/pkg/answer"
	"github.com/docqa/docqa/pkg/models"
)

type askArgs struct {
	Filename   string `json:"filename"`
	DocumentID string `json:"document_id"`
	Query      string `json:"query"`
}

type filenameArgs struct {
	Filename string `json:"filename"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"docqa_ask":            handleAsk,
	"docqa_summarize":      handleSummarize,
	"docqa_extract_fields": handleExtractFields,
	"docqa_cache_stats":    handleCacheStats,
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

var allTools = []ToolDefinition{
	{
		Name:        "docqa_ask",
		Description: "Answer a question about an ingested document. Similar earlier questions are answered from cache.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"filename":    stringProp("Document filename; a missing .pdf suffix is tolerated"),
				"document_id": stringProp("Document id returned at upload (alternative to filename)"),
				"query":       stringProp("The question to answer"),
			},
		},
	},
	{
		Name:        "docqa_summarize",
		Description: "Summarize an invoice in two or three sentences.",
		InputSchema: map[string]any{
			"type":       "object",
			"required":   []string{"filename"},
			"properties": map[string]any{"filename": stringProp("Document filename")},
		},
	},
	{
		Name:        "docqa_extract_fields",
		Description: "Extract invoice number, supplier, buyer, amount, due date and payment status as JSON.",
		InputSchema: map[string]any{
			"type":       "object",
			"required":   []string{"filename"},
			"properties": map[string]any{"filename": stringProp("Document filename")},
		},
	},
	{
		Name:        "docqa_cache_stats",
		Description: "Show response cache statistics (entries, summaries, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func handleAsk(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args askArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	ref := strings.TrimSpace(args.DocumentID)
	if ref == "" {
		ref = strings.TrimSpace(args.Filename)
	}
	if ref == "" || strings.TrimSpace(args.Query) == "" {
		return errorResult("filename (or document_id) and query are required")
	}

	res, err := s.answers.Ask(ctx, ref, args.Query)
	if err != nil {
		return errorResult(describeError("answer question", err))
	}
	if res.Outcome == models.OutcomeNoDocument {
		return errorResult(res.Message)
	}
	return textResult(formatAsk(res))
}

func handleSummarize(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args filenameArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(args.Filename) == "" {
		return errorResult("filename is required")
	}

	res, err := s.answers.Summarize(ctx, args.Filename)
	if err != nil {
		return errorResult(describeError("summarize", err))
	}
	if res.Outcome == models.OutcomeNoDocument {
		return errorResult(res.Message)
	}
	return textResult(res.Summary)
}

func handleExtractFields(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args filenameArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(args.Filename) == "" {
		return errorResult("filename is required")
	}

	res, err := s.answers.ExtractFields(ctx, args.Filename)
	if err != nil {
		return errorResult(describeError("extract fields", err))
	}
	if res.Outcome == models.OutcomeNoDocument {
		return errorResult(res.Message)
	}
	return textResult(formatFields(res.Fields))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	if s.lookups != nil {
		stats.Hits = s.lookups.Hits()
		stats.Misses = s.lookups.Misses()
	}
	return textResult(formatCacheStats(stats))
}

func describeError(action string, err error) string {
	switch {
	case errors.Is(err, answer.ErrNotEligible):
		return answer.NotInvoiceSummary
	case errors.Is(err, answer.ErrMalformedOutput):
		return "The model did not return valid JSON: " + err.Error()
	}
	return "Failed to " + action + ": " + err.Error()
}
