// Package fixer generates code fixes from issue analyses, applies them
// to disk, and grades each fix with automated feedback.
package fixer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tobyh/sonarfix/internal/ai"
	"github.com/tobyh/sonarfix/internal/feedback"
	"github.com/tobyh/sonarfix/internal/memory"
	"github.com/tobyh/sonarfix/internal/prompt"
	"github.com/tobyh/sonarfix/internal/types"
)

// Fixer turns analyses into concrete code replacements. Every generated
// fix is graded and remembered, including failures, so the same mistake
// is not repeated blind.
type Fixer struct {
	llm      ai.Generator
	prompts  *prompt.Catalog
	memory   *memory.Store
	feedback *feedback.Manager
}

// fixPayload is the JSON shape the model is asked to return.
type fixPayload struct {
	FixedCode   string  `json:"fixed_code"`
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
	MemoryUsage string  `json:"memory_usage"`
}

// New creates a Fixer.
func New(llm ai.Generator, prompts *prompt.Catalog, mem *memory.Store, fb *feedback.Manager) *Fixer {
	return &Fixer{llm: llm, prompts: prompts, memory: mem, feedback: fb}
}

// Fix generates a replacement for the analyzed context. With useMemory,
// similar past fixes are folded into the prompt verbatim. The model's
// response goes through two-stage JSON extraction; an unparsable
// response degrades to echoing the raw output at confidence 0.5 rather
// than failing.
func (f *Fixer) Fix(ctx context.Context, analysis *types.IssueAnalysis, useMemory bool) (*types.FixOutput, error) {
	if analysis.Context == nil {
		return nil, fmt.Errorf("analysis for issue %s has no code context", analysis.IssueKey)
	}
	originalCode := analysis.Context.ContextText

	vars := prompt.Vars{
		"rule":         analysis.Rule,
		"message":      analysis.Message,
		"file":         analysis.FilePath,
		"line":         strconv.Itoa(analysis.LineNumber),
		"code_context": originalCode,
		"analysis":     analysis.Analysis,
		"fix_strategy": analysis.FixStrategy,
	}

	templateName := "fix_issue"
	var similar []types.SimilarFix
	usedMemory := false

	if useMemory {
		records := f.memory.SimilarFixes(analysis.IssueKey, analysis.Rule, analysis.Message, 3)
		if len(records) > 0 {
			usedMemory = true
			templateName = "fix_issue_with_memory"
			vars["similar_fixes"] = formatSimilarFixes(records)
			for _, r := range records {
				similar = append(similar, types.SimilarFix{
					Rule:         r.Rule,
					Message:      r.Message,
					OriginalCode: r.OriginalCode,
					FixedCode:    r.FixedCode,
					Explanation:  r.Explanation,
				})
			}
			slog.Info("found similar fixes in memory", "issue", analysis.IssueKey, "count", len(records))
		} else {
			slog.Info("no similar fixes found in memory", "issue", analysis.IssueKey)
		}
	}

	promptText, err := f.prompts.Render(templateName, vars)
	if err != nil {
		return nil, fmt.Errorf("render fix prompt: %w", err)
	}

	response, err := f.llm.Generate(ctx, promptText)
	if err != nil {
		return nil, fmt.Errorf("generate fix for issue %s: %w", analysis.IssueKey, err)
	}

	payload := parseFixResponse(analysis.IssueKey, response)

	// Always grade the fix, and remember it whatever the verdict.
	fb := feedback.Classify(analysis.IssueKey, payload.FixedCode, originalCode)
	if err := f.feedback.Record(fb); err != nil {
		slog.Error("failed to record automated feedback", "issue", analysis.IssueKey, "error", err)
	}
	slog.Info("automated feedback", "issue", analysis.IssueKey, "success", fb.Success, "verdict", fb.FeedbackText)

	rec := memory.FixRecord{
		IssueKey:     analysis.IssueKey,
		Rule:         analysis.Rule,
		Message:      analysis.Message,
		FilePath:     analysis.FilePath,
		FixedCode:    payload.FixedCode,
		OriginalCode: originalCode,
		Explanation:  payload.Explanation,
		Success:      fb.Success,
	}
	if err := f.memory.Add(rec); err != nil {
		slog.Error("failed to remember fix", "issue", analysis.IssueKey, "error", err)
	}

	if usedMemory && payload.MemoryUsage != "" {
		slog.Debug("memory influence on fix", "issue", analysis.IssueKey, "usage", payload.MemoryUsage)
	}

	return &types.FixOutput{
		IssueKey:     analysis.IssueKey,
		Rule:         analysis.Rule,
		Message:      analysis.Message,
		FilePath:     analysis.FilePath,
		FixedCode:    payload.FixedCode,
		OriginalCode: originalCode,
		Explanation:  payload.Explanation,
		Confidence:   payload.Confidence,
		UsedMemory:   usedMemory,
		SimilarFixes: similar,
		Context:      analysis.Context,
		FeedbackText: fb.FeedbackText,
		FeedbackOK:   fb.Success,
	}, nil
}

// parseFixResponse applies two-stage JSON extraction with a total
// fallback: when nothing parses, the raw response is treated as the
// fixed code at half confidence.
func parseFixResponse(issueKey, response string) fixPayload {
	parsed := ai.ExtractJSON[fixPayload](response)
	if parsed.OK && parsed.Data.FixedCode != "" {
		return parsed.Data
	}

	slog.Warn("could not parse fix response, using raw output", "issue", issueKey, "reason", parsed.Reason)
	return fixPayload{
		FixedCode:   strings.TrimSpace(response),
		Explanation: "Fix parsing failed, using raw response",
		Confidence:  0.5,
	}
}

func formatSimilarFixes(records []memory.FixRecord) string {
	var b strings.Builder
	for i, r := range records {
		fmt.Fprintf(&b, "Similar Fix #%d:\n", i+1)
		fmt.Fprintf(&b, "Rule: %s\n", r.Rule)
		fmt.Fprintf(&b, "Message: %s\n", r.Message)
		fmt.Fprintf(&b, "Original Code:\n```\n%s\n```\n", r.OriginalCode)
		fmt.Fprintf(&b, "Fixed Code:\n```\n%s\n```\n", r.FixedCode)
		fmt.Fprintf(&b, "Explanation: %s\n\n", r.Explanation)
	}
	return b.String()
}
