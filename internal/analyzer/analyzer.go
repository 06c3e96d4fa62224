// Package analyzer turns a raw static-analysis issue plus code context
// into a structured analysis for the fixer.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tobyh/sonarfix/internal/ai"
	"github.com/tobyh/sonarfix/internal/codectx"
	"github.com/tobyh/sonarfix/internal/prompt"
	"github.com/tobyh/sonarfix/internal/types"
)

// Analyzer asks the model to explain an issue and propose a fix strategy.
type Analyzer struct {
	llm     ai.Generator
	prompts *prompt.Catalog

	// Context window bounds, in lines.
	Before int
	After  int
}

// analysisPayload is the JSON shape the model is asked to return.
type analysisPayload struct {
	Analysis    string `json:"analysis"`
	FixStrategy string `json:"fix_strategy"`
	Complexity  string `json:"complexity"`
}

// fallbackPayload is substituted whenever the model call fails or its
// response does not parse. Analysis never errors past context extraction.
var fallbackPayload = analysisPayload{
	Analysis:    "Analysis parsing failed",
	FixStrategy: "Manual review required",
	Complexity:  string(types.ComplexityHigh),
}

// New creates an Analyzer with the given context window bounds.
func New(llm ai.Generator, prompts *prompt.Catalog, before, after int) *Analyzer {
	return &Analyzer{llm: llm, prompts: prompts, Before: before, After: after}
}

// Analyze produces a structured analysis for one issue. filePath is the
// absolute path of the affected file; when cc is nil the context is
// extracted here, and extraction failure is fatal for this issue.
func (a *Analyzer) Analyze(ctx context.Context, issue types.Issue, filePath string, cc *types.CodeContext) (*types.IssueAnalysis, error) {
	if cc == nil {
		var err error
		cc, err = codectx.Extract(filePath, issue.Line, a.Before, a.After)
		if err != nil {
			return nil, fmt.Errorf("extract context for issue %s: %w", issue.Key, err)
		}
	}

	promptText, err := a.prompts.Render("analyze_issue", prompt.Vars{
		"rule":         issue.Rule,
		"message":      issue.Message,
		"file":         filePath,
		"line":         strconv.Itoa(issue.Line),
		"code_context": cc.ContextText,
	})
	if err != nil {
		return nil, fmt.Errorf("render analysis prompt: %w", err)
	}

	payload := fallbackPayload
	response, err := a.llm.Generate(ctx, promptText)
	if err != nil {
		slog.Error("model call failed during analysis, using fallback", "issue", issue.Key, "error", err)
	} else {
		parsed := ai.ExtractJSON[analysisPayload](response)
		if parsed.OK {
			payload = parsed.Data
		} else {
			slog.Warn("could not parse analysis response, using fallback", "issue", issue.Key, "reason", parsed.Reason)
		}
	}

	complexity := types.Complexity(payload.Complexity)
	switch complexity {
	case types.ComplexityLow, types.ComplexityMedium, types.ComplexityHigh:
	default:
		complexity = types.ComplexityHigh
	}

	slog.Info("analyzed issue", "issue", issue.Key, "complexity", complexity)

	return &types.IssueAnalysis{
		IssueKey:    issue.Key,
		Rule:        issue.Rule,
		Message:     issue.Message,
		FilePath:    issue.FilePath(),
		LineNumber:  issue.Line,
		Context:     cc,
		Analysis:    payload.Analysis,
		FixStrategy: payload.FixStrategy,
		Complexity:  complexity,
	}, nil
}
