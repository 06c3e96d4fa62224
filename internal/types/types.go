// Package types defines the core data model shared across the fixer pipeline.
package types

import (
	"strings"
	"time"
)

// Complexity is the analyzer's estimate of how hard a fix is.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Issue is a single static-analysis finding fetched from the quality server.
// Issues are immutable once fetched.
type Issue struct {
	Key          string `json:"key"`
	Rule         string `json:"rule"`
	Message      string `json:"message"`
	Component    string `json:"component"`
	Line         int    `json:"line"`
	CreationDate string `json:"creationDate,omitempty"`
}

// FilePath extracts the repository-relative file path from the component
// key. SonarQube component keys have the form "project:path/to/file".
func (i Issue) FilePath() string {
	if idx := strings.LastIndex(i.Component, ":"); idx >= 0 {
		return i.Component[idx+1:]
	}
	return i.Component
}

// CodeContext is a bounded window of source lines around an issue's line.
// StartLine and EndLine are 1-based inclusive bounds, clamped to the file.
// Created once per issue by the context extractor and never mutated.
type CodeContext struct {
	FilePath    string   `json:"file_path"`
	TargetLine  int      `json:"target_line"`
	StartLine   int      `json:"start_line"`
	EndLine     int      `json:"end_line"`
	ContextText string   `json:"context_text"`
	AllLines    []string `json:"-"`
}

// IssueAnalysis is the analyzer's structured reading of one issue.
type IssueAnalysis struct {
	IssueKey    string       `json:"issue_key"`
	Rule        string       `json:"rule"`
	Message     string       `json:"message"`
	FilePath    string       `json:"file_path"`
	LineNumber  int          `json:"line_number"`
	Context     *CodeContext `json:"context"`
	Analysis    string       `json:"analysis"`
	FixStrategy string       `json:"fix_strategy"`
	Complexity  Complexity   `json:"complexity"`
}

// SimilarFix is a past fix surfaced from memory for prompt augmentation.
type SimilarFix struct {
	Rule         string `json:"rule"`
	Message      string `json:"message"`
	OriginalCode string `json:"original_code"`
	FixedCode    string `json:"fixed_code"`
	Explanation  string `json:"explanation"`
}

// FixOutput is the fixer's result for one issue: the replacement code,
// provenance, and the automated feedback verdict.
type FixOutput struct {
	IssueKey       string        `json:"issue_key"`
	Rule           string        `json:"rule"`
	Message        string        `json:"message"`
	FilePath       string        `json:"file_path"`
	FixedCode      string        `json:"fixed_code"`
	OriginalCode   string        `json:"original_code"`
	Explanation    string        `json:"explanation"`
	Confidence     float64       `json:"confidence"`
	UsedMemory     bool          `json:"used_memory"`
	SimilarFixes   []SimilarFix  `json:"similar_fixes,omitempty"`
	Context        *CodeContext  `json:"context"`
	FeedbackText   string        `json:"feedback_text,omitempty"`
	FeedbackOK     bool          `json:"feedback_ok"`
	ProcessingTime time.Duration `json:"-"`
}
