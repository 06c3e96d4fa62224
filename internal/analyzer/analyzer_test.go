package analyzer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobyh/sonarfix/internal/prompt"
	"github.com/tobyh/sonarfix/internal/types"
)

type fakeGenerator struct {
	response string
	err      error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return f.response, f.err
}

func newTestAnalyzer(t *testing.T, gen *fakeGenerator) *Analyzer {
	t.Helper()
	prompts, err := prompt.Load()
	require.NoError(t, err)
	return New(gen, prompts, 10, 10)
}

func testIssue() types.Issue {
	return types.Issue{
		Key:       "ISSUE-1",
		Rule:      "go:S1481",
		Message:   "Remove this unused variable",
		Component: "proj:pkg/thing.go",
		Line:      3,
	}
}

func testContext() *types.CodeContext {
	return &types.CodeContext{
		FilePath:    "pkg/thing.go",
		TargetLine:  3,
		StartLine:   1,
		EndLine:     5,
		ContextText: "a\nb\nc\nd\ne\n",
	}
}

func TestAnalyzeParsesModelResponse(t *testing.T) {
	gen := &fakeGenerator{
		response: "```json\n{\"analysis\": \"x is dead\", \"fix_strategy\": \"delete it\", \"complexity\": \"low\"}\n```",
	}
	a := newTestAnalyzer(t, gen)

	analysis, err := a.Analyze(context.Background(), testIssue(), "pkg/thing.go", testContext())
	require.NoError(t, err)

	assert.Equal(t, "ISSUE-1", analysis.IssueKey)
	assert.Equal(t, "pkg/thing.go", analysis.FilePath)
	assert.Equal(t, "x is dead", analysis.Analysis)
	assert.Equal(t, "delete it", analysis.FixStrategy)
	assert.Equal(t, types.ComplexityLow, analysis.Complexity)
	assert.NotNil(t, analysis.Context)
}

func TestAnalyzeModelFailureUsesFallback(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("503 service unavailable")}
	a := newTestAnalyzer(t, gen)

	analysis, err := a.Analyze(context.Background(), testIssue(), "pkg/thing.go", testContext())
	require.NoError(t, err)

	assert.Equal(t, "Analysis parsing failed", analysis.Analysis)
	assert.Equal(t, "Manual review required", analysis.FixStrategy)
	assert.Equal(t, types.ComplexityHigh, analysis.Complexity)
}

func TestAnalyzeUnparsableResponseUsesFallback(t *testing.T) {
	gen := &fakeGenerator{response: "this issue looks tricky, good luck"}
	a := newTestAnalyzer(t, gen)

	analysis, err := a.Analyze(context.Background(), testIssue(), "pkg/thing.go", testContext())
	require.NoError(t, err)

	assert.Equal(t, "Analysis parsing failed", analysis.Analysis)
	assert.Equal(t, types.ComplexityHigh, analysis.Complexity)
}

func TestAnalyzeUnknownComplexityCoercedToHigh(t *testing.T) {
	gen := &fakeGenerator{
		response: `{"analysis": "ok", "fix_strategy": "do it", "complexity": "trivial"}`,
	}
	a := newTestAnalyzer(t, gen)

	analysis, err := a.Analyze(context.Background(), testIssue(), "pkg/thing.go", testContext())
	require.NoError(t, err)

	assert.Equal(t, types.ComplexityHigh, analysis.Complexity)
}

func TestAnalyzeExtractsContextWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thing.go")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\nd\ne\n"), 0o644))

	gen := &fakeGenerator{
		response: `{"analysis": "ok", "fix_strategy": "do it", "complexity": "medium"}`,
	}
	a := newTestAnalyzer(t, gen)

	analysis, err := a.Analyze(context.Background(), testIssue(), path, nil)
	require.NoError(t, err)

	require.NotNil(t, analysis.Context)
	assert.Equal(t, 1, analysis.Context.StartLine)
	assert.Equal(t, 5, analysis.Context.EndLine)
	assert.Equal(t, types.ComplexityMedium, analysis.Complexity)
}

func TestAnalyzeContextExtractionFailureIsFatal(t *testing.T) {
	gen := &fakeGenerator{response: "{}"}
	a := newTestAnalyzer(t, gen)

	_, err := a.Analyze(context.Background(), testIssue(), filepath.Join(t.TempDir(), "missing.go"), nil)
	assert.Error(t, err)
}
