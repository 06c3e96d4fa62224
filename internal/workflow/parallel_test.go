package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobyh/sonarfix/internal/types"
)

// fakeAnalyzer returns a canned analysis per issue key.
type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, issue types.Issue, filePath string, cc *types.CodeContext) (*types.IssueAnalysis, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.fail[issue.Key] {
		return nil, errors.New("analysis failed")
	}
	return &types.IssueAnalysis{
		IssueKey: issue.Key,
		Rule:     issue.Rule,
		Message:  issue.Message,
		FilePath: issue.FilePath(),
		Context: &types.CodeContext{
			FilePath:    issue.FilePath(),
			StartLine:   1,
			EndLine:     1,
			ContextText: "old\n",
		},
	}, nil
}

// fakeFixer produces a trivial fix, with per-key failure and panic modes.
type fakeFixer struct {
	mu       sync.Mutex
	fail     map[string]bool
	panics   map[string]bool
	applyOK  bool
	applied  []string
	fixCalls int
}

func (f *fakeFixer) Fix(ctx context.Context, analysis *types.IssueAnalysis, useMemory bool) (*types.FixOutput, error) {
	f.mu.Lock()
	f.fixCalls++
	f.mu.Unlock()

	if f.panics[analysis.IssueKey] {
		panic("fixer exploded")
	}
	if f.fail[analysis.IssueKey] {
		return nil, errors.New("fix failed")
	}
	return &types.FixOutput{
		IssueKey:  analysis.IssueKey,
		Rule:      analysis.Rule,
		Message:   analysis.Message,
		FilePath:  analysis.FilePath,
		FixedCode: "new\n",
		Context:   analysis.Context,
	}, nil
}

func (f *fakeFixer) Apply(filePath string, cc *types.CodeContext, fixedCode string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, filePath)
	return f.applyOK
}

func makeRepo(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))
	}
	return root
}

func makeIssues(n int) []types.Issue {
	issues := make([]types.Issue, n)
	for i := range issues {
		issues[i] = types.Issue{
			Key:       fmt.Sprintf("ISSUE-%d", i),
			Rule:      "go:S1481",
			Message:   "unused variable",
			Component: fmt.Sprintf("proj:pkg/file%d.go", i),
			Line:      1,
		}
	}
	return issues
}

func TestProcessAllSucceed(t *testing.T) {
	issues := makeIssues(5)
	files := make([]string, len(issues))
	for i, issue := range issues {
		files[i] = issue.FilePath()
	}
	root := makeRepo(t, files...)

	p := NewProcessor(&fakeAnalyzer{}, &fakeFixer{applyOK: true}, 3)
	result := p.Process(context.Background(), issues, root)

	assert.Len(t, result.Successes, 5)
	assert.Empty(t, result.Failures)
	assert.Len(t, result.Timings, 5)
	for _, fix := range result.Successes {
		assert.NotZero(t, fix.ProcessingTime)
	}
}

func TestProcessEveryIssueLandsExactlyOnce(t *testing.T) {
	issues := makeIssues(6)
	files := make([]string, 0, len(issues))
	for _, issue := range issues[:5] {
		files = append(files, issue.FilePath())
	}
	// ISSUE-5's file does not exist.
	root := makeRepo(t, files...)

	an := &fakeAnalyzer{fail: map[string]bool{"ISSUE-1": true}}
	fx := &fakeFixer{
		applyOK: true,
		fail:    map[string]bool{"ISSUE-2": true},
		panics:  map[string]bool{"ISSUE-3": true},
	}

	p := NewProcessor(an, fx, 2)
	result := p.Process(context.Background(), issues, root)

	assert.Len(t, result.Successes, 2)
	assert.Len(t, result.Failures, 4)
	assert.Equal(t, len(issues), len(result.Successes)+len(result.Failures))

	failedKeys := make(map[string]bool)
	for _, issue := range result.Failures {
		failedKeys[issue.Key] = true
	}
	assert.True(t, failedKeys["ISSUE-1"])
	assert.True(t, failedKeys["ISSUE-2"])
	assert.True(t, failedKeys["ISSUE-3"])
	assert.True(t, failedKeys["ISSUE-5"])
}

func TestProcessPanicDoesNotKillPool(t *testing.T) {
	issues := makeIssues(3)
	files := make([]string, len(issues))
	for i, issue := range issues {
		files[i] = issue.FilePath()
	}
	root := makeRepo(t, files...)

	fx := &fakeFixer{applyOK: true, panics: map[string]bool{"ISSUE-0": true}}
	p := NewProcessor(&fakeAnalyzer{}, fx, 1)

	result := p.Process(context.Background(), issues, root)

	assert.Len(t, result.Successes, 2)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "ISSUE-0", result.Failures[0].Key)
}

func TestProcessCancelledContext(t *testing.T) {
	issues := makeIssues(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewProcessor(&fakeAnalyzer{}, &fakeFixer{applyOK: true}, 2)
	result := p.Process(ctx, issues, t.TempDir())

	// Nothing dispatched; every issue is a failure.
	assert.Empty(t, result.Successes)
	assert.Len(t, result.Failures, 4)
}

func TestProcessEmptyIssueList(t *testing.T) {
	p := NewProcessor(&fakeAnalyzer{}, &fakeFixer{applyOK: true}, 2)
	result := p.Process(context.Background(), nil, t.TempDir())

	assert.Empty(t, result.Successes)
	assert.Empty(t, result.Failures)
}

func TestNewProcessorClampsWorkers(t *testing.T) {
	p := NewProcessor(&fakeAnalyzer{}, &fakeFixer{}, 0)
	assert.Equal(t, int64(1), p.workers)
}
