// Package workflow drives one fixer run through an explicit state
// machine: fetch issues, set up the clone, process issues, open a PR,
// and clean up.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tobyh/sonarfix/internal/pr"
	"github.com/tobyh/sonarfix/internal/types"
)

// State identifies a step of the run. Transitions only happen inside
// Run, so illegal jumps cannot be expressed by callers.
type State int

const (
	StateFetchIssues State = iota
	StateSetupRepository
	StateProcessIssues
	StateCreatePullRequest
	StateCleanup
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateFetchIssues:
		return "fetch_issues"
	case StateSetupRepository:
		return "setup_repository"
	case StateProcessIssues:
		return "process_issues"
	case StateCreatePullRequest:
		return "create_pull_request"
	case StateCleanup:
		return "cleanup"
	case StateEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Status is the run-level outcome.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Params are the caller-supplied knobs for one run.
type Params struct {
	MaxIssues       int
	DaysLookback    int
	ParallelWorkers int
	UseParallel     bool
}

// RunState is the single mutable record threaded through a run. Exactly
// one instance exists per run and only the engine touches it.
type RunState struct {
	RunID  string
	Params Params

	StartTime time.Time
	Status    Status
	Error     string

	RepoPath   string
	BranchName string

	Issues            []types.Issue
	CurrentIssueIndex int
	Analyzed          []*types.IssueAnalysis
	Fixed             []*types.FixOutput
	Skipped           []types.Issue
	ProcessingTimes   map[string]time.Duration

	PRURL         string
	PRTitle       string
	PRDescription string

	NumIssuesFound int
	NumIssuesFixed int
	Duration       time.Duration
	ParallelTime   time.Duration

	// appliedFiles guards against two fixes touching the same file in
	// one run; the second fix would clobber the first, so it is skipped.
	appliedFiles map[string]bool
}

// IssueFetcher fetches open issues from the quality server.
type IssueFetcher interface {
	FetchNewIssues(ctx context.Context, maxIssues, days int) ([]types.Issue, error)
}

// RepoManager owns the run's repository clone.
type RepoManager interface {
	Clone(ctx context.Context) (string, error)
	CreateBranch(ctx context.Context, name string) error
	Commit(ctx context.Context, filePath, message string) error
	Push(ctx context.Context, branch string) error
	Cleanup()
}

// IssueAnalyzer produces a structured analysis for one issue.
type IssueAnalyzer interface {
	Analyze(ctx context.Context, issue types.Issue, filePath string, cc *types.CodeContext) (*types.IssueAnalysis, error)
}

// CodeFixer generates and applies fixes.
type CodeFixer interface {
	Fix(ctx context.Context, analysis *types.IssueAnalysis, useMemory bool) (*types.FixOutput, error)
	Apply(filePath string, cc *types.CodeContext, fixedCode string) bool
}

// PullRequestCreator opens the run's pull request.
type PullRequestCreator interface {
	Create(ctx context.Context, fixes []*types.FixOutput, sourceBranch, targetBranch string) (*pr.Result, error)
}

// Engine wires the collaborators for a run. Construct one per process;
// each Run gets a fresh RunState, so runs never share state.
type Engine struct {
	fetcher      IssueFetcher
	repo         RepoManager
	analyzer     IssueAnalyzer
	fixer        CodeFixer
	prCreator    PullRequestCreator
	targetBranch string
}

// NewEngine builds an engine from explicit collaborators.
func NewEngine(fetcher IssueFetcher, repo RepoManager, an IssueAnalyzer, fx CodeFixer, prc PullRequestCreator, targetBranch string) *Engine {
	return &Engine{
		fetcher:      fetcher,
		repo:         repo,
		analyzer:     an,
		fixer:        fx,
		prCreator:    prc,
		targetBranch: targetBranch,
	}
}

// Run executes the workflow to completion and returns the final state.
// Handler errors set StatusError and route to cleanup; cleanup always
// runs before the run ends.
func (e *Engine) Run(ctx context.Context, params Params) *RunState {
	st := &RunState{
		RunID:           uuid.NewString(),
		Params:          params,
		StartTime:       time.Now(),
		Status:          StatusRunning,
		ProcessingTimes: make(map[string]time.Duration),
		appliedFiles:    make(map[string]bool),
	}

	slog.Info("starting fixer run",
		"run_id", st.RunID,
		"max_issues", params.MaxIssues,
		"days_lookback", params.DaysLookback,
		"parallel_workers", params.ParallelWorkers,
		"use_parallel", params.UseParallel)

	state := StateFetchIssues
	for state != StateEnd {
		state = e.step(ctx, state, st)
	}

	if st.Status == StatusCompleted {
		slog.Info("run completed",
			"found", st.NumIssuesFound, "fixed", st.NumIssuesFixed, "duration", st.Duration)
	} else {
		slog.Error("run failed", "error", st.Error, "duration", st.Duration)
	}
	return st
}

// step dispatches one state handler. A handler error is terminal for the
// run but cleanup still executes.
func (e *Engine) step(ctx context.Context, state State, st *RunState) State {
	slog.Debug("entering state", "state", state)

	var next State
	var err error
	switch state {
	case StateFetchIssues:
		next, err = e.fetchIssues(ctx, st)
	case StateSetupRepository:
		next, err = e.setupRepository(ctx, st)
	case StateProcessIssues:
		next, err = e.processIssues(ctx, st)
	case StateCreatePullRequest:
		next, err = e.createPullRequest(ctx, st)
	case StateCleanup:
		return e.cleanup(st)
	default:
		return StateEnd
	}

	if err != nil {
		st.Status = StatusError
		st.Error = fmt.Sprintf("%s: %v", state, err)
		slog.Error("state failed", "state", state, "error", err)
		return StateCleanup
	}
	return next
}

func (e *Engine) fetchIssues(ctx context.Context, st *RunState) (State, error) {
	issues, err := e.fetcher.FetchNewIssues(ctx, st.Params.MaxIssues, st.Params.DaysLookback)
	if err != nil {
		return 0, fmt.Errorf("fetch issues: %w", err)
	}

	st.Issues = issues
	st.NumIssuesFound = len(issues)

	if len(issues) == 0 {
		slog.Info("no issues found, nothing to do")
		st.Status = StatusCompleted
		return StateCleanup, nil
	}

	slog.Info("found issues to fix", "count", len(issues))
	return StateSetupRepository, nil
}

func (e *Engine) setupRepository(ctx context.Context, st *RunState) (State, error) {
	st.BranchName = fmt.Sprintf("fix/sonar-%s", time.Now().Format("20060102-150405"))

	repoPath, err := e.repo.Clone(ctx)
	if err != nil {
		return 0, fmt.Errorf("clone repository: %w", err)
	}
	st.RepoPath = repoPath

	if err := e.repo.CreateBranch(ctx, st.BranchName); err != nil {
		return 0, fmt.Errorf("create branch: %w", err)
	}
	return StateProcessIssues, nil
}

func (e *Engine) processIssues(ctx context.Context, st *RunState) (State, error) {
	if st.Params.UseParallel {
		return e.processParallel(ctx, st)
	}
	return e.processSequential(ctx, st)
}

// processParallel fans out over the whole issue list once, then applies
// and commits the successful fixes one at a time. The working tree is
// shared mutable state: fix generation may be concurrent, but writes to
// the tree are strictly serial.
func (e *Engine) processParallel(ctx context.Context, st *RunState) (State, error) {
	processor := NewProcessor(e.analyzer, e.fixer, st.Params.ParallelWorkers)
	result := processor.Process(ctx, st.Issues, st.RepoPath)

	st.Skipped = append(st.Skipped, result.Failures...)
	st.ParallelTime = result.TotalTime
	for key, d := range result.Timings {
		st.ProcessingTimes[key] = d
	}

	for _, fix := range result.Successes {
		if err := e.applyAndCommit(ctx, st, fix); err != nil {
			slog.Warn("could not apply fix", "issue", fix.IssueKey, "error", err)
			st.Skipped = append(st.Skipped, issueForFix(st.Issues, fix))
			continue
		}
		st.Fixed = append(st.Fixed, fix)
	}

	slog.Info("issue processing finished", "fixed", len(st.Fixed), "skipped", len(st.Skipped))
	return StateCreatePullRequest, nil
}

// processSequential handles one issue per step, self-transitioning until
// the index reaches the end of the list.
func (e *Engine) processSequential(ctx context.Context, st *RunState) (State, error) {
	if st.CurrentIssueIndex >= len(st.Issues) {
		slog.Info("all issues processed", "fixed", len(st.Fixed), "skipped", len(st.Skipped))
		return StateCreatePullRequest, nil
	}

	issue := st.Issues[st.CurrentIssueIndex]
	st.CurrentIssueIndex++

	slog.Info("processing issue",
		"issue", issue.Key, "index", st.CurrentIssueIndex, "total", len(st.Issues))

	start := time.Now()
	fix, err := e.processOneSequential(ctx, st, issue)
	st.ProcessingTimes[issue.Key] = time.Since(start)

	if err != nil {
		slog.Warn("skipping issue", "issue", issue.Key, "error", err)
		st.Skipped = append(st.Skipped, issue)
		return StateProcessIssues, nil
	}

	fix.ProcessingTime = st.ProcessingTimes[issue.Key]
	st.Fixed = append(st.Fixed, fix)
	return StateProcessIssues, nil
}

func (e *Engine) processOneSequential(ctx context.Context, st *RunState, issue types.Issue) (*types.FixOutput, error) {
	fullPath := filepath.Join(st.RepoPath, issue.FilePath())
	if _, err := os.Stat(fullPath); err != nil {
		return nil, fmt.Errorf("file not found: %s", issue.FilePath())
	}

	analysis, err := e.analyzer.Analyze(ctx, issue, fullPath, nil)
	if err != nil {
		return nil, err
	}
	st.Analyzed = append(st.Analyzed, analysis)

	fix, err := e.fixer.Fix(ctx, analysis, true)
	if err != nil {
		return nil, err
	}

	if err := e.applyAndCommit(ctx, st, fix); err != nil {
		return nil, err
	}
	return fix, nil
}

// applyAndCommit writes one fix into the shared working tree and commits
// it. A file already modified in this run is not touched again: a second
// fix was generated against stale context and would overwrite the first.
func (e *Engine) applyAndCommit(ctx context.Context, st *RunState, fix *types.FixOutput) error {
	if fix.Context == nil {
		return fmt.Errorf("fix for issue %s is missing its code context", fix.IssueKey)
	}
	if st.appliedFiles[fix.FilePath] {
		return fmt.Errorf("file %s already modified in this run", fix.FilePath)
	}

	fullPath := filepath.Join(st.RepoPath, fix.FilePath)
	if !e.fixer.Apply(fullPath, fix.Context, fix.FixedCode) {
		return fmt.Errorf("could not apply fix to %s", fix.FilePath)
	}
	st.appliedFiles[fix.FilePath] = true

	message := fmt.Sprintf("Fix SonarQube issue: %s\n\n%s", fix.IssueKey, fix.Message)
	if err := e.repo.Commit(ctx, fix.FilePath, message); err != nil {
		return fmt.Errorf("commit fix: %w", err)
	}
	return nil
}

func (e *Engine) createPullRequest(ctx context.Context, st *RunState) (State, error) {
	if len(st.Fixed) == 0 {
		slog.Info("no issues were fixed, skipping PR creation")
		st.Status = StatusCompleted
		return StateCleanup, nil
	}

	if err := e.repo.Push(ctx, st.BranchName); err != nil {
		return 0, fmt.Errorf("push branch: %w", err)
	}

	result, err := e.prCreator.Create(ctx, st.Fixed, st.BranchName, e.targetBranch)
	if err != nil {
		return 0, fmt.Errorf("create pull request: %w", err)
	}

	st.PRURL = result.URL
	st.PRTitle = result.Title
	st.PRDescription = result.Description
	st.NumIssuesFixed = len(st.Fixed)
	st.Status = StatusCompleted
	return StateCleanup, nil
}

// cleanup always runs, whatever happened before it.
func (e *Engine) cleanup(st *RunState) State {
	if st.RepoPath != "" {
		e.repo.Cleanup()
	}
	st.Duration = time.Since(st.StartTime)
	return StateEnd
}

func issueForFix(issues []types.Issue, fix *types.FixOutput) types.Issue {
	for _, issue := range issues {
		if issue.Key == fix.IssueKey {
			return issue
		}
	}
	return types.Issue{Key: fix.IssueKey, Rule: fix.Rule, Message: fix.Message}
}
