package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tobyh/sonarfix/internal/types"
)

// ProcessResult aggregates the outcome of one fan-out over the issue list.
// Every issue lands in exactly one of Successes or Failures.
type ProcessResult struct {
	Successes []*types.FixOutput
	Failures  []types.Issue
	Timings   map[string]time.Duration
	TotalTime time.Duration
}

// Processor fans analyze+fix out over a bounded worker pool. Workers only
// generate fixes; nothing here touches the shared working tree, so tasks
// stay independent and a failing task never disturbs its siblings.
type Processor struct {
	analyzer IssueAnalyzer
	fixer    CodeFixer
	workers  int64
}

// NewProcessor creates a processor with maxWorkers concurrent tasks.
func NewProcessor(an IssueAnalyzer, fx CodeFixer, maxWorkers int) *Processor {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Processor{analyzer: an, fixer: fx, workers: int64(maxWorkers)}
}

// Process runs every issue through analyze+fix concurrently and collects
// results as tasks complete. Completion order is not meaningful.
func (p *Processor) Process(ctx context.Context, issues []types.Issue, repoRoot string) *ProcessResult {
	start := time.Now()
	result := &ProcessResult{Timings: make(map[string]time.Duration)}

	slog.Info("processing issues in parallel", "count", len(issues), "workers", p.workers)

	sem := semaphore.NewWeighted(p.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, issue := range issues {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context gone; everything not yet dispatched is a failure.
			mu.Lock()
			result.Failures = append(result.Failures, issue)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(issue types.Issue) {
			defer wg.Done()
			defer sem.Release(1)

			taskStart := time.Now()
			fix, err := p.processOne(ctx, issue, repoRoot)
			elapsed := time.Since(taskStart)

			mu.Lock()
			defer mu.Unlock()
			result.Timings[issue.Key] = elapsed
			if err != nil {
				slog.Warn("issue processing failed", "issue", issue.Key, "error", err)
				result.Failures = append(result.Failures, issue)
				return
			}
			fix.ProcessingTime = elapsed
			result.Successes = append(result.Successes, fix)
			slog.Info("issue processed", "issue", issue.Key, "duration", elapsed)
		}(issue)
	}

	wg.Wait()
	result.TotalTime = time.Since(start)

	slog.Info("parallel processing completed",
		"fixed", len(result.Successes), "failed", len(result.Failures), "duration", result.TotalTime)
	return result
}

// processOne runs the analyze+fix pipeline for a single issue. Any panic
// in the pipeline is converted to an error so one bad task cannot take
// down the pool.
func (p *Processor) processOne(ctx context.Context, issue types.Issue, repoRoot string) (fix *types.FixOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			fix = nil
			err = fmt.Errorf("panic processing issue %s: %v", issue.Key, r)
		}
	}()

	fullPath := filepath.Join(repoRoot, issue.FilePath())
	if _, statErr := os.Stat(fullPath); statErr != nil {
		return nil, fmt.Errorf("file not found: %s", issue.FilePath())
	}

	analysis, err := p.analyzer.Analyze(ctx, issue, fullPath, nil)
	if err != nil {
		return nil, err
	}

	return p.fixer.Fix(ctx, analysis, true)
}
