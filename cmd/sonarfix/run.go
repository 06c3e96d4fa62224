package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tobyh/sonarfix/internal/ai"
	"github.com/tobyh/sonarfix/internal/analyzer"
	"github.com/tobyh/sonarfix/internal/config"
	"github.com/tobyh/sonarfix/internal/feedback"
	"github.com/tobyh/sonarfix/internal/fixer"
	"github.com/tobyh/sonarfix/internal/gitrepo"
	"github.com/tobyh/sonarfix/internal/memory"
	"github.com/tobyh/sonarfix/internal/pr"
	"github.com/tobyh/sonarfix/internal/prompt"
	"github.com/tobyh/sonarfix/internal/retry"
	"github.com/tobyh/sonarfix/internal/sonar"
	"github.com/tobyh/sonarfix/internal/workflow"
)

var (
	runMaxIssues       int
	runDaysLookback    int
	runParallelWorkers int
	runNoParallel      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch issues, generate fixes, and open a pull request",
	Long: `Run one full fixer pass: fetch open SonarQube issues, analyze and fix
each one with the language model, commit the fixes to a new branch, and
open a pull request. Flags override the corresponding environment
variables for this run only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		engine, params, err := buildEngine(cfg)
		if err != nil {
			return err
		}

		st := engine.Run(context.Background(), params)
		printRunSummary(st)

		if st.Status != workflow.StatusCompleted {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runMaxIssues, "max-issues", 0, "maximum issues to process (default from MAX_ISSUES_PER_RUN)")
	runCmd.Flags().IntVar(&runDaysLookback, "days-lookback", 7, "only fetch issues created in the last N days")
	runCmd.Flags().IntVar(&runParallelWorkers, "parallel-workers", 0, "concurrent fix workers (default from PARALLEL_WORKERS)")
	runCmd.Flags().BoolVar(&runNoParallel, "no-parallel", false, "process issues one at a time")
	rootCmd.AddCommand(runCmd)
}

// buildEngine wires every collaborator from config.
func buildEngine(cfg *config.Config) (*workflow.Engine, workflow.Params, error) {
	policy := retry.Policy{
		MaxAttempts:  cfg.App.RetryAttempts,
		InitialDelay: time.Duration(cfg.App.RetryDelaySeconds) * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	prompts, err := prompt.Load()
	if err != nil {
		return nil, workflow.Params{}, fmt.Errorf("load prompt catalog: %w", err)
	}

	llm, err := ai.NewClient(ai.Config{
		APIKey: cfg.Anthropic.APIKey,
		Model:  cfg.Anthropic.Model,
		Retry:  policy,
	})
	if err != nil {
		return nil, workflow.Params{}, err
	}

	sonarClient, err := sonar.NewClient(cfg.Sonar.URL, cfg.Sonar.Token, policy)
	if err != nil {
		return nil, workflow.Params{}, err
	}
	fetcher := sonar.NewFetcher(sonarClient, cfg.Sonar.ProjectKey)

	repo, err := gitrepo.NewManager(cfg.Git, cfg.App.TempDir, policy)
	if err != nil {
		return nil, workflow.Params{}, err
	}

	mem := memory.NewStore(cfg.App.MemoryFile)
	fb := feedback.NewManager(cfg.App.FeedbackFile, mem)

	an := analyzer.New(llm, prompts, cfg.App.ContextLinesBefore, cfg.App.ContextLinesAfter)
	fx := fixer.New(llm, prompts, mem, fb)

	creator, err := pr.NewCreator(llm, prompts, cfg.GitHub.Token, cfg.GitHub.Owner, cfg.GitHub.Repo, policy)
	if err != nil {
		return nil, workflow.Params{}, err
	}

	maxIssues := runMaxIssues
	if maxIssues <= 0 {
		maxIssues = cfg.App.MaxIssuesPerRun
	}
	workers := runParallelWorkers
	if workers <= 0 {
		workers = cfg.App.ParallelWorkers
	}

	params := workflow.Params{
		MaxIssues:       maxIssues,
		DaysLookback:    runDaysLookback,
		ParallelWorkers: workers,
		UseParallel:     !runNoParallel,
	}
	engine := workflow.NewEngine(fetcher, repo, an, fx, creator, cfg.Git.MasterBranch)
	return engine, params, nil
}

func printRunSummary(st *workflow.RunState) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== Fixer Run Summary ==="))

	if st.Status == workflow.StatusCompleted {
		fmt.Printf("  Status:   %s\n", green(string(st.Status)))
	} else {
		fmt.Printf("  Status:   %s\n", red(string(st.Status)))
	}
	fmt.Printf("  Found:    %d issues\n", st.NumIssuesFound)
	fmt.Printf("  Fixed:    %d issues\n", len(st.Fixed))
	if len(st.Skipped) > 0 {
		fmt.Printf("  Skipped:  %d issues\n", len(st.Skipped))
	}

	if st.PRURL != "" {
		fmt.Printf("  PR:       %s\n", st.PRURL)
	}
	if st.Error != "" {
		fmt.Printf("  Error:    %s\n", red(st.Error))
	}

	fmt.Printf("  Duration: %s\n", gray(st.Duration.Round(time.Second).String()))
	if st.ParallelTime > 0 {
		fmt.Printf("  Parallel: %s\n", gray(st.ParallelTime.Round(time.Second).String()))
	}
	fmt.Println()
}
