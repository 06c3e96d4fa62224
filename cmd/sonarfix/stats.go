package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tobyh/sonarfix/internal/config"
	"github.com/tobyh/sonarfix/internal/feedback"
	"github.com/tobyh/sonarfix/internal/memory"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fix memory and feedback statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		mem := memory.NewStore(cfg.App.MemoryFile)
		fb := feedback.NewManager(cfg.App.FeedbackFile, mem)

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		ms := mem.Stats()
		fmt.Printf("\n%s\n\n", cyan("=== Fix Memory ==="))
		fmt.Printf("  Records:      %d\n", ms.Total)
		fmt.Printf("  Successful:   %d\n", ms.Successful)
		fmt.Printf("  Success rate: %.1f%%\n", ms.SuccessRate*100)

		if len(ms.Rules) > 0 {
			fmt.Printf("\n%s\n", yellow("By rule:"))
			rules := make([]string, 0, len(ms.Rules))
			for rule := range ms.Rules {
				rules = append(rules, rule)
			}
			sort.Strings(rules)
			for _, rule := range rules {
				rs := ms.Rules[rule]
				fmt.Printf("  %-40s %d/%d successful\n", rule, rs.Successful, rs.Total)
			}
		}

		fs := fb.StatsBySource()
		fmt.Printf("\n%s\n\n", cyan("=== Feedback ==="))
		fmt.Printf("  Items:         %d\n", fs.Total)
		fmt.Printf("  Positive:      %d\n", fs.Positive)
		fmt.Printf("  Positive rate: %.1f%%\n", fs.PositiveRate*100)

		if len(fs.Sources) > 0 {
			fmt.Printf("\n%s\n", yellow("By source:"))
			sources := make([]string, 0, len(fs.Sources))
			for source := range fs.Sources {
				sources = append(sources, source)
			}
			sort.Strings(sources)
			for _, source := range sources {
				ss := fs.Sources[source]
				fmt.Printf("  %-12s %d total, %d positive\n", source, ss.Total, ss.Positive)
			}
		}

		if ms.Total == 0 && fs.Total == 0 {
			fmt.Printf("  %s\n", gray("No runs recorded yet"))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
