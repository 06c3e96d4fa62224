// sonarfix fetches open SonarQube issues, generates fixes with an LLM,
// applies them to a fresh clone, and opens a pull request.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tobyh/sonarfix/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "sonarfix",
	Short: "Automated SonarQube issue fixer",
	Long: `sonarfix fetches open issues from SonarQube, asks a language model to
analyze and fix each one, applies the fixes to a fresh clone of the
repository, and opens a pull request with the result.

All configuration comes from environment variables; run with no
arguments to see available commands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(os.Stderr, os.Getenv("LOG_LEVEL"))
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
