package fixer

import (
	"log/slog"
	"os"
	"strings"

	"github.com/tobyh/sonarfix/internal/types"
)

// Apply writes one generated fix into the working tree.
func (f *Fixer) Apply(filePath string, cc *types.CodeContext, fixedCode string) bool {
	return Apply(filePath, cc, fixedCode)
}

// Apply replaces the inclusive line range [StartLine, EndLine] of the
// file with fixedCode. The file is read into memory, spliced, and
// rewritten in a single write, so a failure never leaves a partial
// edit. Returns false (never panics) on any I/O problem.
func Apply(filePath string, cc *types.CodeContext, fixedCode string) bool {
	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Error("could not read file to apply fix", "file", filePath, "error", err)
		return false
	}

	lines := strings.SplitAfter(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	start := cc.StartLine - 1
	end := cc.EndLine - 1
	if start < 0 || end >= len(lines) || start > end {
		slog.Error("fix range out of bounds", "file", filePath, "start", cc.StartLine, "end", cc.EndLine, "lines", len(lines))
		return false
	}

	// Every replacement line except the last gets a newline, preserving
	// the original file's trailing-newline convention at the splice point.
	fixedLines := strings.Split(fixedCode, "\n")
	replacement := make([]string, len(fixedLines))
	for i, line := range fixedLines {
		if i < len(fixedLines)-1 {
			replacement[i] = line + "\n"
		} else {
			replacement[i] = line
		}
	}
	var out strings.Builder
	for _, line := range lines[:start] {
		out.WriteString(line)
	}
	for _, line := range replacement {
		out.WriteString(line)
	}
	for _, line := range lines[end+1:] {
		out.WriteString(line)
	}

	if err := os.WriteFile(filePath, []byte(out.String()), 0o644); err != nil {
		slog.Error("could not write fixed file", "file", filePath, "error", err)
		return false
	}

	slog.Info("applied fix", "file", filePath, "start", cc.StartLine, "end", cc.EndLine)
	return true
}
