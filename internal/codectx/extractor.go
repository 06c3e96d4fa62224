// Package codectx extracts bounded windows of source code around a line.
package codectx

import (
	"fmt"
	"os"
	"strings"

	"github.com/tobyh/sonarfix/internal/types"
)

// Extract returns the window of lines surrounding line in the given file.
// The window is [line-before, line+after], clamped to the file bounds;
// StartLine and EndLine in the result are 1-based inclusive. Extract is a
// pure function of the file content and has no side effects.
func Extract(filePath string, line, before, after int) (*types.CodeContext, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}

	lines := strings.SplitAfter(string(data), "\n")
	// SplitAfter leaves a trailing empty element when the file ends with
	// a newline; it is not a real line.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("file %s is empty", filePath)
	}

	if line < 1 {
		line = 1
	}
	if line > len(lines) {
		return nil, fmt.Errorf("line %d out of range for %s (%d lines)", line, filePath, len(lines))
	}

	start := line - before
	if start < 1 {
		start = 1
	}
	end := line + after
	if end > len(lines) {
		end = len(lines)
	}

	return &types.CodeContext{
		FilePath:    filePath,
		TargetLine:  line,
		StartLine:   start,
		EndLine:     end,
		ContextText: strings.Join(lines[start-1:end], ""),
		AllLines:    lines,
	}, nil
}
