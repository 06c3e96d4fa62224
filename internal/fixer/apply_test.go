package fixer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobyh/sonarfix/internal/codectx"
	"github.com/tobyh/sonarfix/internal/types"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.go")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestApplyReplacesRange(t *testing.T) {
	path := writeFile(t, "one\ntwo\nthree\nfour\nfive\n")

	cc := &types.CodeContext{StartLine: 2, EndLine: 4}
	ok := Apply(path, cc, "TWO\nTHREE\nFOUR\n")

	require.True(t, ok)
	assert.Equal(t, "one\nTWO\nTHREE\nFOUR\nfive\n", readFile(t, path))
}

func TestApplyDifferentLineCount(t *testing.T) {
	path := writeFile(t, "one\ntwo\nthree\nfour\n")

	cc := &types.CodeContext{StartLine: 2, EndLine: 3}
	ok := Apply(path, cc, "merged\n")

	require.True(t, ok)
	assert.Equal(t, "one\nmerged\nfour\n", readFile(t, path))
}

func TestApplyOriginalContextRoundTrips(t *testing.T) {
	content := "alpha\nbeta\ngamma\ndelta\nepsilon\n"
	path := writeFile(t, content)

	cc, err := codectx.Extract(path, 3, 1, 1)
	require.NoError(t, err)

	// Applying the extracted context unchanged must leave the file
	// byte-identical.
	require.True(t, Apply(path, cc, cc.ContextText))
	assert.Equal(t, content, readFile(t, path))
}

func TestApplyRoundTripsWithoutTrailingNewline(t *testing.T) {
	content := "alpha\nbeta\ngamma"
	path := writeFile(t, content)

	cc, err := codectx.Extract(path, 3, 1, 1)
	require.NoError(t, err)

	require.True(t, Apply(path, cc, cc.ContextText))
	assert.Equal(t, content, readFile(t, path))
}

func TestApplyWholeFile(t *testing.T) {
	path := writeFile(t, "a\nb\n")

	cc := &types.CodeContext{StartLine: 1, EndLine: 2}
	ok := Apply(path, cc, "replaced\n")

	require.True(t, ok)
	assert.Equal(t, "replaced\n", readFile(t, path))
}

func TestApplyOutOfBoundsFails(t *testing.T) {
	content := "a\nb\nc\n"
	path := writeFile(t, content)

	assert.False(t, Apply(path, &types.CodeContext{StartLine: 0, EndLine: 2}, "x"))
	assert.False(t, Apply(path, &types.CodeContext{StartLine: 2, EndLine: 5}, "x"))
	assert.False(t, Apply(path, &types.CodeContext{StartLine: 3, EndLine: 2}, "x"))

	// A rejected apply must not touch the file.
	assert.Equal(t, content, readFile(t, path))
}

func TestApplyMissingFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.go")
	assert.False(t, Apply(path, &types.CodeContext{StartLine: 1, EndLine: 1}, "x"))
}
