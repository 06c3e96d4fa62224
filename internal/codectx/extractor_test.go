package codectx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.go")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func numberedLines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

func TestExtractWindowAroundMiddleLine(t *testing.T) {
	path := writeTempFile(t, numberedLines(100))

	cc, err := Extract(path, 50, 10, 10)
	require.NoError(t, err)

	assert.Equal(t, 50, cc.TargetLine)
	assert.Equal(t, 40, cc.StartLine)
	assert.Equal(t, 60, cc.EndLine)
	assert.True(t, strings.HasPrefix(cc.ContextText, "line 40\n"))
	assert.True(t, strings.HasSuffix(cc.ContextText, "line 60\n"))
	assert.Equal(t, 21, strings.Count(cc.ContextText, "\n"))
}

func TestExtractClampsToFileBounds(t *testing.T) {
	path := writeTempFile(t, numberedLines(20))

	cc, err := Extract(path, 5, 10, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, cc.StartLine)
	assert.Equal(t, 15, cc.EndLine)

	cc, err = Extract(path, 18, 10, 10)
	require.NoError(t, err)

	assert.Equal(t, 8, cc.StartLine)
	assert.Equal(t, 20, cc.EndLine)
}

func TestExtractWholeFileWhenWindowCoversIt(t *testing.T) {
	content := numberedLines(5)
	path := writeTempFile(t, content)

	cc, err := Extract(path, 3, 10, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, cc.StartLine)
	assert.Equal(t, 5, cc.EndLine)
	assert.Equal(t, content, cc.ContextText)
}

func TestExtractFileWithoutTrailingNewline(t *testing.T) {
	path := writeTempFile(t, "first\nsecond\nthird")

	cc, err := Extract(path, 3, 1, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, cc.StartLine)
	assert.Equal(t, 3, cc.EndLine)
	assert.Equal(t, "second\nthird", cc.ContextText)
	assert.Len(t, cc.AllLines, 3)
}

func TestExtractLineZeroTreatedAsFirstLine(t *testing.T) {
	path := writeTempFile(t, numberedLines(10))

	cc, err := Extract(path, 0, 2, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, cc.TargetLine)
	assert.Equal(t, 1, cc.StartLine)
	assert.Equal(t, 3, cc.EndLine)
}

func TestExtractErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Extract(filepath.Join(t.TempDir(), "nope.go"), 1, 5, 5)
		assert.Error(t, err)
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeTempFile(t, "")
		_, err := Extract(path, 1, 5, 5)
		assert.Error(t, err)
	})

	t.Run("line past end of file", func(t *testing.T) {
		path := writeTempFile(t, numberedLines(10))
		_, err := Extract(path, 11, 5, 5)
		assert.Error(t, err)
	})
}
