package pr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobyh/sonarfix/internal/prompt"
	"github.com/tobyh/sonarfix/internal/retry"
	"github.com/tobyh/sonarfix/internal/types"
)

type fakeGenerator struct {
	response string
	err      error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return f.response, f.err
}

func testFixes() []*types.FixOutput {
	return []*types.FixOutput{
		{IssueKey: "ISSUE-1", FilePath: "pkg/a.go", Explanation: "removed dead code", Confidence: 0.9},
		{IssueKey: "ISSUE-2", FilePath: "pkg/b.go", Explanation: "closed the leak", Confidence: 0.8},
	}
}

func newTestCreator(t *testing.T, gen *fakeGenerator) *Creator {
	t.Helper()
	prompts, err := prompt.Load()
	require.NoError(t, err)

	c, err := NewCreator(gen, prompts, "gh-token", "acme", "widgets", retry.DefaultPolicy())
	require.NoError(t, err)
	return c
}

func TestNewCreatorValidation(t *testing.T) {
	prompts, err := prompt.Load()
	require.NoError(t, err)

	_, err = NewCreator(&fakeGenerator{}, prompts, "", "acme", "widgets", retry.DefaultPolicy())
	assert.Error(t, err)

	_, err = NewCreator(&fakeGenerator{}, prompts, "tok", "", "widgets", retry.DefaultPolicy())
	assert.Error(t, err)

	_, err = NewCreator(&fakeGenerator{}, prompts, "tok", "acme", "", retry.DefaultPolicy())
	assert.Error(t, err)
}

func TestComposeDescriptionFromModel(t *testing.T) {
	gen := &fakeGenerator{
		response: "```json\n{\"pr_title\": \"Fix unused variables\", \"pr_description\": \"Two fixes applied.\"}\n```",
	}
	c := newTestCreator(t, gen)

	title, description := c.composeDescription(context.Background(), testFixes())

	assert.Equal(t, "Fix unused variables", title)
	assert.Equal(t, "Two fixes applied.", description)
}

func TestComposeDescriptionModelErrorFallsBack(t *testing.T) {
	c := newTestCreator(t, &fakeGenerator{err: errors.New("503 service unavailable")})

	title, description := c.composeDescription(context.Background(), testFixes())

	assert.Equal(t, "Fix 2 static-analysis issues", title)
	assert.Contains(t, description, "ISSUE-1")
	assert.Contains(t, description, "ISSUE-2")
	assert.Contains(t, description, "pkg/a.go")
}

func TestComposeDescriptionUnparsableResponseFallsBack(t *testing.T) {
	c := newTestCreator(t, &fakeGenerator{response: "here is your PR, enjoy"})

	title, description := c.composeDescription(context.Background(), testFixes())

	assert.Equal(t, "Fix 2 static-analysis issues", title)
	assert.Contains(t, description, "generated automatically")
}

func TestComposeDescriptionPartialPayloadFallsBack(t *testing.T) {
	c := newTestCreator(t, &fakeGenerator{response: `{"pr_title": "Only a title"}`})

	title, _ := c.composeDescription(context.Background(), testFixes())
	assert.Equal(t, "Fix 2 static-analysis issues", title)
}

func TestFallbackDescriptionListsEveryFix(t *testing.T) {
	description := fallbackDescription(testFixes())

	assert.Contains(t, description, "This PR fixes 2 static-analysis issues.")
	assert.Contains(t, description, "**ISSUE-1**")
	assert.Contains(t, description, "`pkg/b.go`")
	assert.Contains(t, description, "closed the leak")
}
