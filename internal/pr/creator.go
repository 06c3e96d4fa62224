// Package pr synthesizes a pull-request description from the run's fixes
// and opens the PR on GitHub.
package pr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/tobyh/sonarfix/internal/ai"
	"github.com/tobyh/sonarfix/internal/prompt"
	"github.com/tobyh/sonarfix/internal/retry"
	"github.com/tobyh/sonarfix/internal/types"
)

// Result describes the created pull request.
type Result struct {
	URL         string
	Title       string
	Description string
	IssuesFixed int
}

// Creator opens pull requests with model-written descriptions.
type Creator struct {
	llm     ai.Generator
	prompts *prompt.Catalog
	gh      *github.Client
	owner   string
	repo    string
	policy  retry.Policy
}

// descriptionPayload is the JSON shape the model is asked to return.
type descriptionPayload struct {
	PRTitle       string `json:"pr_title"`
	PRDescription string `json:"pr_description"`
}

// NewCreator builds a Creator for one GitHub repository.
func NewCreator(llm ai.Generator, prompts *prompt.Catalog, token, owner, repo string, policy retry.Policy) (*Creator, error) {
	if token == "" || owner == "" || repo == "" {
		return nil, fmt.Errorf("github token, owner and repo are required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	return &Creator{
		llm:     llm,
		prompts: prompts,
		gh:      github.NewClient(tc),
		owner:   owner,
		repo:    repo,
		policy:  policy,
	}, nil
}

// Create synthesizes a title and description for the fixed issues and
// opens a PR from sourceBranch into targetBranch. Description synthesis
// degrades to a deterministic markdown summary when the model response
// cannot be parsed; PR creation itself is retried.
func (c *Creator) Create(ctx context.Context, fixes []*types.FixOutput, sourceBranch, targetBranch string) (*Result, error) {
	title, description := c.composeDescription(ctx, fixes)

	slog.Info("creating pull request", "source", sourceBranch, "target", targetBranch, "fixes", len(fixes))

	var created *github.PullRequest
	err := retry.Do(ctx, c.policy, "create pull request", func(ctx context.Context) error {
		pull, _, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
			Title: github.Ptr(title),
			Head:  github.Ptr(sourceBranch),
			Base:  github.Ptr(targetBranch),
			Body:  github.Ptr(description),
		})
		if err != nil {
			return err
		}
		created = pull
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		URL:         created.GetHTMLURL(),
		Title:       title,
		Description: description,
		IssuesFixed: len(fixes),
	}
	slog.Info("pull request created", "url", result.URL)
	return result, nil
}

// composeDescription asks the model for a PR title and body, falling
// back to a generated summary when the call or the parse fails.
func (c *Creator) composeDescription(ctx context.Context, fixes []*types.FixOutput) (string, string) {
	fallbackTitle := fmt.Sprintf("Fix %d static-analysis issues", len(fixes))

	summaries := make([]map[string]any, 0, len(fixes))
	for _, fix := range fixes {
		summaries = append(summaries, map[string]any{
			"issue_key":   fix.IssueKey,
			"file_path":   fix.FilePath,
			"explanation": fix.Explanation,
			"confidence":  fix.Confidence,
		})
	}
	fixesJSON, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return fallbackTitle, fallbackDescription(fixes)
	}

	promptText, err := c.prompts.Render("pr_description", prompt.Vars{
		"fixed_issues_json": string(fixesJSON),
	})
	if err != nil {
		slog.Warn("could not render PR prompt, using fallback description", "error", err)
		return fallbackTitle, fallbackDescription(fixes)
	}

	response, err := c.llm.Generate(ctx, promptText)
	if err != nil {
		slog.Warn("model call failed for PR description, using fallback", "error", err)
		return fallbackTitle, fallbackDescription(fixes)
	}

	parsed := ai.ExtractJSON[descriptionPayload](response)
	if !parsed.OK || parsed.Data.PRTitle == "" || parsed.Data.PRDescription == "" {
		slog.Warn("could not parse PR description response, using fallback", "reason", parsed.Reason)
		return fallbackTitle, fallbackDescription(fixes)
	}
	return parsed.Data.PRTitle, parsed.Data.PRDescription
}

// fallbackDescription renders a deterministic markdown summary.
func fallbackDescription(fixes []*types.FixOutput) string {
	var b strings.Builder
	b.WriteString("# Automated static-analysis fixes\n\n")
	fmt.Fprintf(&b, "This PR fixes %d static-analysis issues.\n\n", len(fixes))
	b.WriteString("## Fixed issues\n\n")
	for _, fix := range fixes {
		fmt.Fprintf(&b, "- **%s**\n", fix.IssueKey)
		fmt.Fprintf(&b, "  - File: `%s`\n", fix.FilePath)
		fmt.Fprintf(&b, "  - Explanation: %s\n\n", fix.Explanation)
	}
	b.WriteString("\n---\nThis PR was generated automatically.\n")
	return b.String()
}
