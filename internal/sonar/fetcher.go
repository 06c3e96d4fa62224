package sonar

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/tobyh/sonarfix/internal/types"
)

// pageSize is the maximum the SonarQube issues/search API allows.
const pageSize = 100

// searchResponse is the subset of the issues/search payload we consume.
type searchResponse struct {
	Issues []types.Issue `json:"issues"`
	Paging struct {
		PageIndex int `json:"pageIndex"`
		PageSize  int `json:"pageSize"`
		Total     int `json:"total"`
	} `json:"paging"`
}

// Fetcher pages through open issues for one project.
type Fetcher struct {
	client     *Client
	projectKey string
}

// NewFetcher creates a fetcher for projectKey.
func NewFetcher(client *Client, projectKey string) *Fetcher {
	return &Fetcher{client: client, projectKey: projectKey}
}

// FetchNewIssues returns up to maxIssues open issues created in the last
// `days` days, newest first. Pagination stops at a short page. A page
// that fails past its retry budget ends the fetch; whatever was already
// collected is returned.
func (f *Fetcher) FetchNewIssues(ctx context.Context, maxIssues, days int) ([]types.Issue, error) {
	createdAfter := time.Now().AddDate(0, 0, -days).Format("2006-01-02T15:04:05-0700")
	return f.search(ctx, "OPEN", createdAfter, maxIssues)
}

func (f *Fetcher) search(ctx context.Context, statuses, createdAfter string, maxIssues int) ([]types.Issue, error) {
	var all []types.Issue
	page := 1

	for len(all) < maxIssues {
		params := url.Values{}
		params.Set("componentKeys", f.projectKey)
		params.Set("statuses", statuses)
		params.Set("p", strconv.Itoa(page))
		params.Set("ps", strconv.Itoa(pageSize))
		params.Set("s", "CREATION_DATE")
		params.Set("asc", "false")
		if createdAfter != "" {
			params.Set("createdAfter", createdAfter)
		}

		var resp searchResponse
		if err := f.client.get(ctx, "issues/search", params, &resp); err != nil {
			slog.Error("issue search page failed, returning partial results", "page", page, "error", err)
			break
		}
		if len(resp.Issues) == 0 {
			break
		}

		all = append(all, resp.Issues...)
		if len(resp.Issues) < pageSize {
			break
		}
		page++
	}

	if len(all) > maxIssues {
		all = all[:maxIssues]
	}
	slog.Info("fetched issues from sonarqube", "count", len(all), "project", f.projectKey)
	return all, nil
}
