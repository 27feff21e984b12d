package enrichment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Mosas2000/sprintfund/internal/config"
	"github.com/Mosas2000/sprintfund/internal/models"
)

// repoPattern extracts an owner/repo path from proposal text. Matching is
// best-effort: only explicit repository URLs are trusted, bare "a/b" tokens
// produce too many false positives.
var repoPattern = regexp.MustCompile(`github\.com/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)`)

const recentCommitWindow = 30 * 24 * time.Hour

// RepoClient fetches repository metadata from a GitHub-shaped API.
type RepoClient struct {
	HTTPClient *http.Client
	baseURL    string
}

// NewRepoClient creates a repository metadata client.
func NewRepoClient(cfg *config.EnrichmentConfig) *RepoClient {
	timeout := time.Duration(cfg.HTTPTimeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &RepoClient{
		HTTPClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.RepoAPIURL, "/"),
	}
}

// MatchRepoPath scans text for a repository reference. The empty string
// means no match, which is not an error.
func MatchRepoPath(text string) string {
	m := repoPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	repo := strings.TrimSuffix(m[2], ".git")
	return m[1] + "/" + repo
}

// Activity fetches star count, contributor count and last-update data for
// an owner/repo path.
func (c *RepoClient) Activity(ctx context.Context, path string) (*models.RepoActivity, error) {
	repoEndpoint := fmt.Sprintf("%s/repos/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, repoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository request: %w", err)
	}

	var repo struct {
		FullName        string    `json:"full_name"`
		StargazersCount int       `json:"stargazers_count"`
		PushedAt        time.Time `json:"pushed_at"`
	}
	if err := doJSON(c.HTTPClient, req, "repository API", &repo); err != nil {
		return nil, err
	}

	contributors, err := c.contributorCount(ctx, path)
	if err != nil {
		// Contributor count is a secondary signal; the rest of the record
		// is still usable.
		contributors = 0
	}

	return &models.RepoActivity{
		FullName:        repo.FullName,
		Stars:           repo.StargazersCount,
		Contributors:    contributors,
		HasRecentCommit: time.Since(repo.PushedAt) < recentCommitWindow,
		UpdatedAt:       repo.PushedAt,
	}, nil
}

func (c *RepoClient) contributorCount(ctx context.Context, path string) (int, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/contributors?per_page=100&anon=%s",
		c.baseURL, path, url.QueryEscape("false"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}

	var contributors []struct {
		Login string `json:"login"`
	}
	if err := doJSON(c.HTTPClient, req, "repository API", &contributors); err != nil {
		return 0, err
	}
	return len(contributors), nil
}
