package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/waabox/commitwatch/internal/domain"
)

const (
	defaultBaseURL = "https://gitlab.com"
	pageSize       = 100
)

// Adapter implements domain.CommitSource for GitLab.
type Adapter struct {
	token   string
	baseURL string
	client  *http.Client
}

// Ensure Adapter fully implements domain.CommitSource.
var _ domain.CommitSource = (*Adapter)(nil)

// NewAdapter creates a GitLab adapter.
// baseURL can be a self-hosted GitLab instance URL; pass empty string for gitlab.com.
// Every request is bounded by timeout.
func NewAdapter(token string, baseURL string, timeout time.Duration) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		token:   token,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// ListBranches returns every branch name of the project, following pagination.
func (a *Adapter) ListBranches(ctx context.Context, repo domain.Repository) ([]string, error) {
	var names []string
	page := "1"
	for page != "" {
		apiURL := fmt.Sprintf("%s/api/v4/projects/%s/repository/branches?per_page=%d&page=%s",
			a.baseURL, projectID(repo), pageSize, page)
		var branches []gitLabBranch
		next, err := a.get(ctx, apiURL, &branches)
		if err != nil {
			return nil, err
		}
		for _, b := range branches {
			names = append(names, b.Name)
		}
		page = next
	}
	return names, nil
}

// WalkCommits visits the branch history newest first, one page at a time.
// Pages after the first are listed from the head seen on the first page.
func (a *Adapter) WalkCommits(ctx context.Context, repo domain.Repository, branch string, fn func(domain.Commit) bool) error {
	ref := branch
	page := "1"
	for page != "" {
		apiURL := fmt.Sprintf("%s/api/v4/projects/%s/repository/commits?ref_name=%s&per_page=%d&page=%s",
			a.baseURL, projectID(repo), url.QueryEscape(ref), pageSize, page)
		var commits []gitLabCommit
		next, err := a.get(ctx, apiURL, &commits)
		if err != nil {
			return err
		}
		if ref == branch && len(commits) > 0 {
			ref = commits[0].ID
		}
		for _, c := range commits {
			if !fn(c.toCommit()) {
				return nil
			}
		}
		page = next
	}
	return nil
}

// CompareURL returns the GitLab compare view for from...to.
func (a *Adapter) CompareURL(repo domain.Repository, from, to string) string {
	return fmt.Sprintf("%s/%s/%s/-/compare/%s...%s", a.baseURL, repo.Owner, repo.Name, from, to)
}

// get decodes the JSON body into target and returns the X-Next-Page header,
// which is empty on the last page.
func (a *Adapter) get(ctx context.Context, apiURL string, target interface{}) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %v: %w", err, domain.ErrTransient)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		io.Copy(io.Discard, resp.Body)
		return "", err
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return "", fmt.Errorf("decoding gitlab response: %w", err)
	}
	return resp.Header.Get("X-Next-Page"), nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("gitlab API error: %s: %w", resp.Status, domain.ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("gitlab API error: %s: %w", resp.Status, domain.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("RateLimit-Remaining") == "0":
		return fmt.Errorf("gitlab API error: %s: %w", resp.Status, domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("gitlab API error: %s: %w", resp.Status, domain.ErrTransient)
	case resp.StatusCode >= 400:
		return fmt.Errorf("gitlab API error: %s", resp.Status)
	}
	return nil
}

func projectID(repo domain.Repository) string {
	return url.PathEscape(repo.Owner + "/" + repo.Name)
}

type gitLabBranch struct {
	Name string `json:"name"`
}

type gitLabCommit struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	AuthorName   string `json:"author_name"`
	AuthorEmail  string `json:"author_email"`
	AuthoredDate string `json:"authored_date"`
	WebURL       string `json:"web_url"`
}

func (c gitLabCommit) toCommit() domain.Commit {
	authored, _ := time.Parse(time.RFC3339, c.AuthoredDate)
	return domain.Commit{
		SHA:         c.ID,
		AuthorName:  c.AuthorName,
		AuthorEmail: c.AuthorEmail,
		Message:     c.Message,
		AuthoredAt:  authored,
		URL:         c.WebURL,
	}
}
