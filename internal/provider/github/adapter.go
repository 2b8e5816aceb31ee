package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"golang.org/x/oauth2"

	"github.com/waabox/commitwatch/internal/domain"
)

const (
	defaultWebURL = "https://github.com"
	pageSize      = 100
)

// Adapter implements domain.CommitSource for GitHub.
type Adapter struct {
	client *gh.Client
	webURL string
}

// Ensure Adapter fully implements domain.CommitSource.
var _ domain.CommitSource = (*Adapter)(nil)

// NewAdapter creates a GitHub adapter.
// baseURL is the REST API root, used for GitHub Enterprise and tests; pass empty
// string to use the real GitHub API. An empty token sends unauthenticated requests.
// Every request is bounded by timeout.
func NewAdapter(token string, baseURL string, timeout time.Duration) (*Adapter, error) {
	httpClient := &http.Client{Timeout: timeout}
	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
		httpClient.Timeout = timeout
	}

	client := gh.NewClient(httpClient)
	webURL := defaultWebURL
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing GitHub base URL: %w", err)
		}
		client.BaseURL = u
		webURL = webURLFor(u)
	}
	return &Adapter{client: client, webURL: webURL}, nil
}

// ListBranches returns every branch name of the repository, following pagination.
func (a *Adapter) ListBranches(ctx context.Context, repo domain.Repository) ([]string, error) {
	opts := &gh.BranchListOptions{ListOptions: gh.ListOptions{PerPage: pageSize}}
	var names []string
	for {
		branches, resp, err := a.client.Repositories.ListBranches(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, classify(err)
		}
		for _, b := range branches {
			names = append(names, b.GetName())
		}
		if resp.NextPage == 0 {
			return names, nil
		}
		opts.Page = resp.NextPage
	}
}

// WalkCommits visits the branch history newest first, one page at a time.
// Pages are only fetched while fn keeps asking for more. Pages after the
// first are listed from the head seen on the first page, so a push landing
// mid-walk cannot shift them.
func (a *Adapter) WalkCommits(ctx context.Context, repo domain.Repository, branch string, fn func(domain.Commit) bool) error {
	opts := &gh.CommitsListOptions{SHA: branch, ListOptions: gh.ListOptions{PerPage: pageSize}}
	for {
		commits, resp, err := a.client.Repositories.ListCommits(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return classify(err)
		}
		if opts.Page == 0 && len(commits) > 0 {
			opts.SHA = commits[0].GetSHA()
		}
		for _, c := range commits {
			if !fn(toCommit(c)) {
				return nil
			}
		}
		if resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

// CompareURL returns the GitHub compare view for from...to.
func (a *Adapter) CompareURL(repo domain.Repository, from, to string) string {
	return fmt.Sprintf("%s/%s/%s/compare/%s...%s", a.webURL, repo.Owner, repo.Name, from, to)
}

func toCommit(c *gh.RepositoryCommit) domain.Commit {
	author := c.GetCommit().GetAuthor()
	return domain.Commit{
		SHA:         c.GetSHA(),
		AuthorName:  author.GetName(),
		AuthorEmail: author.GetEmail(),
		AuthorLogin: c.GetAuthor().GetLogin(),
		AvatarURL:   c.GetAuthor().GetAvatarURL(),
		ProfileURL:  c.GetAuthor().GetHTMLURL(),
		Message:     c.GetCommit().GetMessage(),
		AuthoredAt:  author.GetDate().Time,
		URL:         c.GetHTMLURL(),
	}
}

// classify maps go-github errors onto the domain error taxonomy.
func classify(err error) error {
	var (
		rateErr  *gh.RateLimitError
		abuseErr *gh.AbuseRateLimitError
		respErr  *gh.ErrorResponse
	)
	switch {
	case errors.As(err, &rateErr):
		return fmt.Errorf("github API error: quota exhausted until %s: %w",
			rateErr.Rate.Reset.Format(time.RFC3339), domain.ErrRateLimited)
	case errors.As(err, &abuseErr):
		return fmt.Errorf("github API error: secondary rate limit: %w", domain.ErrRateLimited)
	case errors.As(err, &respErr) && respErr.Response != nil:
		status := respErr.Response.Status
		switch code := respErr.Response.StatusCode; {
		case code == http.StatusUnauthorized:
			return fmt.Errorf("github API error: %s: %w", status, domain.ErrUnauthorized)
		case code == http.StatusNotFound || code == http.StatusConflict:
			// 409 is returned for repositories without any commit.
			return fmt.Errorf("github API error: %s: %w", status, domain.ErrNotFound)
		case code == http.StatusTooManyRequests:
			return fmt.Errorf("github API error: %s: %w", status, domain.ErrRateLimited)
		case code >= 500:
			return fmt.Errorf("github API error: %s: %w", status, domain.ErrTransient)
		default:
			return fmt.Errorf("github API error: %s: %s", status, respErr.Message)
		}
	}
	return fmt.Errorf("github request failed: %v: %w", err, domain.ErrTransient)
}

// webURLFor derives the web host from an API root:
// https://api.github.com/ -> https://github.com, https://ghe.example.com/api/v3/ -> https://ghe.example.com.
func webURLFor(api *url.URL) string {
	host := strings.TrimPrefix(api.Host, "api.")
	path := strings.TrimSuffix(api.Path, "/")
	path = strings.TrimSuffix(path, "/api/v3")
	return api.Scheme + "://" + host + path
}
