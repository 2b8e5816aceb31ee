package provider

import (
	"context"

	"go.uber.org/zap"

	"github.com/waabox/commitwatch/internal/domain"
)

// DefaultMaxScan bounds how many commits are inspected while looking for a watermark.
const DefaultMaxScan = 300

// Baseline is the number of newest commits reported for a branch that has no
// watermark yet, or whose watermark is no longer part of its history.
type Baseline int

// LatestOnly reports only the branch head, so adding a repository or branch
// does not flood the channel with its whole history.
const LatestOnly Baseline = 1

// Backfill reports up to n of the newest commits on first sight.
func Backfill(n int) Baseline {
	if n < 1 {
		return LatestOnly
	}
	return Baseline(n)
}

// Client resolves the host adapter of each repository and turns raw history
// walks into "commits since watermark" answers.
type Client struct {
	registry *Registry
	baseline Baseline
	maxScan  int
	log      *zap.SugaredLogger
}

// NewClient creates a Client. maxScan <= 0 selects DefaultMaxScan.
func NewClient(registry *Registry, baseline Baseline, maxScan int, log *zap.SugaredLogger) *Client {
	if baseline < 1 {
		baseline = LatestOnly
	}
	if maxScan <= 0 {
		maxScan = DefaultMaxScan
	}
	return &Client{registry: registry, baseline: baseline, maxScan: maxScan, log: log}
}

// ListBranches returns the branch names of repo.
func (c *Client) ListBranches(ctx context.Context, repo domain.Repository) ([]string, error) {
	src, err := c.registry.Lookup(repo.Host)
	if err != nil {
		return nil, err
	}
	return src.ListBranches(ctx, repo)
}

// CompareURL returns the range view of repo between from and to.
func (c *Client) CompareURL(repo domain.Repository, from, to string) string {
	src, err := c.registry.Lookup(repo.Host)
	if err != nil {
		return ""
	}
	return src.CompareURL(repo, from, to)
}

// ListCommitsSince returns the commits of branch strictly newer than since,
// oldest first, and the base they continue from. An empty since applies the
// baseline policy. When since is not found within the scan bound the history
// is assumed rewritten: a warning is logged and the baseline policy applies.
// base is since when it was found in the history and empty otherwise.
func (c *Client) ListCommitsSince(ctx context.Context, repo domain.Repository, branch, since string) (commits []domain.Commit, base string, err error) {
	src, err := c.registry.Lookup(repo.Host)
	if err != nil {
		return nil, "", err
	}

	limit := c.maxScan
	if since == "" {
		limit = int(c.baseline)
	}

	var (
		newer []domain.Commit
		found bool
	)
	err = src.WalkCommits(ctx, repo, branch, func(cm domain.Commit) bool {
		if since != "" && cm.SHA == since {
			found = true
			return false
		}
		newer = append(newer, cm)
		return len(newer) < limit
	})
	if err != nil {
		return nil, "", err
	}

	if found {
		return oldestFirst(newer), since, nil
	}
	if since != "" {
		c.log.Warnw("watermark not found in branch history, falling back to baseline",
			"repository", repo.String(),
			"branch", branch,
			"watermark", since,
			"scanned", len(newer),
		)
		newer = c.applyBaseline(newer)
	}
	return oldestFirst(newer), "", nil
}

// applyBaseline keeps the newest commits allowed by the baseline policy.
func (c *Client) applyBaseline(newestFirst []domain.Commit) []domain.Commit {
	if len(newestFirst) > int(c.baseline) {
		return newestFirst[:c.baseline]
	}
	return newestFirst
}

func oldestFirst(newestFirst []domain.Commit) []domain.Commit {
	out := make([]domain.Commit, len(newestFirst))
	for i, cm := range newestFirst {
		out[len(newestFirst)-1-i] = cm
	}
	return out
}
