package provider_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/waabox/commitwatch/internal/domain"
	"github.com/waabox/commitwatch/internal/provider"
)

var repo = domain.Repository{Host: "github.com", Owner: "org", Name: "repo"}

// historySource serves a fixed newest-first history per branch.
type historySource struct {
	history map[string][]domain.Commit
	err     error
	visited int
}

func (h *historySource) ListBranches(context.Context, domain.Repository) ([]string, error) {
	var names []string
	for name := range h.history {
		names = append(names, name)
	}
	return names, h.err
}

func (h *historySource) WalkCommits(_ context.Context, _ domain.Repository, branch string, fn func(domain.Commit) bool) error {
	if h.err != nil {
		return h.err
	}
	for _, c := range h.history[branch] {
		h.visited++
		if !fn(c) {
			return nil
		}
	}
	return nil
}

func (h *historySource) CompareURL(_ domain.Repository, from, to string) string {
	return fmt.Sprintf("compare/%s...%s", from, to)
}

// history builds newest-first commits c<n>..c1.
func history(n int) []domain.Commit {
	out := make([]domain.Commit, 0, n)
	for i := n; i >= 1; i-- {
		out = append(out, domain.Commit{SHA: fmt.Sprintf("c%d", i)})
	}
	return out
}

func shas(commits []domain.Commit) []string {
	out := make([]string, len(commits))
	for i, c := range commits {
		out[i] = c.SHA
	}
	return out
}

func newClient(src domain.CommitSource, baseline provider.Baseline, maxScan int, log *zap.SugaredLogger) *provider.Client {
	reg := provider.NewRegistry()
	reg.Register("github.com", src)
	return provider.NewClient(reg, baseline, maxScan, log)
}

func TestListCommitsSince_FirstSightReturnsOnlyNewest(t *testing.T) {
	src := &historySource{history: map[string][]domain.Commit{"main": history(5)}}
	client := newClient(src, provider.LatestOnly, 0, zap.NewNop().Sugar())

	commits, _, err := client.ListCommitsSince(context.Background(), repo, "main", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"c5"}, shas(commits))
	assert.Equal(t, 1, src.visited, "baseline must not walk the whole history")
}

func TestListCommitsSince_BackfillBaseline(t *testing.T) {
	src := &historySource{history: map[string][]domain.Commit{"main": history(5)}}
	client := newClient(src, provider.Backfill(3), 0, zap.NewNop().Sugar())

	commits, base, err := client.ListCommitsSince(context.Background(), repo, "main", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"c3", "c4", "c5"}, shas(commits))
	assert.Empty(t, base)
}

func TestBackfill_NonPositiveMeansLatestOnly(t *testing.T) {
	assert.Equal(t, provider.LatestOnly, provider.Backfill(0))
	assert.Equal(t, provider.LatestOnly, provider.Backfill(-2))
}

func TestListCommitsSince_ReturnsNewerCommitsOldestFirst(t *testing.T) {
	src := &historySource{history: map[string][]domain.Commit{"main": history(5)}}
	client := newClient(src, provider.LatestOnly, 0, zap.NewNop().Sugar())

	commits, base, err := client.ListCommitsSince(context.Background(), repo, "main", "c2")
	require.NoError(t, err)
	assert.Equal(t, []string{"c3", "c4", "c5"}, shas(commits))
	assert.Equal(t, "c2", base)
}

func TestListCommitsSince_UpToDateIsEmpty(t *testing.T) {
	src := &historySource{history: map[string][]domain.Commit{"main": history(5)}}
	client := newClient(src, provider.LatestOnly, 0, zap.NewNop().Sugar())

	commits, _, err := client.ListCommitsSince(context.Background(), repo, "main", "c5")
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestListCommitsSince_UnreachableWatermarkFallsBackToBaseline(t *testing.T) {
	src := &historySource{history: map[string][]domain.Commit{"main": history(5)}}
	core, logs := observer.New(zapcore.WarnLevel)
	client := newClient(src, provider.LatestOnly, 0, zap.New(core).Sugar())

	commits, base, err := client.ListCommitsSince(context.Background(), repo, "main", "rewritten")
	require.NoError(t, err)
	assert.Equal(t, []string{"c5"}, shas(commits))
	assert.Empty(t, base, "a rewritten history has no base to continue from")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "watermark not found in branch history, falling back to baseline", logs.All()[0].Message)
}

func TestListCommitsSince_ScanBoundFallsBackToBaseline(t *testing.T) {
	src := &historySource{history: map[string][]domain.Commit{"main": history(50)}}
	client := newClient(src, provider.LatestOnly, 10, zap.NewNop().Sugar())

	commits, _, err := client.ListCommitsSince(context.Background(), repo, "main", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c50"}, shas(commits))
	assert.Equal(t, 10, src.visited)
}

func TestListCommitsSince_PropagatesTypedErrors(t *testing.T) {
	src := &historySource{err: fmt.Errorf("github API error: %w", domain.ErrRateLimited)}
	client := newClient(src, provider.LatestOnly, 0, zap.NewNop().Sugar())

	_, _, err := client.ListCommitsSince(context.Background(), repo, "main", "c1")
	assert.True(t, errors.Is(err, domain.ErrRateLimited))
}

func TestClient_UnknownHost(t *testing.T) {
	client := provider.NewClient(provider.NewRegistry(), provider.LatestOnly, 0, zap.NewNop().Sugar())

	_, err := client.ListBranches(context.Background(), repo)
	assert.Error(t, err)
	_, _, err = client.ListCommitsSince(context.Background(), repo, "main", "")
	assert.Error(t, err)
	assert.Empty(t, client.CompareURL(repo, "a", "b"))
}

func TestClient_CompareURLDelegatesToHost(t *testing.T) {
	client := newClient(&historySource{}, provider.LatestOnly, 0, zap.NewNop().Sugar())
	assert.Equal(t, "compare/a...b", client.CompareURL(repo, "a", "b"))
}
