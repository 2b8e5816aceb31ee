package domain

import "context"

// CommitSource is the port interface implemented by each code host adapter.
// The domain does not know about GitHub, GitLab, or any specific host API.
type CommitSource interface {
	// ListBranches returns the names of all branches of repo.
	ListBranches(ctx context.Context, repo Repository) ([]string, error)
	// WalkCommits visits the history of branch newest first until fn returns
	// false or the history is exhausted.
	WalkCommits(ctx context.Context, repo Repository, branch string, fn func(Commit) bool) error
	// CompareURL returns the web view of the range from..to.
	CompareURL(repo Repository, from, to string) string
}

// Notifier delivers a formatted message to its destination.
type Notifier interface {
	Deliver(ctx context.Context, msg Message) error
}
