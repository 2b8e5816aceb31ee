package domain

import (
	"strings"
	"time"
)

// Commit is a single commit as reported by a code host.
type Commit struct {
	SHA         string
	AuthorName  string
	AuthorLogin string
	AuthorEmail string
	AvatarURL   string
	ProfileURL  string
	Message     string
	AuthoredAt  time.Time
	URL         string
}

// ShortSHA returns the abbreviated commit identifier.
func (c Commit) ShortSHA() string {
	if len(c.SHA) <= 7 {
		return c.SHA
	}
	return c.SHA[:7]
}

// Title returns the first line of the commit message.
func (c Commit) Title() string {
	title, _, _ := strings.Cut(c.Message, "\n")
	return strings.TrimSpace(title)
}

// Author returns the login when the host knows it, otherwise the git author name.
func (c Commit) Author() string {
	if c.AuthorLogin != "" {
		return c.AuthorLogin
	}
	return c.AuthorName
}

// Batch is the set of new commits on one branch, ordered oldest to newest.
type Batch struct {
	Ref        BranchRef
	Commits    []Commit
	CompareURL string
}

// IsRange reports whether the batch spans more than one commit.
func (b Batch) IsRange() bool {
	return len(b.Commits) > 1
}

// Oldest returns the first commit of the batch. The batch must not be empty.
func (b Batch) Oldest() Commit {
	return b.Commits[0]
}

// Newest returns the last commit of the batch. The batch must not be empty.
func (b Batch) Newest() Commit {
	return b.Commits[len(b.Commits)-1]
}

// MessageAuthor is the author block shown on a notification.
type MessageAuthor struct {
	Name    string
	URL     string
	IconURL string
}

// MessageLine describes one commit in a notification body.
type MessageLine struct {
	ShortSHA string
	URL      string
	Summary  string
	Author   string
}

// Message is a formatted notification ready for delivery.
type Message struct {
	Title     string
	URL       string
	Lines     []MessageLine
	Author    MessageAuthor
	Timestamp time.Time
}
