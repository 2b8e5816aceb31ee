// Package notify turns commit batches into chat messages and posts them to a webhook.
package notify

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/waabox/commitwatch/internal/domain"
)

// Formatter builds one Message per batch.
type Formatter struct{}

// NewFormatter creates a Formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format renders batch as "[owner/repo] N new commits to branch". The title
// links to the compare view for ranges and to the commit itself otherwise.
// Body lines keep the batch order, oldest first.
func (f *Formatter) Format(batch domain.Batch) domain.Message {
	count := len(batch.Commits)
	noun := "commits"
	if count == 1 {
		noun = "commit"
	}

	newest := batch.Newest()
	link := newest.URL
	if batch.IsRange() && batch.CompareURL != "" {
		link = batch.CompareURL
	}

	lines := make([]domain.MessageLine, 0, count)
	for _, c := range batch.Commits {
		lines = append(lines, domain.MessageLine{
			ShortSHA: c.ShortSHA(),
			URL:      c.URL,
			Summary:  c.Title(),
			Author:   c.Author(),
		})
	}

	first := batch.Oldest()
	return domain.Message{
		Title: fmt.Sprintf("[%s] %d new %s to %s", batch.Ref.Repo.FullName(), count, noun, batch.Ref.Branch),
		URL:   link,
		Lines: lines,
		Author: domain.MessageAuthor{
			Name:    first.Author(),
			URL:     first.ProfileURL,
			IconURL: avatarURL(first),
		},
		Timestamp: newest.AuthoredAt,
	}
}

// avatarURL prefers the host avatar and falls back to a Gravatar identicon
// derived from the author email.
func avatarURL(c domain.Commit) string {
	if c.AvatarURL != "" {
		return c.AvatarURL
	}
	email := strings.ToLower(strings.TrimSpace(c.AuthorEmail))
	if email == "" {
		return ""
	}
	sum := md5.Sum([]byte(email))
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?d=identicon"
}
