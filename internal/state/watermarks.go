// Package state persists the last notified commit of every watched branch.
package state

import "github.com/waabox/commitwatch/internal/domain"

// Watermarks maps repository full name -> branch -> last notified commit SHA.
type Watermarks map[string]map[string]string

// Get returns the watermark of ref, if any.
func (w Watermarks) Get(ref domain.BranchRef) (string, bool) {
	branches, ok := w[ref.Repo.FullName()]
	if !ok {
		return "", false
	}
	sha, ok := branches[ref.Branch]
	return sha, ok
}

// Set records sha as the watermark of ref.
func (w Watermarks) Set(ref domain.BranchRef, sha string) {
	key := ref.Repo.FullName()
	branches, ok := w[key]
	if !ok {
		branches = make(map[string]string)
		w[key] = branches
	}
	branches[ref.Branch] = sha
}

// Len returns the number of tracked branches across all repositories.
func (w Watermarks) Len() int {
	n := 0
	for _, branches := range w {
		n += len(branches)
	}
	return n
}

// Clone returns a deep copy.
func (w Watermarks) Clone() Watermarks {
	out := make(Watermarks, len(w))
	for repo, branches := range w {
		cp := make(map[string]string, len(branches))
		for branch, sha := range branches {
			cp[branch] = sha
		}
		out[repo] = cp
	}
	return out
}
