// Package git turns repository references from configuration into watch targets.
package git

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/waabox/commitwatch/internal/domain"
)

const githubAPIHost = "api.github.com"

// ParseTargets parses a comma-separated list of repository references,
// dropping duplicates while keeping the configured order.
func ParseTargets(list []string) ([]domain.Repository, error) {
	var (
		targets []domain.Repository
		seen    = make(map[domain.Repository]bool)
	)
	for _, item := range list {
		for _, raw := range strings.Split(item, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			repo, err := ParseTarget(raw)
			if err != nil {
				return nil, err
			}
			if seen[repo] {
				continue
			}
			seen[repo] = true
			targets = append(targets, repo)
		}
	}
	return targets, nil
}

// ParseTarget accepts any of:
//
//	owner/repo                                   (github.com)
//	gitlab.com/group/subgroup/repo
//	https://github.com/owner/repo.git
//	git@gitlab.example.com:group/repo.git
//	https://api.github.com/repos/owner/repo/commits
//	./path/to/checkout                           (reads its origin remote)
func ParseTarget(raw string) (domain.Repository, error) {
	if strings.HasPrefix(raw, ".") || strings.HasPrefix(raw, "/") {
		return DetectRepository(raw)
	}
	if strings.HasPrefix(raw, "git@") || strings.Contains(raw, "://") {
		return ParseRemoteURL(raw)
	}

	parts := splitPath(strings.TrimSuffix(raw, ".git"))
	switch {
	case len(parts) == 2:
		return domain.Repository{Host: domain.DefaultHost, Owner: parts[0], Name: parts[1]}, nil
	case len(parts) >= 3 && strings.Contains(parts[0], "."):
		return fromPath(parts[0], parts[1:], raw)
	}
	return domain.Repository{}, fmt.Errorf("invalid repository %q: expected owner/repo", raw)
}

// DetectRepository reads the .git/config in the given directory and returns
// a Repository built from the origin remote URL.
func DetectRepository(dir string) (domain.Repository, error) {
	configPath := filepath.Join(dir, ".git", "config")
	f, err := os.Open(configPath)
	if err != nil {
		return domain.Repository{}, fmt.Errorf("could not open .git/config: %w", err)
	}
	defer f.Close()

	var inOrigin bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == `[remote "origin"]` {
			inOrigin = true
			continue
		}
		if inOrigin && strings.HasPrefix(line, "[") {
			break
		}
		if inOrigin && strings.HasPrefix(line, "url") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				return ParseRemoteURL(strings.TrimSpace(parts[1]))
			}
		}
	}
	return domain.Repository{}, errors.New("no origin remote found in .git/config")
}

// ParseRemoteURL parses a git remote or REST API URL and returns a Repository.
// Supports HTTPS (https://github.com/owner/repo.git), SSH (git@github.com:owner/repo.git)
// and GitHub API URLs (https://api.github.com/repos/owner/repo/commits).
func ParseRemoteURL(rawURL string) (domain.Repository, error) {
	normalized := strings.TrimSuffix(strings.TrimSuffix(rawURL, "/"), ".git")

	// SSH format: git@github.com:owner/repo
	if strings.HasPrefix(normalized, "git@") {
		trimmed := strings.TrimPrefix(normalized, "git@")
		host, path, ok := strings.Cut(trimmed, ":")
		if !ok {
			return domain.Repository{}, fmt.Errorf("invalid SSH remote URL: %s", rawURL)
		}
		return fromPath(host, splitPath(path), rawURL)
	}

	// HTTPS format: https://github.com/owner/repo
	if strings.HasPrefix(normalized, "https://") || strings.HasPrefix(normalized, "http://") {
		withoutScheme := strings.TrimPrefix(normalized, "https://")
		withoutScheme = strings.TrimPrefix(withoutScheme, "http://")
		host, path, _ := strings.Cut(withoutScheme, "/")
		parts := splitPath(path)
		if owner, name, ok := apiRepoPath(parts); ok {
			if host == githubAPIHost {
				host = domain.DefaultHost
			}
			return domain.Repository{Host: host, Owner: owner, Name: name}, nil
		}
		return fromPath(host, parts, rawURL)
	}

	return domain.Repository{}, fmt.Errorf("unsupported remote URL format: %s", rawURL)
}

// apiRepoPath recognises repos/owner/name[/...] and api/v3/repos/owner/name[/...].
func apiRepoPath(parts []string) (string, string, bool) {
	for _, i := range []int{0, 2} {
		if i > 0 && (len(parts) < 1 || parts[0] != "api") {
			continue
		}
		if len(parts) >= i+3 && parts[i] == "repos" {
			return parts[i+1], parts[i+2], true
		}
	}
	return "", "", false
}

// fromPath treats the last segment as the name and the rest as the owner,
// which keeps GitLab subgroups intact.
func fromPath(host string, parts []string, raw string) (domain.Repository, error) {
	if host == "" || len(parts) < 2 {
		return domain.Repository{}, fmt.Errorf("invalid repository reference: %s", raw)
	}
	return domain.Repository{
		Host:  host,
		Owner: strings.Join(parts[:len(parts)-1], "/"),
		Name:  parts[len(parts)-1],
	}, nil
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
