package gitlab_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/waabox/commitwatch/internal/domain"
	gitlabprovider "github.com/waabox/commitwatch/internal/provider/gitlab"
)

var repo = domain.Repository{Host: "gitlab.com", Owner: "mygroup", Name: "myproject"}

func TestListBranches_FollowsNextPageHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/api/v4/projects/mygroup%2Fmyproject/repository/branches" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("expected bearer token, got '%s'", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "1" {
			w.Header().Set("X-Next-Page", "2")
			json.NewEncoder(w).Encode([]map[string]string{{"name": "main"}})
			return
		}
		json.NewEncoder(w).Encode([]map[string]string{{"name": "develop"}})
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("test-token", srv.URL, 5*time.Second)
	branches, err := adapter.ListBranches(context.Background(), repo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(branches) != 2 || branches[0] != "main" || branches[1] != "develop" {
		t.Errorf("expected [main develop], got %v", branches)
	}
}

func TestWalkCommits_ReturnsCommitsNewestFirst(t *testing.T) {
	response := []map[string]interface{}{
		{
			"id":            "def5678def5678",
			"message":       "feat: add pagination\n\ndetails",
			"author_name":   "Jane Doe",
			"author_email":  "jane@example.com",
			"authored_date": "2025-03-28T09:06:12.000+03:00",
			"web_url":       "https://gitlab.com/mygroup/myproject/-/commit/def5678def5678",
		},
		{
			"id":            "abc1234abc1234",
			"message":       "initial commit",
			"author_name":   "Jane Doe",
			"author_email":  "jane@example.com",
			"authored_date": "2025-03-27T09:06:12.000+03:00",
			"web_url":       "https://gitlab.com/mygroup/myproject/-/commit/abc1234abc1234",
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/api/v4/projects/mygroup%2Fmyproject/repository/commits" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("ref_name") != "feature/x" {
			t.Errorf("expected ref_name 'feature/x', got '%s'", r.URL.Query().Get("ref_name"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("", srv.URL, 5*time.Second)
	var commits []domain.Commit
	err := adapter.WalkCommits(context.Background(), repo, "feature/x", func(c domain.Commit) bool {
		commits = append(commits, c)
		return true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(commits))
	}
	if commits[0].SHA != "def5678def5678" {
		t.Errorf("expected newest commit first, got '%s'", commits[0].SHA)
	}
	if commits[0].Title() != "feat: add pagination" {
		t.Errorf("unexpected title '%s'", commits[0].Title())
	}
	if commits[0].AuthoredAt.IsZero() {
		t.Error("expected authored date to be parsed")
	}
}

func TestErrors_AreClassified(t *testing.T) {
	cases := map[int]error{
		http.StatusUnauthorized:       domain.ErrUnauthorized,
		http.StatusNotFound:           domain.ErrNotFound,
		http.StatusTooManyRequests:    domain.ErrRateLimited,
		http.StatusServiceUnavailable: domain.ErrTransient,
	}
	for status, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		adapter := gitlabprovider.NewAdapter("test-token", srv.URL, 5*time.Second)
		_, err := adapter.ListBranches(context.Background(), repo)
		srv.Close()
		if !errors.Is(err, want) {
			t.Errorf("status %d: expected %v, got %v", status, want, err)
		}
	}
}

func TestErrors_ForbiddenWithExhaustedQuotaIsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("RateLimit-Remaining", "0")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("test-token", srv.URL, 5*time.Second)
	_, err := adapter.ListBranches(context.Background(), repo)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected rate limited error, got %v", err)
	}
}

func TestErrors_ForbiddenWithQuotaLeftIsNotRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("RateLimit-Remaining", "42")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("test-token", srv.URL, 5*time.Second)
	_, err := adapter.ListBranches(context.Background(), repo)
	if err == nil {
		t.Fatal("expected an error for 403")
	}
	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrTransient) {
		t.Errorf("expected a plain error, got %v", err)
	}
}

func TestErrors_TransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	adapter := gitlabprovider.NewAdapter("test-token", baseURL, 5*time.Second)
	_, err := adapter.ListBranches(context.Background(), repo)
	if !errors.Is(err, domain.ErrTransient) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestErrors_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	adapter := gitlabprovider.NewAdapter("test-token", srv.URL, 50*time.Millisecond)
	_, err := adapter.ListBranches(context.Background(), repo)
	if !errors.Is(err, domain.ErrTransient) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestWalkCommits_PushBetweenPagesDoesNotRepeatCommits(t *testing.T) {
	history := []string{"c5", "c4", "c3", "c2", "c1"}
	var refs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := r.URL.Query().Get("ref_name")
		refs = append(refs, ref)
		start := 0
		for i, sha := range history {
			if sha == ref {
				start = i
			}
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		from := min(start+(page-1)*2, len(history))
		to := min(from+2, len(history))

		body := make([]map[string]string, 0, to-from)
		for _, sha := range history[from:to] {
			body = append(body, map[string]string{"id": sha, "message": "change " + sha})
		}
		w.Header().Set("Content-Type", "application/json")
		if to < len(history) {
			w.Header().Set("X-Next-Page", strconv.Itoa(page+1))
		}
		json.NewEncoder(w).Encode(body)

		if page == 1 {
			history = append([]string{"c6"}, history...)
		}
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("", srv.URL, 5*time.Second)
	var shas []string
	err := adapter.WalkCommits(context.Background(), repo, "main", func(c domain.Commit) bool {
		shas = append(shas, c.SHA)
		return true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"c5", "c4", "c3", "c2", "c1"}; !reflect.DeepEqual(shas, want) {
		t.Errorf("expected %v, got %v", want, shas)
	}
	if want := []string{"main", "c5", "c5"}; !reflect.DeepEqual(refs, want) {
		t.Errorf("expected later pages pinned to the first head, got refs %v", refs)
	}
}

func TestCompareURL(t *testing.T) {
	adapter := gitlabprovider.NewAdapter("", "https://gitlab.example.com/", time.Second)
	got := adapter.CompareURL(repo, "aaa", "bbb")
	want := "https://gitlab.example.com/mygroup/myproject/-/compare/aaa...bbb"
	if got != want {
		t.Errorf("expected '%s', got '%s'", want, got)
	}
}
