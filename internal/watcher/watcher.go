// Package watcher runs the poll loop: list branches, diff against the stored
// watermarks, notify, and persist the advanced watermarks.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/waabox/commitwatch/internal/domain"
	"github.com/waabox/commitwatch/internal/filter"
	"github.com/waabox/commitwatch/internal/state"
)

// WatermarkStore persists watermarks between runs.
type WatermarkStore interface {
	Load() state.Watermarks
	Save(state.Watermarks) error
}

// CommitClient answers branch and commit questions about watched repositories.
type CommitClient interface {
	ListBranches(ctx context.Context, repo domain.Repository) ([]string, error)
	ListCommitsSince(ctx context.Context, repo domain.Repository, branch, since string) ([]domain.Commit, string, error)
	CompareURL(repo domain.Repository, from, to string) string
}

// Formatter turns a batch into a deliverable message.
type Formatter interface {
	Format(batch domain.Batch) domain.Message
}

// Options holds the fixed inputs of a Watcher.
type Options struct {
	Targets        []domain.Repository
	Rules          []filter.Rule
	Interval       time.Duration
	RequestTimeout time.Duration
}

// Report summarises one poll cycle.
type Report struct {
	Notified         int
	DeliveryFailures int
	FetchErrors      int
	Blocked          int
	Saved            bool
}

// Watcher owns the in-memory watermarks and is their only writer.
type Watcher struct {
	opts       Options
	client     CommitClient
	formatter  Formatter
	notifier   domain.Notifier
	store      WatermarkStore
	watermarks state.Watermarks
	log        *zap.SugaredLogger
}

// New creates a Watcher and loads the persisted watermarks.
func New(opts Options, client CommitClient, formatter Formatter, notifier domain.Notifier, store WatermarkStore, log *zap.SugaredLogger) *Watcher {
	wm := store.Load()
	if wm == nil {
		wm = state.Watermarks{}
	}
	return &Watcher{
		opts:       opts,
		client:     client,
		formatter:  formatter,
		notifier:   notifier,
		store:      store,
		watermarks: wm,
		log:        log,
	}
}

// Watermarks returns a copy of the current in-memory state.
func (w *Watcher) Watermarks() state.Watermarks {
	return w.watermarks.Clone()
}

// Run executes poll cycles separated by the configured interval until ctx is
// cancelled. It returns an error only when state could not be persisted.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Infow("starting commit monitoring",
		"repositories", len(w.opts.Targets),
		"rules", len(w.opts.Rules),
		"interval", w.opts.Interval,
		"tracked_branches", w.watermarks.Len(),
	)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Infow("stopping commit monitoring")
			return nil
		case <-timer.C:
		}
		if _, err := w.RunCycle(ctx); err != nil {
			return err
		}
		timer.Reset(w.opts.Interval)
	}
}

// RunCycle polls every target once. Watermarks advance only after a
// successful delivery and are saved once at the end of the cycle.
func (w *Watcher) RunCycle(ctx context.Context) (Report, error) {
	log := w.log.With("cycle", uuid.NewString())
	started := time.Now()

	var (
		report  Report
		dirty   bool
		limited = make(map[string]bool)
	)
	for _, repo := range w.opts.Targets {
		if ctx.Err() != nil {
			break
		}
		if limited[repo.Host] {
			log.Debugw("skipping repository, host is rate limited for this cycle", "repository", repo.String())
			continue
		}

		branches, err := w.listBranches(ctx, repo)
		if err != nil {
			report.FetchErrors++
			w.logFetchError(log, repo, "", err)
			if errors.Is(err, domain.ErrRateLimited) {
				limited[repo.Host] = true
			}
			continue
		}

		for _, branch := range branches {
			if ctx.Err() != nil {
				break
			}
			if filter.IsBlocked(repo.FullName(), branch, w.opts.Rules) {
				report.Blocked++
				log.Debugw("branch is blocked", "repository", repo.String(), "branch", branch)
				continue
			}
			advanced, err := w.processBranch(ctx, log, domain.BranchRef{Repo: repo, Branch: branch}, &report)
			if errors.Is(err, domain.ErrRateLimited) {
				limited[repo.Host] = true
				break
			}
			dirty = dirty || advanced
		}
	}

	if dirty {
		if err := w.store.Save(w.watermarks); err != nil {
			log.Errorw("could not persist state", "error", err)
			return report, fmt.Errorf("persisting state: %w", err)
		}
		report.Saved = true
	}
	log.Debugw("cycle finished",
		"notified", report.Notified,
		"delivery_failures", report.DeliveryFailures,
		"fetch_errors", report.FetchErrors,
		"blocked", report.Blocked,
		"saved", report.Saved,
		"took", time.Since(started),
	)
	return report, nil
}

// processBranch notifies the new commits of ref and reports whether its
// watermark advanced. Only fetch errors are returned.
func (w *Watcher) processBranch(ctx context.Context, log *zap.SugaredLogger, ref domain.BranchRef, report *Report) (bool, error) {
	since, _ := w.watermarks.Get(ref)

	commits, base, err := w.listCommitsSince(ctx, ref, since)
	if err != nil {
		report.FetchErrors++
		w.logFetchError(log, ref.Repo, ref.Branch, err)
		return false, err
	}
	if len(commits) == 0 {
		log.Debugw("no new commits", "branch", ref.String())
		return false, nil
	}

	batch := domain.Batch{Ref: ref, Commits: commits}
	if batch.IsRange() {
		// Without a base the batch is a baseline: first sight or a rewritten history.
		if base == "" {
			base = batch.Oldest().SHA
		}
		batch.CompareURL = w.client.CompareURL(ref.Repo, base, batch.Newest().SHA)
	}

	if err := w.deliver(ctx, w.formatter.Format(batch)); err != nil {
		report.DeliveryFailures++
		log.Errorw("notification failed, watermark kept",
			"branch", ref.String(),
			"commits", len(commits),
			"error", err,
		)
		return false, nil
	}

	newest := batch.Newest().SHA
	w.watermarks.Set(ref, newest)
	report.Notified++
	log.Infow("notification sent",
		"branch", ref.String(),
		"commits", len(commits),
		"watermark", newest,
	)
	return true, nil
}

func (w *Watcher) listBranches(ctx context.Context, repo domain.Repository) ([]string, error) {
	ctx, cancel := w.callContext(ctx)
	defer cancel()
	return w.client.ListBranches(ctx, repo)
}

func (w *Watcher) listCommitsSince(ctx context.Context, ref domain.BranchRef, since string) ([]domain.Commit, string, error) {
	ctx, cancel := w.callContext(ctx)
	defer cancel()
	return w.client.ListCommitsSince(ctx, ref.Repo, ref.Branch, since)
}

func (w *Watcher) deliver(ctx context.Context, msg domain.Message) error {
	ctx, cancel := w.callContext(ctx)
	defer cancel()
	return w.notifier.Deliver(ctx, msg)
}

// callContext bounds a single dependency call so one hanging endpoint cannot stall the cycle.
func (w *Watcher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.opts.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.opts.RequestTimeout)
}

func (w *Watcher) logFetchError(log *zap.SugaredLogger, repo domain.Repository, branch string, err error) {
	fields := []interface{}{"repository", repo.String(), "error", err}
	if branch != "" {
		fields = append(fields, "branch", branch)
	}
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		log.Warnw("rate limited, skipping remaining work on host for this cycle", append(fields, "host", repo.Host)...)
	case errors.Is(err, domain.ErrNotFound):
		log.Infow("not found, skipping for this cycle", fields...)
	default:
		log.Errorw("fetch failed", fields...)
	}
}
