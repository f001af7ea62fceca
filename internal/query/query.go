// Package query answers authorship questions from git blame and the ledger.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jensroland/git-aitrack/internal/git"
	"github.com/jensroland/git-aitrack/internal/index"
	"github.com/jensroland/git-aitrack/internal/ledger"
	"github.com/jensroland/git-aitrack/internal/logging"
	"github.com/jensroland/git-aitrack/internal/reconcile"
)

// Host is the part of the VCS the query engine reads.
type Host interface {
	BlameFile(ctx context.Context, ref, file string) (map[int]git.BlameEntry, error)
	BlameRange(ctx context.Context, ref, file string, start, end int) (map[int]git.BlameEntry, error)
	ResolveCommit(ctx context.Context, rev string) (string, error)
	RevList(ctx context.Context, spec string) ([]string, error)
}

// LineAttribution is the author of one line of a file.
type LineAttribution struct {
	Line      int                  `json:"line"`
	Commit    string               `json:"commit"`
	AuthorID  string               `json:"author_id"`
	Timestamp time.Time            `json:"timestamp,omitzero"`
	AI        bool                 `json:"ai"`
	Prompt    *ledger.PromptRecord `json:"prompt,omitempty"`
}

// Engine runs queries, fetching each commit's ledger entry at most once.
type Engine struct {
	host    Host
	ledger  *ledger.Ledger
	cache   *index.Cache
	Logger  *slog.Logger
	Workers int

	mu   sync.Mutex
	memo map[string]memoEntry
}

type memoEntry struct {
	log *ledger.AttestationLog
	err error
}

// New returns an engine. cache may be nil.
func New(host Host, l *ledger.Ledger, cache *index.Cache) *Engine {
	return &Engine{
		host:    host,
		ledger:  l,
		cache:   cache,
		Logger:  logging.Discard(),
		Workers: runtime.GOMAXPROCS(0),
		memo:    make(map[string]memoEntry),
	}
}

// Entry returns the ledger entry for commit, or ledger.ErrNotFound.
func (e *Engine) Entry(ctx context.Context, commit string) (*ledger.AttestationLog, error) {
	e.mu.Lock()
	m, ok := e.memo[commit]
	e.mu.Unlock()
	if ok {
		return m.log, m.err
	}

	log, err := e.load(ctx, commit)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	e.mu.Lock()
	e.memo[commit] = memoEntry{log: log, err: err}
	e.mu.Unlock()
	return log, err
}

func (e *Engine) load(ctx context.Context, commit string) (*ledger.AttestationLog, error) {
	oid, err := e.ledger.NoteOID(ctx, commit)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		body, ok, err := e.cache.Get(commit, oid)
		if err != nil {
			e.Logger.Debug("index lookup failed", "commit", commit, "error", err)
		} else if ok {
			if log, err := ledger.Decode(body); err == nil {
				return log, nil
			}
		}
	}

	log, err := e.ledger.Fetch(ctx, commit)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.store(commit, oid, log); err != nil {
			e.Logger.Debug("index store failed", "commit", commit, "error", err)
		}
	}
	return log, nil
}

func (e *Engine) store(commit, oid string, log *ledger.AttestationLog) error {
	body, err := ledger.Encode(log)
	if err != nil {
		return err
	}
	return e.cache.Put(commit, oid, body)
}

// Blame attributes every line of file at ref (the working tree if empty).
// Lines whose commit has no ledger entry, and uncommitted lines, are
// unattributed.
func (e *Engine) Blame(ctx context.Context, file, ref string) ([]LineAttribution, error) {
	entries, err := e.host.BlameFile(ctx, ref, file)
	if err != nil {
		return nil, err
	}
	return e.attribute(ctx, entries)
}

// BlameLines is Blame restricted to lines start..end.
func (e *Engine) BlameLines(ctx context.Context, file, ref string, start, end int) ([]LineAttribution, error) {
	if start < 1 || end < start {
		return nil, fmt.Errorf("invalid line range %d,%d", start, end)
	}
	entries, err := e.host.BlameRange(ctx, ref, file, start, end)
	if err != nil {
		return nil, err
	}
	return e.attribute(ctx, entries)
}

func (e *Engine) attribute(ctx context.Context, entries map[int]git.BlameEntry) ([]LineAttribution, error) {
	lines := make([]int, 0, len(entries))
	for n := range entries {
		lines = append(lines, n)
	}
	sort.Ints(lines)

	out := make([]LineAttribution, 0, len(lines))
	for _, n := range lines {
		be := entries[n]
		la := LineAttribution{Line: n, Commit: be.SHA, AuthorID: ledger.Unattributed}
		if be.IsUncommitted() {
			out = append(out, la)
			continue
		}

		log, err := e.Entry(ctx, be.SHA)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
		case err != nil:
			if ctx.Err() != nil {
				return nil, err
			}
			e.Logger.Warn("unreadable ledger entry", "commit", be.SHA, "error", err)
		default:
			if fa, ok := log.File(be.OrigPath); ok {
				if span, ok := fa.SpanAt(be.OrigLine); ok {
					la.AuthorID = span.AuthorID
					la.Timestamp = span.Timestamp
					if rec, ok := log.Metadata.PromptReferences[span.AuthorID]; ok {
						la.AI = true
						la.Prompt = &rec
					}
				}
			}
		}
		out = append(out, la)
	}
	return out, nil
}

// BaseStamps seeds reconciliation with the authorship of path at base, so
// unchanged lines keep the author recorded by earlier commits.
func (e *Engine) BaseStamps(ctx context.Context, base, path string, lineCount int) ([]reconcile.Stamp, error) {
	attrs, err := e.Blame(ctx, path, base)
	if err != nil {
		return nil, err
	}
	if len(attrs) != lineCount {
		return nil, fmt.Errorf("blame of %s at %s has %d lines, want %d", path, base, len(attrs), lineCount)
	}
	stamps := make([]reconcile.Stamp, len(attrs))
	for i, a := range attrs {
		stamps[i] = reconcile.Stamp{AuthorID: a.AuthorID, Timestamp: a.Timestamp, Prompt: a.Prompt}
	}
	return stamps, nil
}

// Show summarizes one commit's ledger entry.
func (e *Engine) Show(ctx context.Context, commit string) (Summary, error) {
	log, err := e.Entry(ctx, commit)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(log, nil), nil
}

// Stats folds the summaries of commits in parallel. Commits without a ledger
// entry are counted as untracked. Files matching an ignore pattern are left
// out of the line counts.
func (e *Engine) Stats(ctx context.Context, commits []string, ignore []string) (Summary, error) {
	p := newStatsPool(ctx, e.Workers)
	for _, c := range commits {
		p.Go(func(ctx context.Context) (Summary, error) {
			log, err := e.Entry(ctx, c)
			if errors.Is(err, ledger.ErrNotFound) {
				return Summary{Commits: 1, Untracked: 1}, nil
			}
			if err != nil {
				return Summary{}, fmt.Errorf("commit %s: %w", c, err)
			}
			return Summarize(log, ignore), nil
		})
	}
	parts, err := p.Wait()
	if err != nil {
		return Summary{}, err
	}

	total := Summary{}
	for _, s := range parts {
		total = total.Merge(s)
	}
	return total, nil
}

// ResolveCommits turns a single revision or an "a..b" range into commit ids.
func (e *Engine) ResolveCommits(ctx context.Context, spec string) ([]string, error) {
	if spec == "" {
		spec = "HEAD"
	}
	if strings.Contains(spec, "..") {
		return e.host.RevList(ctx, spec)
	}
	c, err := e.host.ResolveCommit(ctx, spec)
	if err != nil {
		return nil, err
	}
	return []string{c}, nil
}
