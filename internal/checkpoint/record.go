package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jensroland/git-aitrack/internal/git"
	"github.com/jensroland/git-aitrack/internal/lineset"
	"github.com/jensroland/git-aitrack/internal/project"
	"github.com/jensroland/git-aitrack/internal/snapshot"
)

// Workspace is the view of the repository a checkpoint is recorded from.
type Workspace interface {
	ChangedPaths(ctx context.Context) ([]git.Change, error)
	ShowFile(ctx context.Context, rev, path string) (string, error)
	ReadFile(path string) ([]byte, error)
}

// RecordOptions describes who is checkpointing and, optionally, which paths.
type RecordOptions struct {
	Kind   Kind
	Author string
	Agent  *AgentID
	Paths  []string // narrow to these files or directories; empty means all
}

// Recorded is the outcome of Record.
type Recorded struct {
	Checkpoint Checkpoint
	Skipped    []string // paths left out as binary or unreadable
}

// Record snapshots every path that changed since its last recorded state and
// appends the result as one checkpoint. Returns ErrNoChanges if nothing did.
func (l *Log) Record(ctx context.Context, ws Workspace, opts RecordOptions) (*Recorded, error) {
	if !opts.Kind.Valid() {
		return nil, fmt.Errorf("invalid checkpoint kind %q", opts.Kind)
	}
	if opts.Kind == AiAgent && (opts.Agent == nil || opts.Agent.Tool == "" || opts.Agent.ID == "") {
		return nil, errors.New("ai_agent checkpoint needs an agent tool and id")
	}

	prior, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	last := LastEntries(prior)

	changes, err := ws.ChangedPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list changed paths: %w", err)
	}

	// Paths touched earlier but since reverted no longer show up as changed,
	// yet still differ from their last recorded state.
	origin := make(map[string]string)
	candidates := make(map[string]bool)
	for _, c := range changes {
		candidates[c.Path] = true
		if c.OrigPath != "" {
			origin[c.Path] = c.OrigPath
		}
	}
	for p := range last {
		candidates[p] = true
	}

	paths := make([]string, 0, len(candidates))
	for p := range candidates {
		if matchesAny(p, opts.Paths) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	rec := &Recorded{}
	var entries []FileEntry
	var stats LineStats
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, deleted, err := readCurrent(ws, p)
		if err != nil {
			l.Logger.Warn("skip unreadable file", "path", p, "error", err)
			rec.Skipped = append(rec.Skipped, p)
			continue
		}
		if !deleted && !snapshot.Eligible(current) {
			l.Logger.Debug("skip ineligible file", "path", p)
			rec.Skipped = append(rec.Skipped, p)
			continue
		}

		previous, existed, err := l.previousContent(ctx, ws, p, origin[p], last)
		if err != nil {
			l.Logger.Warn("skip file with unreadable history", "path", p, "error", err)
			rec.Skipped = append(rec.Skipped, p)
			continue
		}
		if deleted && !existed {
			continue
		}
		if !deleted && existed && bytes.Equal(previous, current) {
			continue
		}

		entry := FileEntry{Path: p, Deleted: deleted}
		if !deleted {
			hash, err := l.blobs.Put(p, current)
			if err != nil {
				l.Logger.Warn("skip file", "path", p, "error", err)
				rec.Skipped = append(rec.Skipped, p)
				continue
			}
			entry.ContentHash = hash
		}
		added, removed := lineset.Stats(lineset.SplitLines(string(previous)), lineset.SplitLines(string(current)))
		stats.Added += added
		stats.Deleted += removed
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return rec, ErrNoChanges
	}

	changed := make([]string, len(entries))
	for i, e := range entries {
		changed[i] = e.Path
	}
	cp := Checkpoint{
		ID:              uuid.NewString(),
		Kind:            opts.Kind,
		Timestamp:       l.now().UTC(),
		Author:          opts.Author,
		Agent:           opts.Agent,
		DiffFingerprint: Fingerprint(changed),
		Entries:         entries,
		LineStats:       stats,
	}
	if cp.Kind == Human {
		cp.Agent = nil
	}

	cp, err = l.Append(ctx, cp)
	if err != nil {
		return rec, err
	}
	rec.Checkpoint = cp
	l.Logger.Info("recorded checkpoint",
		"seq", cp.Seq, "kind", cp.Kind, "files", len(cp.Entries),
		"added", stats.Added, "deleted", stats.Deleted)
	return rec, nil
}

// previousContent returns the last recorded content of path: its newest entry
// in this log, else its content at the base commit.
func (l *Log) previousContent(ctx context.Context, ws Workspace, path, origPath string, last map[string]FileEntry) ([]byte, bool, error) {
	if e, ok := last[path]; ok {
		if e.Deleted {
			return nil, false, nil
		}
		b, err := l.blobs.Get(e.ContentHash)
		if err != nil {
			return nil, false, err
		}
		return b, true, nil
	}

	if l.base == project.InitialBase {
		return nil, false, nil
	}
	src := path
	if origPath != "" {
		src = origPath
	}
	s, err := ws.ShowFile(ctx, l.base, src)
	if errors.Is(err, git.ErrPathNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(s), true, nil
}

func readCurrent(ws Workspace, path string) ([]byte, bool, error) {
	b, err := ws.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, false, nil
}

// matchesAny reports whether path equals, or lies under, one of filters.
func matchesAny(path string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		f = strings.TrimSuffix(strings.TrimPrefix(f, "./"), "/")
		if f == "" || f == "." || path == f || strings.HasPrefix(path, f+"/") {
			return true
		}
	}
	return false
}
