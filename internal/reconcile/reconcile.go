// Package reconcile turns a base commit's checkpoints plus the committed tree
// into per-line authorship spans.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jensroland/git-aitrack/internal/checkpoint"
	"github.com/jensroland/git-aitrack/internal/git"
	"github.com/jensroland/git-aitrack/internal/ledger"
	"github.com/jensroland/git-aitrack/internal/lineset"
	"github.com/jensroland/git-aitrack/internal/logging"
	"github.com/jensroland/git-aitrack/internal/project"
	"github.com/jensroland/git-aitrack/internal/snapshot"
)

// Policy decides who owns lines changed after the last checkpoint.
type Policy string

const (
	// PolicyLastCheckpoint gives them to the last checkpoint that touched the file.
	PolicyLastCheckpoint Policy = "last-checkpoint"
	// PolicyUnattributed leaves them unattributed.
	PolicyUnattributed Policy = "unattributed"
)

// Source reads committed trees.
type Source interface {
	ShowFile(ctx context.Context, rev, path string) (string, error)
	DiffNameStatus(ctx context.Context, from, to string) ([]git.FileStatus, error)
}

// BlobReader returns snapshot content by hash.
type BlobReader interface {
	Get(hash string) ([]byte, error)
}

// Baseline supplies the authorship of a file's lines at the base commit,
// one stamp per line.
type Baseline interface {
	BaseStamps(ctx context.Context, base, path string, lineCount int) ([]Stamp, error)
}

// Input is everything one reconciliation reads.
type Input struct {
	BaseCommit  string
	NewCommit   string
	Checkpoints []checkpoint.Checkpoint
	Blobs       BlobReader
	Source      Source
}

// Options tune a reconciliation.
type Options struct {
	Policy   Policy
	Baseline Baseline
	Logger   *slog.Logger
	Now      func() time.Time
}

// Result is the attestation log for the new commit plus a summary of files
// that could not be reconciled precisely.
type Result struct {
	Log          *ledger.AttestationLog
	Unattributed []string // files recorded as a single unattributed span
	Skipped      []string // committed files with no attestation (binary, unreadable)
	Corrupt      []string // subset of Unattributed whose snapshots failed their hash check
}

// Reconcile folds the checkpoints over each file changed by the new commit.
// A failure in one file degrades that file to an unattributed span and the
// rest continue. Once ctx is done, remaining files are marked unattributed.
func Reconcile(ctx context.Context, in Input, opts Options) (*Result, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Policy == "" {
		opts.Policy = PolicyLastCheckpoint
	}

	from := in.BaseCommit
	if from == project.InitialBase {
		from = ""
	}
	files, err := in.Source.DiffNameStatus(ctx, from, in.NewCommit)
	if err != nil {
		return nil, fmt.Errorf("list committed files: %w", err)
	}

	cps := append([]checkpoint.Checkpoint(nil), in.Checkpoints...)
	sort.SliceStable(cps, func(i, j int) bool { return cps[i].Seq < cps[j].Seq })

	r := &reconciler{in: in, opts: opts, checkpoints: cps, accepted: make(map[string]int), carried: make(map[string]ledger.PromptRecord)}
	res := &Result{}
	var attestations []ledger.FileAttestation

	for _, f := range files {
		if f.Status == 'D' {
			continue
		}

		readCtx := ctx
		expired := ctx.Err() != nil
		if expired {
			readCtx = context.WithoutCancel(ctx)
		}
		committed, err := in.Source.ShowFile(readCtx, in.NewCommit, f.Path)
		if err != nil {
			opts.Logger.Warn("cannot read committed file", "path", f.Path, "error", err)
			res.Skipped = append(res.Skipped, f.Path)
			continue
		}
		if !snapshot.Eligible([]byte(committed)) {
			res.Skipped = append(res.Skipped, f.Path)
			continue
		}
		lines := lineset.SplitLines(committed)
		if len(lines) == 0 {
			continue
		}

		var stamps []Stamp
		if expired {
			err = ctx.Err()
		} else {
			stamps, err = r.file(ctx, f, lines)
		}
		if err != nil {
			opts.Logger.Warn("file degraded to unattributed", "path", f.Path, "error", err)
			res.Unattributed = append(res.Unattributed, f.Path)
			if errors.Is(err, snapshot.ErrCorrupt) {
				res.Corrupt = append(res.Corrupt, f.Path)
			}
			stamps = fill(len(lines), unattributed)
		}
		r.count(stamps)
		attestations = append(attestations, ledger.FileAttestation{File: f.Path, Attributions: coalesce(stamps)})
	}

	res.Log = &ledger.AttestationLog{
		Version: ledger.SchemaVersion,
		Metadata: ledger.Metadata{
			BaseCommitSHA:    in.BaseCommit,
			Timestamp:        opts.Now().UTC(),
			PromptReferences: r.prompts(),
		},
		Attestations: attestations,
	}
	return res, nil
}

type reconciler struct {
	in          Input
	opts        Options
	checkpoints []checkpoint.Checkpoint
	accepted    map[string]int
	carried     map[string]ledger.PromptRecord
}

// file runs the fold for one committed file and returns a stamp per line.
func (r *reconciler) file(ctx context.Context, f git.FileStatus, committed []string) ([]Stamp, error) {
	origin := f.Path
	if f.OrigPath != "" {
		origin = f.OrigPath
	}

	var prev []string
	if r.in.BaseCommit != project.InitialBase && f.Status != 'A' {
		content, err := r.in.Source.ShowFile(ctx, r.in.BaseCommit, origin)
		switch {
		case errors.Is(err, git.ErrPathNotFound):
		case err != nil:
			return nil, fmt.Errorf("read base: %w", err)
		default:
			prev = lineset.SplitLines(content)
		}
	}
	stamps := r.baseStamps(ctx, origin, len(prev))

	pool := identityPool{}
	trailing := unattributed
	touched := false
	for _, cp := range r.checkpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, ok := cp.Entry(f.Path)
		if !ok && origin != f.Path {
			e, ok = cp.Entry(origin)
		}
		if !ok {
			continue
		}

		var next []string
		if !e.Deleted {
			b, err := r.in.Blobs.Get(e.ContentHash)
			if err != nil {
				return nil, err
			}
			next = lineset.SplitLines(string(b))
		}
		actor := Stamp{AuthorID: cp.AuthorID(), Timestamp: cp.Timestamp}
		stamps = transform(prev, next, stamps, actor, pool)
		prev = next
		trailing = actor
		touched = true
	}

	if r.opts.Policy == PolicyUnattributed || !touched {
		trailing = unattributed
	}
	return transform(prev, committed, stamps, trailing, pool), nil
}

func (r *reconciler) baseStamps(ctx context.Context, path string, n int) []Stamp {
	if n == 0 {
		return nil
	}
	if r.opts.Baseline != nil {
		stamps, err := r.opts.Baseline.BaseStamps(ctx, r.in.BaseCommit, path, n)
		if err == nil && len(stamps) == n {
			return stamps
		}
		if err != nil {
			r.opts.Logger.Debug("no baseline authorship", "path", path, "error", err)
		}
	}
	return fill(n, unattributed)
}

// count tallies committed lines per AI session.
func (r *reconciler) count(stamps []Stamp) {
	for _, s := range stamps {
		if s.Prompt != nil {
			if _, ok := r.carried[s.AuthorID]; !ok {
				r.carried[s.AuthorID] = *s.Prompt
			}
		}
		r.accepted[s.AuthorID]++
	}
}

// prompts builds PromptReferences from the AI checkpoints of this log, plus
// sessions from earlier commits whose lines survive into this one.
func (r *reconciler) prompts() map[string]ledger.PromptRecord {
	refs := make(map[string]ledger.PromptRecord)
	for _, cp := range r.checkpoints {
		if cp.Kind != checkpoint.AiAgent || cp.Agent == nil {
			continue
		}
		id := cp.AuthorID()
		rec, ok := refs[id]
		if !ok {
			rec = ledger.PromptRecord{Agent: *cp.Agent, HumanAuthor: cp.Author}
		}
		if cp.Agent.Model != "" {
			rec.Agent.Model = cp.Agent.Model
		}
		rec.LinesAdded += cp.LineStats.Added
		refs[id] = rec
	}
	for id, rec := range r.carried {
		if _, ok := refs[id]; ok {
			continue
		}
		refs[id] = ledger.PromptRecord{Agent: rec.Agent, HumanAuthor: rec.HumanAuthor}
	}
	for id, rec := range refs {
		rec.LinesAccepted = r.accepted[id]
		refs[id] = rec
	}
	return refs
}
