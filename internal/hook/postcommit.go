package hook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jensroland/git-aitrack/internal/checkpoint"
	"github.com/jensroland/git-aitrack/internal/config"
	"github.com/jensroland/git-aitrack/internal/ledger"
	"github.com/jensroland/git-aitrack/internal/project"
	"github.com/jensroland/git-aitrack/internal/reconcile"
)

// tailGrace is how long publish and roll-forward may still run after the
// reconcile deadline has passed.
const tailGrace = 2 * time.Second

// PostCommitOptions describe the commit that just happened.
type PostCommitOptions struct {
	// Amend is set when HEAD replaced OldHead. It is detected from the
	// reflog when not given.
	Amend   bool
	OldHead string
}

// Report summarises one post-commit run.
type Report struct {
	Commit    string
	Base      string
	Published bool
	Result    *reconcile.Result
}

// PostCommit reconciles the checkpoints recorded since the previous commit
// against HEAD, publishes the attestation and rolls the log forward. The
// whole run is bounded by the reconcile timeout.
func PostCommit(ctx context.Context, env *Env, opts PostCommitOptions) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, config.ReconcileTimeout())
	defer cancel()

	rep, err := postCommit(ctx, env, opts)
	if err != nil {
		env.Logger.Error("post-commit failed", "error", err)
	}
	return rep, err
}

func postCommit(ctx context.Context, env *Env, opts PostCommitOptions) (*Report, error) {
	head, err := env.Repo.HeadSHA(ctx)
	if err != nil {
		return nil, err
	}
	parent := env.Repo.ParentSHA(ctx, head)
	if parent == "" {
		parent = project.InitialBase
	}

	if !opts.Amend && strings.HasPrefix(env.Repo.LastReflog(ctx), "commit (amend)") {
		opts.Amend = true
	}
	base := parent
	if opts.Amend {
		if opts.OldHead == "" {
			old, err := env.Repo.ResolveCommit(ctx, "HEAD@{1}")
			if err != nil {
				return nil, fmt.Errorf("resolve amended commit: %w", err)
			}
			opts.OldHead = old
		}
		base = opts.OldHead
	}
	rep := &Report{Commit: head, Base: base}

	log, err := env.openLog(base)
	if err != nil {
		return rep, err
	}
	view, err := log.Snapshot(ctx)
	if errors.Is(err, checkpoint.ErrLogSealed) {
		env.Logger.Info("checkpoint log already rolled forward", "base", base)
		return rep, nil
	}
	if err != nil {
		return rep, err
	}

	l := env.Ledger()
	var res *reconcile.Result
	if len(view.Checkpoints) > 0 || opts.Amend {
		res, err = env.reconcile(ctx, view, head, env.Repo)
	}
	if rerr := view.Release(); rerr != nil {
		env.Logger.Warn("release checkpoint log", "error", rerr)
	}
	rep.Result = res

	tail, cancel := graceContext(ctx)
	defer cancel()

	if err == nil && res != nil {
		err = env.publish(tail, l, rep, parent, opts)
	}
	if _, rerr := log.RollForward(tail, head); rerr != nil {
		env.Logger.Error("roll forward checkpoint log", "base", base, "error", rerr)
		err = errors.Join(err, rerr)
	}
	env.prune()
	return rep, err
}

func (e *Env) reconcile(ctx context.Context, view *checkpoint.View, head string, src reconcile.Source) (*reconcile.Result, error) {
	opts := reconcile.Options{
		Policy: reconcile.Policy(config.TrailingEdits()),
		Logger: e.Logger,
		Now:    e.Now,
	}
	if config.SeedBaseline() {
		eng, closeEngine := e.Engine()
		defer closeEngine()
		opts.Baseline = eng
	}
	res, err := reconcile.Reconcile(ctx, reconcile.Input{
		BaseCommit:  view.Base,
		NewCommit:   head,
		Checkpoints: view.Checkpoints,
		Blobs:       view.Blobs,
		Source:      src,
	}, opts)
	if err != nil {
		return nil, err
	}
	if len(res.Unattributed) > 0 || len(res.Skipped) > 0 {
		e.Logger.Warn("reconciled with degraded files",
			"unattributed", res.Unattributed, "skipped", res.Skipped)
	}
	return res, nil
}

func (e *Env) publish(ctx context.Context, l *ledger.Ledger, rep *Report, parent string, opts PostCommitOptions) error {
	entry := rep.Result.Log
	if opts.Amend {
		carried, err := e.carryAmended(ctx, l, opts.OldHead, rep.Commit, entry)
		if err != nil {
			return err
		}
		if !carried && len(entry.Metadata.PromptReferences) == 0 && !hasCheckpointSpans(entry) {
			e.Logger.Info("amended commit has nothing to attest", "commit", rep.Commit)
			return nil
		}
		entry.Metadata.BaseCommitSHA = parent
	}
	if err := l.Publish(ctx, rep.Commit, entry); err != nil {
		return err
	}
	rep.Published = true
	return nil
}

// carryAmended copies the amended commit's attestations for files the amend
// did not touch into entry. Reports whether there was an entry to carry.
func (e *Env) carryAmended(ctx context.Context, l *ledger.Ledger, oldHead, head string, entry *ledger.AttestationLog) (bool, error) {
	prev, err := l.Fetch(ctx, oldHead)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	changed, err := e.Repo.DiffNameStatus(ctx, oldHead, head)
	if err != nil {
		return false, err
	}
	touched := make(map[string]bool)
	for _, f := range changed {
		touched[f.Path] = true
		if f.OrigPath != "" {
			touched[f.OrigPath] = true
		}
	}

	if entry.Metadata.PromptReferences == nil {
		entry.Metadata.PromptReferences = make(map[string]ledger.PromptRecord)
	}
	refs := entry.Metadata.PromptReferences
	for _, fa := range prev.Attestations {
		if touched[fa.File] {
			continue
		}
		entry.Attestations = append(entry.Attestations, fa)
		for _, span := range fa.Attributions {
			rec, ok := prev.Metadata.PromptReferences[span.AuthorID]
			if !ok {
				continue
			}
			cur, ok := refs[span.AuthorID]
			if !ok {
				cur = ledger.PromptRecord{Agent: rec.Agent, HumanAuthor: rec.HumanAuthor, LinesAdded: rec.LinesAdded}
			}
			cur.LinesAccepted += span.Len()
			refs[span.AuthorID] = cur
		}
	}
	return true, nil
}

func hasCheckpointSpans(entry *ledger.AttestationLog) bool {
	for _, fa := range entry.Attestations {
		for _, s := range fa.Attributions {
			if s.AuthorID != ledger.Unattributed {
				return true
			}
		}
	}
	return false
}

func (e *Env) prune() {
	days := config.RetentionDays()
	if days <= 0 {
		return
	}
	n, err := checkpoint.Prune(e.Paths.ArchiveDir, time.Duration(days)*24*time.Hour, e.Now())
	if err != nil {
		e.Logger.Warn("prune archived logs", "error", err)
		return
	}
	if n > 0 {
		e.Logger.Debug("pruned archived logs", "count", n)
	}
}

// graceContext returns ctx itself while it is live, or a short detached
// context once it has expired, so the log is never left unsealed.
func graceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), tailGrace)
}
