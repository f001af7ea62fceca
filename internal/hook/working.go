package hook

import (
	"context"
	"errors"
	"io/fs"

	"github.com/jensroland/git-aitrack/internal/config"
	"github.com/jensroland/git-aitrack/internal/git"
	"github.com/jensroland/git-aitrack/internal/reconcile"
)

// WorkingTree is the revision name under which uncommitted work is read.
const WorkingTree = "WORKTREE"

// worktreeSource reads WorkingTree from disk and everything else from git.
type worktreeSource struct {
	repo *git.Repo
}

func (s worktreeSource) ShowFile(ctx context.Context, rev, path string) (string, error) {
	if rev != WorkingTree {
		return s.repo.ShowFile(ctx, rev, path)
	}
	b, err := s.repo.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", git.ErrPathNotFound
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s worktreeSource) DiffNameStatus(ctx context.Context, from, to string) ([]git.FileStatus, error) {
	if to != WorkingTree {
		return s.repo.DiffNameStatus(ctx, from, to)
	}
	changes, err := s.repo.ChangedPaths(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]git.FileStatus, 0, len(changes))
	for _, c := range changes {
		st := git.FileStatus{Status: 'M', Path: c.Path, OrigPath: c.OrigPath}
		switch {
		case c.Deleted:
			st.Status = 'D'
		case c.OrigPath != "":
			st.Status = 'R'
		case c.Untracked:
			st.Status = 'A'
		}
		out = append(out, st)
	}
	return out, nil
}

// WorkingLog attributes the uncommitted changes in the working tree using
// the checkpoints recorded since HEAD, the same way post-commit would if
// everything were committed now. Nothing is published or rolled forward.
func WorkingLog(ctx context.Context, env *Env) (*reconcile.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, config.ReconcileTimeout())
	defer cancel()

	log, err := env.CurrentLog(ctx)
	if err != nil {
		return nil, err
	}
	view, err := log.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := view.Release(); rerr != nil {
			env.Logger.Warn("release checkpoint log", "error", rerr)
		}
	}()

	return env.reconcile(ctx, view, WorkingTree, worktreeSource{repo: env.Repo})
}
