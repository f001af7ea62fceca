// Package hook runs the git lifecycle hooks (pre-commit, post-commit,
// pre-push) and the coding-agent hook that records AI checkpoints.
// Handlers log their own failures; the CLI always exits 0 so the host
// operation is never blocked.
package hook

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jensroland/git-aitrack/internal/checkpoint"
	"github.com/jensroland/git-aitrack/internal/config"
	"github.com/jensroland/git-aitrack/internal/git"
	"github.com/jensroland/git-aitrack/internal/index"
	"github.com/jensroland/git-aitrack/internal/ledger"
	"github.com/jensroland/git-aitrack/internal/logging"
	"github.com/jensroland/git-aitrack/internal/project"
	"github.com/jensroland/git-aitrack/internal/query"
)

// Env is the repository a handler runs against.
type Env struct {
	Repo   *git.Repo
	Paths  project.Paths
	Logger *slog.Logger
	Now    func() time.Time
}

// NewEnv returns an Env for the repository at root.
func NewEnv(root string, logger *slog.Logger) *Env {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Env{
		Repo:   git.New(root),
		Paths:  project.NewPaths(root),
		Logger: logger,
		Now:    time.Now,
	}
}

// CurrentLog opens the checkpoint log keyed by HEAD, or by the initial
// sentinel before the first commit.
func (e *Env) CurrentLog(ctx context.Context) (*checkpoint.Log, error) {
	base, err := e.Repo.HeadSHA(ctx)
	if errors.Is(err, git.ErrNoCommits) {
		base = project.InitialBase
	} else if err != nil {
		return nil, err
	}
	return e.openLog(base)
}

func (e *Env) openLog(base string) (*checkpoint.Log, error) {
	l, err := checkpoint.Open(e.Paths.WorkingLogsDir, e.Paths.ArchiveDir, base)
	if err != nil {
		return nil, err
	}
	l.Logger = e.Logger
	return l, nil
}

// Ledger returns the ledger configured for this repository.
func (e *Env) Ledger() *ledger.Ledger {
	l := ledger.New(e.Repo, config.NotesRef())
	l.Attempts = config.PublishAttempts()
	l.Logger = e.Logger
	return l
}

// Engine returns a query engine backed by the local index. The returned
// func closes the index.
func (e *Env) Engine() (*query.Engine, func()) {
	cache, err := index.Open(e.Paths.IndexDB)
	if err != nil {
		e.Logger.Debug("index unavailable", "error", err)
		cache = nil
	}
	eng := query.New(e.Repo, e.Ledger(), cache)
	eng.Logger = e.Logger
	return eng, func() {
		if cache != nil {
			cache.Close()
		}
	}
}

// Checkpoint records a checkpoint in the current log. A log sealed by a
// concurrent commit is reopened at the new HEAD once.
func Checkpoint(ctx context.Context, env *Env, opts checkpoint.RecordOptions) (*checkpoint.Recorded, error) {
	for attempt := 0; ; attempt++ {
		log, err := env.CurrentLog(ctx)
		if err != nil {
			return nil, err
		}
		rec, err := log.Record(ctx, env.Repo, opts)
		if errors.Is(err, checkpoint.ErrLogSealed) && attempt == 0 {
			env.Logger.Debug("checkpoint log sealed, retrying at new HEAD", "base", log.Base())
			continue
		}
		return rec, err
	}
}
