package hook

import (
	"context"
	"errors"

	"github.com/jensroland/git-aitrack/internal/checkpoint"
)

// PreCommit records a Human checkpoint for edits made since the last
// checkpoint, so they are not credited to the agent. Repositories that never
// saw an AI checkpoint since the last commit are left alone.
func PreCommit(ctx context.Context, env *Env) error {
	log, err := env.CurrentLog(ctx)
	if err != nil {
		env.Logger.Error("pre-commit: open log", "error", err)
		return err
	}
	cps, err := log.ReadAll()
	if err != nil {
		env.Logger.Error("pre-commit: read log", "error", err)
		return err
	}
	if !hasAgentCheckpoint(cps) {
		return nil
	}

	rec, err := log.Record(ctx, env.Repo, checkpoint.RecordOptions{
		Kind:   checkpoint.Human,
		Author: env.Repo.Author(ctx),
	})
	if errors.Is(err, checkpoint.ErrNoChanges) {
		return nil
	}
	if err != nil {
		env.Logger.Error("pre-commit: record checkpoint", "error", err)
		return err
	}
	env.Logger.Info("pre-commit checkpoint", "seq", rec.Checkpoint.Seq, "files", len(rec.Checkpoint.Entries))
	return nil
}

func hasAgentCheckpoint(cps []checkpoint.Checkpoint) bool {
	for _, cp := range cps {
		if cp.Kind == checkpoint.AiAgent {
			return true
		}
	}
	return false
}
