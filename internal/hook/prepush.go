package hook

import (
	"context"

	"github.com/jensroland/git-aitrack/internal/config"
)

const pushRetries = 3

// PrePush pushes the ledger notes alongside the code. An empty remote means
// the configured ledger remote.
func PrePush(ctx context.Context, env *Env, remote string) error {
	if remote == "" {
		remote = config.Remote()
	}
	if err := env.Ledger().Push(ctx, remote, pushRetries); err != nil {
		env.Logger.Error("pre-push: failed to push ledger", "remote", remote, "error", err)
		return err
	}
	return nil
}
