package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jensroland/git-aitrack/internal/checkpoint"
	"github.com/jensroland/git-aitrack/internal/hook"
	"github.com/jensroland/git-aitrack/internal/reconcile"
	"github.com/jensroland/git-aitrack/internal/snapshot"
)

var hookAmend bool

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Entry points for git hooks (installed by 'install')",
	Long: `Entry points for the git hooks installed by 'git-aitrack install'.

Hook commands always exit 0: a failure is written to the log under
.git/ai-track/logs and never blocks the commit or push. Files that could
not be attributed, and corrupt checkpoint data, are also reported on
stderr.`,
}

var preCommitCmd = &cobra.Command{
	Use:   "pre-commit",
	Short: "Record a Human checkpoint for edits made after the last agent checkpoint",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		runHook(cmd, func(ctx context.Context, env *hook.Env) error {
			return hook.PreCommit(ctx, env)
		})
	},
}

var postCommitCmd = &cobra.Command{
	Use:   "post-commit",
	Short: "Attribute the new commit and publish its ledger entry",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		runHook(cmd, func(ctx context.Context, env *hook.Env) error {
			rep, err := hook.PostCommit(ctx, env, hook.PostCommitOptions{Amend: hookAmend})
			if rep != nil {
				reportDegraded(cmd.ErrOrStderr(), "commit "+short(rep.Commit), rep.Result)
			}
			return err
		})
	},
}

var prePushCmd = &cobra.Command{
	Use:   "pre-push [remote] [url]",
	Short: "Push ledger notes to the remote being pushed to",
	Args:  cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		remote := ""
		if len(args) > 0 {
			remote = args[0]
		}
		runHook(cmd, func(ctx context.Context, env *hook.Env) error {
			return hook.PrePush(ctx, env, remote)
		})
	},
}

func init() {
	rootCmd.AddCommand(hookCmd)
	hookCmd.AddCommand(preCommitCmd, postCommitCmd, prePushCmd)

	postCommitCmd.Flags().BoolVar(&hookAmend, "amend", false, "treat HEAD as an amend of HEAD@{1}")
}

// runHook runs fn against the repository. Errors are already logged by the
// handlers; a failure to find the repository and corrupt storage are also
// reported on stderr.
func runHook(cmd *cobra.Command, fn func(context.Context, *hook.Env) error) {
	env, err := setup()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "git-aitrack %s: %v\n", cmd.Name(), err)
		return
	}
	if err := fn(cmd.Context(), env); err != nil {
		env.Logger.Debug("hook finished with error", "hook", cmd.Name(), "error", err)
		if errors.Is(err, checkpoint.ErrCorrupt) || errors.Is(err, snapshot.ErrCorrupt) {
			fmt.Fprintf(cmd.ErrOrStderr(), "git-aitrack %s: %v\n", cmd.Name(), err)
		}
	}
	// Always exit 0
}

// reportDegraded prints one line when what was attested has files missing or
// degraded, plus one line per corrupt snapshot.
func reportDegraded(w io.Writer, what string, res *reconcile.Result) {
	if res == nil || len(res.Unattributed)+len(res.Skipped) == 0 {
		return
	}
	fmt.Fprintf(w, "git-aitrack: %s attested with %d unattributed and %d skipped file(s)\n",
		what, len(res.Unattributed), len(res.Skipped))
	for _, p := range res.Corrupt {
		fmt.Fprintf(w, "git-aitrack: snapshot of %s is corrupt\n", p)
	}
}
