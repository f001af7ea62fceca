package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jensroland/git-aitrack/internal/checkpoint"
	"github.com/jensroland/git-aitrack/internal/config"
	"github.com/jensroland/git-aitrack/internal/hook"
	"github.com/jensroland/git-aitrack/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Record Human checkpoints while you edit",
	Long: `Watch the working tree and record a Human checkpoint once edits have
been quiet for watch.debounce (default 2s). Run it alongside an agent so
hand-written changes between agent runs keep your name. Files an agent is
in the middle of editing are skipped until its tool call completes.

Stop with Ctrl-C; pending edits are checkpointed before exiting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		w := watch.New(env.Paths.Root, config.WatchDebounce(), func(ctx context.Context, paths []string) error {
			rec, err := recordHuman(ctx, env, paths)
			if err != nil || rec == nil {
				return err
			}
			printRecorded(out, rec)
			return nil
		})
		w.Logger = env.Logger
		fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", env.Paths.Root)
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// recordHuman checkpoints paths as the current git author. Paths an agent is
// still editing are left for its PostToolUse checkpoint. Returns nil, nil
// when nothing is left to record.
func recordHuman(ctx context.Context, env *hook.Env, paths []string) (*checkpoint.Recorded, error) {
	paths = slices.DeleteFunc(paths, env.AgentEditing)
	if len(paths) == 0 {
		return nil, nil
	}
	rec, err := hook.Checkpoint(ctx, env, checkpoint.RecordOptions{
		Kind:   checkpoint.Human,
		Author: env.Repo.Author(ctx),
		Paths:  paths,
	})
	if errors.Is(err, checkpoint.ErrNoChanges) {
		return nil, nil
	}
	return rec, err
}
