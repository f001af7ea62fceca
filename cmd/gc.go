package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jensroland/git-aitrack/internal/checkpoint"
	"github.com/jensroland/git-aitrack/internal/config"
	"github.com/jensroland/git-aitrack/internal/hook"
	"github.com/jensroland/git-aitrack/internal/index"
)

var (
	gcOlderThan  int
	gcResetIndex bool
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove old archived checkpoint logs",
	Long: `Remove archived checkpoint logs older than retention.days (default 30).

--reset-index also empties the local ledger cache; it is refilled from the
notes on the next query.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		days := config.RetentionDays()
		if cmd.Flags().Changed("older-than") {
			days = gcOlderThan
		}
		return runGC(env, cmd.OutOrStdout(), days, gcResetIndex, time.Now())
	},
}

func init() {
	rootCmd.AddCommand(gcCmd)

	gcCmd.Flags().IntVar(&gcOlderThan, "older-than", 0, "age in days (default retention.days)")
	gcCmd.Flags().BoolVar(&gcResetIndex, "reset-index", false, "empty the local ledger cache")
}

func runGC(env *hook.Env, w io.Writer, days int, resetIndex bool, now time.Time) error {
	n, err := checkpoint.Prune(env.Paths.ArchiveDir, time.Duration(days)*24*time.Hour, now)
	if err != nil {
		return fmt.Errorf("prune archived logs: %w", err)
	}
	fmt.Fprintf(w, "Removed %d archived checkpoint log(s) older than %d day(s)\n", n, days)

	if !resetIndex {
		return nil
	}
	cache, err := index.Open(env.Paths.IndexDB)
	if err != nil {
		return err
	}
	defer cache.Close()
	cached, err := cache.Len()
	if err != nil {
		return err
	}
	if err := cache.Reset(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Dropped %d cached ledger entr(ies)\n", cached)
	return nil
}
