package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jensroland/git-aitrack/internal/config"
	"github.com/jensroland/git-aitrack/internal/format"
	"github.com/jensroland/git-aitrack/internal/hook"
	"github.com/jensroland/git-aitrack/internal/query"
)

var (
	statsOut     outputFlags
	statsIgnore  []string
	statsWorking bool
)

var statsCmd = &cobra.Command{
	Use:   "stats [commit | a..b]",
	Short: "Show AI and human line shares over commits",
	Long: `Aggregate the ledger entries of one commit or a range of commits.

Commits without a ledger entry are counted as untracked. Files matching an
ignore pattern (here or in stats.ignore) are left out of the line counts.

With --working, the uncommitted changes are attributed from the checkpoints
recorded since HEAD instead; nothing is published.

Examples:
  git-aitrack stats
  git-aitrack stats --working
  git-aitrack stats main..HEAD --ignore '*.lock' --ignore 'vendor/*'
  git-aitrack stats v1.0..v2.0 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		spec := ""
		if len(args) == 1 {
			spec = args[0]
		}
		ignore := append(config.IgnorePatterns(), statsIgnore...)
		if statsWorking {
			if spec != "" {
				return errors.New("--working takes no commit or range")
			}
			return runWorkingStats(cmd.Context(), env, cmd.OutOrStdout(), ignore, statsOut)
		}
		return runStats(cmd.Context(), env, cmd.OutOrStdout(), spec, ignore, statsOut)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().BoolVar(&statsOut.json, "json", false, "Output as JSON")
	statsCmd.Flags().BoolVar(&statsOut.toon, "toon", false, "Output in LLM-friendly toon format")
	statsCmd.Flags().BoolVar(&statsWorking, "working", false, "Attribute uncommitted changes in the working tree")
	statsCmd.Flags().StringArrayVar(&statsIgnore, "ignore", nil, "glob of files to leave out (repeatable)")
}

func runStats(ctx context.Context, env *hook.Env, w io.Writer, spec string, ignore []string, out outputFlags) error {
	eng, closeIndex := env.Engine()
	defer closeIndex()

	commits, err := eng.ResolveCommits(ctx, spec)
	if err != nil {
		return err
	}
	s, err := eng.Stats(ctx, commits, ignore)
	if err != nil {
		return err
	}
	if ok, err := out.write(w, s); ok {
		return err
	}
	fmt.Fprintln(w, format.Summary(statsTitle(spec), s))
	return nil
}

func runWorkingStats(ctx context.Context, env *hook.Env, w io.Writer, ignore []string, out outputFlags) error {
	res, err := hook.WorkingLog(ctx, env)
	if err != nil {
		return err
	}
	s := query.Summarize(res.Log, ignore)
	s.Commits = 0
	if ok, err := out.write(w, s); ok {
		return err
	}
	fmt.Fprintln(w, format.Summary("Working tree", s))
	reportDegraded(w, "working tree", res)
	return nil
}

func statsTitle(spec string) string {
	if spec == "" {
		return "Stats HEAD"
	}
	return "Stats " + spec
}
