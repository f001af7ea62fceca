package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jensroland/git-aitrack/internal/format"
	"github.com/jensroland/git-aitrack/internal/hook"
	"github.com/jensroland/git-aitrack/internal/lineset"
	"github.com/jensroland/git-aitrack/internal/query"
)

var (
	blameRef   string
	blameLines string
	blameOut   outputFlags
)

var blameCmd = &cobra.Command{
	Use:   "blame <file>",
	Short: "Show who wrote each line of a file, human or AI",
	Long: `Attribute every line of a file using git blame and the ledger notes.

Without --ref the working tree is blamed; uncommitted lines and lines from
commits without a ledger entry show as unattributed.

Examples:
  git-aitrack blame main.go
  git-aitrack blame --ref v1.2.0 internal/server.go
  git-aitrack blame -L 10-40,55 main.go
  git-aitrack blame main.go --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		file, err := repoPath(env.Paths.Root, args[0])
		if err != nil {
			return err
		}
		lines, err := lineset.FromString(blameLines)
		if err != nil {
			return fmt.Errorf("--lines: %w", err)
		}
		return runBlame(cmd.Context(), env, cmd.OutOrStdout(), file, blameRef, lines, blameOut)
	},
}

func init() {
	rootCmd.AddCommand(blameCmd)

	blameCmd.Flags().StringVar(&blameRef, "ref", "", "revision to blame (default: working tree)")
	blameCmd.Flags().StringVarP(&blameLines, "lines", "L", "", "only these lines, e.g. 10-40,55")
	blameCmd.Flags().BoolVar(&blameOut.json, "json", false, "Output as JSON")
	blameCmd.Flags().BoolVar(&blameOut.toon, "toon", false, "Output in LLM-friendly toon format")
}

// runBlame blames file at ref. An empty line set blames the whole file.
func runBlame(ctx context.Context, env *hook.Env, w io.Writer, file, ref string, lines lineset.LineSet, out outputFlags) error {
	eng, closeIndex := env.Engine()
	defer closeIndex()

	var attrs []query.LineAttribution
	var err error
	if lines.IsEmpty() {
		attrs, err = eng.Blame(ctx, file, ref)
	} else {
		attrs, err = eng.BlameLines(ctx, file, ref, lines.Min(), lines.Max())
		attrs = slices.DeleteFunc(attrs, func(a query.LineAttribution) bool {
			return !lines.Contains(a.Line)
		})
	}
	if err != nil {
		return fmt.Errorf("blame %s: %w", file, err)
	}
	if ok, err := out.write(w, attrs); ok {
		return err
	}

	var content string
	if ref == "" {
		b, err := env.Repo.ReadFile(file)
		if err != nil {
			return err
		}
		content = string(b)
	} else if content, err = env.Repo.ShowFile(ctx, ref, file); err != nil {
		return err
	}
	return format.Blame(w, attrs, strings.Split(strings.TrimSuffix(content, "\n"), "\n"), time.Now())
}

