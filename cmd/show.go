package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jensroland/git-aitrack/internal/format"
	"github.com/jensroland/git-aitrack/internal/hook"
	"github.com/jensroland/git-aitrack/internal/ledger"
	"github.com/jensroland/git-aitrack/internal/query"
)

var (
	showOut   outputFlags
	showFiles bool
)

var showCmd = &cobra.Command{
	Use:   "show [commit | a..b]",
	Short: "Summarise the authorship recorded for a commit or range",
	Long: `Summarise the ledger entry of one commit, or of each commit in a range
(newest first). --json prints the raw ledger entries.

Examples:
  git-aitrack show
  git-aitrack show HEAD~3 --files
  git-aitrack show main..HEAD --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		rev := "HEAD"
		if len(args) == 1 {
			rev = args[0]
		}
		return runShow(cmd.Context(), env, cmd.OutOrStdout(), rev, showFiles, showOut)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().BoolVar(&showOut.json, "json", false, "Output the raw ledger entry as JSON")
	showCmd.Flags().BoolVar(&showFiles, "files", false, "Also list the lines each author wrote per file")
	showCmd.Flags().BoolVar(&showOut.toon, "toon", false, "Output the summary in LLM-friendly toon format")
}

// rangeEntry is one commit of a ranged show.
type rangeEntry struct {
	Commit  string                 `json:"commit"`
	Log     *ledger.AttestationLog `json:"log,omitempty"`
	Summary *query.Summary         `json:"summary,omitempty"`
}

func runShow(ctx context.Context, env *hook.Env, w io.Writer, spec string, files bool, out outputFlags) error {
	eng, closeIndex := env.Engine()
	defer closeIndex()

	commits, err := eng.ResolveCommits(ctx, spec)
	if err != nil {
		return err
	}
	if !strings.Contains(spec, "..") {
		return showCommit(ctx, eng, w, commits[0], files, out)
	}

	if out.json || out.toon {
		var entries []rangeEntry
		for _, c := range commits {
			log, err := eng.Entry(ctx, c)
			if errors.Is(err, ledger.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			e := rangeEntry{Commit: c, Log: log}
			if out.toon {
				s := query.Summarize(log, nil)
				e = rangeEntry{Commit: c, Summary: &s}
			}
			entries = append(entries, e)
		}
		if entries == nil {
			entries = []rangeEntry{}
		}
		_, err := out.write(w, entries)
		return err
	}
	if len(commits) == 0 {
		fmt.Fprintf(w, "No commits in %s.\n", spec)
	}
	for _, c := range commits {
		if err := showCommit(ctx, eng, w, c, files, out); err != nil {
			return err
		}
	}
	return nil
}

func showCommit(ctx context.Context, eng *query.Engine, w io.Writer, commit string, files bool, out outputFlags) error {
	if out.json {
		entry, err := eng.Entry(ctx, commit)
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("commit %s has no authorship record", short(commit))
		}
		if err != nil {
			return err
		}
		return writeJSON(w, entry)
	}

	s, err := eng.Show(ctx, commit)
	if errors.Is(err, ledger.ErrNotFound) {
		fmt.Fprintf(w, "Commit %s has no authorship record.\n", short(commit))
		return nil
	}
	if err != nil {
		return err
	}
	if ok, err := out.write(w, s); ok {
		return err
	}
	fmt.Fprintln(w, format.Summary("Commit "+short(commit), s))
	if files {
		entry, err := eng.Entry(ctx, commit)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, format.Box("Files", format.FileLines(entry)))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	_, err := outputFlags{json: true}.write(w, v)
	return err
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
