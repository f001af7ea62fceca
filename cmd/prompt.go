package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jensroland/git-aitrack/internal/format"
	"github.com/jensroland/git-aitrack/internal/hook"
	"github.com/jensroland/git-aitrack/internal/query"
)

var (
	promptCommit string
	promptOut    outputFlags
)

var showPromptCmd = &cobra.Command{
	Use:   "show-prompt <id>",
	Short: "Show an AI session recorded in the ledger",
	Long: `Look up an AI session by its author id (or a prefix of at least four
characters) and show its agent, the person it worked for and the lines it
wrote. History is searched from HEAD unless --commit names a commit or range.

Examples:
  git-aitrack show-prompt 3f9a2c1e
  git-aitrack show-prompt 3f9a --commit HEAD~5..HEAD --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		return runShowPrompt(cmd.Context(), env, cmd.OutOrStdout(), args[0], promptCommit, promptOut)
	},
}

func init() {
	rootCmd.AddCommand(showPromptCmd)

	showPromptCmd.Flags().StringVar(&promptCommit, "commit", "", "commit or range to search (default: all of HEAD's history)")
	showPromptCmd.Flags().BoolVar(&promptOut.json, "json", false, "Output as JSON")
	showPromptCmd.Flags().BoolVar(&promptOut.toon, "toon", false, "Output in LLM-friendly toon format")
}

func runShowPrompt(ctx context.Context, env *hook.Env, w io.Writer, id, spec string, out outputFlags) error {
	eng, closeIndex := env.Engine()
	defer closeIndex()

	var commits []string
	var err error
	if spec == "" {
		commits, err = env.Repo.RevList(ctx, "HEAD")
	} else {
		commits, err = eng.ResolveCommits(ctx, spec)
	}
	if err != nil {
		return err
	}
	m, err := eng.FindPrompt(ctx, id, commits)
	if errors.Is(err, query.ErrPromptNotFound) {
		return fmt.Errorf("no AI session %q in the searched commits", id)
	}
	if err != nil {
		return err
	}
	if ok, err := out.write(w, m); ok {
		return err
	}

	agent := m.Record.Agent.Tool
	if m.Record.Agent.Model != "" {
		agent += "/" + m.Record.Agent.Model
	}
	lines := []string{
		"Agent:    " + agent,
		"Session:  " + m.Record.Agent.ID,
		"Human:    " + m.Record.HumanAuthor,
		"Commit:   " + short(m.Commit),
		fmt.Sprintf("Lines:    %d added, %d accepted", m.Record.LinesAdded, m.Record.LinesAccepted),
	}
	if len(m.Files) > 0 {
		files := make([]string, 0, len(m.Files))
		for f := range m.Files {
			files = append(files, f)
		}
		sort.Strings(files)
		lines = append(lines, "", "Files:")
		for _, f := range files {
			lines = append(lines, fmt.Sprintf("  %-28s %s", f, m.Files[f]))
		}
	}
	fmt.Fprintln(w, format.Box("Prompt "+short(m.AuthorID), lines))
	return nil
}
