package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jensroland/git-aitrack/internal/config"
	"github.com/jensroland/git-aitrack/internal/project"
)

var uninstallPurge bool

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the git hooks installed by 'install'",
	Long: `Remove the git-aitrack sections from the git hooks. --purge also deletes
.git/ai-track/ (checkpoint logs, archives, cache and logs).

Published ledger notes are left alone; delete them with
  git update-ref -d refs/notes/ai-track`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		notes, err := env.Repo.NotesList(cmd.Context(), config.NotesRef())
		if err != nil {
			return err
		}
		// the log file lives in the control directory
		closeEnv()
		w := cmd.OutOrStdout()
		uninstall(env.Paths, uninstallPurge, w)
		if len(notes) > 0 {
			fmt.Fprintf(w, "%d ledger note(s) remain on %s.\n", len(notes), config.NotesRef())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)

	uninstallCmd.Flags().BoolVar(&uninstallPurge, "purge", false, "also delete .git/ai-track/")
}

func uninstall(paths project.Paths, purge bool, w io.Writer) {
	var removed []string
	for _, h := range gitHooks {
		if status := cleanGitHook(paths.GitDir, h.name); status != "" {
			removed = append(removed, fmt.Sprintf(".git/hooks/%s (%s)", h.name, status))
		}
	}
	if purge {
		if project.IsInitialized(paths) {
			if err := os.RemoveAll(paths.ControlDir); err == nil {
				removed = append(removed, ".git/ai-track/")
			}
		}
	}

	if len(removed) == 0 {
		fmt.Fprintln(w, "git-aitrack is not installed in this repo.")
		return
	}
	for _, item := range removed {
		fmt.Fprintf(w, "  Removed %s\n", item)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "git-aitrack hooks removed from this repo.")
	fmt.Fprintln(w, "Run 'git-aitrack install' to re-install.")
}

// cleanGitHook removes the git-aitrack section from a hook file, deleting the
// file if nothing else is left. Returns "deleted", "cleaned" or "" if the
// hook had no section.
func cleanGitHook(gitDir, hookName string) string {
	hookFile := filepath.Join(gitDir, "hooks", hookName)
	data, err := os.ReadFile(hookFile)
	if err != nil {
		return ""
	}
	marker := hookMarker + " " + hookName
	content := string(data)
	if !strings.Contains(content, marker) {
		return ""
	}

	var cleaned []string
	skip := false
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, marker) {
			skip = true
			// drop the blank separator line before the section
			if len(cleaned) > 0 && strings.TrimSpace(cleaned[len(cleaned)-1]) == "" {
				cleaned = cleaned[:len(cleaned)-1]
			}
			continue
		}
		if skip {
			stripped := strings.TrimSpace(line)
			if strings.HasPrefix(stripped, "git-aitrack ") ||
				strings.HasPrefix(stripped, "if command -v git-aitrack") ||
				stripped == "fi" {
				continue
			}
			skip = false
		}
		cleaned = append(cleaned, line)
	}

	remaining := strings.TrimSpace(strings.Join(cleaned, "\n"))
	if remaining == "" || remaining == "#!/bin/sh" || remaining == "#!/usr/bin/env bash" {
		_ = os.Remove(hookFile)
		return "deleted"
	}
	_ = os.WriteFile(hookFile, []byte(strings.Join(cleaned, "\n")), 0o755)
	return "cleaned"
}
