package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jensroland/git-aitrack/internal/project"
)

const (
	hookMarker   = "# git-aitrack:"
	agentMatcher = "Edit|Write|MultiEdit|NotebookEdit"
)

// gitHooks are the hooks install manages, with the command each one runs.
var gitHooks = []struct {
	name string
	run  string
}{
	{"pre-commit", "git-aitrack hook pre-commit"},
	{"post-commit", "git-aitrack hook post-commit"},
	{"pre-push", `git-aitrack hook pre-push "$@"`},
}

var (
	installAgent  bool
	installGlobal bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install git hooks (and optionally Claude Code hooks) in this repository",
	Long: `Create .git/ai-track/ and install the pre-commit, post-commit and
pre-push hooks. Existing hooks are appended to, not replaced.

--agent also registers Claude Code PreToolUse/PostToolUse hooks that record
checkpoints around every edit, in .claude/settings.json (or with --global in
~/.claude/settings.json).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if err := installRepo(env.Paths, w); err != nil {
			return err
		}
		if !installAgent {
			return nil
		}
		binary, err := os.Executable()
		if err != nil {
			return fmt.Errorf("could not determine binary path: %w", err)
		}
		settings := filepath.Join(env.Paths.Root, ".claude", "settings.json")
		if installGlobal {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			settings = filepath.Join(home, ".claude", "settings.json")
		}
		if err := installAgentHooks(settings, binary); err != nil {
			return err
		}
		fmt.Fprintf(w, "  ✓ Claude Code hooks configured in %s\n", settings)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)

	installCmd.Flags().BoolVar(&installAgent, "agent", false, "also configure Claude Code hooks")
	installCmd.Flags().BoolVar(&installGlobal, "global", false, "configure Claude Code hooks for all projects")
}

func installRepo(paths project.Paths, w io.Writer) error {
	fmt.Fprintf(w, "Initializing git-aitrack in %s\n", paths.Root)

	for _, dir := range []string{paths.WorkingLogsDir, paths.ArchiveDir, paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	fmt.Fprintln(w, "  ✓ Control directory at .git/ai-track/")

	hookDir := filepath.Join(paths.GitDir, "hooks")
	if err := os.MkdirAll(hookDir, 0o755); err != nil {
		return err
	}
	for _, h := range gitHooks {
		status, err := installGitHook(hookDir, h.name, h.run)
		if err != nil {
			return fmt.Errorf("install %s hook: %w", h.name, err)
		}
		fmt.Fprintf(w, "  ✓ %s hook %s\n", h.name, status)
	}
	return nil
}

// installGitHook adds the git-aitrack section to a hook file, creating the
// file if needed. Returns what was done.
func installGitHook(hookDir, name, run string) (string, error) {
	path := filepath.Join(hookDir, name)
	marker := hookMarker + " " + name
	section := fmt.Sprintf("\n%s\nif command -v git-aitrack >/dev/null 2>&1; then\n    %s\nfi\n", marker, run)

	data, err := os.ReadFile(path)
	switch {
	case err == nil && strings.Contains(string(data), marker):
		return "already installed", nil
	case err == nil:
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o755)
		if err != nil {
			return "", err
		}
		defer f.Close()
		if _, err := f.WriteString(section); err != nil {
			return "", err
		}
		return "appended to existing hook", nil
	case os.IsNotExist(err):
		if err := os.WriteFile(path, []byte("#!/bin/sh\n"+section), 0o755); err != nil {
			return "", err
		}
		return "installed", nil
	default:
		return "", err
	}
}

// installAgentHooks registers the checkpoint command for Claude Code edits,
// replacing earlier git-aitrack entries.
func installAgentHooks(settingsFile, binary string) error {
	if err := os.MkdirAll(filepath.Dir(settingsFile), 0o755); err != nil {
		return err
	}
	var settings map[string]interface{}
	if data, err := os.ReadFile(settingsFile); err == nil {
		if err := json.Unmarshal(data, &settings); err != nil {
			return fmt.Errorf("parse %s: %w", settingsFile, err)
		}
	}
	if settings == nil {
		settings = map[string]interface{}{}
	}
	hooks, _ := settings["hooks"].(map[string]interface{})
	if hooks == nil {
		hooks = map[string]interface{}{}
	}

	command := binary + " checkpoint claude --hook-input stdin"
	for _, event := range []string{"PreToolUse", "PostToolUse"} {
		entries := filterHookEntries(hooks, event, "git-aitrack")
		entries = append(entries, map[string]interface{}{
			"matcher": agentMatcher,
			"hooks":   []interface{}{map[string]interface{}{"type": "command", "command": command}},
		})
		hooks[event] = entries
	}
	settings["hooks"] = hooks

	b, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(settingsFile, append(b, '\n'), 0o644)
}

// filterHookEntries returns the entries of hooks[key] whose commands do not
// mention exclude.
func filterHookEntries(hooks map[string]interface{}, key, exclude string) []interface{} {
	existing, _ := hooks[key].([]interface{})
	var filtered []interface{}
	for _, entry := range existing {
		e, ok := entry.(map[string]interface{})
		if !ok {
			filtered = append(filtered, entry)
			continue
		}
		hooksList, _ := e["hooks"].([]interface{})
		hasExcluded := false
		for _, h := range hooksList {
			if hm, ok := h.(map[string]interface{}); ok {
				cmd, _ := hm["command"].(string)
				if strings.Contains(cmd, exclude) {
					hasExcluded = true
					break
				}
			}
		}
		if !hasExcluded {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}
