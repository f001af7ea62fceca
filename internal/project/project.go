package project

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// InitialBase is the base commit id used before the repository has any commits.
const InitialBase = "initial"

// Paths holds all relevant directories for an ai-track enabled repo.
type Paths struct {
	Root           string // git repo root
	GitDir         string // .git/ (or the worktree gitdir)
	ControlDir     string // .git/ai-track/
	WorkingLogsDir string // .git/ai-track/working-logs/
	ArchiveDir     string // .git/ai-track/archived-logs/
	LogDir         string // .git/ai-track/logs/
	IndexDB        string // .git/ai-track/index.db
	ConfigFile     string // .git/ai-track/config.toml
}

// FindRoot returns the git project root, preferring AITRACK_PROJECT_DIR if set.
func FindRoot() (string, error) {
	if dir := os.Getenv("AITRACK_PROJECT_DIR"); dir != "" {
		return dir, nil
	}
	out, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", fmt.Errorf("not inside a git repository")
	}
	return strings.TrimSpace(string(out)), nil
}

// NewPaths constructs all path constants from a project root.
func NewPaths(root string) Paths {
	gitDir := resolveGitDir(root)
	control := filepath.Join(gitDir, "ai-track")
	return Paths{
		Root:           root,
		GitDir:         gitDir,
		ControlDir:     control,
		WorkingLogsDir: filepath.Join(control, "working-logs"),
		ArchiveDir:     filepath.Join(control, "archived-logs"),
		LogDir:         filepath.Join(control, "logs"),
		IndexDB:        filepath.Join(control, "index.db"),
		ConfigFile:     filepath.Join(control, "config.toml"),
	}
}

// IsInitialized returns true if the control directory exists.
func IsInitialized(paths Paths) bool {
	info, err := os.Stat(paths.ControlDir)
	return err == nil && info.IsDir()
}

// resolveGitDir follows a ".git" file (linked worktrees, submodules) to the
// real git directory. Falls back to <root>/.git.
func resolveGitDir(root string) string {
	dotGit := filepath.Join(root, ".git")
	info, err := os.Stat(dotGit)
	if err != nil || info.IsDir() {
		return dotGit
	}
	data, err := os.ReadFile(dotGit)
	if err != nil {
		return dotGit
	}
	line := strings.TrimSpace(string(data))
	if !strings.HasPrefix(line, "gitdir: ") {
		return dotGit
	}
	target := strings.TrimSpace(strings.TrimPrefix(line, "gitdir: "))
	if filepath.IsAbs(target) {
		return target
	}
	return filepath.Join(root, target)
}
