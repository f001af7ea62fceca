package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jensroland/git-aitrack/internal/config"
	"github.com/jensroland/git-aitrack/internal/hook"
	"github.com/jensroland/git-aitrack/internal/logging"
	"github.com/jensroland/git-aitrack/internal/project"
)

// Version is set at build time.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "git-aitrack",
	Short: "Line-level AI authorship tracking for git",
	Long: `git-aitrack records checkpoints of your working tree while you and your
coding agents edit, and attaches a line-level authorship record to every
commit as a git note on refs/notes/ai-track.

  git-aitrack install            install git hooks in this repository
  git-aitrack blame <file>       who wrote each line, human or AI
  git-aitrack stats main..HEAD   AI share over a range of commits`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRun: func(*cobra.Command, []string) {
		closeEnv()
	},
}

// Execute runs the root command.
func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		closeEnv()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/git-aitrack/config.toml)")
}

var (
	current   *hook.Env
	logCloser io.Closer
)

// setup locates the repository, loads configuration and opens the log. It
// runs once per process.
func setup() (*hook.Env, error) {
	if current != nil {
		return current, nil
	}
	root, err := project.FindRoot()
	if err != nil {
		return nil, err
	}
	paths := project.NewPaths(root)
	userFile := cfgFile
	if userFile == "" {
		userFile = config.UserFile()
	}
	if err := config.Load(userFile, paths.ConfigFile); err != nil {
		return nil, err
	}
	logger, closer := logging.New(paths.LogDir, logging.FileName, logging.ParseLevel(config.LogLevel()))
	current = hook.NewEnv(root, logger)
	logCloser = closer
	return current, nil
}

func closeEnv() {
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
	current = nil
}
