package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jensroland/git-aitrack/internal/checkpoint"
	"github.com/jensroland/git-aitrack/internal/format"
	"github.com/jensroland/git-aitrack/internal/hook"
)

type checkpointFlags struct {
	kind      string
	agentTool string
	agentID   string
	model     string
	author    string
	hookInput string
}

var (
	cpFlags   checkpointFlags
	cpShowLog bool
	cpReset   bool
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint [paths...]",
	Short: "Record the current working tree state as a checkpoint",
	Long: `Record every file that changed since its last checkpoint.

A Human checkpoint credits the changes to you; an AI checkpoint credits them
to an agent session. Paths narrow the checkpoint to those files or
directories.

Agent hooks pass their tool-call payload instead:

  git-aitrack checkpoint claude --hook-input stdin

--show-working-log prints the checkpoints recorded since HEAD as JSON;
--reset discards them.

Examples:
  git-aitrack checkpoint
  git-aitrack checkpoint --kind ai_agent --agent-tool cursor --agent-id 42 src/
  git-aitrack checkpoint --show-working-log`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cpFlags.hookInput != "" {
			// Agent hooks must never fail the agent's tool call.
			runHook(cmd, func(ctx context.Context, env *hook.Env) error {
				err := runAgentCheckpoint(ctx, env, args, cpFlags.hookInput, cmd.InOrStdin())
				if err != nil {
					env.Logger.Error("agent checkpoint failed", "error", err)
				}
				return err
			})
			return nil
		}
		env, err := setup()
		if err != nil {
			return err
		}
		switch {
		case cpShowLog && cpReset:
			return errors.New("--show-working-log and --reset are exclusive")
		case cpShowLog:
			return runShowWorkingLog(cmd.Context(), env, cmd.OutOrStdout())
		case cpReset:
			return runResetWorkingLog(cmd.Context(), env, cmd.OutOrStdout())
		}
		return runCheckpoint(cmd.Context(), env, cmd.OutOrStdout(), cpFlags, args)
	},
}

func init() {
	rootCmd.AddCommand(checkpointCmd)

	f := checkpointCmd.Flags()
	f.StringVar(&cpFlags.kind, "kind", "", "checkpoint kind: human or ai_agent (default human, or ai_agent with --agent-tool)")
	f.StringVar(&cpFlags.agentTool, "agent-tool", "", "agent tool name, e.g. claude")
	f.StringVar(&cpFlags.agentID, "agent-id", "", "agent session id")
	f.StringVar(&cpFlags.model, "model", "", "agent model name")
	f.StringVar(&cpFlags.author, "author", "", "author as \"Name <email>\" (default from git config)")
	f.BoolVar(&cpShowLog, "show-working-log", false, "print the checkpoints recorded since HEAD as JSON")
	f.BoolVar(&cpReset, "reset", false, "discard the checkpoints recorded since HEAD")
	f.StringVar(&cpFlags.hookInput, "hook-input", "", `agent hook payload: "stdin" or a JSON document; first argument names the agent`)
}

// options turns flags into record options.
func (f checkpointFlags) options(author string, paths []string) (checkpoint.RecordOptions, error) {
	kind := checkpoint.Kind(f.kind)
	if kind == "" {
		kind = checkpoint.Human
		if f.agentTool != "" {
			kind = checkpoint.AiAgent
		}
	}
	if !kind.Valid() {
		return checkpoint.RecordOptions{}, fmt.Errorf("unknown kind %q (want human or ai_agent)", f.kind)
	}
	opts := checkpoint.RecordOptions{Kind: kind, Author: author, Paths: paths}
	if f.author != "" {
		opts.Author = f.author
	}
	if kind == checkpoint.AiAgent {
		if f.agentTool == "" || f.agentID == "" {
			return opts, errors.New("ai_agent checkpoints need --agent-tool and --agent-id")
		}
		opts.Agent = &checkpoint.AgentID{Tool: f.agentTool, ID: f.agentID, Model: f.model}
	}
	return opts, nil
}

func runCheckpoint(ctx context.Context, env *hook.Env, w io.Writer, f checkpointFlags, paths []string) error {
	opts, err := f.options(env.Repo.Author(ctx), paths)
	if err != nil {
		return err
	}
	rec, err := hook.Checkpoint(ctx, env, opts)
	if errors.Is(err, checkpoint.ErrNoChanges) {
		fmt.Fprintln(w, "No changes since the last checkpoint.")
		return nil
	}
	if err != nil {
		return err
	}
	printRecorded(w, rec)
	return nil
}

func runShowWorkingLog(ctx context.Context, env *hook.Env, w io.Writer) error {
	log, err := env.CurrentLog(ctx)
	if err != nil {
		return err
	}
	cps, err := log.ReadAll()
	if err != nil {
		return err
	}
	if cps == nil {
		cps = []checkpoint.Checkpoint{}
	}
	return writeJSON(w, struct {
		BaseCommit  string                  `json:"base_commit"`
		Checkpoints []checkpoint.Checkpoint `json:"checkpoints"`
	}{log.Base(), cps})
}

func runResetWorkingLog(ctx context.Context, env *hook.Env, w io.Writer) error {
	log, err := env.CurrentLog(ctx)
	if err != nil {
		return err
	}
	n, err := log.Reset(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Discarded %d checkpoint(s) recorded since %s.\n", n, short(log.Base()))
	return nil
}

func runAgentCheckpoint(ctx context.Context, env *hook.Env, args []string, input string, stdin io.Reader) error {
	if len(args) != 1 {
		return errors.New("--hook-input needs exactly one argument naming the agent")
	}
	r := stdin
	if input != "stdin" {
		r = strings.NewReader(input)
	}
	_, err := hook.HandleAgent(ctx, env, args[0], r)
	return err
}

func printRecorded(w io.Writer, rec *checkpoint.Recorded) {
	cp := rec.Checkpoint
	who := cp.Author
	if cp.Agent != nil {
		who = cp.Agent.Tool + " session " + cp.Agent.ID
	}
	fmt.Fprintf(w, "%s✓%s checkpoint #%d (%s, %s): %d file(s), +%d -%d\n",
		format.Green, format.Reset, cp.Seq, cp.Kind, who,
		len(cp.Entries), cp.LineStats.Added, cp.LineStats.Deleted)
	for _, p := range rec.Skipped {
		fmt.Fprintf(w, "  %sskipped %s%s\n", format.Dim, p, format.Reset)
	}
}
