package hook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jensroland/git-aitrack/internal/checkpoint"
)

// Agent hook events. PreToolUse fires before the agent edits, so pending
// human work is checkpointed first; PostToolUse credits the edit to the agent.
const (
	EventPreToolUse  = "PreToolUse"
	EventPostToolUse = "PostToolUse"
)

// agentPayload is what a coding agent's tool hook sends on stdin.
type agentPayload struct {
	Event     string
	SessionID string
	ToolName  string
	Model     string
	Paths     []string
}

// HandleAgent records a checkpoint for one agent tool call. tool names the
// agent (e.g. "claude"). Returns nil, nil when the call edits no files.
func HandleAgent(ctx context.Context, env *Env, tool string, r io.Reader) (*checkpoint.Recorded, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read hook input: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, errors.New("empty hook input")
	}
	p, err := parseAgentPayload(raw, env.Paths.Root)
	if err != nil {
		env.Logger.Warn("agent hook: bad payload", "error", err)
		return nil, err
	}
	env.Logger.Debug("agent hook payload", "event", p.Event, "tool_name", p.ToolName, "paths", p.Paths)

	opts := checkpoint.RecordOptions{Paths: p.Paths}
	switch p.Event {
	case EventPreToolUse:
		if len(p.Paths) == 0 {
			return nil, nil
		}
		opts.Kind = checkpoint.Human
		opts.Author = env.Repo.Author(ctx)
		env.markInFlight(p.Paths)
	default:
		if p.SessionID == "" {
			return nil, errors.New("agent hook input has no session_id")
		}
		opts.Kind = checkpoint.AiAgent
		opts.Author = env.Repo.Author(ctx)
		opts.Agent = &checkpoint.AgentID{Tool: tool, ID: p.SessionID, Model: p.Model}
		if len(p.Paths) > 0 {
			defer env.clearInFlight(p.Paths)
		}
	}

	rec, err := Checkpoint(ctx, env, opts)
	if errors.Is(err, checkpoint.ErrNoChanges) {
		return nil, nil
	}
	if err != nil {
		env.Logger.Error("agent hook: record checkpoint", "event", p.Event, "error", err)
		return nil, err
	}
	env.Logger.Info("agent checkpoint", "kind", rec.Checkpoint.Kind, "seq", rec.Checkpoint.Seq,
		"files", len(rec.Checkpoint.Entries))
	return rec, nil
}

func parseAgentPayload(raw []byte, root string) (agentPayload, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return agentPayload{}, fmt.Errorf("parse hook input: %w", err)
	}
	p := agentPayload{
		Event:     getString(data, "hook_event_name"),
		SessionID: getString(data, "session_id"),
		ToolName:  getString(data, "tool_name"),
		Model:     getString(data, "model"),
	}
	if p.Event == "" {
		p.Event = EventPostToolUse
	}
	p.Paths = extractEditPaths(p.ToolName, getMap(data, "tool_input"), root)
	return p, nil
}

// extractEditPaths returns the repository-relative files an edit tool call
// touches. Unknown tools touch nothing.
func extractEditPaths(toolName string, toolInput map[string]interface{}, root string) []string {
	topFile := getString(toolInput, "file_path")
	if topFile == "" {
		topFile = getString(toolInput, "path")
	}

	switch toolName {
	case "Edit", "Write", "NotebookEdit":
		if topFile == "" {
			return nil
		}
		return []string{relativize(topFile, root)}

	case "MultiEdit":
		subEdits := getArray(toolInput, "edits")
		if subEdits == nil {
			subEdits = getArray(toolInput, "changes")
		}
		seen := map[string]bool{}
		var paths []string
		add := func(f string) {
			if f == "" {
				return
			}
			rel := relativize(f, root)
			if !seen[rel] {
				seen[rel] = true
				paths = append(paths, rel)
			}
		}
		for _, editRaw := range subEdits {
			edit, ok := editRaw.(map[string]interface{})
			if !ok {
				continue
			}
			if f := getString(edit, "file_path"); f != "" {
				add(f)
			} else {
				add(topFile)
			}
		}
		if len(paths) == 0 {
			add(topFile)
		}
		return paths

	default:
		return nil
	}
}

// relativize converts an absolute path to a slash-separated path relative to
// root. Relative paths are returned cleaned.
func relativize(path, root string) string {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path))
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Helper functions for safe map access.

func getString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]interface{})
	return sub
}

func getArray(m map[string]interface{}, key string) []interface{} {
	if m == nil {
		return nil
	}
	arr, _ := m[key].([]interface{})
	return arr
}
