package hook

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"
)

// agentEditTimeout bounds how long a PreToolUse mark holds a path. A mark
// older than this belongs to an agent call that never reported back.
const agentEditTimeout = 10 * time.Minute

// One marker file per path, so concurrent agent hooks never rewrite shared
// state.
func (e *Env) inFlightFile(path string) string {
	return filepath.Join(e.Paths.ControlDir, "inflight", strconv.FormatUint(xxh3.HashString(path), 16))
}

func (e *Env) markInFlight(paths []string) {
	if err := os.MkdirAll(filepath.Join(e.Paths.ControlDir, "inflight"), 0o755); err != nil {
		e.Logger.Warn("agent hook: mark paths in flight", "error", err)
		return
	}
	for _, p := range paths {
		if err := os.WriteFile(e.inFlightFile(p), []byte(p+"\n"), 0o644); err != nil {
			e.Logger.Warn("agent hook: mark path in flight", "path", p, "error", err)
		}
	}
}

func (e *Env) clearInFlight(paths []string) {
	for _, p := range paths {
		if err := os.Remove(e.inFlightFile(p)); err != nil && !os.IsNotExist(err) {
			e.Logger.Warn("agent hook: clear in-flight path", "path", p, "error", err)
		}
	}
}

// AgentEditing reports whether an agent announced an edit of path
// (PreToolUse) and has not yet reported it done (PostToolUse).
func (e *Env) AgentEditing(path string) bool {
	info, err := os.Stat(e.inFlightFile(path))
	if err != nil {
		return false
	}
	return e.Now().Sub(info.ModTime()) < agentEditTimeout
}
