// Package checkpoint records ordered working-tree checkpoints per base commit.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	ErrNoChanges = errors.New("checkpoint: no changes since last checkpoint")
	ErrLogSealed = errors.New("checkpoint: log is sealed")
	ErrCorrupt   = errors.New("checkpoint: log is unreadable")
)

// Kind says who produced a checkpoint.
type Kind string

const (
	Human   Kind = "human"
	AiAgent Kind = "ai_agent"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == Human || k == AiAgent
}

// AgentID identifies one AI agent session.
type AgentID struct {
	Tool  string `json:"tool"`
	ID    string `json:"id"`
	Model string `json:"model,omitempty"`
}

// AuthorID is the stable ledger author id for the session: the first 16 hex
// chars of sha256("tool:id").
func (a AgentID) AuthorID() string {
	sum := sha256.Sum256([]byte(a.Tool + ":" + a.ID))
	return hex.EncodeToString(sum[:])[:16]
}

// FileEntry is one file captured by a checkpoint. A deleted file has no hash.
type FileEntry struct {
	Path        string `json:"path"`
	ContentHash string `json:"content_hash,omitempty"`
	Deleted     bool   `json:"deleted,omitempty"`
}

// LineStats counts lines added and deleted relative to the previous state.
type LineStats struct {
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
}

// Checkpoint is an immutable record of changed files at a moment in time.
type Checkpoint struct {
	ID              string      `json:"id"`
	Seq             int64       `json:"seq"`
	Kind            Kind        `json:"kind"`
	Timestamp       time.Time   `json:"timestamp"`
	Author          string      `json:"author"`
	Agent           *AgentID    `json:"agent,omitempty"`
	DiffFingerprint string      `json:"diff_fingerprint"`
	Entries         []FileEntry `json:"entries"`
	LineStats       LineStats   `json:"line_stats"`
}

// AuthorID returns the id lines stamped by this checkpoint carry in the ledger.
func (c Checkpoint) AuthorID() string {
	if c.Kind == AiAgent && c.Agent != nil {
		return c.Agent.AuthorID()
	}
	return c.Author
}

// Entry returns the entry for path, if the checkpoint touched it.
func (c Checkpoint) Entry(path string) (FileEntry, bool) {
	for _, e := range c.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return FileEntry{}, false
}

// Fingerprint hashes a set of changed paths independent of their order.
func Fingerprint(paths []string) string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return hex.EncodeToString(sum[:])
}

// LastEntries returns, per path, the most recent entry across checkpoints.
func LastEntries(cps []Checkpoint) map[string]FileEntry {
	last := make(map[string]FileEntry)
	for _, cp := range cps {
		for _, e := range cp.Entries {
			last[e.Path] = e
		}
	}
	return last
}
