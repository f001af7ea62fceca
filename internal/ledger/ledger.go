// Package ledger stores per-commit authorship attestations as git notes.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jensroland/git-aitrack/internal/checkpoint"
	"github.com/jensroland/git-aitrack/internal/lineset"
)

// SchemaVersion tags every attestation log written by this package.
const SchemaVersion = "ai-track/1.0"

// Unattributed is the author id of lines with no known author.
const Unattributed = "unattributed"

var (
	ErrNotFound      = errors.New("ledger: no attestation for commit")
	ErrPublishFailed = errors.New("ledger: publish failed")
	ErrInvalid       = errors.New("ledger: invalid attestation log")
)

// Span attributes the closed line range [StartLine, EndLine] of a committed
// file to one author.
type Span struct {
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	AuthorID  string    `json:"author_id"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Len returns the number of lines the span covers.
func (s Span) Len() int {
	return lineset.Range{Start: s.StartLine, End: s.EndLine}.Len()
}

// Lines returns the span as a line set.
func (s Span) Lines() lineset.LineSet {
	return lineset.FromRange(s.StartLine, s.EndLine)
}

// FileAttestation holds the spans of one committed file, ordered by line.
type FileAttestation struct {
	File         string `json:"file"`
	Attributions []Span `json:"attributions"`
}

// LineCount returns the number of lines the spans cover.
func (f FileAttestation) LineCount() int {
	if len(f.Attributions) == 0 {
		return 0
	}
	return f.Attributions[len(f.Attributions)-1].EndLine
}

// AuthorLines groups the file's lines by author id.
func (f FileAttestation) AuthorLines() map[string]lineset.LineSet {
	out := make(map[string]lineset.LineSet)
	for _, s := range f.Attributions {
		out[s.AuthorID] = out[s.AuthorID].Union(s.Lines())
	}
	return out
}

// SpanAt returns the span covering line.
func (f FileAttestation) SpanAt(line int) (Span, bool) {
	i := sort.Search(len(f.Attributions), func(i int) bool {
		return f.Attributions[i].EndLine >= line
	})
	if i < len(f.Attributions) && f.Attributions[i].StartLine <= line {
		return f.Attributions[i], true
	}
	return Span{}, false
}

// CheckCoverage verifies the spans partition [1, LineCount] in order.
func (f FileAttestation) CheckCoverage() error {
	next := 1
	for _, s := range f.Attributions {
		if s.StartLine != next || s.EndLine < s.StartLine {
			return fmt.Errorf("%s: span %d-%d does not continue at line %d: %w",
				f.File, s.StartLine, s.EndLine, next, ErrInvalid)
		}
		if s.AuthorID == "" {
			return fmt.Errorf("%s: span %d-%d has no author: %w", f.File, s.StartLine, s.EndLine, ErrInvalid)
		}
		next = s.EndLine + 1
	}
	return nil
}

// PromptRecord describes one AI agent session's contribution to a commit.
type PromptRecord struct {
	Agent         checkpoint.AgentID `json:"agent"`
	HumanAuthor   string             `json:"human_author"`
	LinesAdded    int                `json:"lines_added"`
	LinesAccepted int                `json:"lines_accepted"`
}

// Metadata describes how an attestation log was produced.
type Metadata struct {
	BaseCommitSHA    string                  `json:"base_commit_sha"`
	Timestamp        time.Time               `json:"timestamp"`
	PromptReferences map[string]PromptRecord `json:"prompt_references"`
}

// AttestationLog is the ledger entry for one commit.
type AttestationLog struct {
	Version      string            `json:"version"`
	Metadata     Metadata          `json:"metadata"`
	Attestations []FileAttestation `json:"attestations"`
}

// IsAI reports whether authorID names an AI agent session.
func (l *AttestationLog) IsAI(authorID string) bool {
	_, ok := l.Metadata.PromptReferences[authorID]
	return ok
}

// File returns the attestation for path.
func (l *AttestationLog) File(path string) (FileAttestation, bool) {
	for _, f := range l.Attestations {
		if f.File == path {
			return f, true
		}
	}
	return FileAttestation{}, false
}

// normalize fills defaults and orders files so equal logs encode identically.
func (l *AttestationLog) normalize() {
	if l.Version == "" {
		l.Version = SchemaVersion
	}
	if l.Metadata.PromptReferences == nil {
		l.Metadata.PromptReferences = map[string]PromptRecord{}
	}
	if l.Attestations == nil {
		l.Attestations = []FileAttestation{}
	}
	for i := range l.Attestations {
		if l.Attestations[i].Attributions == nil {
			l.Attestations[i].Attributions = []Span{}
		}
	}
	sort.Slice(l.Attestations, func(i, j int) bool {
		return l.Attestations[i].File < l.Attestations[j].File
	})
}

// Encode validates l and returns its canonical JSON form.
func Encode(l *AttestationLog) ([]byte, error) {
	l.normalize()
	for _, f := range l.Attestations {
		if err := f.CheckCoverage(); err != nil {
			return nil, err
		}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	if err := validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Decode parses and validates a stored attestation log.
func Decode(data []byte) (*AttestationLog, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	var l AttestationLog
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	l.normalize()
	return &l, nil
}
