package format

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jensroland/git-aitrack/internal/checkpoint"
	"github.com/jensroland/git-aitrack/internal/ledger"
	"github.com/jensroland/git-aitrack/internal/query"
)

func TestPadOrTrunc(t *testing.T) {
	tests := []struct {
		s    string
		w    int
		want string
	}{
		{"abc", 5, "abc  "},
		{"abc", 3, "abc"},
		{"abcdef", 4, "abc…"},
		{"日本語テキスト", 4, "日本語…"},
		{"abc", 1, "a"},
	}
	for _, tt := range tests {
		if got := padOrTrunc(tt.s, tt.w); got != tt.want {
			t.Errorf("padOrTrunc(%q, %d) = %q, want %q", tt.s, tt.w, got, tt.want)
		}
	}
}

func TestBox(t *testing.T) {
	out := Box("Title", []string{"one", "three"})
	lines := strings.Split(out, "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "┌─ Title ") || !strings.HasSuffix(lines[0], "┐") {
		t.Errorf("top border = %q", lines[0])
	}
	if lines[1] != "│ one      │" {
		t.Errorf("row = %q", lines[1])
	}
	for i, l := range lines {
		if runeLen(l) != runeLen(lines[0]) {
			t.Errorf("line %d width %d differs from border %d", i, runeLen(l), runeLen(lines[0]))
		}
	}
}

func TestAuthorLabel(t *testing.T) {
	rec := &ledger.PromptRecord{Agent: checkpoint.AgentID{Tool: "claude", ID: "s", Model: "opus"}}
	tests := []struct {
		a    query.LineAttribution
		want string
	}{
		{query.LineAttribution{AuthorID: "abc", AI: true, Prompt: rec}, "claude/opus"},
		{query.LineAttribution{AuthorID: "Ada Lovelace <ada@example.com>"}, "Ada Lovelace"},
		{query.LineAttribution{AuthorID: "someone"}, "someone"},
		{query.LineAttribution{AuthorID: ledger.Unattributed}, "unattributed"},
	}
	for _, tt := range tests {
		if got := AuthorLabel(tt.a); got != tt.want {
			t.Errorf("AuthorLabel(%+v) = %q, want %q", tt.a, got, tt.want)
		}
	}
}

func TestBlame(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	attrs := []query.LineAttribution{
		{Line: 1, Commit: "0123456789abcdef", AuthorID: "Ada <ada@x>", Timestamp: now.Add(-48 * time.Hour)},
		{Line: 2, Commit: "0000000000000000", AuthorID: ledger.Unattributed},
	}
	var buf bytes.Buffer
	if err := Blame(&buf, attrs, []string{"package a", "var x = 1"}, now); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "01234567 Ada") || !strings.Contains(lines[0], "2 days ago") ||
		!strings.HasSuffix(lines[0], "1) package a") {
		t.Errorf("line 1 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "unattributed") || !strings.HasSuffix(lines[1], "2) var x = 1") {
		t.Errorf("line 2 = %q", lines[1])
	}
}

func TestSummary(t *testing.T) {
	s := query.Summary{
		Commits: 1200, Untracked: 3, Files: 4, AILines: 30, HumanLines: 10,
		LinesByAuthor: map[string]int{"0123456789abcdef": 30, "Ada <ada@x>": 10},
		Agents:        map[string]string{"0123456789abcdef": "claude/opus"},
	}
	out := Summary("Stats", s)
	for _, want := range []string{
		"1,200 (3 without attribution)",
		"AI lines:     30 (75.0%)",
		"claude/opus (01234567)",
		"Ada",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "claude/opus") > strings.Index(out, "  Ada") {
		t.Error("authors must be ordered by line count")
	}
}

func TestFileLines(t *testing.T) {
	agent := checkpoint.AgentID{Tool: "claude", ID: "s", Model: "opus"}
	id := agent.AuthorID()
	log := &ledger.AttestationLog{
		Metadata: ledger.Metadata{PromptReferences: map[string]ledger.PromptRecord{id: {Agent: agent}}},
		Attestations: []ledger.FileAttestation{{File: "a.go", Attributions: []ledger.Span{
			{StartLine: 1, EndLine: 1, AuthorID: ledger.Unattributed},
			{StartLine: 2, EndLine: 4, AuthorID: id},
			{StartLine: 5, EndLine: 5, AuthorID: "Ada <ada@x>"},
			{StartLine: 6, EndLine: 6, AuthorID: id},
		}}},
	}
	got := FileLines(log)
	want := []string{"a.go", "claude/opus (" + id[:8] + ")", "2-4,6"}
	if len(got) != 4 {
		t.Fatalf("got %d rows: %q", len(got), got)
	}
	if got[0] != want[0] || !strings.Contains(got[1], want[1]) || !strings.HasSuffix(got[1], want[2]) {
		t.Errorf("rows = %q", got)
	}
	if !strings.Contains(got[2]+got[3], "Ada") || !strings.Contains(got[2]+got[3], "unattributed") {
		t.Errorf("rows = %q", got)
	}
}
