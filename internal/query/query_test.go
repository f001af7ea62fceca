package query

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jensroland/git-aitrack/internal/checkpoint"
	"github.com/jensroland/git-aitrack/internal/git"
	"github.com/jensroland/git-aitrack/internal/index"
	"github.com/jensroland/git-aitrack/internal/ledger"
)

const human = "Test <test@test.com>"

var (
	ts    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agent = checkpoint.AgentID{Tool: "claude", ID: "s1", Model: "opus"}
)

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test",
		"GIT_AUTHOR_EMAIL=test@test.com",
		"GIT_COMMITTER_NAME=Test",
		"GIT_COMMITTER_EMAIL=test@test.com",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func commitFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	runGit(t, dir, "add", name)
	runGit(t, dir, "commit", "-q", "-m", "edit "+name)
	return runGit(t, dir, "rev-parse", "HEAD")
}

// fixture is a repo with one commit whose a.go has two AI lines and one
// human line, published to the ledger.
type fixture struct {
	dir    string
	repo   *git.Repo
	ledger *ledger.Ledger
	first  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test")
	first := commitFile(t, dir, "a.go", "func a() {\n\treturn 1\n}\n")

	repo := git.New(dir)
	l := ledger.New(repo, "")
	require.NoError(t, l.Publish(context.Background(), first, aiLog(project3Lines())))
	return &fixture{dir: dir, repo: repo, ledger: l, first: first}
}

func project3Lines() []ledger.FileAttestation {
	return []ledger.FileAttestation{{File: "a.go", Attributions: []ledger.Span{
		{StartLine: 1, EndLine: 2, AuthorID: agent.AuthorID(), Timestamp: ts},
		{StartLine: 3, EndLine: 3, AuthorID: human, Timestamp: ts},
	}}}
}

func aiLog(files []ledger.FileAttestation) *ledger.AttestationLog {
	return &ledger.AttestationLog{
		Metadata: ledger.Metadata{
			BaseCommitSHA: "initial",
			Timestamp:     ts,
			PromptReferences: map[string]ledger.PromptRecord{
				agent.AuthorID(): {Agent: agent, HumanAuthor: human, LinesAdded: 2, LinesAccepted: 2},
			},
		},
		Attestations: files,
	}
}

func TestBlame_Committed(t *testing.T) {
	f := newFixture(t)
	e := New(f.repo, f.ledger, nil)

	got, err := e.Blame(context.Background(), "a.go", "HEAD")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, agent.AuthorID(), got[0].AuthorID)
	assert.True(t, got[0].AI)
	require.NotNil(t, got[0].Prompt)
	assert.Equal(t, "claude", got[0].Prompt.Agent.Tool)
	assert.Equal(t, f.first, got[0].Commit)
	assert.True(t, got[1].AI)

	assert.Equal(t, human, got[2].AuthorID)
	assert.False(t, got[2].AI)
	assert.Nil(t, got[2].Prompt)
	assert.Equal(t, ts, got[2].Timestamp)
}

func TestBlameLines(t *testing.T) {
	f := newFixture(t)
	e := New(f.repo, f.ledger, nil)
	ctx := context.Background()

	got, err := e.BlameLines(ctx, "a.go", "HEAD", 2, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Line)
	assert.True(t, got[0].AI)
	assert.Equal(t, human, got[1].AuthorID)

	_, err = e.BlameLines(ctx, "a.go", "HEAD", 3, 2)
	assert.Error(t, err)
}

func TestBlame_UntrackedAndUncommitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// second commit appends a line without any ledger entry
	commitFile(t, f.dir, "a.go", "func a() {\n\treturn 1\n}\n// tail\n")
	// and the working tree adds one more
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "a.go"),
		[]byte("func a() {\n\treturn 1\n}\n// tail\n// dirty\n"), 0o644))

	e := New(f.repo, f.ledger, nil)
	got, err := e.Blame(ctx, "a.go", "")
	require.NoError(t, err)
	require.Len(t, got, 5)

	assert.True(t, got[0].AI, "old lines keep their commit's attribution")
	assert.Equal(t, human, got[2].AuthorID)
	assert.Equal(t, ledger.Unattributed, got[3].AuthorID, "commit without a ledger entry")
	assert.Equal(t, ledger.Unattributed, got[4].AuthorID, "uncommitted line")
	assert.False(t, got[4].AI)
}

func TestBlame_MissingFile(t *testing.T) {
	f := newFixture(t)
	_, err := New(f.repo, f.ledger, nil).Blame(context.Background(), "nope.go", "HEAD")
	assert.Error(t, err)
}

func TestBaseStamps(t *testing.T) {
	f := newFixture(t)
	e := New(f.repo, f.ledger, nil)
	ctx := context.Background()

	stamps, err := e.BaseStamps(ctx, f.first, "a.go", 3)
	require.NoError(t, err)
	require.Len(t, stamps, 3)
	assert.Equal(t, agent.AuthorID(), stamps[0].AuthorID)
	require.NotNil(t, stamps[0].Prompt)
	assert.Equal(t, human, stamps[2].AuthorID)
	assert.Nil(t, stamps[2].Prompt)

	_, err = e.BaseStamps(ctx, f.first, "a.go", 4)
	assert.Error(t, err, "line count mismatch")
}

func TestShow(t *testing.T) {
	f := newFixture(t)
	e := New(f.repo, f.ledger, nil)
	ctx := context.Background()

	s, err := e.Show(ctx, f.first)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Commits)
	assert.Equal(t, 1, s.Files)
	assert.Equal(t, 2, s.AILines)
	assert.Equal(t, 1, s.HumanLines)
	assert.Equal(t, "claude/opus", s.Agents[agent.AuthorID()])
	assert.InDelta(t, 2.0/3.0, s.AIShare(), 1e-9)

	second := commitFile(t, f.dir, "b.go", "x\n")
	_, err = e.Show(ctx, second)
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestStats_Range(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	second := commitFile(t, f.dir, "b.go", "one\ntwo\n")
	third := commitFile(t, f.dir, "vendor.txt", "v\n")
	require.NoError(t, f.ledger.Publish(ctx, third, &ledger.AttestationLog{
		Metadata: ledger.Metadata{BaseCommitSHA: second, Timestamp: ts},
		Attestations: []ledger.FileAttestation{{File: "vendor.txt", Attributions: []ledger.Span{
			{StartLine: 1, EndLine: 1, AuthorID: human},
		}}},
	}))

	e := New(f.repo, f.ledger, nil)
	e.Workers = 2
	commits, err := e.ResolveCommits(ctx, f.first+".."+third)
	require.NoError(t, err)
	assert.Len(t, commits, 2)

	commits = append(commits, f.first)
	s, err := e.Stats(ctx, commits, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Commits)
	assert.Equal(t, 1, s.Untracked)
	assert.Equal(t, 2, s.AILines)
	assert.Equal(t, 2, s.HumanLines)
	assert.Equal(t, 2, s.LinesByAuthor[human])

	s, err = e.Stats(ctx, commits, []string{"*.txt"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.HumanLines)
	assert.Equal(t, 3, s.Commits, "ignored files do not drop commits")
}

func TestStats_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(f.repo, f.ledger, nil).Stats(ctx, []string{f.first}, nil)
	assert.Error(t, err)
}

func TestResolveCommits(t *testing.T) {
	f := newFixture(t)
	e := New(f.repo, f.ledger, nil)
	ctx := context.Background()

	got, err := e.ResolveCommits(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{f.first}, got)

	_, err = e.ResolveCommits(ctx, "no-such-rev")
	assert.Error(t, err)
}

func TestEntry_CacheFollowsNoteRewrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	log, err := New(f.repo, f.ledger, cache).Entry(ctx, f.first)
	require.NoError(t, err)
	assert.Len(t, log.Attestations, 1)
	n, err := cache.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// rewrite the note; a fresh engine must not serve the stale row
	rewritten := aiLog([]ledger.FileAttestation{{File: "a.go", Attributions: []ledger.Span{
		{StartLine: 1, EndLine: 3, AuthorID: human, Timestamp: ts},
	}}})
	require.NoError(t, f.ledger.Publish(ctx, f.first, rewritten))

	s, err := New(f.repo, f.ledger, cache).Show(ctx, f.first)
	require.NoError(t, err)
	assert.Equal(t, 0, s.AILines)
	assert.Equal(t, 3, s.HumanLines)
}
