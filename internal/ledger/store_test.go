package ledger

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

	"github.com/jensroland/git-aitrack/internal/git"
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

func setupRepo(t *testing.T, dir string) string {
	t.Helper()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))
	runGit(t, dir, "add", "a.go")
	runGit(t, dir, "commit", "-q", "-m", "init")
	return runGit(t, dir, "rev-parse", "HEAD")
}

func TestPublishFetch(t *testing.T) {
	dir := t.TempDir()
	head := setupRepo(t, dir)
	l := New(git.New(dir), "")
	ctx := context.Background()

	_, err := l.Fetch(ctx, head)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = l.NoteOID(ctx, head)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, l.Publish(ctx, head, sampleLog()))
	got, err := l.Fetch(ctx, head)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, got.Version)
	assert.Len(t, got.Attestations, 2)
	assert.Equal(t, "a.go", got.Attestations[0].File)
}

func TestPublish_Idempotent(t *testing.T) {
	dir := t.TempDir()
	head := setupRepo(t, dir)
	l := New(git.New(dir), "")
	ctx := context.Background()

	require.NoError(t, l.Publish(ctx, head, sampleLog()))
	first, err := l.NoteOID(ctx, head)
	require.NoError(t, err)
	before := runGit(t, dir, "notes", "--ref", DefaultRef, "list")

	require.NoError(t, l.Publish(ctx, head, sampleLog()))
	second, err := l.NoteOID(ctx, head)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same content must produce the same note blob")
	assert.Equal(t, before, runGit(t, dir, "notes", "--ref", DefaultRef, "list"))
}

func TestPublish_InvalidLogIsNotWritten(t *testing.T) {
	dir := t.TempDir()
	head := setupRepo(t, dir)
	l := New(git.New(dir), "")
	ctx := context.Background()

	bad := sampleLog()
	bad.Attestations[1].Attributions[1].StartLine = 4
	err := l.Publish(ctx, head, bad)
	assert.True(t, errors.Is(err, ErrInvalid))

	_, err = l.Fetch(ctx, head)
	assert.True(t, errors.Is(err, ErrNotFound))
}

type flakyNotes struct {
	git.Repo
	failures int
	calls    int
}

func (f *flakyNotes) NotesAdd(ctx context.Context, ref, obj string, data []byte) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("index.lock exists")
	}
	return f.Repo.NotesAdd(ctx, ref, obj, data)
}

func TestPublish_Retries(t *testing.T) {
	dir := t.TempDir()
	head := setupRepo(t, dir)
	ctx := context.Background()

	notes := &flakyNotes{Repo: *git.New(dir), failures: 2}
	l := New(notes, "")
	l.Backoff = time.Millisecond
	require.NoError(t, l.Publish(ctx, head, sampleLog()))
	assert.Equal(t, 3, notes.calls)

	notes = &flakyNotes{Repo: *git.New(dir), failures: 10}
	l = New(notes, "")
	l.Backoff = time.Millisecond
	err := l.Publish(ctx, head, sampleLog())
	assert.True(t, errors.Is(err, ErrPublishFailed))
	assert.Equal(t, 3, notes.calls)
}

func TestPush_NoRemoteIsNoop(t *testing.T) {
	dir := t.TempDir()
	head := setupRepo(t, dir)
	l := New(git.New(dir), "")
	ctx := context.Background()

	require.NoError(t, l.Push(ctx, "origin", 3))
	require.NoError(t, l.Publish(ctx, head, sampleLog()))
	require.NoError(t, l.Push(ctx, "origin", 3))
}

func TestPush_MergesConcurrentRemoteEntries(t *testing.T) {
	ctx := context.Background()
	remote := t.TempDir()
	runGit(t, remote, "init", "-q", "--bare")

	alice := t.TempDir()
	head := setupRepo(t, alice)
	runGit(t, alice, "remote", "add", "origin", remote)
	runGit(t, alice, "push", "-q", "origin", "HEAD:refs/heads/main")

	bob := t.TempDir()
	runGit(t, bob, "clone", "-q", remote, ".")
	runGit(t, bob, "config", "user.email", "bob@test.com")
	runGit(t, bob, "config", "user.name", "Bob")
	require.NoError(t, os.WriteFile(filepath.Join(bob, "b.go"), []byte("package b\n"), 0o644))
	runGit(t, bob, "add", "b.go")
	runGit(t, bob, "commit", "-q", "-m", "bob")
	bobHead := runGit(t, bob, "rev-parse", "HEAD")
	runGit(t, bob, "push", "-q", "origin", "HEAD:refs/heads/main")

	aliceLedger := New(git.New(alice), "")
	require.NoError(t, aliceLedger.Publish(ctx, head, sampleLog()))
	require.NoError(t, aliceLedger.Push(ctx, "origin", 3))

	bobLedger := New(git.New(bob), "")
	require.NoError(t, bobLedger.Publish(ctx, bobHead, sampleLog()))
	require.NoError(t, bobLedger.Push(ctx, "origin", 1), "one retry merges the remote notes and pushes again")

	listing := runGit(t, remote, "notes", "--ref", DefaultRef, "list")
	assert.Contains(t, listing, head)
	assert.Contains(t, listing, bobHead)
}
