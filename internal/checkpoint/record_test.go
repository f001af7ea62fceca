package checkpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jensroland/git-aitrack/internal/project"
)

var agent = &AgentID{Tool: "test-agent", ID: "s1", Model: "m"}

func TestRecord_CapturesChangedFiles(t *testing.T) {
	l, _, _ := openTestLog(t, "base")
	ws := newWorkspace(map[string]string{"a.go": "one\ntwo\n", "b.go": "b\n"})
	ws.files["a.go"] = "one\ntwo\nthree\n"
	ws.files["new.go"] = "fresh\n"

	rec, err := l.Record(context.Background(), ws, RecordOptions{Kind: AiAgent, Author: "Test", Agent: agent})
	require.NoError(t, err)

	cp := rec.Checkpoint
	assert.Equal(t, int64(1), cp.Seq)
	assert.Equal(t, AiAgent, cp.Kind)
	assert.Equal(t, Fingerprint([]string{"a.go", "new.go"}), cp.DiffFingerprint)
	require.Len(t, cp.Entries, 2)
	assert.Equal(t, "a.go", cp.Entries[0].Path)
	assert.Equal(t, "new.go", cp.Entries[1].Path)
	assert.Equal(t, LineStats{Added: 2, Deleted: 0}, cp.LineStats)

	content, err := l.Blobs().Get(cp.Entries[0].ContentHash)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(content))
}

func TestRecord_NoChanges(t *testing.T) {
	l, _, _ := openTestLog(t, "base")
	ws := newWorkspace(map[string]string{"a.go": "x\n"})

	_, err := l.Record(context.Background(), ws, RecordOptions{Kind: Human, Author: "Test"})
	assert.True(t, errors.Is(err, ErrNoChanges))

	all, err := l.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, all, "an empty checkpoint must not be appended")
}

func TestRecord_OnlyFilesChangedSinceLastCheckpoint(t *testing.T) {
	l, _, _ := openTestLog(t, "base")
	ctx := context.Background()
	ws := newWorkspace(map[string]string{"a.go": "a\n", "b.go": "b\n"})

	ws.files["a.go"] = "a\nai\n"
	_, err := l.Record(ctx, ws, RecordOptions{Kind: AiAgent, Author: "Test", Agent: agent})
	require.NoError(t, err)

	_, err = l.Record(ctx, ws, RecordOptions{Kind: Human, Author: "Test"})
	assert.True(t, errors.Is(err, ErrNoChanges), "a.go is unchanged since the AI checkpoint")

	ws.files["b.go"] = "b\nhuman\n"
	rec, err := l.Record(ctx, ws, RecordOptions{Kind: Human, Author: "Test"})
	require.NoError(t, err)
	require.Len(t, rec.Checkpoint.Entries, 1)
	assert.Equal(t, "b.go", rec.Checkpoint.Entries[0].Path)
	assert.Nil(t, rec.Checkpoint.Agent)
}

func TestRecord_RevertToBaseIsAChange(t *testing.T) {
	l, _, _ := openTestLog(t, "base")
	ctx := context.Background()
	ws := newWorkspace(map[string]string{"a.go": "a\n"})

	ws.files["a.go"] = "a\nai\n"
	_, err := l.Record(ctx, ws, RecordOptions{Kind: AiAgent, Author: "Test", Agent: agent})
	require.NoError(t, err)

	ws.files["a.go"] = "a\n"
	rec, err := l.Record(ctx, ws, RecordOptions{Kind: Human, Author: "Test"})
	require.NoError(t, err)
	require.Len(t, rec.Checkpoint.Entries, 1)
	assert.Equal(t, LineStats{Added: 0, Deleted: 1}, rec.Checkpoint.LineStats)
}

func TestRecord_DeletedFile(t *testing.T) {
	l, _, _ := openTestLog(t, "base")
	ws := newWorkspace(map[string]string{"gone.go": "1\n2\n"})
	delete(ws.files, "gone.go")

	rec, err := l.Record(context.Background(), ws, RecordOptions{Kind: Human, Author: "Test"})
	require.NoError(t, err)
	require.Len(t, rec.Checkpoint.Entries, 1)
	e := rec.Checkpoint.Entries[0]
	assert.True(t, e.Deleted)
	assert.Empty(t, e.ContentHash)
	assert.Equal(t, 2, rec.Checkpoint.LineStats.Deleted)
}

func TestRecord_SkipsBinary(t *testing.T) {
	l, _, _ := openTestLog(t, "base")
	ws := newWorkspace(nil)
	ws.files["img.bin"] = "PNG\x00\x01"
	ws.files["ok.txt"] = "text\n"

	rec, err := l.Record(context.Background(), ws, RecordOptions{Kind: Human, Author: "Test"})
	require.NoError(t, err)
	assert.Equal(t, []string{"img.bin"}, rec.Skipped)
	require.Len(t, rec.Checkpoint.Entries, 1)
	assert.Equal(t, "ok.txt", rec.Checkpoint.Entries[0].Path)
}

func TestRecord_PathFilter(t *testing.T) {
	l, _, _ := openTestLog(t, "base")
	ws := newWorkspace(nil)
	ws.files["src/a.go"] = "a\n"
	ws.files["docs/readme.md"] = "r\n"

	rec, err := l.Record(context.Background(), ws, RecordOptions{Kind: Human, Author: "Test", Paths: []string{"src/"}})
	require.NoError(t, err)
	require.Len(t, rec.Checkpoint.Entries, 1)
	assert.Equal(t, "src/a.go", rec.Checkpoint.Entries[0].Path)
}

func TestRecord_InitialBaseHasNoContent(t *testing.T) {
	l, _, _ := openTestLog(t, project.InitialBase)
	ws := newWorkspace(nil)
	ws.files["a.go"] = "1\n2\n3\n"

	rec, err := l.Record(context.Background(), ws, RecordOptions{Kind: Human, Author: "Test"})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Checkpoint.LineStats.Added)
}

func TestRecord_Validation(t *testing.T) {
	l, _, _ := openTestLog(t, "base")
	ws := newWorkspace(nil)
	ctx := context.Background()

	_, err := l.Record(ctx, ws, RecordOptions{Kind: "robot"})
	assert.Error(t, err)
	_, err = l.Record(ctx, ws, RecordOptions{Kind: AiAgent, Author: "Test"})
	assert.Error(t, err, "ai checkpoints need an agent")
}

func TestMatchesAny(t *testing.T) {
	assert.True(t, matchesAny("a/b.go", nil))
	assert.True(t, matchesAny("a/b.go", []string{"a"}))
	assert.True(t, matchesAny("a/b.go", []string{"./a/b.go"}))
	assert.False(t, matchesAny("ab/c.go", []string{"a"}))
	assert.True(t, matchesAny("x.go", []string{"."}))
}
