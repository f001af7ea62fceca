package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu    sync.Mutex
	calls [][]string
}

func (c *capture) record(_ context.Context, paths []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, paths)
	return nil
}

func (c *capture) all() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]string(nil), c.calls...)
}

func start(t *testing.T, root string, c *capture) (context.CancelFunc, <-chan error) {
	t.Helper()
	w := New(root, 50*time.Millisecond, c.record)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	select {
	case <-w.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not start")
	}
	return cancel, done
}

func TestWatch_DebouncesEdits(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	c := &capture{}
	cancel, done := start(t, root, c)
	defer cancel()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "b.go"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "index"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		for _, call := range c.all() {
			for _, p := range call {
				if p == "src/b.go" {
					return true
				}
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	var seen []string
	for _, call := range c.all() {
		seen = append(seen, call...)
	}
	assert.Contains(t, seen, "a.go")
	assert.NotContains(t, seen, ".git/index")
}

func TestWatch_NewDirectory(t *testing.T) {
	root := t.TempDir()
	c := &capture{}
	cancel, done := start(t, root, c)
	defer cancel()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	// give the watcher a moment to pick up the new directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "x.go"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		for _, call := range c.all() {
			for _, p := range call {
				if p == "pkg/x.go" {
					return true
				}
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRelevant(t *testing.T) {
	w := New("/repo", 0, nil)
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"/repo/a.go", "a.go", true},
		{"/repo/src/b.go", "src/b.go", true},
		{"/repo/.git/HEAD", "", false},
		{"/repo/.git", "", false},
		{"/repo/.github/ci.yml", ".github/ci.yml", true},
		{"/elsewhere/x", "", false},
		{"/repo", "", false},
	}
	for _, tt := range tests {
		got, ok := w.relevant(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}
