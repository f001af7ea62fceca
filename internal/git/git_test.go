package git

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestHeadSHA(t *testing.T) {
	dir := setupGitRepo(t, "test.txt", "hello\n")

	sha, err := New(dir).HeadSHA(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sha) != 40 {
		t.Errorf("expected 40-char SHA, got %d chars: %s", len(sha), sha)
	}
}

func TestHeadSHA_Unborn(t *testing.T) {
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")

	_, err := New(dir).HeadSHA(context.Background())
	if !errors.Is(err, ErrNoCommits) {
		t.Errorf("err = %v, want ErrNoCommits", err)
	}
}

func TestShowFile(t *testing.T) {
	dir := setupGitRepo(t, "src/a.go", "package a\n")
	repo := New(dir)
	ctx := context.Background()

	got, err := repo.ShowFile(ctx, "HEAD", "src/a.go")
	if err != nil {
		t.Fatal(err)
	}
	if got != "package a\n" {
		t.Errorf("ShowFile = %q", got)
	}

	if _, err := repo.ShowFile(ctx, "HEAD", "missing.go"); !errors.Is(err, ErrPathNotFound) {
		t.Errorf("missing path err = %v, want ErrPathNotFound", err)
	}
}

func TestParentSHAAndRevList(t *testing.T) {
	dir := setupGitRepo(t, "a.txt", "1\n")
	repo := New(dir)
	ctx := context.Background()
	first, _ := repo.HeadSHA(ctx)

	writeFile(t, dir, "a.txt", "1\n2\n")
	second := commitAll(t, dir, "second")
	writeFile(t, dir, "a.txt", "1\n2\n3\n")
	third := commitAll(t, dir, "third")

	if got := repo.ParentSHA(ctx, second); got != first {
		t.Errorf("ParentSHA(second) = %s, want %s", got, first)
	}
	if got := repo.ParentSHA(ctx, first); got != "" {
		t.Errorf("ParentSHA(root) = %q, want empty", got)
	}

	commits, err := repo.RevList(ctx, first+".."+third)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 || commits[0] != third || commits[1] != second {
		t.Errorf("RevList = %v, want [%s %s]", commits, third, second)
	}

	resolved, err := repo.ResolveCommit(ctx, "HEAD~1")
	if err != nil || resolved != second {
		t.Errorf("ResolveCommit(HEAD~1) = %s, %v", resolved, err)
	}
	if _, err := repo.ResolveCommit(ctx, "no-such-rev"); err == nil {
		t.Error("expected error for unknown revision")
	}
}

func TestAuthor_EnvWins(t *testing.T) {
	dir := setupGitRepo(t, "a.txt", "1\n")
	t.Setenv("GIT_AUTHOR_NAME", "Ada")
	t.Setenv("GIT_AUTHOR_EMAIL", "ada@example.com")

	if got := New(dir).Author(context.Background()); got != "Ada <ada@example.com>" {
		t.Errorf("Author = %q", got)
	}
}

func TestAuthor_FallsBackToConfig(t *testing.T) {
	dir := setupGitRepo(t, "a.txt", "1\n")
	t.Setenv("GIT_AUTHOR_NAME", "")
	t.Setenv("GIT_AUTHOR_EMAIL", "")

	if got := New(dir).Author(context.Background()); got != "Test <test@test.com>" {
		t.Errorf("Author = %q", got)
	}
}

func TestRemoteExists(t *testing.T) {
	dir := setupGitRepo(t, "a.txt", "1\n")
	repo := New(dir)
	ctx := context.Background()

	if repo.RemoteExists(ctx, "origin") {
		t.Error("fresh repo should have no origin")
	}
	runGit(t, dir, "remote", "add", "origin", t.TempDir())
	if !repo.RemoteExists(ctx, "origin") {
		t.Error("origin should exist after remote add")
	}
}

func TestLastReflog_Amend(t *testing.T) {
	dir := setupGitRepo(t, "a.txt", "one\n")
	repo := New(dir)
	ctx := context.Background()

	if got := repo.LastReflog(ctx); !strings.HasPrefix(got, "commit") || strings.Contains(got, "amend") {
		t.Errorf("LastReflog = %q, want a plain commit", got)
	}

	writeFile(t, dir, "a.txt", "two\n")
	runGit(t, dir, "commit", "-q", "-a", "--amend", "-m", "amended")
	if got := repo.LastReflog(ctx); !strings.HasPrefix(got, "commit (amend)") {
		t.Errorf("LastReflog = %q, want amend", got)
	}
}
