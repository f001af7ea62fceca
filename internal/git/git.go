// Package git is the host version-control capability: every interaction with
// the repository goes through the git binary.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// EmptyTree is the id of git's empty tree, used as the "before" side of a
// root commit.
const EmptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

var (
	ErrNoCommits    = errors.New("git: repository has no commits")
	ErrPathNotFound = errors.New("git: path not found at revision")
	ErrNoNote       = errors.New("git: no note for object")
)

// Repo runs git commands against one working copy.
type Repo struct {
	Root string
}

// New returns a Repo rooted at root.
func New(root string) *Repo {
	return &Repo{Root: root}
}

func (r *Repo) run(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Root
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("git %s: %w", args[0], ctx.Err())
		}
		return nil, fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// HeadSHA returns the current HEAD commit SHA, or ErrNoCommits on an unborn branch.
func (r *Repo) HeadSHA(ctx context.Context) (string, error) {
	out, err := r.run(ctx, nil, "rev-parse", "--verify", "--quiet", "HEAD^{commit}")
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", ErrNoCommits
	}
	return strings.TrimSpace(string(out)), nil
}

// ResolveCommit resolves any revision expression to a full commit SHA.
func (r *Repo) ResolveCommit(ctx context.Context, rev string) (string, error) {
	out, err := r.run(ctx, nil, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("no commit found: %s", rev)
	}
	return strings.TrimSpace(string(out)), nil
}

// ParentSHA returns the first parent of commit, or "" for a root commit.
func (r *Repo) ParentSHA(ctx context.Context, commit string) string {
	out, err := r.run(ctx, nil, "rev-parse", "--verify", "--quiet", commit+"^1")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// RevList returns the commits in a rev-list expression (e.g. "a..b"), newest first.
func (r *Repo) RevList(ctx context.Context, spec string) ([]string, error) {
	out, err := r.run(ctx, nil, "rev-list", spec)
	if err != nil {
		return nil, err
	}
	return strings.Fields(string(out)), nil
}

// ShowFile retrieves file content at a given revision. Returns ErrPathNotFound
// when the path does not exist there.
func (r *Repo) ShowFile(ctx context.Context, rev, path string) (string, error) {
	obj := rev + ":" + path
	if _, err := r.run(ctx, nil, "rev-parse", "--verify", "--quiet", obj); err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", ErrPathNotFound
	}
	out, err := r.run(ctx, nil, "cat-file", "blob", obj)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ReadFile reads a working-tree file by repository-relative path.
func (r *Repo) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(r.Root, filepath.FromSlash(path)))
}

// Author resolves the identity used for human checkpoints, following git's own
// precedence: GIT_AUTHOR_* env, then user.name/user.email config, then EMAIL.
func (r *Repo) Author(ctx context.Context) string {
	name := strings.TrimSpace(os.Getenv("GIT_AUTHOR_NAME"))
	if name == "" {
		name = r.config(ctx, "user.name")
	}
	email := strings.TrimSpace(os.Getenv("GIT_AUTHOR_EMAIL"))
	if email == "" {
		email = r.config(ctx, "user.email")
	}
	if name == "" || email == "" {
		if env := strings.TrimSpace(os.Getenv("EMAIL")); env != "" {
			if name == "" {
				if at := strings.Index(env, "@"); at > 0 {
					name = env[:at]
				}
			}
			if email == "" {
				email = env
			}
		}
	}

	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s <%s>", name, email)
	case name != "":
		return name
	case email != "":
		return email
	default:
		return "unknown"
	}
}

func (r *Repo) config(ctx context.Context, key string) string {
	out, err := r.run(ctx, nil, "config", "--get", key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// RemoteExists reports whether a remote with the given name is configured.
func (r *Repo) RemoteExists(ctx context.Context, remote string) bool {
	_, err := r.run(ctx, nil, "remote", "get-url", remote)
	return err == nil
}

// LastReflog returns the subject of HEAD's newest reflog entry (for example
// "commit (amend): fix typo"), or "" if there is none.
func (r *Repo) LastReflog(ctx context.Context) string {
	out, err := r.run(ctx, nil, "reflog", "-1", "--format=%gs", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
