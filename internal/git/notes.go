package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// NoteOID returns the blob id of the note attached to obj under ref, or
// ErrNoNote. Other git failures are returned as is.
func (r *Repo) NoteOID(ctx context.Context, ref, obj string) (string, error) {
	out, err := r.run(ctx, nil, "notes", "--ref", ref, "list", obj)
	if err != nil {
		if ctx.Err() == nil && isNoNote(err) {
			return "", ErrNoNote
		}
		return "", err
	}
	oid := strings.TrimSpace(string(out))
	if oid == "" {
		return "", ErrNoNote
	}
	return oid, nil
}

// isNoNote tells git's "no note found" failure apart from fatal errors, which
// git reports with exit status 128.
func isNoNote(err error) bool {
	if strings.Contains(err.Error(), "no note found") {
		return true
	}
	var ee *exec.ExitError
	return errors.As(err, &ee) && ee.ExitCode() != 128
}

// NotesShow returns the raw note attached to obj under ref, or ErrNoNote.
func (r *Repo) NotesShow(ctx context.Context, ref, obj string) ([]byte, error) {
	oid, err := r.NoteOID(ctx, ref, obj)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, nil, "cat-file", "blob", oid)
}

// NotesAdd attaches data to obj under ref, replacing any existing note.
func (r *Repo) NotesAdd(ctx context.Context, ref, obj string, data []byte) error {
	_, err := r.run(ctx, bytes.NewReader(data), "notes", "--ref", ref, "add", "-f", "-F", "-", obj)
	return err
}

// NotesList maps every annotated object under ref to its note blob id.
// A missing ref yields an empty map.
func (r *Repo) NotesList(ctx context.Context, ref string) (map[string]string, error) {
	out, err := r.run(ctx, nil, "notes", "--ref", ref, "list")
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return map[string]string{}, nil
	}
	notes := make(map[string]string)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 {
			notes[fields[1]] = fields[0]
		}
	}
	return notes, nil
}

// PushRef pushes ref to the same name on remote.
func (r *Repo) PushRef(ctx context.Context, remote, ref string) error {
	_, err := r.run(ctx, nil, "push", "--quiet", remote, ref+":"+ref)
	return err
}

// FetchRef fetches remote's ref into the local ref dst, forcing the update.
func (r *Repo) FetchRef(ctx context.Context, remote, ref, dst string) error {
	_, err := r.run(ctx, nil, "fetch", "--quiet", remote, "+"+ref+":"+dst)
	return err
}

// NotesMerge merges the notes ref other into ref using strategy.
func (r *Repo) NotesMerge(ctx context.Context, ref, other, strategy string) error {
	if _, err := r.run(ctx, nil, "notes", "--ref", ref, "merge", "-s", strategy, other); err != nil {
		return fmt.Errorf("merge notes %s into %s: %w", other, ref, err)
	}
	return nil
}

// RefExists reports whether a fully qualified ref exists locally.
func (r *Repo) RefExists(ctx context.Context, ref string) bool {
	_, err := r.run(ctx, nil, "rev-parse", "--verify", "--quiet", ref)
	return err == nil
}
