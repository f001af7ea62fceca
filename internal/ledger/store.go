package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jensroland/git-aitrack/internal/git"
	"github.com/jensroland/git-aitrack/internal/logging"
)

// DefaultRef is the notes ref ledger entries live under.
const DefaultRef = "refs/notes/ai-track"

// Notes is the host capability the ledger stores entries through.
type Notes interface {
	NotesAdd(ctx context.Context, ref, obj string, data []byte) error
	NotesShow(ctx context.Context, ref, obj string) ([]byte, error)
	NoteOID(ctx context.Context, ref, obj string) (string, error)
	RefExists(ctx context.Context, ref string) bool
	RemoteExists(ctx context.Context, remote string) bool
	PushRef(ctx context.Context, remote, ref string) error
	FetchRef(ctx context.Context, remote, ref, dst string) error
	NotesMerge(ctx context.Context, ref, other, strategy string) error
}

// Ledger reads and writes attestation logs bound to commits.
type Ledger struct {
	notes    Notes
	Ref      string
	Attempts int
	Backoff  time.Duration
	Logger   *slog.Logger
}

// New returns a ledger on the given notes ref.
func New(notes Notes, ref string) *Ledger {
	if ref == "" {
		ref = DefaultRef
	}
	return &Ledger{
		notes:    notes,
		Ref:      ref,
		Attempts: 3,
		Backoff:  50 * time.Millisecond,
		Logger:   logging.Discard(),
	}
}

// Publish validates log and attaches it to commit, replacing any previous
// entry. Publishing the same log twice leaves the ledger unchanged.
func (l *Ledger) Publish(ctx context.Context, commit string, log *AttestationLog) error {
	data, err := Encode(log)
	if err != nil {
		return err
	}

	attempts := max(l.Attempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = l.notes.NotesAdd(ctx, l.Ref, commit, data)
		if lastErr == nil {
			l.Logger.Info("published attestation", "commit", commit, "files", len(log.Attestations))
			return nil
		}
		l.Logger.Warn("publish attempt failed", "commit", commit, "attempt", attempt, "error", lastErr)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrPublishFailed, ctx.Err())
		case <-time.After(l.Backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrPublishFailed, attempts, lastErr)
}

// Fetch returns the attestation log for commit, or ErrNotFound.
func (l *Ledger) Fetch(ctx context.Context, commit string) (*AttestationLog, error) {
	data, err := l.notes.NotesShow(ctx, l.Ref, commit)
	if errors.Is(err, git.ErrNoNote) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	log, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", commit, err)
	}
	return log, nil
}

// NoteOID returns the object id of commit's entry, which changes whenever the
// entry is rewritten. Returns ErrNotFound when there is none.
func (l *Ledger) NoteOID(ctx context.Context, commit string) (string, error) {
	oid, err := l.notes.NoteOID(ctx, l.Ref, commit)
	if errors.Is(err, git.ErrNoNote) {
		return "", ErrNotFound
	}
	return oid, err
}

// Push sends the ledger to remote. A rejected push is resolved by fetching
// the remote ledger, merging it (local entries win) and retrying. A missing
// remote or an empty local ledger is not an error.
func (l *Ledger) Push(ctx context.Context, remote string, retries int) error {
	if remote == "" {
		remote = "origin"
	}
	if !l.notes.RemoteExists(ctx, remote) || !l.notes.RefExists(ctx, l.Ref) {
		return nil
	}

	tracking := "refs/notes/aitrack-remote/" + remote
	retries = max(retries, 1)
	var lastErr error
	for attempt := 0; ; attempt++ {
		if lastErr = l.notes.PushRef(ctx, remote, l.Ref); lastErr == nil {
			return nil
		}
		if attempt == retries {
			break
		}
		l.Logger.Debug("ledger push rejected, merging remote", "remote", remote, "attempt", attempt+1)

		if err := l.notes.FetchRef(ctx, remote, l.Ref, tracking); err != nil {
			return fmt.Errorf("fetch %s: %w", remote, err)
		}
		if err := l.notes.NotesMerge(ctx, l.Ref, tracking, "ours"); err != nil {
			return err
		}
	}
	return fmt.Errorf("push ledger failed after %d retries: %w", retries, lastErr)
}
