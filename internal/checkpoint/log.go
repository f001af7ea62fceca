package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jensroland/git-aitrack/internal/logging"
	"github.com/jensroland/git-aitrack/internal/snapshot"
)

const (
	logFileName  = "checkpoints.json"
	lockFileName = "lock"
	blobDirName  = "blobs"
)

// logFile is the on-disk form of one base commit's log.
type logFile struct {
	BaseCommit  string       `json:"base_commit"`
	Sealed      bool         `json:"sealed"`
	NextSeq     int64        `json:"next_seq"`
	Checkpoints []Checkpoint `json:"checkpoints"`
}

// Log is the append-only checkpoint log for one base commit.
type Log struct {
	workingDir string
	archiveDir string
	base       string
	dir        string
	blobs      *snapshot.Store

	Logger *slog.Logger
	now    func() time.Time
}

// Open returns the log for baseCommit, creating its directory if needed.
func Open(workingLogsDir, archiveDir, baseCommit string) (*Log, error) {
	if baseCommit == "" {
		return nil, errors.New("checkpoint: empty base commit")
	}
	dir := filepath.Join(workingLogsDir, baseCommit)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Log{
		workingDir: workingLogsDir,
		archiveDir: archiveDir,
		base:       baseCommit,
		dir:        dir,
		blobs:      snapshot.NewOS(filepath.Join(dir, blobDirName)),
		Logger:     logging.Discard(),
		now:        time.Now,
	}, nil
}

// Base returns the base commit the log records against.
func (l *Log) Base() string { return l.base }

// Dir returns the log directory.
func (l *Log) Dir() string { return l.dir }

// Blobs returns the snapshot store holding this log's file contents.
func (l *Log) Blobs() *snapshot.Store { return l.blobs }

// Append assigns cp the next sequence number and durably adds it to the log.
// Concurrent appends from any goroutine or process are serialized.
func (l *Log) Append(ctx context.Context, cp Checkpoint) (Checkpoint, error) {
	lk, err := l.lock(ctx, true)
	if err != nil {
		return Checkpoint{}, err
	}
	defer lk.release()

	lf, err := l.read()
	if err != nil {
		return Checkpoint{}, err
	}
	if lf.Sealed {
		return Checkpoint{}, ErrLogSealed
	}

	cp.Seq = lf.NextSeq
	lf.NextSeq++
	lf.Checkpoints = append(lf.Checkpoints, cp)
	if err := l.write(lf); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// Reset discards every checkpoint and snapshot recorded so far and returns
// how many checkpoints were dropped. Sequence numbers keep counting up.
func (l *Log) Reset(ctx context.Context) (int, error) {
	lk, err := l.lock(ctx, true)
	if err != nil {
		return 0, err
	}
	defer lk.release()

	lf, err := l.read()
	if err != nil {
		return 0, err
	}
	if lf.Sealed {
		return 0, ErrLogSealed
	}
	n := len(lf.Checkpoints)
	lf.Checkpoints = nil
	if err := l.write(lf); err != nil {
		return 0, err
	}
	if err := os.RemoveAll(filepath.Join(l.dir, blobDirName)); err != nil {
		return n, fmt.Errorf("remove snapshots: %w", err)
	}
	return n, nil
}

// ReadAll returns the log's checkpoints in sequence order.
func (l *Log) ReadAll() ([]Checkpoint, error) {
	lf, err := l.read()
	if err != nil {
		return nil, err
	}
	return lf.Checkpoints, nil
}

// ReadAll returns the checkpoints recorded against baseCommit. A missing log
// is empty.
func ReadAll(workingLogsDir, baseCommit string) ([]Checkpoint, error) {
	l := &Log{base: baseCommit, dir: filepath.Join(workingLogsDir, baseCommit)}
	return l.ReadAll()
}

// View is a stable read of the log. The log cannot be rolled forward until
// the view is released.
type View struct {
	Base        string
	Checkpoints []Checkpoint
	Blobs       *snapshot.Store

	lock *fileLock
}

// Release drops the view's shared lock.
func (v *View) Release() error {
	return v.lock.release()
}

// Snapshot takes a shared lock and reads the log under it.
func (l *Log) Snapshot(ctx context.Context) (*View, error) {
	lk, err := l.lock(ctx, false)
	if err != nil {
		return nil, err
	}
	lf, err := l.read()
	if err != nil {
		lk.release()
		return nil, err
	}
	return &View{Base: l.base, Checkpoints: lf.Checkpoints, Blobs: l.blobs, lock: lk}, nil
}

// RollForward seals this log, archives it and returns the log for newCommit.
// An empty log is removed rather than archived. A log that already exists
// for newCommit is kept as is.
func (l *Log) RollForward(ctx context.Context, newCommit string) (*Log, error) {
	if newCommit == l.base {
		return l, nil
	}

	lk, err := l.lock(ctx, true)
	switch {
	case errors.Is(err, ErrLogSealed):
		// already rolled by someone else
	case err != nil:
		return nil, err
	default:
		lf, rerr := l.read()
		if rerr == nil && !lf.Sealed {
			lf.Sealed = true
			rerr = l.write(lf)
		}
		lk.release()
		if rerr != nil {
			return nil, rerr
		}
		if len(lf.Checkpoints) == 0 {
			// nothing worth keeping for audit
			if err := os.RemoveAll(l.dir); err != nil {
				return nil, fmt.Errorf("remove empty log %s: %w", l.base, err)
			}
		} else if err := l.archive(); err != nil {
			return nil, err
		}
	}

	next, err := Open(l.workingDir, l.archiveDir, newCommit)
	if err != nil {
		return nil, err
	}
	next.Logger = l.Logger
	next.now = l.now
	return next, nil
}

func (l *Log) archive() error {
	if err := os.MkdirAll(l.archiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	dst := filepath.Join(l.archiveDir, fmt.Sprintf("%s-%d", l.base, l.now().Unix()))
	if err := os.Rename(l.dir, dst); err != nil {
		return fmt.Errorf("archive log %s: %w", l.base, err)
	}
	l.Logger.Debug("archived checkpoint log", "base", l.base, "dest", dst)
	return nil
}

// Prune removes archived logs older than maxAge and returns how many it removed.
func Prune(archiveDir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		archived, ok := archivedAt(e)
		if !ok || !archived.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(archiveDir, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// archivedAt reads the unix suffix of "<base>-<unix>", falling back to mtime.
func archivedAt(e fs.DirEntry) (time.Time, bool) {
	name := e.Name()
	if i := strings.LastIndex(name, "-"); i >= 0 {
		if secs, err := strconv.ParseInt(name[i+1:], 10, 64); err == nil {
			return time.Unix(secs, 0), true
		}
	}
	info, err := e.Info()
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// lock acquires the log's lock file. A log whose directory has been archived
// reports ErrLogSealed.
func (l *Log) lock(ctx context.Context, exclusive bool) (*fileLock, error) {
	lk, err := acquireLock(ctx, filepath.Join(l.dir, lockFileName), exclusive)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrLogSealed
	}
	if err != nil {
		return nil, fmt.Errorf("lock checkpoint log: %w", err)
	}
	if _, err := os.Stat(l.dir); errors.Is(err, fs.ErrNotExist) {
		lk.release()
		return nil, ErrLogSealed
	}
	return lk, nil
}

func (l *Log) read() (logFile, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, logFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return logFile{BaseCommit: l.base, NextSeq: 1}, nil
	}
	if err != nil {
		return logFile{}, err
	}
	var lf logFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return logFile{}, fmt.Errorf("%s: %w: %v", l.base, ErrCorrupt, err)
	}
	if lf.NextSeq < 1 {
		lf.NextSeq = 1
	}
	sort.SliceStable(lf.Checkpoints, func(i, j int) bool {
		return lf.Checkpoints[i].Seq < lf.Checkpoints[j].Seq
	})
	return lf, nil
}

func (l *Log) write(lf logFile) error {
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(l.dir, ".checkpoints-*")
	if err != nil {
		return fmt.Errorf("write checkpoint log: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync checkpoint log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(l.dir, logFileName)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit checkpoint log: %w", err)
	}
	return nil
}
