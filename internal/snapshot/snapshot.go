// Package snapshot is a content-addressed, write-once blob store for file
// contents captured at checkpoint time.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/afero"
)

// sniffLen is how much of a file is inspected for binary content.
const sniffLen = 8000

var (
	ErrIneligible      = errors.New("snapshot: binary or non-text content")
	ErrSnapshotMissing = errors.New("snapshot: blob not found")
	ErrCorrupt         = errors.New("snapshot: blob content does not match its hash")
)

// Store keeps blobs under dir, one file per sha256 hex digest.
type Store struct {
	fs  afero.Fs
	dir string
}

// New returns a store rooted at dir on fs.
func New(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

// NewOS returns a store on the real filesystem.
func NewOS(dir string) *Store {
	return New(afero.NewOsFs(), dir)
}

// Hash returns the content address of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Eligible reports whether content is text the store will accept.
func Eligible(content []byte) bool {
	head := content
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	if utf8.Valid(head) {
		return true
	}
	if len(content) <= sniffLen {
		return false
	}
	// A multi-byte rune may straddle the cut.
	for i := 1; i < utf8.UTFMax; i++ {
		if utf8.Valid(head[:len(head)-i]) {
			return true
		}
	}
	return false
}

// Put stores content and returns its hash. Storing the same bytes twice is a
// no-op. path is only used in error messages.
func (s *Store) Put(path string, content []byte) (string, error) {
	if !Eligible(content) {
		return "", fmt.Errorf("%s: %w", path, ErrIneligible)
	}
	hash := Hash(content)
	if s.Has(hash) {
		return hash, nil
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, s.dir, ".blob-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return "", fmt.Errorf("write blob for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", fmt.Errorf("close blob for %s: %w", path, err)
	}
	if err := s.fs.Rename(tmpName, s.blobPath(hash)); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", fmt.Errorf("commit blob for %s: %w", path, err)
	}
	return hash, nil
}

// Get returns the bytes stored under hash, verifying them on the way out.
func (s *Store) Get(hash string) ([]byte, error) {
	b, err := afero.ReadFile(s.fs, s.blobPath(hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", hash, ErrSnapshotMissing)
		}
		return nil, err
	}
	if Hash(b) != hash {
		return nil, fmt.Errorf("%s: %w", hash, ErrCorrupt)
	}
	return b, nil
}

// Has reports whether a blob exists for hash.
func (s *Store) Has(hash string) bool {
	ok, err := afero.Exists(s.fs, s.blobPath(hash))
	return err == nil && ok
}

func (s *Store) blobPath(hash string) string {
	return filepath.Join(s.dir, hash)
}
