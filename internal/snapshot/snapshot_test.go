package snapshot

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore() (*Store, afero.Fs) {
	fs := afero.NewMemMapFs()
	return New(fs, "/logs/abc/blobs"), fs
}

func TestPutGet(t *testing.T) {
	s, _ := newMemStore()

	hash, err := s.Put("a.go", []byte("package a\n"))
	require.NoError(t, err)
	assert.Len(t, hash, 64)
	assert.Equal(t, Hash([]byte("package a\n")), hash)

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, "package a\n", string(got))
	assert.True(t, s.Has(hash))
}

func TestPut_Deduplicates(t *testing.T) {
	s, fs := newMemStore()

	h1, err := s.Put("a.go", []byte("same\n"))
	require.NoError(t, err)
	h2, err := s.Put("b.go", []byte("same\n"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	entries, err := afero.ReadDir(fs, "/logs/abc/blobs")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "identical content must be stored once, with no temp files left")
}

func TestPut_EmptyContent(t *testing.T) {
	s, _ := newMemStore()

	hash, err := s.Put("empty.txt", nil)
	require.NoError(t, err)
	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPut_RejectsBinary(t *testing.T) {
	s, _ := newMemStore()

	_, err := s.Put("img.png", []byte{0x89, 'P', 'N', 'G', 0x00, 0x01})
	assert.True(t, errors.Is(err, ErrIneligible))

	_, err = s.Put("latin1.txt", []byte{'c', 'a', 'f', 0xe9, '\n'})
	assert.True(t, errors.Is(err, ErrIneligible))
}

func TestEligible_RuneStraddlesSniffWindow(t *testing.T) {
	content := []byte(strings.Repeat("a", sniffLen-1) + "é tail")
	assert.True(t, Eligible(content))
}

func TestGet_Missing(t *testing.T) {
	s, _ := newMemStore()

	_, err := s.Get(Hash([]byte("never stored")))
	assert.True(t, errors.Is(err, ErrSnapshotMissing))
}

func TestGet_DetectsCorruption(t *testing.T) {
	s, fs := newMemStore()

	hash, err := s.Put("a.go", []byte("original\n"))
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, filepath.Join("/logs/abc/blobs", hash), []byte("tampered\n"), 0o644))

	_, err = s.Get(hash)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestNewOS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blobs")
	s := NewOS(dir)

	hash, err := s.Put("x.txt", []byte("on disk\n"))
	require.NoError(t, err)
	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, "on disk\n", string(got))
}
