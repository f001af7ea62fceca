package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alpkeskin/gotoon"
)

// outputFlags selects a machine-readable encoding.
type outputFlags struct {
	json bool
	toon bool
}

// write encodes v as JSON or toon when requested. It reports false when the
// caller should render the human-readable form instead.
func (o outputFlags) write(w io.Writer, v any) (bool, error) {
	switch {
	case o.json:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case o.toon:
		out, err := gotoon.Encode(v)
		if err != nil {
			return true, fmt.Errorf("failed to encode toon: %w", err)
		}
		_, err = fmt.Fprintln(w, out)
		return true, err
	}
	return false, nil
}

// repoPath turns a path given on the command line into a slash-separated
// path relative to the repository root.
func repoPath(root, arg string) (string, error) {
	p := arg
	if !filepath.IsAbs(p) {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		p = filepath.Join(wd, p)
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the repository", arg)
	}
	return filepath.ToSlash(rel), nil
}
