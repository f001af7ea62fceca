package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// BlameEntry holds parsed git blame data for a single line.
type BlameEntry struct {
	SHA      string // 40-char commit SHA (0000... for uncommitted)
	Line     int    // 1-based line number in current file
	OrigLine int    // 1-based line number in the original commit
	OrigPath string // path of the line's file in the original commit
}

// IsUncommitted returns true if the blame entry is for uncommitted content.
func (e BlameEntry) IsUncommitted() bool {
	return strings.TrimLeft(e.SHA, "0") == ""
}

// BlameFile runs git blame on an entire file and returns entries keyed by line
// number. An empty ref blames the working tree.
func (r *Repo) BlameFile(ctx context.Context, ref, file string) (map[int]BlameEntry, error) {
	args := []string{"blame", "--porcelain"}
	if ref != "" {
		args = append(args, ref)
	}
	args = append(args, "--", file)
	out, err := r.run(ctx, nil, args...)
	if err != nil {
		return nil, fmt.Errorf("blame %s: %w", file, err)
	}
	return parsePorcelainBlame(out, file), nil
}

// BlameRange runs git blame -L start,end on a file.
func (r *Repo) BlameRange(ctx context.Context, ref, file string, start, end int) (map[int]BlameEntry, error) {
	args := []string{"blame", "-L", fmt.Sprintf("%d,%d", start, end), "--porcelain"}
	if ref != "" {
		args = append(args, ref)
	}
	args = append(args, "--", file)
	out, err := r.run(ctx, nil, args...)
	if err != nil {
		return nil, fmt.Errorf("blame -L %d,%d %s: %w", start, end, file, err)
	}
	return parsePorcelainBlame(out, file), nil
}

// parsePorcelainBlame parses git blame --porcelain output.
//
// Porcelain format:
//
//	<40-byte SHA> <orig-line> <final-line> [<num-lines>]
//	header lines...
//	\t<actual line content>
//
// Headers such as filename appear only the first time a commit is seen, so the
// filename is remembered per SHA.
func parsePorcelainBlame(out []byte, file string) map[int]BlameEntry {
	entries := make(map[int]BlameEntry)
	filenames := make(map[string]string)

	var current BlameEntry
	pending := false
	flush := func() {
		if pending && current.Line > 0 {
			if name, ok := filenames[current.SHA]; ok {
				current.OrigPath = name
			} else {
				current.OrigPath = file
			}
			entries[current.Line] = current
		}
		pending = false
	}

	for _, line := range strings.Split(string(out), "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "\t") {
			flush()
			continue
		}
		if name, ok := strings.CutPrefix(line, "filename "); ok {
			filenames[current.SHA] = name
			continue
		}

		fields := strings.Fields(line)
		if len(fields) >= 3 && len(fields[0]) == 40 && isHex(fields[0]) {
			orig, err1 := strconv.Atoi(fields[1])
			final, err2 := strconv.Atoi(fields[2])
			if err1 != nil || err2 != nil {
				continue
			}
			current = BlameEntry{SHA: fields[0], Line: final, OrigLine: orig}
			pending = true
		}
	}
	flush()

	return entries
}

func isHex(s string) bool {
	for _, c := range s {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
