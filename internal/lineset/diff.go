package lineset

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// OpKind classifies a run of lines in a line diff.
type OpKind int

const (
	OpEqual OpKind = iota
	OpInsert
	OpDelete
)

// Op is a run of Count consecutive lines with the same diff classification.
// Equal runs advance both sides, inserts only the new side, deletes only the old.
type Op struct {
	Kind  OpKind
	Count int
}

// SplitLines splits content into lines. A trailing newline does not start an
// extra line, so "1\n2\n" has two lines, matching git's line count.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// Diff computes a line-level diff of oldLines -> newLines using go-diff's
// line mode, where each distinct line is mapped to a single rune.
func Diff(oldLines, newLines []string) []Op {
	if len(oldLines) == 0 && len(newLines) == 0 {
		return nil
	}
	if len(oldLines) == 0 {
		return []Op{{Kind: OpInsert, Count: len(newLines)}}
	}
	if len(newLines) == 0 {
		return []Op{{Kind: OpDelete, Count: len(oldLines)}}
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	r1, r2, _ := dmp.DiffLinesToRunes(joinTerminated(oldLines), joinTerminated(newLines))
	diffs := dmp.DiffMainRunes(r1, r2, false)

	ops := make([]Op, 0, len(diffs))
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		if n == 0 {
			continue
		}
		var kind OpKind
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			kind = OpInsert
		case diffmatchpatch.DiffDelete:
			kind = OpDelete
		default:
			kind = OpEqual
		}
		if len(ops) > 0 && ops[len(ops)-1].Kind == kind {
			ops[len(ops)-1].Count += n
			continue
		}
		ops = append(ops, Op{Kind: kind, Count: n})
	}
	return ops
}

// Stats counts inserted and deleted lines between two versions.
func Stats(oldLines, newLines []string) (added, deleted int) {
	for _, op := range Diff(oldLines, newLines) {
		switch op.Kind {
		case OpInsert:
			added += op.Count
		case OpDelete:
			deleted += op.Count
		}
	}
	return added, deleted
}

// joinTerminated joins lines with every line newline-terminated, so the last
// line compares equal whether or not the file ends with a newline.
func joinTerminated(lines []string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}
