package reconcile

import (
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/jensroland/git-aitrack/internal/ledger"
	"github.com/jensroland/git-aitrack/internal/lineset"
)

// Stamp is the authorship carried by one line through the fold.
type Stamp struct {
	AuthorID  string
	Timestamp time.Time
	// Prompt is set when the stamp came from an earlier commit's ledger and
	// names an AI session.
	Prompt *ledger.PromptRecord
}

var unattributed = Stamp{AuthorID: ledger.Unattributed}

// identityPool remembers the stamps of lines removed earlier in a file's
// history, keyed by trimmed content, so a line that is deleted and later
// reinserted (moved, or restored) keeps its original author.
type identityPool map[uint64][]Stamp

func identityKey(line string) (uint64, bool) {
	t := strings.TrimSpace(line)
	if t == "" {
		return 0, false
	}
	return xxh3.HashString(t), true
}

func (p identityPool) put(line string, s Stamp) {
	if k, ok := identityKey(line); ok {
		p[k] = append(p[k], s)
	}
}

func (p identityPool) take(line string) (Stamp, bool) {
	k, ok := identityKey(line)
	if !ok {
		return Stamp{}, false
	}
	stamps := p[k]
	if len(stamps) == 0 {
		return Stamp{}, false
	}
	s := stamps[0]
	if len(stamps) == 1 {
		delete(p, k)
	} else {
		p[k] = stamps[1:]
	}
	return s, true
}

// transform carries stamps across one edit of a file. Lines the diff matches
// keep their stamp; inserted lines take a pooled stamp for the same content if
// one exists, else actor. Deleted lines feed the pool.
func transform(oldLines, newLines []string, oldStamps []Stamp, actor Stamp, pool identityPool) []Stamp {
	ops := lineset.Diff(oldLines, newLines)

	// Deletions first, so a line moved downwards finds its old stamp.
	i := 0
	for _, op := range ops {
		switch op.Kind {
		case lineset.OpEqual:
			i += op.Count
		case lineset.OpDelete:
			for k := 0; k < op.Count; k++ {
				pool.put(oldLines[i+k], stampAt(oldStamps, i+k))
			}
			i += op.Count
		}
	}

	out := make([]Stamp, 0, len(newLines))
	i, j := 0, 0
	for _, op := range ops {
		switch op.Kind {
		case lineset.OpEqual:
			for k := 0; k < op.Count; k++ {
				out = append(out, stampAt(oldStamps, i+k))
			}
			i += op.Count
			j += op.Count
		case lineset.OpDelete:
			i += op.Count
		case lineset.OpInsert:
			for k := 0; k < op.Count; k++ {
				if s, ok := pool.take(newLines[j+k]); ok {
					out = append(out, s)
				} else {
					out = append(out, actor)
				}
			}
			j += op.Count
		}
	}
	return out
}

func stampAt(stamps []Stamp, i int) Stamp {
	if i < len(stamps) {
		return stamps[i]
	}
	return unattributed
}

// coalesce merges runs of lines with the same author and timestamp into
// spans covering [1, len(stamps)]. Every line keeps its own timestamp.
func coalesce(stamps []Stamp) []ledger.Span {
	var spans []ledger.Span
	for i, s := range stamps {
		line := i + 1
		if n := len(spans); n > 0 && spans[n-1].AuthorID == s.AuthorID && spans[n-1].Timestamp.Equal(s.Timestamp) {
			spans[n-1].EndLine = line
			continue
		}
		spans = append(spans, ledger.Span{
			StartLine: line,
			EndLine:   line,
			AuthorID:  s.AuthorID,
			Timestamp: s.Timestamp,
		})
	}
	return spans
}

func fill(n int, s Stamp) []Stamp {
	out := make([]Stamp, n)
	for i := range out {
		out[i] = s
	}
	return out
}
