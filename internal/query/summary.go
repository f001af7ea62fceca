package query

import (
	"context"
	"path"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/jensroland/git-aitrack/internal/ledger"
)

// Summary aggregates attributed lines. Merge is associative and commutative,
// so summaries can be folded in any order.
type Summary struct {
	Commits           int               `json:"commits"`
	Untracked         int               `json:"untracked_commits"`
	Files             int               `json:"files"`
	AILines           int               `json:"ai_lines"`
	HumanLines        int               `json:"human_lines"`
	UnattributedLines int               `json:"unattributed_lines"`
	LinesByAuthor     map[string]int    `json:"lines_by_author"`
	Agents            map[string]string `json:"agents"` // AI author id -> "tool/model"
}

// Total returns all attributed and unattributed lines.
func (s Summary) Total() int {
	return s.AILines + s.HumanLines + s.UnattributedLines
}

// AIShare returns the fraction of lines written by AI, 0 when empty.
func (s Summary) AIShare() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.AILines) / float64(s.Total())
}

// Merge returns the combination of s and o. Neither input is modified.
func (s Summary) Merge(o Summary) Summary {
	out := Summary{
		Commits:           s.Commits + o.Commits,
		Untracked:         s.Untracked + o.Untracked,
		Files:             s.Files + o.Files,
		AILines:           s.AILines + o.AILines,
		HumanLines:        s.HumanLines + o.HumanLines,
		UnattributedLines: s.UnattributedLines + o.UnattributedLines,
	}
	if len(s.LinesByAuthor)+len(o.LinesByAuthor) > 0 {
		out.LinesByAuthor = make(map[string]int)
		for k, v := range s.LinesByAuthor {
			out.LinesByAuthor[k] += v
		}
		for k, v := range o.LinesByAuthor {
			out.LinesByAuthor[k] += v
		}
	}
	if len(s.Agents)+len(o.Agents) > 0 {
		out.Agents = make(map[string]string)
		for _, m := range []map[string]string{s.Agents, o.Agents} {
			for k, v := range m {
				// keep the smaller label so the result is order independent
				if cur, ok := out.Agents[k]; !ok || v < cur {
					out.Agents[k] = v
				}
			}
		}
	}
	return out
}

// Summarize counts the lines of one attestation log by author kind. Files
// matching an ignore pattern are left out.
func Summarize(log *ledger.AttestationLog, ignore []string) Summary {
	s := Summary{Commits: 1}
	for _, fa := range log.Attestations {
		if ignored(fa.File, ignore) {
			continue
		}
		s.Files++
		for _, span := range fa.Attributions {
			n := span.Len()
			switch {
			case span.AuthorID == ledger.Unattributed:
				s.UnattributedLines += n
			case log.IsAI(span.AuthorID):
				s.AILines += n
				if s.Agents == nil {
					s.Agents = make(map[string]string)
				}
				s.Agents[span.AuthorID] = agentLabel(log.Metadata.PromptReferences[span.AuthorID])
			default:
				s.HumanLines += n
			}
			if s.LinesByAuthor == nil {
				s.LinesByAuthor = make(map[string]int)
			}
			s.LinesByAuthor[span.AuthorID] += n
		}
	}
	return s
}

func agentLabel(rec ledger.PromptRecord) string {
	if rec.Agent.Model == "" {
		return rec.Agent.Tool
	}
	return rec.Agent.Tool + "/" + rec.Agent.Model
}

// ignored matches file against glob patterns. A pattern matches the whole
// path or its base name; a trailing slash matches a directory prefix.
func ignored(file string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(file, p) {
				return true
			}
			continue
		}
		if ok, _ := path.Match(p, file); ok {
			return true
		}
		if ok, _ := path.Match(p, path.Base(file)); ok {
			return true
		}
	}
	return false
}

func newStatsPool(ctx context.Context, workers int) *pool.ResultContextPool[Summary] {
	p := pool.NewWithResults[Summary]().WithContext(ctx).WithCancelOnError()
	if workers > 0 {
		p = p.WithMaxGoroutines(workers)
	}
	return p
}
