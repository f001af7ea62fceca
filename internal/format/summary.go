package format

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/jensroland/git-aitrack/internal/ledger"
	"github.com/jensroland/git-aitrack/internal/query"
)

// Summary renders a query summary as a boxed report. Authors are listed by
// line count, AI sessions labelled with their agent.
func Summary(title string, s query.Summary) string {
	commits := humanize.Comma(int64(s.Commits))
	if s.Untracked > 0 {
		commits += fmt.Sprintf(" (%s without attribution)", humanize.Comma(int64(s.Untracked)))
	}
	ai := humanize.Comma(int64(s.AILines))
	if s.Total() > 0 {
		ai += fmt.Sprintf(" (%.1f%%)", 100*s.AIShare())
	}
	lines := []string{
		"Commits:      " + commits,
		"Files:        " + humanize.Comma(int64(s.Files)),
		"AI lines:     " + ai,
		"Human lines:  " + share(s.HumanLines, s.Total()),
		"Unattributed: " + share(s.UnattributedLines, s.Total()),
	}

	type row struct {
		label string
		n     int
	}
	var rows []row
	for id, n := range s.LinesByAuthor {
		label := humanName(id)
		if agent, ok := s.Agents[id]; ok {
			label = agent + " (" + id[:min(len(id), 8)] + ")"
		} else if id == ledger.Unattributed {
			continue
		}
		rows = append(rows, row{label, n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].n != rows[j].n {
			return rows[i].n > rows[j].n
		}
		return rows[i].label < rows[j].label
	})
	if len(rows) > 0 {
		lines = append(lines, "", "By author:")
		for _, r := range rows {
			lines = append(lines, fmt.Sprintf("  %-32s %s", r.label, share(r.n, s.Total())))
		}
	}
	return Box(title, lines)
}

func share(n, total int) string {
	if total == 0 {
		return humanize.Comma(int64(n))
	}
	return fmt.Sprintf("%s (%.1f%%)", humanize.Comma(int64(n)), 100*float64(n)/float64(total))
}
