package format

import (
	"fmt"
	"sort"

	"github.com/jensroland/git-aitrack/internal/ledger"
)

// FileLines lists, per file of an attestation log, which lines each author
// wrote in compact notation ("3-5,9"). Authors with the most lines come first.
func FileLines(log *ledger.AttestationLog) []string {
	var out []string
	for _, fa := range log.Attestations {
		out = append(out, fa.File)
		byAuthor := fa.AuthorLines()
		ids := make([]string, 0, len(byAuthor))
		for id := range byAuthor {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			a, b := byAuthor[ids[i]].Len(), byAuthor[ids[j]].Len()
			if a != b {
				return a > b
			}
			return ids[i] < ids[j]
		})
		for _, id := range ids {
			out = append(out, fmt.Sprintf("  %-28s %s", entryLabel(log, id), byAuthor[id]))
		}
	}
	return out
}

func entryLabel(log *ledger.AttestationLog, id string) string {
	if rec, ok := log.Metadata.PromptReferences[id]; ok {
		label := rec.Agent.Tool
		if rec.Agent.Model != "" {
			label += "/" + rec.Agent.Model
		}
		return label + " (" + id[:min(len(id), 8)] + ")"
	}
	if id == ledger.Unattributed {
		return "unattributed"
	}
	return humanName(id)
}
