package format

import (
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jensroland/git-aitrack/internal/ledger"
	"github.com/jensroland/git-aitrack/internal/query"
)

const authorWidth = 18

// AuthorLabel is the short display name of an attributed line: the agent
// tool (and model) for AI lines, the person's name for human lines.
func AuthorLabel(a query.LineAttribution) string {
	switch {
	case a.AI && a.Prompt != nil:
		if a.Prompt.Agent.Model != "" {
			return a.Prompt.Agent.Tool + "/" + a.Prompt.Agent.Model
		}
		return a.Prompt.Agent.Tool
	case a.AuthorID == ledger.Unattributed:
		return "unattributed"
	default:
		return humanName(a.AuthorID)
	}
}

// humanName returns the name part of "Name <email>".
func humanName(id string) string {
	if addr, err := mail.ParseAddress(id); err == nil && addr.Name != "" {
		return addr.Name
	}
	if i := strings.Index(id, " <"); i > 0 {
		return id[:i]
	}
	return id
}

// Blame writes one annotated row per line of content. attrs and content are
// matched by line number.
func Blame(w io.Writer, attrs []query.LineAttribution, content []string, now time.Time) error {
	width := len(fmt.Sprint(len(content)))
	for _, a := range attrs {
		text := ""
		if a.Line >= 1 && a.Line <= len(content) {
			text = content[a.Line-1]
		}
		sha := a.Commit
		if len(sha) > 8 {
			sha = sha[:8]
		}
		age := ""
		if !a.Timestamp.IsZero() {
			age = humanize.RelTime(a.Timestamp, now, "ago", "from now")
		}
		color := authorColor(a.AI, a.AuthorID == ledger.Unattributed)
		_, err := fmt.Fprintf(w, "%s%s%s %s%s%s %s%-14s%s %*d) %s\n",
			Yellow, sha, Reset,
			color, padOrTrunc(AuthorLabel(a), authorWidth), Reset,
			Dim, age, Reset,
			width, a.Line, text)
		if err != nil {
			return err
		}
	}
	return nil
}
