package format

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Box renders lines inside a border no wider than the terminal. Long lines
// are truncated with an ellipsis.
func Box(title string, lines []string) string {
	innerW := 0
	for _, l := range lines {
		innerW = max(innerW, runeLen(l))
	}
	innerW = max(innerW, runeLen(title)+3)
	innerW = min(innerW, max(TermWidth()-4, 30))

	var out []string
	if title != "" {
		lbl := fmt.Sprintf("─ %s ", title)
		out = append(out, "┌"+lbl+strings.Repeat("─", max(innerW+2-runeLen(lbl), 0))+"┐")
	} else {
		out = append(out, "┌"+strings.Repeat("─", innerW+2)+"┐")
	}
	for _, l := range lines {
		out = append(out, "│ "+padOrTrunc(l, innerW)+" │")
	}
	out = append(out, "└"+strings.Repeat("─", innerW+2)+"┘")
	return strings.Join(out, "\n")
}

// padOrTrunc pads s with spaces to width w, or cuts it to w runes ending in
// an ellipsis.
func padOrTrunc(s string, w int) string {
	n := runeLen(s)
	if n <= w {
		return s + strings.Repeat(" ", w-n)
	}
	if w <= 1 {
		return string([]rune(s)[:w])
	}
	return string([]rune(s)[:w-1]) + "…"
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
