package query

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/jensroland/git-aitrack/internal/ledger"
)

// ErrPromptNotFound is returned when no searched commit references a prompt.
var ErrPromptNotFound = errors.New("prompt not found")

// minPromptPrefix is the shortest id prefix FindPrompt accepts.
const minPromptPrefix = 4

// PromptMatch is an AI session found in a commit's ledger entry.
type PromptMatch struct {
	Commit   string              `json:"commit"`
	AuthorID string              `json:"author_id"`
	Record   ledger.PromptRecord `json:"record"`
	// Files maps each file to the lines the session wrote, e.g. "3-5,9".
	Files map[string]string `json:"files"`
}

// FindPrompt returns the first of commits whose ledger entry references the
// AI session id, or a unique-enough prefix of it.
func (e *Engine) FindPrompt(ctx context.Context, id string, commits []string) (*PromptMatch, error) {
	for _, c := range commits {
		log, err := e.Entry(ctx, c)
		if errors.Is(err, ledger.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		key, ok := matchPrompt(log, id)
		if !ok {
			continue
		}
		m := &PromptMatch{
			Commit:   c,
			AuthorID: key,
			Record:   log.Metadata.PromptReferences[key],
			Files:    make(map[string]string),
		}
		for _, fa := range log.Attestations {
			if ls, ok := fa.AuthorLines()[key]; ok && !ls.IsEmpty() {
				m.Files[fa.File] = ls.String()
			}
		}
		return m, nil
	}
	return nil, ErrPromptNotFound
}

func matchPrompt(log *ledger.AttestationLog, id string) (string, bool) {
	if _, ok := log.Metadata.PromptReferences[id]; ok {
		return id, true
	}
	if len(id) < minPromptPrefix {
		return "", false
	}
	keys := make([]string, 0, len(log.Metadata.PromptReferences))
	for k := range log.Metadata.PromptReferences {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasPrefix(k, id) {
			return k, true
		}
	}
	return "", false
}
