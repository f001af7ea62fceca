package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindPrompt(t *testing.T) {
	f := newFixture(t)
	second := commitFile(t, f.dir, "b.go", "package b\n")
	e := New(f.repo, f.ledger, nil)
	ctx := context.Background()
	id := agent.AuthorID()

	m, err := e.FindPrompt(ctx, id, []string{second, f.first})
	require.NoError(t, err)
	assert.Equal(t, f.first, m.Commit, "commits without a ledger entry are skipped")
	assert.Equal(t, id, m.AuthorID)
	assert.Equal(t, "opus", m.Record.Agent.Model)
	assert.Equal(t, map[string]string{"a.go": "1-2"}, m.Files)

	m, err = e.FindPrompt(ctx, id[:6], []string{f.first})
	require.NoError(t, err)
	assert.Equal(t, id, m.AuthorID)

	_, err = e.FindPrompt(ctx, id[:2], []string{f.first})
	assert.True(t, errors.Is(err, ErrPromptNotFound), "prefix too short")
	_, err = e.FindPrompt(ctx, "ffffffffffffffff", []string{f.first})
	assert.True(t, errors.Is(err, ErrPromptNotFound))
}
