package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pbaille/folio/internal/catalog"
	"github.com/pbaille/folio/internal/domain"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "line one line two", truncate("line one\nline two", 40))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestShort(t *testing.T) {
	assert.Equal(t, "12345678", short("123456789abc"))
	assert.Equal(t, "doc-1", short("doc-1"))
}

func TestResolveByPrefix(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c, err := catalog.Open(catalog.Options{DBPath: filepath.Join(t.TempDir(), "folio.db"), Logger: logger})
	require.NoError(t, err)
	ctx := context.Background()
	defer c.Close(ctx)

	_, err = c.CreateOrUpdate(ctx, domain.Source{ID: "9f3c2a77-notes", Title: "notes"})
	require.NoError(t, err)
	terms, err := c.Seed(ctx, domain.KindDomain, []string{"Programming"})
	require.NoError(t, err)

	id, err := resolveDocumentID(ctx, c, "9f3c")
	require.NoError(t, err)
	assert.Equal(t, "9f3c2a77-notes", id)
	_, err = resolveDocumentID(ctx, c, "zzz")
	assert.Error(t, err)

	id, err = resolveTermID(ctx, c, terms[0].ID[:6])
	require.NoError(t, err)
	assert.Equal(t, terms[0].ID, id)
}
