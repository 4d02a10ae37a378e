package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreCreateGetUpsert(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	id, err := s.Create(ctx, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", rec.Content)
	assert.Equal(t, 0, rec.Version)

	err = s.UpsertByID(ctx, Record{ID: id, Content: "hello world", Version: 1})
	require.NoError(t, err)

	rec, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello world", rec.Content)
	assert.Equal(t, 1, rec.Version)
}

func TestSQLiteStoreGetNotFound(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.Get(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}
