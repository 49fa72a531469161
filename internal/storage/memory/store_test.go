package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "key", "value"))
	v, ok, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", v)

	require.NoError(t, store.Set(ctx, "key", "other"))
	v, _, _ = store.Get(ctx, "key")
	assert.Equal(t, "other", v)

	require.NoError(t, store.Remove(ctx, "key"))
	_, ok, _ = store.Get(ctx, "key")
	assert.False(t, ok)
}
