package artifact

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreSaveOpenRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key := "users/1/videos/source.mp4"

	require.NoError(t, store.Save(ctx, key, bytes.NewReader([]byte("hello"))))

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	r, err := store.Open(ctx, key)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalStoreOpenMissingKeyIsNotFound(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "does/not/exist.mp4")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestLocalStorePresignGetRequiresExistingKey(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.PresignGet(ctx, "missing.mp4", time.Minute)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	key := "users/1/clips/9/00_abc.mp4"
	require.NoError(t, store.Save(ctx, key, bytes.NewReader([]byte("x"))))

	url, err := store.PresignGet(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "expires_in")
}
