package payloadstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalDiskPutGetRoundTrip(t *testing.T) {
	store, err := NewLocalDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a/b/c.json", strings.NewReader(`{"x":1}`), PutOptions{ContentType: "application/json"}))

	r, attrs, err := store.Get(ctx, "a/b/c.json")
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, `{"x":1}`, string(b))
	require.EqualValues(t, len(b), attrs.Size)
}

func TestLocalDiskGetMissingReturnsNotFound(t *testing.T) {
	store, err := NewLocalDisk(t.TempDir())
	require.NoError(t, err)
	_, _, err = store.Get(context.Background(), "missing.json")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalDiskDeleteIsIdempotent(t *testing.T) {
	store, err := NewLocalDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k.json", strings.NewReader("v"), PutOptions{}))
	require.NoError(t, store.Delete(ctx, "k.json"))
	require.NoError(t, store.Delete(ctx, "k.json"))

	exists, err := store.Exists(ctx, "k.json")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestLocalDiskListFiltersByPrefix(t *testing.T) {
	store, err := NewLocalDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "payloads/c1/c1_transcription.json", strings.NewReader("a"), PutOptions{}))
	require.NoError(t, store.Put(ctx, "payloads/c2/c2_transcription.json", strings.NewReader("b"), PutOptions{}))
	require.NoError(t, store.Put(ctx, "other/file.txt", strings.NewReader("c"), PutOptions{}))

	keys, err := store.List(ctx, "payloads/")
	require.NoError(t, err)
	require.Len(t, keys, 2)
}
