package filestore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/dsforge/internal/config"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	require.Equal(t, "local", store.Type())

	ctx := context.Background()
	key := DocumentKey("p1", "f1")
	require.NoError(t, store.Save(ctx, key, strings.NewReader("# Title\nbody"), 12))

	text, err := ReadText(ctx, store, key)
	require.NoError(t, err)
	require.Equal(t, "# Title\nbody", text)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))
	_, err = ReadText(ctx, store, key)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestLocalStoreRejectsPaths(t *testing.T) {
	store := NewLocal(t.TempDir())
	err := store.Save(context.Background(), "../escape.txt", strings.NewReader("x"), 1)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "local"})
	require.Error(t, err)
}
