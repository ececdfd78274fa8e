// Package local_test tests the local filesystem blob store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crawjud/pje-pipeline/internal/storage/local"
)

func TestNewCreatesBaseDir(t *testing.T) {
	t.Parallel()

	baseDir := filepath.Join(t.TempDir(), "blobs")
	_, err := local.New(local.Config{BaseDir: baseDir})
	require.NoError(t, err)

	info, err := os.Stat(baseDir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := local.New(local.Config{})
	require.Error(t, err)
}

func TestAppendObjectAccumulates(t *testing.T) {
	t.Parallel()

	baseDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: baseDir})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.AppendObject(ctx, "pid-1/proc.pdf", []byte("hello "), 11))
	require.NoError(t, store.AppendObject(ctx, "pid-1/proc.pdf", []byte("world"), 11))

	data, err := os.ReadFile(filepath.Join(baseDir, "pid-1", "proc.pdf"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), data)
}

func TestPutObjectWritesFile(t *testing.T) {
	t.Parallel()

	baseDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: baseDir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "a/b.pdf", "application/pdf",
		strings.NewReader("content"), 7)
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(baseDir, "a", "b.pdf"), uri)

	data, err := os.ReadFile(filepath.Join(baseDir, "a", "b.pdf"))
	require.NoError(t, err)
	require.Equal(t, []byte("content"), data)
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.pdf", "application/pdf",
		strings.NewReader("x"), 1)
	require.Error(t, err)
}
