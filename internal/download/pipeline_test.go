package download

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crawjud/pje-pipeline/internal/progress"
	storagemem "github.com/crawjud/pje-pipeline/internal/storage/memory"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, evt := range r.events {
		out = append(out, evt.Message)
	}
	return out
}

// flakyBlobStore fails appends after failAfter successful ones, counting
// fallback puts.
type flakyBlobStore struct {
	inner       *storagemem.BlobStore
	failAfter   int
	appendCalls int
	putCalls    int
}

func newFlakyBlobStore(failAfter int) *flakyBlobStore {
	return &flakyBlobStore{inner: storagemem.NewBlobStore(), failAfter: failAfter}
}

func (s *flakyBlobStore) AppendObject(ctx context.Context, path string, chunk []byte, totalSize int64) error {
	s.appendCalls++
	if s.appendCalls > s.failAfter {
		return errors.New("append rejected")
	}
	return s.inner.AppendObject(ctx, path, chunk, totalSize)
}

func (s *flakyBlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader, size int64) (string, error) {
	s.putCalls++
	return s.inner.PutObject(ctx, path, contentType, r, size)
}

func TestDownloadStreamsChunks(t *testing.T) {
	t.Parallel()

	blobs := storagemem.NewBlobStore()
	reporter := &recordingEmitter{}
	pipeline := New(blobs, reporter, nil, Config{ChunkSize: 4, TempDir: t.TempDir()})

	content := []byte("twelve bytes")
	pipeline.DownloadAndStore(context.Background(), "pid-1", 1, "pid-1/proc.pdf",
		bytes.NewReader(content), int64(len(content)))

	stored, ok := blobs.Object("pid-1/proc.pdf")
	require.True(t, ok)
	require.Equal(t, content, stored)
	require.Contains(t, reporter.messages(), "arquivo baixado com sucesso!")
}

func TestDownloadFallsBackToWholeFileUpload(t *testing.T) {
	t.Parallel()

	// Every append fails, so nothing was uploaded incrementally and the
	// spooled copy goes up in a single put.
	blobs := newFlakyBlobStore(0)
	reporter := &recordingEmitter{}
	pipeline := New(blobs, reporter, nil, Config{ChunkSize: 4, TempDir: t.TempDir()})

	content := []byte("whole file fallback content")
	pipeline.DownloadAndStore(context.Background(), "pid-1", 1, "pid-1/proc.pdf",
		bytes.NewReader(content), int64(len(content)))

	require.Equal(t, 1, blobs.putCalls)
	stored, ok := blobs.inner.Object("pid-1/proc.pdf")
	require.True(t, ok)
	require.Equal(t, content, stored)
	require.Contains(t, reporter.messages(), "arquivo baixado com sucesso!")
}

func TestDownloadPartialAppendDoesNotFallBack(t *testing.T) {
	t.Parallel()

	// First append lands, second fails: the object is truncated but a
	// whole-file re-upload would duplicate the prefix, so none happens.
	blobs := newFlakyBlobStore(1)
	pipeline := New(blobs, &recordingEmitter{}, nil, Config{ChunkSize: 4, TempDir: t.TempDir()})

	pipeline.DownloadAndStore(context.Background(), "pid-1", 1, "pid-1/proc.pdf",
		strings.NewReader("abcdefgh"), 8)

	require.Equal(t, 0, blobs.putCalls)
	stored, ok := blobs.inner.Object("pid-1/proc.pdf")
	require.True(t, ok)
	require.Equal(t, []byte("abcd"), stored)
}

func TestDownloadStopsAppendingAfterFirstFailure(t *testing.T) {
	t.Parallel()

	blobs := newFlakyBlobStore(1)
	pipeline := New(blobs, &recordingEmitter{}, nil, Config{ChunkSize: 2, TempDir: t.TempDir()})

	pipeline.DownloadAndStore(context.Background(), "pid-1", 1, "pid-1/proc.pdf",
		strings.NewReader("0123456789"), 10)

	// 1 success + 1 failure; the remaining chunks never hit the store.
	require.Equal(t, 2, blobs.appendCalls)
}

func TestDownloadEmitsCompletionEvenOnReadFailure(t *testing.T) {
	t.Parallel()

	reporter := &recordingEmitter{}
	pipeline := New(storagemem.NewBlobStore(), reporter, nil, Config{ChunkSize: 4, TempDir: t.TempDir()})

	failing := io.MultiReader(strings.NewReader("abcd"), &failingReader{})
	pipeline.DownloadAndStore(context.Background(), "pid-1", 1, "pid-1/proc.pdf", failing, 8)

	msgs := reporter.messages()
	require.Contains(t, msgs, "falha ao ler o conteúdo do arquivo")
	// The completion message is unconditional; operators rely on it to
	// know the row finished its download stage.
	require.Equal(t, "arquivo baixado com sucesso!", msgs[len(msgs)-1])
}

type failingReader struct{}

func (*failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}
