package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crawjud/pje-pipeline/internal/pje"
	"github.com/crawjud/pje-pipeline/internal/progress"
	storemem "github.com/crawjud/pje-pipeline/internal/store/memory"
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

func (r *recordingEmitter) all() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

type failingStore struct {
	err error
}

func (s *failingStore) SaveProcess(context.Context, pje.CachedEntry) error {
	return s.err
}

func (s *failingStore) GetProcess(context.Context, string) (pje.CachedEntry, error) {
	return pje.CachedEntry{}, s.err
}

// slowStore tracks how many SaveProcess calls overlap.
type slowStore struct {
	inFlight atomic.Int32
	overlaps atomic.Int32
	saved    atomic.Int32
}

func (s *slowStore) SaveProcess(context.Context, pje.CachedEntry) error {
	if s.inFlight.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	defer s.inFlight.Add(-1)
	s.saved.Add(1)
	return nil
}

func (s *slowStore) GetProcess(context.Context, string) (pje.CachedEntry, error) {
	return pje.CachedEntry{}, pje.ErrEntryNotCached
}

func TestSaveStoresEntry(t *testing.T) {
	t.Parallel()

	store := storemem.NewProcessStore()
	cache := New(store, &recordingEmitter{}, nil)

	cache.Save(context.Background(), "pid-1", 1, "0000123-45.2023.5.02.0001",
		map[string]any{"classe": "RTOrd"})

	entry, ok := cache.Lookup(context.Background(), "0000123-45.2023.5.02.0001")
	require.True(t, ok)
	require.Equal(t, "pid-1", entry.ExecutionID)
	require.Equal(t, "RTOrd", entry.ProcessData["classe"])
}

func TestSaveOverwritesPreviousEntry(t *testing.T) {
	t.Parallel()

	store := storemem.NewProcessStore()
	cache := New(store, &recordingEmitter{}, nil)
	number := "0000123-45.2023.5.02.0001"

	cache.Save(context.Background(), "pid-1", 1, number, map[string]any{"v": "old"})
	cache.Save(context.Background(), "pid-2", 1, number, map[string]any{"v": "new"})

	entry, ok := cache.Lookup(context.Background(), number)
	require.True(t, ok)
	require.Equal(t, "pid-2", entry.ExecutionID)
	require.Equal(t, "new", entry.ProcessData["v"])
	require.Equal(t, 1, store.Len())
}

func TestSaveSwallowsStoreFailures(t *testing.T) {
	t.Parallel()

	reporter := &recordingEmitter{}
	cache := New(&failingStore{err: errors.New("disk full")}, reporter, nil)

	// Must not panic or propagate; the item continues to download.
	cache.Save(context.Background(), "pid-1", 2, "0000123-45.2023.5.02.0001", nil)

	events := reporter.all()
	require.Len(t, events, 1)
	require.Equal(t, progress.TypeWarning, events[0].Type)
	require.Equal(t, 2, events[0].Row)
}

func TestSaveSerializesConcurrentWriters(t *testing.T) {
	t.Parallel()

	store := &slowStore{}
	cache := New(store, &recordingEmitter{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cache.Save(context.Background(), "pid-1", i, "0000123-45.2023.5.02.0001", nil)
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 32, store.saved.Load())
	require.EqualValues(t, 0, store.overlaps.Load())
}
