// Package cache serializes best-effort persistence of resolved processes.
package cache

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/crawjud/pje-pipeline/internal/pje"
	"github.com/crawjud/pje-pipeline/internal/progress"
)

// ResultCache writes resolved process documents through a ProcessStore.
// Writes are serialized under a single mutex and never fail the caller:
// a failed save is logged and reported as a warning, and the pipeline
// moves on.
type ResultCache struct {
	mu       sync.Mutex
	store    pje.ProcessStore
	reporter progress.Emitter
	logger   *zap.Logger
}

// New creates a ResultCache over the given store.
func New(store pje.ProcessStore, reporter progress.Emitter, logger *zap.Logger) *ResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{store: store, reporter: reporter, logger: logger}
}

// Save persists the process document under its process number. Failures
// are swallowed after being reported.
func (c *ResultCache) Save(ctx context.Context, pid string, row int, processNumber string, data map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := pje.CachedEntry{
		ProcessNumber: processNumber,
		ExecutionID:   pid,
		ProcessData:   data,
	}
	if err := c.store.SaveProcess(ctx, entry); err != nil {
		c.logger.Warn("failed to cache process data",
			zap.String("process_number", processNumber),
			zap.String("pid", pid),
			zap.Error(err),
		)
		if c.reporter != nil {
			c.reporter.Emit(progress.NewEvent(pid, row, progress.TypeWarning,
				"não foi possível armazenar os dados do processo em cache"))
		}
	}
}

// Lookup returns the cached entry for a process number, if present.
func (c *ResultCache) Lookup(ctx context.Context, processNumber string) (pje.CachedEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.store.GetProcess(ctx, processNumber)
	if err != nil {
		return pje.CachedEntry{}, false
	}
	return entry, true
}
