// Package scheduler fans work items out across region-partitioned workers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crawjud/pje-pipeline/internal/cache"
	"github.com/crawjud/pje-pipeline/internal/download"
	"github.com/crawjud/pje-pipeline/internal/logging"
	"github.com/crawjud/pje-pipeline/internal/pje"
	"github.com/crawjud/pje-pipeline/internal/progress"
)

// Config bounds the scheduler's concurrency and download behavior.
type Config struct {
	// MaxRegions caps how many regions run concurrently (default 4).
	MaxRegions int
	// MaxPerRegion caps in-flight items within one region (default 1).
	MaxPerRegion int
	// HTTPTimeout applies to the per-region API clients.
	HTTPTimeout time.Duration
	// CompletionTopic, when set, receives one message per finished process.
	CompletionTopic string
	// AttachmentPath is the portal path serving the case file PDF,
	// with the process id spliced in.
	AttachmentPath string
}

const (
	defaultMaxRegions     = 4
	defaultMaxPerRegion   = 1
	defaultHTTPTimeout    = 60 * time.Second
	defaultAttachmentPath = "/processos/%s/integra"
)

// Summary aggregates per-execution outcome counts.
type Summary struct {
	mu        sync.Mutex
	Total     int
	Succeeded int
	Failed    int
	NotFound  int
}

// Snapshot returns a copy safe to serialize.
func (s *Summary) Snapshot() SummaryView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SummaryView{
		Total:     s.Total,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		NotFound:  s.NotFound,
	}
}

// SummaryView is an immutable copy of a Summary.
type SummaryView struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	NotFound  int `json:"not_found"`
}

func (s *Summary) addSuccess() {
	s.mu.Lock()
	s.Succeeded++
	s.mu.Unlock()
}

func (s *Summary) addFailed(n int) {
	s.mu.Lock()
	s.Failed += n
	s.mu.Unlock()
}

func (s *Summary) addNotFound() {
	s.mu.Lock()
	s.NotFound++
	s.mu.Unlock()
}

// completionMessage is published per successfully processed item.
type completionMessage struct {
	PID           string `json:"pid"`
	ProcessNumber string `json:"process_number"`
	ProcessID     string `json:"process_id"`
	Region        string `json:"region"`
	FinishedAt    string `json:"finished_at"`
}

// Scheduler coordinates one execution: it partitions input by region,
// authenticates each region once, and runs the search/cache/download
// sequence per item. A failure in one item or one region never takes
// down the others.
type Scheduler struct {
	auth      pje.Authenticator
	search    *pje.SearchClient
	results   *cache.ResultCache
	downloads *download.Pipeline
	reporter  progress.Emitter
	publisher pje.Publisher
	logger    *zap.Logger
	cfg       Config

	stopped atomic.Bool

	mu        sync.RWMutex
	summaries map[string]*Summary
}

// New builds a Scheduler. The publisher may be nil when no completion
// topic is configured.
func New(
	auth pje.Authenticator,
	search *pje.SearchClient,
	results *cache.ResultCache,
	downloads *download.Pipeline,
	reporter progress.Emitter,
	publisher pje.Publisher,
	logger *zap.Logger,
	cfg Config,
) *Scheduler {
	if cfg.MaxRegions <= 0 {
		cfg.MaxRegions = defaultMaxRegions
	}
	if cfg.MaxPerRegion <= 0 {
		cfg.MaxPerRegion = defaultMaxPerRegion
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.AttachmentPath == "" {
		cfg.AttachmentPath = defaultAttachmentPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		auth:      auth,
		search:    search,
		results:   results,
		downloads: downloads,
		reporter:  reporter,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		summaries: make(map[string]*Summary),
	}
}

// Stop requests a graceful halt: regions finish their in-flight item and
// skip the rest. Already-running item work is not interrupted.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
}

// Status returns the outcome counters for an execution, if known.
func (s *Scheduler) Status(pid string) (SummaryView, bool) {
	s.mu.RLock()
	summary, ok := s.summaries[pid]
	s.mu.RUnlock()
	if !ok {
		return SummaryView{}, false
	}
	return summary.Snapshot(), true
}

// Run processes all items of one execution and blocks until every region
// finishes. The returned summary counts per-item outcomes; Run itself only
// errors on context cancellation.
func (s *Scheduler) Run(ctx context.Context, pid string, items []pje.WorkItem) (SummaryView, error) {
	parts := pje.Partition(items, s.logger)

	summary := &Summary{Total: parts.Total()}
	s.mu.Lock()
	s.summaries[pid] = summary
	s.mu.Unlock()

	s.logger.Info("starting execution",
		zap.String("pid", pid),
		zap.Int("items", summary.Total),
		zap.Int("regions", len(parts.Groups)),
	)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.MaxRegions)
	for region, regionItems := range parts.Groups {
		group.Go(func() error {
			s.runRegion(gctx, pid, region, regionItems, parts.Positions, summary)
			return nil
		})
	}
	err := group.Wait()

	view := summary.Snapshot()
	s.logger.Info("execution finished",
		zap.String("pid", pid),
		zap.Int("succeeded", view.Succeeded),
		zap.Int("failed", view.Failed),
		zap.Int("not_found", view.NotFound),
	)
	if ctx.Err() != nil {
		return view, ctx.Err()
	}
	return view, err
}

// runRegion authenticates one region and walks its items under the
// per-region concurrency cap. An authentication failure fails every item
// of the region but is contained there.
func (s *Scheduler) runRegion(ctx context.Context, pid, region string, items []pje.WorkItem, positions map[string]int, summary *Summary) {
	if s.stopped.Load() || ctx.Err() != nil {
		return
	}

	rlog := logging.ForRegion(s.logger, region)
	sess, err := s.auth.Authenticate(ctx, region)
	if err != nil {
		rlog.Error("region authentication failed",
			zap.String("pid", pid),
			zap.Error(err),
		)
		s.emit(pid, 0, progress.TypeError,
			fmt.Sprintf("falha na autenticação da região %s", region))
		summary.addFailed(len(items))
		return
	}

	apiClient := sess.NewClient(s.cfg.HTTPTimeout)
	dlClient := sess.NewClient(s.cfg.HTTPTimeout).SetDoNotParseResponse(true)

	sem := make(chan struct{}, s.cfg.MaxPerRegion)
	var wg sync.WaitGroup
	for _, item := range items {
		if s.stopped.Load() || ctx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		wg.Add(1)
		go func(item pje.WorkItem) {
			defer wg.Done()
			defer func() { <-sem }()
			row := positions[item.ProcessNumber] + 1
			s.processItem(ctx, pid, row, region, apiClient, dlClient, item, summary)
		}(item)
	}
	wg.Wait()
}

// processItem runs the full per-item sequence. A panic in any stage is
// converted to a failed-item event so one bad row cannot kill the region.
func (s *Scheduler) processItem(ctx context.Context, pid string, row int, region string, apiClient, dlClient *resty.Client, item pje.WorkItem, summary *Summary) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic while processing item",
				zap.String("pid", pid),
				zap.String("process_number", item.ProcessNumber),
				zap.Any("panic", rec),
			)
			s.emit(pid, row, progress.TypeError,
				fmt.Sprintf("erro inesperado ao processar o processo %s", item.ProcessNumber))
			summary.addFailed(1)
		}
	}()

	s.emit(pid, row, progress.TypeLog,
		fmt.Sprintf("pesquisando processo %s...", item.ProcessNumber))

	result, err := s.search.Search(ctx, apiClient, pid, row, item)
	if err != nil {
		s.reportSearchFailure(pid, row, item.ProcessNumber, err)
		summary.addFailed(1)
		if errors.Is(err, pje.ErrProcessNotFound) {
			summary.addNotFound()
		}
		return
	}

	s.results.Save(ctx, pid, row, item.ProcessNumber, result.ProcessData)
	s.maybeDownload(ctx, pid, row, dlClient, item.ProcessNumber, result)
	s.publishCompletion(ctx, pid, region, item.ProcessNumber, result.ProcessID)

	s.emit(pid, row, progress.TypeSuccess,
		fmt.Sprintf("processo %s concluído", item.ProcessNumber))
	summary.addSuccess()
}

func (s *Scheduler) reportSearchFailure(pid string, row int, processNumber string, err error) {
	switch {
	case errors.Is(err, pje.ErrProcessNotFound):
		s.emit(pid, row, progress.TypeError,
			fmt.Sprintf("processo %s não encontrado", processNumber))
	case errors.Is(err, pje.ErrCaptchaExhausted):
		s.emit(pid, row, progress.TypeError,
			fmt.Sprintf("não foi possível resolver o captcha do processo %s", processNumber))
	default:
		s.logger.Error("search failed",
			zap.String("pid", pid),
			zap.String("process_number", processNumber),
			zap.Error(err),
		)
		s.emit(pid, row, progress.TypeError,
			fmt.Sprintf("erro ao pesquisar o processo %s", processNumber))
	}
}

// maybeDownload fetches the case file PDF when the portal offers one.
// Anything other than a 200 PDF response means there is no attachment to
// store, which is not an error.
func (s *Scheduler) maybeDownload(ctx context.Context, pid string, row int, dlClient *resty.Client, processNumber string, result *pje.SearchResult) {
	if s.downloads == nil {
		return
	}
	resp, err := dlClient.R().
		SetContext(ctx).
		SetQueryParam("tokenCaptcha", result.CaptchaToken).
		Get(fmt.Sprintf(s.cfg.AttachmentPath, result.ProcessID))
	if err != nil {
		s.logger.Warn("attachment request failed",
			zap.String("process_number", processNumber), zap.Error(err))
		return
	}
	body := resp.RawBody()
	if body == nil {
		return
	}
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return
	}
	contentType := resp.Header().Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/pdf") {
		return
	}

	var size int64 = -1
	if resp.RawResponse != nil {
		size = resp.RawResponse.ContentLength
	}
	s.downloads.DownloadAndStore(ctx, pid, row,
		download.DestPath(pid, processNumber), body, size)
}

func (s *Scheduler) publishCompletion(ctx context.Context, pid, region, processNumber, processID string) {
	if s.publisher == nil || s.cfg.CompletionTopic == "" {
		return
	}
	msg := completionMessage{
		PID:           pid,
		ProcessNumber: processNumber,
		ProcessID:     processID,
		Region:        region,
		FinishedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.CompletionTopic, msg); err != nil {
		s.logger.Warn("failed to publish completion message",
			zap.String("pid", pid),
			zap.String("process_number", processNumber),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) emit(pid string, row int, typ progress.Type, msg string) {
	if s.reporter == nil {
		return
	}
	s.reporter.Emit(progress.NewEvent(pid, row, typ, msg))
}
