// Command pjecrawler runs the PJe search/download pipeline service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/crawjud/pje-pipeline/internal/api"
	"github.com/crawjud/pje-pipeline/internal/auth"
	"github.com/crawjud/pje-pipeline/internal/cache"
	"github.com/crawjud/pje-pipeline/internal/captcha"
	"github.com/crawjud/pje-pipeline/internal/config"
	"github.com/crawjud/pje-pipeline/internal/download"
	"github.com/crawjud/pje-pipeline/internal/logging"
	"github.com/crawjud/pje-pipeline/internal/pje"
	"github.com/crawjud/pje-pipeline/internal/progress"
	"github.com/crawjud/pje-pipeline/internal/progress/sinks"
	pubmemory "github.com/crawjud/pje-pipeline/internal/publisher/memory"
	pubgcp "github.com/crawjud/pje-pipeline/internal/publisher/pubsub"
	"github.com/crawjud/pje-pipeline/internal/scheduler"
	storagegcs "github.com/crawjud/pje-pipeline/internal/storage/gcs"
	storagelocal "github.com/crawjud/pje-pipeline/internal/storage/local"
	storagemem "github.com/crawjud/pje-pipeline/internal/storage/memory"
	storageminio "github.com/crawjud/pje-pipeline/internal/storage/minio"
	storemem "github.com/crawjud/pje-pipeline/internal/store/memory"
	storepg "github.com/crawjud/pje-pipeline/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pjecrawler:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	inputPath := flag.String("input", "", "path to a JSON file of work items to process")
	pid := flag.String("pid", "", "execution id; generated when empty")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	procStore, closeStore, err := buildProcessStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return err
	}
	hubSinks := []progress.Sink{sinks.NewLogSink(logger), promSink}
	if pg, ok := procStore.(*storepg.ProcessStore); ok {
		eventLog, err := pg.NewEventLog("progress_events")
		if err != nil {
			return err
		}
		hubSinks = append(hubSinks, sinks.NewStoreSink(eventLog, logger))
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, hubSinks...)

	var solver pje.CaptchaSolver
	if cfg.Captcha.Endpoint != "" {
		solver, err = captcha.NewHTTPSolver(captcha.Config{
			Endpoint: cfg.Captcha.Endpoint,
			APIKey:   cfg.Captcha.APIKey,
			Timeout:  time.Duration(cfg.Captcha.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
	} else {
		logger.Warn("no captcha endpoint configured, using static solver")
		solver = &captcha.Static{}
	}

	blobs, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	authenticator, err := auth.NewChromedp(auth.Config{
		LoginURL:       cfg.Portal.LoginURL,
		LandingPattern: cfg.Portal.LandingPattern,
		APIBaseURL:     cfg.Portal.APIBaseURL,
		SSOButton:      cfg.Auth.SSOButton,
		ButtonWait:     time.Duration(cfg.Auth.ButtonWaitSeconds) * time.Second,
		LoginTimeout:   time.Duration(cfg.Auth.LoginTimeoutSeconds) * time.Second,
		MaxParallel:    cfg.Auth.MaxParallel,
		UserAgent:      cfg.Auth.UserAgent,
	}, logger)
	if err != nil {
		return err
	}
	defer authenticator.Close()

	resolver := pje.NewChallengeResolver(solver, hub, logger, pje.ResolverConfig{
		MaxAttempts: cfg.Captcha.MaxAttempts,
		BackoffMin:  time.Duration(cfg.Captcha.BackoffMinSeconds) * time.Second,
		BackoffMax:  time.Duration(cfg.Captcha.BackoffMaxSeconds) * time.Second,
	})
	search := pje.NewSearchClient(resolver, logger)
	results := cache.New(procStore, hub, logger)
	downloads := download.New(blobs, hub, logger, download.Config{
		ChunkSize: cfg.Download.ChunkSizeBytes,
		TempDir:   cfg.Download.TempDir,
	})

	sched := scheduler.New(authenticator, search, results, downloads, hub, publisher, logger, scheduler.Config{
		MaxRegions:      cfg.Scheduler.MaxRegions,
		MaxPerRegion:    cfg.Scheduler.MaxPerRegion,
		HTTPTimeout:     cfg.HTTPTimeout(),
		CompletionTopic: cfg.Scheduler.CompletionTopic,
		AttachmentPath:  cfg.Portal.AttachmentPath,
	})

	apiServer := api.NewServer(sched, registry, logger, api.Options{APIKey: cfg.Server.APIKey})
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	if *inputPath != "" {
		items, err := loadWorkItems(*inputPath)
		if err != nil {
			return err
		}
		executionID := *pid
		if executionID == "" {
			executionID = uuid.NewString()
		}
		view, err := sched.Run(ctx, executionID, items)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("execution aborted", zap.String("pid", executionID), zap.Error(err))
		}
		logger.Info("execution summary",
			zap.String("pid", executionID),
			zap.Int("total", view.Total),
			zap.Int("succeeded", view.Succeeded),
			zap.Int("failed", view.Failed),
			zap.Int("not_found", view.NotFound),
		)
	} else {
		<-ctx.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Warn("progress hub shutdown", zap.Error(err))
	}
	return nil
}

func buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (pje.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "minio":
		store, err := storageminio.New(storageminio.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return storagegcs.New(client, storagegcs.Config{Bucket: cfg.Storage.Bucket})
	case "local":
		return storagelocal.New(storagelocal.Config{BaseDir: cfg.Storage.BaseDir})
	case "memory":
		logger.Warn("using in-memory blob storage, downloads will not persist")
		return storagemem.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func buildProcessStore(ctx context.Context, cfg config.Config) (pje.ProcessStore, func(), error) {
	switch cfg.Database.Provider {
	case "postgres":
		store, err := storepg.NewProcessStore(ctx, storepg.ProcessStoreConfig{
			DSN:      cfg.Database.DSN,
			Table:    cfg.Database.Table,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "memory":
		return storemem.NewProcessStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown database provider %q", cfg.Database.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (pje.Publisher, func(), error) {
	if cfg.Scheduler.CompletionTopic == "" {
		return nil, func() {}, nil
	}
	if cfg.PubSub.ProjectID == "" {
		return pubmemory.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubgcp.New(client)
	closer := func() {
		pub.Close()
		_ = client.Close()
	}
	return pub, closer, nil
}

// loadWorkItems reads the batch input file: a JSON array of work items.
func loadWorkItems(path string) ([]pje.WorkItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()
	var items []pje.WorkItem
	if err := json.NewDecoder(f).Decode(&items); err != nil {
		return nil, fmt.Errorf("parse input file: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("input file has no work items")
	}
	return items, nil
}
