package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/docsmith/internal/config"
	"github.com/local/docsmith/internal/dispatcher"
	"github.com/local/docsmith/internal/extract"
	"github.com/local/docsmith/internal/limiter"
	logpkg "github.com/local/docsmith/internal/logger"
	"github.com/local/docsmith/internal/metrics"
	"github.com/local/docsmith/internal/orchestrator"
	"github.com/local/docsmith/internal/pipeline"
	"github.com/local/docsmith/internal/queue"
	"github.com/local/docsmith/internal/statuscheck"
	"github.com/local/docsmith/internal/store"
	"github.com/local/docsmith/internal/transform"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	// Artifact store
	artifacts, err := newArtifactStore(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init artifact store")
	}

	// Queue
	rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rq.Close()

	// Job status store
	rs, err := store.NewRedisRunStatus(cfg.Queue.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init redis status store")
	}
	defer rs.Close()

	// Pipeline runner
	extractor := extract.NewHTTPExtractor(cfg.Extractor.Endpoint, cfg.Extractor.Timeout)
	guard, err := limiter.New(limiter.Options{
		RedisURL:    cfg.Queue.RedisURL,
		Name:        "extractor",
		MaxInflight: cfg.Extractor.MaxInflight,
		BaseBackoff: cfg.Extractor.BaseBackoff,
	})
	if err != nil {
		log.Warn().Err(err).Msg("extractor limiter unavailable, calls are unguarded")
	} else {
		extractor.SetGuard(guard)
		defer guard.Close()
	}
	runner, err := pipeline.New(pipeline.Dependencies{
		Store:       artifacts,
		Extractor:   extractor,
		Corrections: &transform.Loader{Path: cfg.Pipeline.CorrectionScript},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init pipeline")
	}

	// Orchestrator HTTP server
	orch := orchestrator.New(orchestrator.Dependencies{
		Queue:     rq,
		Status:    rs,
		Artifacts: artifacts,
		Health: statuscheck.New(statuscheck.Options{
			Redis:             rs,
			Artifacts:         artifacts,
			ExtractorEndpoint: cfg.Extractor.Endpoint,
		}),
		UploadDir: cfg.Server.UploadDir,
		Extract: extract.Options{
			EnableOCR:   cfg.Extractor.EnableOCR,
			LayoutModel: cfg.Extractor.LayoutModel,
		},
	})
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())

	// Dispatcher worker (optional)
	runDispatcher := os.Getenv("RUN_DISPATCHER")
	if runDispatcher == "" || runDispatcher == "1" || runDispatcher == "true" {
		disp := dispatcher.New(dispatcher.Config{
			Concurrency: cfg.Worker.Concurrency,
			JobTimeout:  cfg.Worker.JobTimeout,
		}, rq, rs, runner)
		disp.Start()
		defer disp.Stop(context.Background())
	}

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("shutdown complete")
}

func newArtifactStore(cfg cfgpkg.CacheConfig) (store.Store, error) {
	switch cfg.Backend {
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return store.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.Passphrase)
	case "fs", "":
		return store.NewFSStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
