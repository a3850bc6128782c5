package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/latex2image/internal/api/handlers/convert"
	"github.com/aliskhannn/latex2image/internal/api/handlers/job"
	"github.com/aliskhannn/latex2image/internal/api/router"
	"github.com/aliskhannn/latex2image/internal/api/server"
	"github.com/aliskhannn/latex2image/internal/config"
	"github.com/aliskhannn/latex2image/internal/infra/kafka/producer"
	"github.com/aliskhannn/latex2image/internal/processor"
	jobrepo "github.com/aliskhannn/latex2image/internal/repository/job"
	"github.com/aliskhannn/latex2image/internal/runner"
	"github.com/aliskhannn/latex2image/internal/service/conversion"
	"github.com/aliskhannn/latex2image/internal/storage/file"
	"github.com/aliskhannn/latex2image/internal/workspace"
)

// shutdownMargin is added to the job timeout for HTTP writes and shutdown.
const shutdownMargin = 10 * time.Second

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad("./config/config.yml")

	fs := afero.NewOsFs()

	// Retry strategy for Kafka and database writes.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Per-job scratch directories.
	workspaces, err := workspace.NewManager(fs, cfg.Paths.WorkspaceRoot)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to prepare workspace root")
	}
	if _, err := workspaces.Sweep(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to sweep workspace root")
	}

	// Artifact store: local directory served by us, or a MinIO bucket.
	var (
		publisher file.Publisher
		static    = router.Static{UIDir: cfg.Paths.StaticDir}
	)
	switch cfg.Storage.Backend {
	case file.BackendMinio:
		publisher, err = file.NewStorage(ctx, fs, file.MinioOptions{
			Endpoint:   cfg.Storage.Endpoint,
			AccessKey:  cfg.Storage.AccessKey,
			SecretKey:  cfg.Storage.SecretKey,
			BucketName: cfg.Storage.BucketName,
			Region:     cfg.Storage.Region,
			UseSSL:     cfg.Storage.UseSSL,
			Prefix:     cfg.Storage.Prefix,
			PublicURL:  cfg.Storage.PublicURL,
		})
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
		}
	default:
		local, err := file.NewLocalPublisher(fs, cfg.Paths.OutputDir, cfg.Paths.OutputURL)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to prepare output dir")
		}
		publisher = local
		static.OutputDir = local.Dir()
		static.OutputURL = cfg.Paths.OutputURL
	}

	// External tool stages.
	stages := processor.New(runner.NewExec(), processor.Options{
		Render: processor.RenderOptions{
			Sandbox:       cfg.Render.Sandbox,
			DockerBinary:  cfg.Render.DockerBinary,
			Image:         cfg.Render.Image,
			Timeout:       cfg.Render.Timeout,
			Grace:         cfg.Render.Grace,
			MaxConcurrent: cfg.Render.MaxConcurrent,
		},
		RasterBinary:    cfg.Raster.Binary,
		RasterTimeout:   cfg.Raster.Timeout,
		CompressDriver:  cfg.Compression.Driver,
		CompressBinary:  cfg.Compression.Binary,
		CompressTimeout: cfg.Compression.Timeout,
		JPEGQuality:     cfg.Compression.JPEGQuality,
	})

	// Optional job history (PostgreSQL) and events (Kafka).
	var (
		db         *dbpg.DB
		p          *producer.Producer
		recorders  []conversion.Recorder
		jobHandler *job.Handler
	)

	if cfg.Database.Enabled {
		opts := &dbpg.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}

		// Collect slave DSNs for replica connections.
		slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
		for _, s := range cfg.Database.Slaves {
			slaveDSNs = append(slaveDSNs, s.DSN())
		}

		db, err = dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
		}

		repo := jobrepo.NewRepository(db, strategy)
		recorders = append(recorders, repo)
		jobHandler = job.NewHandler(repo)
	}

	if cfg.Kafka.Enabled {
		p = producer.New(&cfg.Kafka, strategy)
		recorders = append(recorders, p)
	}

	service := conversion.NewService(workspaces, stages, publisher, recorders...)

	// HTTP server. Writes and shutdown must outlive a full job.
	jobTimeout := cfg.JobTimeout() + shutdownMargin
	r := router.Setup(convert.NewHandler(service), jobHandler, static)
	s := server.New(cfg.Server.HTTPPort, r, jobTimeout)
	go func() {
		zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("latex2image listening")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Graceful shutdown: running jobs may take up to a full job timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}

	// Stop admitting jobs and let running ones remove their workspaces and
	// deliver their records before the clients are closed.
	if err := service.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("conversions still running at exit")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	if db != nil {
		if err := db.Master.Close(); err != nil {
			zlog.Logger.Printf("failed to close master DB: %v", err)
		}
		for i, s := range db.Slaves {
			if err := s.Close(); err != nil {
				zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
			}
		}
	}

	if p != nil {
		if err := p.Client.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
		}
	}
}
