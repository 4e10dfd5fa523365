// Command server starts the interview analysis HTTP server with its
// in-process worker pool.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/adapter/notify"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/adapter/repo/mongodb"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/adapter/scoring"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/adapter/transcription"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/app"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/config"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/observability"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/pool"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/usecase"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	client, db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		slog.Error("mongo connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		slog.Error("mongo index setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Repositories
	taskRepo := mongodb.NewTaskRepo(db)
	appRepo := mongodb.NewApplicationRepo(db)
	respRepo := mongodb.NewResponseRepo(db)

	// Collaborator clients
	rubric, err := scoring.LoadRubric(cfg.RubricPath)
	if err != nil {
		slog.Error("rubric load failed", slog.Any("error", err))
		os.Exit(1)
	}
	scorer := scoring.New(cfg, rubric)
	transcriber := transcription.New(cfg)

	// Worker pool
	wp := pool.New(cfg, logger, pool.Deps{
		Tasks:       taskRepo,
		Apps:        appRepo,
		Responses:   respRepo,
		Transcriber: transcriber,
		Scorer:      scorer,
	})
	wp.Start(ctx)

	// Event fan-out to Redis pub/sub
	publisher := notify.New(cfg, logger)
	publisher.Attach(wp)
	defer func() { _ = publisher.Close() }()

	// Stuck-task sweeper covers orphaned records from a crashed process
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go app.NewStuckTaskSweeper(taskRepo, cfg.MaxProcessingAge, cfg.SweepInterval).Run(sweepCtx)

	// Usecases and HTTP surface
	analysisSvc := usecase.NewAnalysisService(logger, appRepo, wp)
	dbCheck := func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
	srv := httpserver.NewServer(cfg, analysisSvc, dbCheck, publisher.Ping)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	if err := wp.Shutdown(shutdownCtx); err != nil {
		slog.Error("pool shutdown incomplete", slog.Any("error", err))
	}
}
