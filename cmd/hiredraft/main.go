package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hiredraft/hiredraft/internal/config"
	"github.com/hiredraft/hiredraft/internal/flow"
	"github.com/hiredraft/hiredraft/internal/jobs"
	"github.com/hiredraft/hiredraft/internal/llm"
	"github.com/hiredraft/hiredraft/internal/research"
	"github.com/hiredraft/hiredraft/internal/server"
	"github.com/hiredraft/hiredraft/internal/storage/sqldb"
	"github.com/hiredraft/hiredraft/internal/telemetry"
)

const configPath = "config.yaml"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer("hiredraft", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store, err := sqldb.New(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	llmClient, err := llm.NewClient(cfg.LLM.APIKey,
		llm.WithBaseURL(cfg.LLM.BaseURL),
		llm.WithModel(cfg.LLM.Model),
	)
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	var execOpts []flow.ExecutorOption
	execOpts = append(execOpts, flow.WithExecutorLogger(logger))
	if cfg.SearchEnabled() {
		webClient, err := research.NewWebClient(cfg.Search.BaseURL, cfg.Search.Token)
		if err != nil {
			log.Fatalf("Failed to create search client: %v", err)
		}
		runner := research.NewRunner(webClient, webClient,
			research.WithMinSnippets(cfg.Search.MinSnippets),
			research.WithLogger(logger),
		)
		execOpts = append(execOpts, flow.WithResearch(runner))
	}
	executor, err := flow.NewExecutor(llmClient, execOpts...)
	if err != nil {
		log.Fatalf("Failed to create executor: %v", err)
	}

	trimmer, err := llm.NewHistoryTrimmer(cfg.LLM.HistoryTokenBudget)
	if err != nil {
		log.Fatalf("Failed to create history trimmer: %v", err)
	}

	service, err := flow.NewService(llmClient, executor, store,
		flow.WithResetPolicy(flow.ResetPolicy(cfg.Flow.ResetPolicy)),
		flow.WithHistoryTrimmer(trimmer),
		flow.WithServiceLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create flow service: %v", err)
	}

	manager, err := jobs.NewManager(service,
		jobs.WithJobStore(store),
		jobs.WithJobTimeout(cfg.JobTimeout()),
		jobs.WithManagerLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create job manager: %v", err)
	}

	srv := server.New(cfg.Server.Port, logger, cfg.Server.BearerToken, cfg.RequestTimeout())
	jobs.NewHandler(manager).Routes(srv.Router)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
		// Structural settings (port, storage) need a restart; only log the
		// reload so operators can confirm the file was picked up.
		logger.Info("config change detected",
			slog.String("reset_policy", next.Flow.ResetPolicy))
	}); err != nil {
		logger.Warn("config watch unavailable", slog.String("error", err.Error()))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-sigChan:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	// Let in-flight workers reach a terminal state before closing storage.
	manager.Wait()
	logger.Info("shutdown complete")
}
