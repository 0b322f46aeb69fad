package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/revivalist/lorecard/internal/cache"
	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/events"
	"github.com/revivalist/lorecard/internal/pipeline"
	"github.com/revivalist/lorecard/internal/providers"
	"github.com/revivalist/lorecard/internal/queue"
	"github.com/revivalist/lorecard/internal/ratelimit"
	"github.com/revivalist/lorecard/internal/scraper"
	"github.com/revivalist/lorecard/internal/server"
	"github.com/revivalist/lorecard/internal/storage/sqlite"
	"github.com/revivalist/lorecard/internal/templates"
)

func main() {
	config, err := common.LoadFromEnv()
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	logger := common.SetupLogger(config)
	common.InitLogger(logger)
	common.PrintBanner(config, logger)
	common.InstallCrashHandler(filepath.Dir(config.Storage.DatabaseURL))

	ctx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	store, err := sqlite.Open(ctx, config.Storage.DatabaseURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run schema migrations")
	}
	// Startup-only stale-state sweep (§4.1), ahead of the cron-driven
	// safety net the reaper runs thereafter.
	if err := store.RecoverStaleState(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to recover stale state")
	}

	schemaCache, err := cache.Open(config.Storage.CacheDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open schema cache")
	}
	defer schemaCache.Close()

	limiter := ratelimit.New()
	broadcaster := events.New(config.SSE.QueueSize, config.SSE.PingInterval, logger)

	registry := providers.NewRegistry("claude")
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		registry.Register(providers.NewClaudeProvider(key, logger))
	}
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
		registry.Register(providers.NewDeepSeekProvider(key, logger))
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		registry.Register(providers.NewOpenRouterProvider(key, logger))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		registry.Register(providers.NewOpenAIProvider("", key, logger))
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		geminiProvider, err := providers.NewGeminiProvider(ctx, key, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize gemini provider, continuing without it")
		} else {
			registry.Register(geminiProvider)
		}
	}

	webScraper := scraper.New(config.Scraper.Timeout, config.Scraper.Cookies, config.Scraper.MaxQPS, logger)
	templateStore := templates.NewStore(store).WithCache(schemaCache)

	pool := queue.New(store, broadcaster, config.Workers.PollInterval, logger)
	deps := &pipeline.Deps{
		Store:       store,
		Registry:    registry,
		Templates:   templateStore,
		Scraper:     webScraper,
		Limiter:     limiter,
		Broadcaster: broadcaster,
		Logger:      logger,
	}
	deps.RegisterHandlers(pool)
	pool.Start()
	defer pool.Stop()

	cancelSidecar := queue.NewCancelSidecar(store, pool, config.Workers.CancelPollInterval, logger)
	common.SafeGo(logger, "cancel-sidecar", func() { cancelSidecar.Run(ctx) })

	reaper := queue.NewReaper(store, logger)
	if err := reaper.Start(ctx, cronEverySeconds(config.Workers.StaleSweepInterval)); err != nil {
		logger.Fatal().Err(err).Msg("failed to start reaper")
	}
	defer reaper.Stop()

	httpServer := server.New(config.Server.Host, config.Server.Port, broadcaster, logger)
	go func() {
		defer common.RecoverWithCrashFile()
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	logger.Info().
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Msg("lorecard ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	cancelRoot()
	common.Stop()
}

// cronEverySeconds builds a robfig/cron/v3 "@every" spec from a duration,
// matching the reaper's sweep cadence to the configured interval.
func cronEverySeconds(d time.Duration) string {
	if d <= 0 {
		d = 5 * time.Minute
	}
	return "@every " + d.String()
}
