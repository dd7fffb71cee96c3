// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"telegram-bot-dispatch/internal/application"
	"telegram-bot-dispatch/internal/config"
	"telegram-bot-dispatch/internal/dispatch"
	"telegram-bot-dispatch/internal/domain/ports/repository"
	pg "telegram-bot-dispatch/internal/infra/db/postgres"
	"telegram-bot-dispatch/internal/infra/logging"
	"telegram-bot-dispatch/internal/infra/memstore"
	"telegram-bot-dispatch/internal/infra/metrics"
	red "telegram-bot-dispatch/internal/infra/redis"
	tele "telegram-bot-dispatch/internal/infra/telegram"
	"telegram-bot-dispatch/internal/infra/web"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "development mode (console logs, no sampling)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Session store ----
	var store repository.SessionStore
	switch cfg.Store.Backend {
	case "postgres":
		pool, perr := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
		if perr != nil {
			logger.Fatal().Err(perr).Msg("postgres")
		}
		defer pool.Close()
		pgStore := pg.NewSessionStore(pool)
		if serr := pgStore.EnsureSchema(ctx); serr != nil {
			logger.Fatal().Err(serr).Msg("postgres schema")
		}
		store = pgStore
	case "redis":
		client, rerr := red.NewClient(ctx, &cfg.Redis)
		if rerr != nil {
			logger.Fatal().Err(rerr).Msg("redis")
		}
		defer client.Close()
		store = red.NewSessionStore(client, cfg.Redis.TTL)
	default:
		store = memstore.New()
	}
	logger.Info().Str("backend", cfg.Store.Backend).Msg("session store ready")

	// ---- Telegram ----
	bot, err := tele.NewBot(&cfg.Bot, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram")
	}
	if strings.ToLower(cfg.Bot.Mode) != "polling" {
		logger.Warn().Str("mode", cfg.Bot.Mode).Msg("bot mode not implemented; falling back to polling")
	}

	// ---- Router + handlers ----
	router := dispatch.NewRouter()
	handlers := application.NewHandlers(logger)
	if err := handlers.Register(router); err != nil {
		logger.Fatal().Err(err).Msg("register handlers")
	}
	if err := bot.SetMenuCommands(ctx, handlers.MenuCommands()); err != nil {
		logger.Warn().Err(err).Msg("set menu commands failed")
	}

	// ---- Middleware chain ----
	policy := application.NewAccessPolicy(cfg.Bot.BlockedIDs, nil)
	chain := dispatch.NewChain(
		dispatch.NewAuthGuard(policy, "", logger),
		dispatch.NewRateGuard(cfg.Dispatch.RateLimit, cfg.Dispatch.RateWindow, nil),
	)

	// ---- Dispatcher ----
	sink := dispatch.MultiSink{
		dispatch.NewReplySink(bot, dispatch.DefaultReplyTexts(), logger),
		dispatch.NewLogSink(logger),
		dispatch.MetricsSink{},
	}
	disp := dispatch.New(dispatch.Config{
		QueueSize:     cfg.Dispatch.LaneQueue,
		UpdateTimeout: cfg.Dispatch.UpdateTimeout,
		IdleTTL:       cfg.Dispatch.LaneIdleTTL,
	}, store, chain, router, sink, logger)

	go func() {
		if rerr := disp.Run(ctx, bot); rerr != nil && rerr != context.Canceled {
			logger.Error().Err(rerr).Msg("dispatcher run loop stopped")
		}
	}()

	// ---- Ops HTTP server ----
	auth := web.NewAuthManager(cfg.Ops.JWTSecret, !cfg.Runtime.Dev, cfg.Ops.SessionTTL)
	opsSrv := web.NewServer(disp, auth, cfg.Ops.APIKey, cfg.Dispatch.DrainTimeout, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Ops.Port), Handler: opsSrv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("ops server listening")
		if herr := server.ListenAndServe(); herr != nil && herr != http.ErrServerClosed {
			logger.Error().Err(herr).Msg("ops server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel() // stops polling and the run loop

	report := disp.Drain(cfg.Dispatch.DrainTimeout)
	logger.Info().
		Int("completed", report.Completed).
		Ints64("abandoned", report.Abandoned).
		Msg("dispatcher drained")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
