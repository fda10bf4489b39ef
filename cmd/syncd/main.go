package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"matchsync/internal/api"
	"matchsync/internal/browser"
	"matchsync/internal/config"
	"matchsync/internal/extract"
	"matchsync/internal/jobstate"
	"matchsync/internal/reconcile"
	"matchsync/internal/roster"
	"matchsync/internal/sched"
	"matchsync/internal/season"
	"matchsync/internal/status"
	"matchsync/internal/store"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to sync daemon configuration")
	addr := flag.String("addr", "", "HTTP listen address (overrides api.addr)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	listenAddr := cfg.API.Addr
	if *addr != "" {
		listenAddr = *addr
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	matchStore, err := store.New(cfg.DB)
	if err != nil {
		log.Fatalf("failed to initialise match store: %v", err)
	}
	defer matchStore.Close()

	pool := browser.NewSessionPool(browser.SessionOptions{
		Timeout:            cfg.Browser.Timeout.Duration,
		UserAgent:          cfg.Browser.UserAgent,
		DisableHeadless:    cfg.Browser.DisableHeadless,
		ConcurrentSessions: cfg.Browser.ConcurrentSessions,
	}, logger)

	engines := make(map[string]*reconcile.Engine, len(cfg.Leagues))
	tables := make([]*roster.Table, 0, len(cfg.Leagues))
	for _, lg := range cfg.Leagues {
		table, err := roster.LoadTable(lg.ID, lg.RosterPath)
		if err != nil {
			log.Fatalf("failed to load roster for league %s: %v", lg.ID, err)
		}
		tables = append(tables, table)

		classifier := status.New(lg.StatusTokens, logger)
		extractor := extract.New(lg.Selectors, logger)
		reconciler := reconcile.New(matchStore, classifier, table, lg.GraceWindow.Duration, logger)
		engines[lg.ID] = reconcile.NewEngine(lg, matchStore, pool, extractor, reconciler, cfg.Browser, logger)
	}

	states, err := jobstate.NewFromConfig(cfg.Redis)
	if err != nil {
		logger.Error("failed to initialise pass snapshot store", "error", err)
	}
	if states != nil {
		defer states.Close()
	}

	var seasons *season.Crawler
	if cfg.Season.Enabled {
		seasons = season.NewCrawler(cfg.Season, roster.NewResolver(tables...), matchStore, logger)
	}

	scheduler := sched.New(*cfg, engines, matchStore, states, seasons, logger)

	var seasonRunner api.SeasonRunner
	if seasons != nil {
		seasonRunner = seasons
	}
	manager := api.NewJobManager(scheduler, seasonRunner, cfg.API.MaxConcurrentJobs, ctx)
	server := api.NewServer(manager)

	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: server,
	}

	go scheduler.Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
		manager.Shutdown()
	}()

	logger.Info("sync daemon listening",
		"addr", listenAddr,
		"leagues", len(cfg.Leagues),
		"season_sync", cfg.Season.Enabled,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	log.Println("sync daemon stopped")
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Structured {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
