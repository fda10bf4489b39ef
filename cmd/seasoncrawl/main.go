// Command seasoncrawl runs one season calendar sync and exits. It is
// meant for cron-style invocation and for seeding a fresh database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"matchsync/internal/config"
	"matchsync/internal/roster"
	"matchsync/internal/season"
	"matchsync/internal/store"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to sync daemon configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if len(cfg.Season.Sources) == 0 {
		fmt.Fprintln(os.Stderr, "no season sources configured")
		os.Exit(1)
	}

	matchStore, err := store.New(cfg.DB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise match store: %v\n", err)
		os.Exit(1)
	}
	defer matchStore.Close()

	tables := make([]*roster.Table, 0, len(cfg.Leagues))
	for _, lg := range cfg.Leagues {
		table, err := roster.LoadTable(lg.ID, lg.RosterPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load roster for league %s: %v\n", lg.ID, err)
			os.Exit(1)
		}
		tables = append(tables, table)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	crawler := season.NewCrawler(cfg.Season, roster.NewResolver(tables...), matchStore, nil)
	failed := false
	for _, report := range crawler.SyncAll(ctx) {
		fmt.Printf("league=%s pages=%d rows=%d upserted=%d skipped=%d errors=%d\n",
			report.LeagueID, report.Pages, report.RowsSeen, report.Upserted, report.Skipped, report.Errors)
		if report.Errors > 0 {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
