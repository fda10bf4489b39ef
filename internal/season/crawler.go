// Package season ingests full fixture calendars month by month, seeding
// the match records the live reconciliation engine later mutates. The
// crawl only creates records and refreshes still-SCHEDULED ones; the
// store's conditional upsert guarantees it can never rewrite a LIVE or
// FINISHED match.
package season

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"matchsync/internal/browser"
	"matchsync/internal/config"
	"matchsync/internal/extract"
	"matchsync/internal/roster"
	"matchsync/pkg/types"
)

// monthToken is replaced in URL templates with the YYYYMM month value.
const monthToken = "{month}"

// FixtureStore is the narrow persistence surface the crawl needs.
type FixtureStore interface {
	UpsertFixture(ctx context.Context, rec types.MatchRecord) error
}

// Report aggregates one league's calendar sync.
type Report struct {
	LeagueID string `json:"league_id"`
	Pages    int    `json:"pages"`
	RowsSeen int    `json:"rows_seen"`
	Upserted int    `json:"upserted"`
	Skipped  int    `json:"skipped"`
	Errors   int    `json:"errors"`
}

// Crawler walks fixture calendar pages and upserts match records.
type Crawler struct {
	cfg      config.SeasonConfig
	fetcher  *browser.HTTPFetcher
	robots   *robotsAgent
	limiter  *hostLimiter
	resolver *roster.Resolver
	store    FixtureStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewCrawler wires a season crawler from configuration.
func NewCrawler(cfg config.SeasonConfig, resolver *roster.Resolver, store FixtureStore, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	fetcher := browser.NewHTTPFetcher(browser.FetchOptions{
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.RequestTimeout.Duration,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	return &Crawler{
		cfg:      cfg,
		fetcher:  fetcher,
		robots:   newRobotsAgent(fetcher.Client(), cfg.UserAgent, cfg.RespectRobots),
		limiter:  newHostLimiter(cfg.PerHostDelay.Duration, cfg.RateLimit),
		resolver: resolver,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// SyncAll syncs every configured source. Per-source failures are
// reported but do not stop the remaining sources.
func (c *Crawler) SyncAll(ctx context.Context) []Report {
	reports := make([]Report, 0, len(c.cfg.Sources))
	for _, src := range c.cfg.Sources {
		report, err := c.SyncLeague(ctx, src)
		if err != nil {
			c.logger.Error("season sync failed", "league", src.LeagueID, "error", err)
			report.Errors++
		}
		reports = append(reports, report)
		if ctx.Err() != nil {
			break
		}
	}
	return reports
}

// SyncLeague syncs one league's calendar across its configured month
// window.
func (c *Crawler) SyncLeague(ctx context.Context, src config.SeasonSourceConfig) (Report, error) {
	report := Report{LeagueID: src.LeagueID}
	table, ok := c.resolver.Table(src.LeagueID)
	if !ok {
		return report, fmt.Errorf("no roster table for league %q", src.LeagueID)
	}
	extractor := extract.New(src.Selectors, c.logger.With("league", src.LeagueID))

	for _, month := range c.months(src) {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		pageReport, err := c.syncMonth(ctx, src, table, extractor, month)
		report.Pages += pageReport.Pages
		report.RowsSeen += pageReport.RowsSeen
		report.Upserted += pageReport.Upserted
		report.Skipped += pageReport.Skipped
		report.Errors += pageReport.Errors
		if err != nil {
			// One month's page failing should not abandon the rest of
			// the calendar.
			c.logger.Warn("month sync failed", "league", src.LeagueID, "month", month.Format("200601"), "error", err)
			report.Errors++
		}
	}

	c.logger.Info("season sync complete",
		"league", src.LeagueID,
		"pages", report.Pages,
		"rows", report.RowsSeen,
		"upserted", report.Upserted,
		"skipped", report.Skipped,
		"errors", report.Errors,
	)
	return report, nil
}

func (c *Crawler) syncMonth(ctx context.Context, src config.SeasonSourceConfig, table *roster.Table, extractor *extract.Extractor, month time.Time) (Report, error) {
	var report Report

	raw := strings.ReplaceAll(src.URLTemplate, monthToken, month.Format("200601"))
	target, err := url.Parse(raw)
	if err != nil {
		return report, fmt.Errorf("parse calendar url %q: %w", raw, err)
	}

	if err := c.limiter.wait(ctx, target.Hostname()); err != nil {
		return report, err
	}
	if !c.robots.allowed(ctx, target) {
		c.logger.Debug("calendar page blocked by robots", "url", target.String())
		return report, nil
	}

	page, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		return report, err
	}
	if page.StatusCode >= 400 {
		return report, fmt.Errorf("calendar page returned status %d", page.StatusCode)
	}
	report.Pages++

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return report, fmt.Errorf("parse calendar page: %w", err)
	}

	rows, err := extractor.Rows(doc)
	if err != nil {
		if err == extract.ErrNoRows {
			// Off-season months legitimately publish empty calendars.
			return report, nil
		}
		return report, err
	}
	report.RowsSeen = len(rows)

	for _, row := range rows {
		rec, ok := c.fixtureFromRow(src.LeagueID, table, row, month)
		if !ok {
			report.Skipped++
			continue
		}
		if err := c.store.UpsertFixture(ctx, rec); err != nil {
			c.logger.Warn("fixture upsert failed",
				"league", src.LeagueID, "home", rec.HomeID, "away", rec.AwayID, "error", err)
			report.Errors++
			continue
		}
		report.Upserted++
	}
	return report, nil
}

func (c *Crawler) fixtureFromRow(leagueID string, table *roster.Table, row types.ScrapedRow, month time.Time) (types.MatchRecord, bool) {
	homeID, ok := table.Resolve(row.HomeName)
	if !ok {
		c.logger.Debug("unknown home participant", "league", leagueID, "name", row.HomeName)
		return types.MatchRecord{}, false
	}
	awayID, ok := table.Resolve(row.AwayName)
	if !ok {
		c.logger.Debug("unknown away participant", "league", leagueID, "name", row.AwayName)
		return types.MatchRecord{}, false
	}
	kickoff, err := parseKickoff(row.RawTime, month)
	if err != nil {
		c.logger.Debug("unparseable kickoff time", "league", leagueID, "raw", row.RawTime, "error", err)
		return types.MatchRecord{}, false
	}
	return types.MatchRecord{
		LeagueID:  leagueID,
		HomeID:    homeID,
		AwayID:    awayID,
		KickoffAt: kickoff,
		Venue:     row.Venue,
		Status:    types.StatusScheduled,
	}, true
}

// months returns the month window for a source: back through ahead of
// the current month, always including the current one.
func (c *Crawler) months(src config.SeasonSourceConfig) []time.Time {
	now := c.now()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	out := make([]time.Time, 0, src.MonthsBack+src.MonthsAhead+1)
	for offset := -src.MonthsBack; offset <= src.MonthsAhead; offset++ {
		out = append(out, current.AddDate(0, offset, 0))
	}
	return out
}

// kickoffLayouts are tried in order against the raw calendar time text.
// Layouts without a year or month borrow them from the calendar month
// being synced.
var kickoffLayouts = []struct {
	layout     string
	needsYear  bool
	needsMonth bool
}{
	{layout: "2006-01-02 15:04"},
	{layout: "2006.01.02 15:04"},
	{layout: "01.02 15:04", needsYear: true},
	{layout: "01-02 15:04", needsYear: true},
	{layout: "02 15:04", needsYear: true, needsMonth: true},
}

func parseKickoff(raw string, month time.Time) (time.Time, error) {
	cleaned := strings.Join(strings.Fields(raw), " ")
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("empty kickoff text")
	}
	for _, candidate := range kickoffLayouts {
		parsed, err := time.ParseInLocation(candidate.layout, cleaned, month.Location())
		if err != nil {
			continue
		}
		year := parsed.Year()
		m := parsed.Month()
		if candidate.needsYear {
			year = month.Year()
		}
		if candidate.needsMonth {
			m = month.Month()
		}
		return time.Date(year, m, parsed.Day(), parsed.Hour(), parsed.Minute(), 0, 0, month.Location()), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized kickoff format %q", raw)
}
