package reconcile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"matchsync/internal/config"
	"matchsync/internal/extract"
	"matchsync/pkg/types"
)

// MatchReader selects the matches a pass is interested in.
type MatchReader interface {
	FindByLeagueAndStatus(ctx context.Context, leagueID string, statuses ...types.MatchStatus) ([]types.MatchRecord, error)
	FindDayNonFinished(ctx context.Context, leagueID string, day time.Time) ([]types.MatchRecord, error)
}

// PageOpener is the browser session capability: open a URL, wait for
// the row container, hand the parsed DOM to fn, release the session on
// every exit path.
type PageOpener interface {
	WithPage(ctx context.Context, url, waitSelector string, fn func(doc *goquery.Document) error) error
}

// Engine runs complete reconciliation passes for one league: load page,
// extract rows, reconcile, report. One Engine instance is safe for use
// from a single scheduler goroutine.
type Engine struct {
	league     config.LeagueConfig
	reader     MatchReader
	opener     PageOpener
	extractor  *extract.Extractor
	reconciler *Reconciler
	attempts   int
	retryDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine wires a pass engine for one league.
func NewEngine(league config.LeagueConfig, reader MatchReader, opener PageOpener, extractor *extract.Extractor, reconciler *Reconciler, browser config.BrowserConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := browser.PassAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Engine{
		league:     league,
		reader:     reader,
		opener:     opener,
		extractor:  extractor,
		reconciler: reconciler,
		attempts:   attempts,
		retryDelay: browser.RetryDelay.Duration,
		logger:     logger.With("league", league.ID),
		now:        time.Now,
	}
}

// WithClock overrides the wall clock. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.reconciler.WithClock(now)
	return e
}

// RunPass executes one full reconciliation pass. Page load and row
// extraction are retried a bounded number of times with a fixed delay;
// after that the pass is abandoned until the next scheduled tick. The
// tick interval itself provides throttling, so no backoff is used.
func (e *Engine) RunPass(ctx context.Context, liveOnly bool) (types.PassReport, error) {
	report := types.PassReport{
		LeagueID:  e.league.ID,
		RunID:     newRunID(),
		StartedAt: e.now(),
	}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	matches, err := e.matchesOfInterest(ctx, liveOnly)
	if err != nil {
		report.Error = err.Error()
		return report, fmt.Errorf("select matches: %w", err)
	}
	if len(matches) == 0 {
		e.logger.Debug("no matches of interest, skipping page load")
		return report, nil
	}

	var rows []types.ScrapedRow
	if err := e.loadRows(ctx, &rows); err != nil {
		report.Error = err.Error()
		return report, err
	}
	report.RowsExtracted = len(rows)

	for _, oc := range e.reconciler.Pass(ctx, matches, rows) {
		report.Count(oc.Outcome)
	}

	e.logger.Info("pass complete",
		"run_id", report.RunID,
		"matches", len(matches),
		"rows", report.RowsExtracted,
		"updated", report.Updated,
		"unchanged", report.Unchanged,
		"not_found", report.NotFound,
		"fallback_finished", report.FallbackFinished,
	)
	return report, nil
}

// matchesOfInterest selects the records a pass reconciles. A full pass
// takes every LIVE record in the league plus today's non-finished day
// window: a match still LIVE from before midnight falls out of the day
// window but must stay eligible for reconciliation and grace fallback.
func (e *Engine) matchesOfInterest(ctx context.Context, liveOnly bool) ([]types.MatchRecord, error) {
	live, err := e.reader.FindByLeagueAndStatus(ctx, e.league.ID, types.StatusLive)
	if err != nil || liveOnly {
		return live, err
	}
	day, err := e.reader.FindDayNonFinished(ctx, e.league.ID, e.now())
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{}, len(live))
	for _, m := range live {
		seen[m.ID] = struct{}{}
	}
	for _, m := range day {
		if _, dup := seen[m.ID]; !dup {
			live = append(live, m)
		}
	}
	return live, nil
}

// loadRows opens the scoreboard page and extracts all rows, retrying
// transient failures. No partial writes can result from a failed load:
// reconciliation only starts once rows are in hand.
func (e *Engine) loadRows(ctx context.Context, rows *[]types.ScrapedRow) error {
	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		err := e.opener.WithPage(ctx, e.league.ScoreboardURL, e.league.Selectors.WaitFor, func(doc *goquery.Document) error {
			extracted, err := e.extractor.Rows(doc)
			if err != nil {
				return err
			}
			*rows = extracted
			return nil
		})
		if err == nil {
			return nil
		}
		lastErr = err
		e.logger.Warn("page load attempt failed",
			"attempt", attempt,
			"max_attempts", e.attempts,
			"error", err,
		)
		if attempt == e.attempts {
			break
		}
		select {
		case <-time.After(e.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("pass abandoned after %d attempts: %w", e.attempts, lastErr)
}

func newRunID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
