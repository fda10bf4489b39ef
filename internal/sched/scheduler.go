// Package sched runs the periodic reconciliation jobs. Each league owns
// independent timers; leagues never share mutable in-memory state, so
// all coordination happens through the match store's conditional writes.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"matchsync/internal/config"
	"matchsync/internal/jobstate"
	"matchsync/internal/reconcile"
	"matchsync/internal/season"
	"matchsync/pkg/types"
)

// SweepStore is the persistence surface for the no-scrape jobs.
type SweepStore interface {
	FindByLeagueAndStatus(ctx context.Context, leagueID string, statuses ...types.MatchStatus) ([]types.MatchRecord, error)
	FindScheduledBefore(ctx context.Context, leagueID string, cutoff time.Time) ([]types.MatchRecord, error)
	UpdateStatus(ctx context.Context, id int64, prev, next types.MatchStatus) (bool, error)
}

// Scheduler drives all recurring work: per-league live refresh and
// kickoff sweeps, startup recovery, and the daily season calendar sync.
type Scheduler struct {
	cfg     config.Config
	engines map[string]*reconcile.Engine
	store   SweepStore
	states  jobstate.Store
	seasons *season.Crawler
	logger  *slog.Logger

	mu      sync.RWMutex
	reports map[string]types.PassReport
}

// New builds a scheduler over the given league engines.
func New(cfg config.Config, engines map[string]*reconcile.Engine, store SweepStore, states jobstate.Store, seasons *season.Crawler, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		engines: engines,
		store:   store,
		states:  states,
		seasons: seasons,
		logger:  logger,
		reports: make(map[string]types.PassReport),
	}
}

// Run starts every league's timers plus the season loop, blocking until
// the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, lg := range s.cfg.Leagues {
		engine, ok := s.engines[lg.ID]
		if !ok {
			s.logger.Error("no engine wired for league", "league", lg.ID)
			continue
		}

		wg.Add(2)
		go func(lg config.LeagueConfig, engine *reconcile.Engine) {
			defer wg.Done()
			s.liveLoop(ctx, lg, engine)
		}(lg, engine)
		go func(lg config.LeagueConfig) {
			defer wg.Done()
			s.sweepLoop(ctx, lg)
		}(lg)
	}

	if s.seasons != nil && s.cfg.Season.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.seasonLoop(ctx)
		}()
	}

	wg.Wait()
}

// liveLoop runs the short fixed-delay live-score refresh. The first
// tick doubles as startup recovery: a match left LIVE by a previous
// process lifetime gets reconciled immediately rather than waiting for
// external traffic.
func (s *Scheduler) liveLoop(ctx context.Context, lg config.LeagueConfig, engine *reconcile.Engine) {
	// Initial-delay offsets keep leagues from loading pages in lockstep.
	if lg.InitialDelay.Duration > 0 {
		select {
		case <-time.After(lg.InitialDelay.Duration):
		case <-ctx.Done():
			return
		}
	}

	s.recoverStuckLive(ctx, lg, engine)

	ticker := time.NewTicker(lg.LiveRefresh.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runPass(ctx, lg, engine)
		}
	}
}

func (s *Scheduler) recoverStuckLive(ctx context.Context, lg config.LeagueConfig, engine *reconcile.Engine) {
	stuck, err := s.store.FindByLeagueAndStatus(ctx, lg.ID, types.StatusLive)
	if err != nil {
		s.logger.Error("startup recovery query failed", "league", lg.ID, "error", err)
		return
	}
	if len(stuck) == 0 {
		return
	}
	s.logger.Info("startup recovery: reconciling matches left live", "league", lg.ID, "count", len(stuck))
	// Recovery is always LIVE-restricted: the stuck records may predate
	// today's day window, so a day-scoped pass could miss them.
	report, err := engine.RunPass(ctx, true)
	if err != nil {
		s.logger.Warn("startup recovery pass failed", "league", lg.ID, "error", err)
	}
	s.record(ctx, report)
}

func (s *Scheduler) runPass(ctx context.Context, lg config.LeagueConfig, engine *reconcile.Engine) {
	report, err := engine.RunPass(ctx, lg.LiveOnly)
	if err != nil {
		// Transient by taxonomy: the next tick retries from scratch.
		s.logger.Warn("reconciliation pass failed", "league", lg.ID, "error", err)
	}
	s.record(ctx, report)
}

// sweepLoop flips SCHEDULED matches to LIVE on elapsed wall-clock time
// alone. No scraping happens here; it is a cheap local check through
// the same transition guard.
func (s *Scheduler) sweepLoop(ctx context.Context, lg config.LeagueConfig) {
	ticker := time.NewTicker(lg.KickoffSweep.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.kickoffSweep(ctx, lg)
		}
	}
}

func (s *Scheduler) kickoffSweep(ctx context.Context, lg config.LeagueConfig) {
	due, err := s.store.FindScheduledBefore(ctx, lg.ID, time.Now())
	if err != nil {
		s.logger.Error("kickoff sweep query failed", "league", lg.ID, "error", err)
		return
	}
	for _, rec := range due {
		decision := reconcile.Authorize(rec.Status, types.StatusLive)
		if decision.Rejected || decision.Status != types.StatusLive {
			continue
		}
		ok, err := s.store.UpdateStatus(ctx, rec.ID, rec.Status, types.StatusLive)
		if err != nil {
			s.logger.Error("kickoff sweep update failed", "league", lg.ID, "match_id", rec.ID, "error", err)
			continue
		}
		if ok {
			s.logger.Info("kickoff reached, match set live", "league", lg.ID, "match_id", rec.ID, "kickoff_at", rec.KickoffAt)
		}
	}
}

// seasonLoop fires the calendar sync once per day at the configured
// local time.
func (s *Scheduler) seasonLoop(ctx context.Context) {
	offset, err := config.ParseClock(s.cfg.Season.DailyAt)
	if err != nil {
		s.logger.Error("invalid season daily_at", "value", s.cfg.Season.DailyAt, "error", err)
		return
	}
	for {
		wait := untilNext(time.Now(), offset)
		s.logger.Debug("season sync scheduled", "in", wait.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		for _, report := range s.seasons.SyncAll(ctx) {
			s.logger.Info("season sync report",
				"league", report.LeagueID,
				"pages", report.Pages,
				"upserted", report.Upserted,
				"skipped", report.Skipped,
				"errors", report.Errors,
			)
		}
	}
}

// record remembers the league's last pass report and mirrors it to the
// jobstate store when one is configured.
func (s *Scheduler) record(ctx context.Context, report types.PassReport) {
	if report.LeagueID == "" {
		return
	}
	s.mu.Lock()
	s.reports[report.LeagueID] = report
	s.mu.Unlock()

	if s.states == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.states.Save(saveCtx, jobstate.FromReport(report)); err != nil {
		s.logger.Debug("jobstate save failed", "league", report.LeagueID, "error", err)
	}
}

// RunLeaguePass executes one on-demand reconciliation pass for the
// league, sharing the recording path with scheduled passes.
func (s *Scheduler) RunLeaguePass(ctx context.Context, leagueID string) (types.PassReport, error) {
	engine, ok := s.engines[leagueID]
	if !ok {
		return types.PassReport{}, fmt.Errorf("unknown league %q", leagueID)
	}
	lg, _ := s.cfg.League(leagueID)
	report, err := engine.RunPass(ctx, lg.LiveOnly)
	s.record(ctx, report)
	return report, err
}

// LastReports returns the most recent pass report per league.
func (s *Scheduler) LastReports() []types.PassReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.PassReport, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r)
	}
	return out
}

// untilNext computes the wait until the next daily occurrence of the
// given offset from local midnight.
func untilNext(now time.Time, offset time.Duration) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	next := midnight.Add(offset)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
