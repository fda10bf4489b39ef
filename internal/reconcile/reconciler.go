package reconcile

import (
	"context"
	"log/slog"
	"time"

	"matchsync/internal/roster"
	"matchsync/internal/status"
	"matchsync/pkg/types"
)

// MatchWriter is the narrow persistence surface the reconciler needs.
type MatchWriter interface {
	UpdateState(ctx context.Context, id int64, prev, next types.MatchStatus, homeScore, awayScore *int) (bool, error)
	UpdateStatus(ctx context.Context, id int64, prev, next types.MatchStatus) (bool, error)
	CorrectScores(ctx context.Context, id int64, homeScore, awayScore int) (bool, error)
}

// Reconciler pairs persisted matches with scraped rows and applies
// guarded writes. One Reconciler serves one league.
type Reconciler struct {
	writer     MatchWriter
	classifier *status.Classifier
	table      *roster.Table
	grace      time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// New constructs a reconciler for a league.
func New(writer MatchWriter, classifier *status.Classifier, table *roster.Table, grace time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if grace <= 0 {
		grace = 4 * time.Hour
	}
	return &Reconciler{
		writer:     writer,
		classifier: classifier,
		table:      table,
		grace:      grace,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the wall clock. Tests only.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Pass reconciles every match of interest against the scraped rows of
// one page. Failures stay local to one match; the slice always carries
// one outcome per input match.
func (r *Reconciler) Pass(ctx context.Context, matches []types.MatchRecord, rows []types.ScrapedRow) []types.OutcomeRecord {
	outcomes := make([]types.OutcomeRecord, 0, len(matches))
	for _, rec := range matches {
		outcome := r.reconcileOne(ctx, rec, rows)
		outcomes = append(outcomes, types.OutcomeRecord{MatchID: rec.ID, Outcome: outcome})
	}
	return outcomes
}

func (r *Reconciler) reconcileOne(ctx context.Context, rec types.MatchRecord, rows []types.ScrapedRow) types.Outcome {
	row, found := MatchRow(rec, rows, r.table)
	if !found {
		return r.fallback(ctx, rec)
	}

	proposed := r.classifier.Classify(row.RawStatus)
	decision := Authorize(rec.Status, proposed)
	if decision.Rejected {
		r.logger.Warn("transition refused",
			"match_id", rec.ID,
			"current", rec.Status,
			"proposed", proposed,
			"raw_status", row.RawStatus,
		)
	}

	homeScore := ParseScore(row.RawHomeScore)
	awayScore := ParseScore(row.RawAwayScore)
	scrapedPair := homeScore != nil && awayScore != nil

	// Frozen terminal status: only a differing score pair may be
	// corrected, and never nulled.
	if rec.Status == types.StatusFinished {
		if decision.AllowScore && scrapedPair && scoreDiffers(rec, homeScore, awayScore) {
			ok, err := r.writer.CorrectScores(ctx, rec.ID, *homeScore, *awayScore)
			if err != nil {
				r.logger.Error("score correction failed", "match_id", rec.ID, "error", err)
				return types.OutcomeUnchanged
			}
			if ok {
				r.logger.Info("finished score corrected",
					"match_id", rec.ID, "home", *homeScore, "away", *awayScore)
				return types.OutcomeUpdated
			}
		}
		return types.OutcomeUnchanged
	}

	nextHome, nextAway := rec.HomeScore, rec.AwayScore
	if decision.AllowScore && scrapedPair {
		nextHome, nextAway = homeScore, awayScore
	}

	statusChanged := decision.Status != rec.Status
	scoreChanged := !pairEqual(rec.HomeScore, nextHome) || !pairEqual(rec.AwayScore, nextAway)
	if !statusChanged && !scoreChanged {
		return types.OutcomeUnchanged
	}

	ok, err := r.writer.UpdateState(ctx, rec.ID, rec.Status, decision.Status, nextHome, nextAway)
	if err != nil {
		r.logger.Error("state update failed", "match_id", rec.ID, "error", err)
		return types.OutcomeUnchanged
	}
	if !ok {
		// A concurrent pass already moved the record; ours is stale.
		r.logger.Debug("conditional update lost", "match_id", rec.ID, "expected_status", rec.Status)
		return types.OutcomeUnchanged
	}
	r.logger.Info("match updated",
		"match_id", rec.ID,
		"status", decision.Status,
		"prev_status", rec.Status,
		"home", scoreLog(nextHome),
		"away", scoreLog(nextAway),
	)
	return types.OutcomeUpdated
}

// fallback handles a match absent from the page. Once the scheduled
// start plus the grace window has elapsed, the record is presumed
// finished: old matches scroll off the "today" page and would otherwise
// stay LIVE forever. Existing scores are retained as final.
func (r *Reconciler) fallback(ctx context.Context, rec types.MatchRecord) types.Outcome {
	if rec.Status == types.StatusFinished {
		return types.OutcomeUnchanged
	}
	if r.now().Before(rec.KickoffAt.Add(r.grace)) {
		return types.OutcomeNotFoundOnPage
	}

	ok, err := r.writer.UpdateStatus(ctx, rec.ID, rec.Status, types.StatusFinished)
	if err != nil {
		r.logger.Error("fallback completion failed", "match_id", rec.ID, "error", err)
		return types.OutcomeNotFoundOnPage
	}
	if !ok {
		return types.OutcomeUnchanged
	}
	r.logger.Info("fallback completion",
		"match_id", rec.ID,
		"prev_status", rec.Status,
		"kickoff_at", rec.KickoffAt,
		"grace", r.grace,
	)
	return types.OutcomeFallbackFinished
}

func scoreDiffers(rec types.MatchRecord, home, away *int) bool {
	return !pairEqual(rec.HomeScore, home) || !pairEqual(rec.AwayScore, away)
}

func pairEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func scoreLog(v *int) any {
	if v == nil {
		return "-"
	}
	return *v
}
