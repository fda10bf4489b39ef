// Package jobstate persists per-league pass snapshots so operators can
// see what the last reconciliation did even across process restarts.
// Persistence is best-effort: an unreachable store degrades to logs and
// never blocks a pass.
package jobstate

import (
	"context"
	"time"

	"matchsync/internal/config"
	"matchsync/pkg/types"
)

// Snapshot captures the outcome of a league's most recent pass.
type Snapshot struct {
	LeagueID         string    `json:"league_id"`
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	DurationMillis   int64     `json:"duration_ms"`
	RowsExtracted    int       `json:"rows_extracted"`
	Updated          int       `json:"updated"`
	Unchanged        int       `json:"unchanged"`
	NotFound         int       `json:"not_found"`
	FallbackFinished int       `json:"fallback_finished"`
	Error            string    `json:"error,omitempty"`
}

// FromReport converts a pass report into its persisted form.
func FromReport(r types.PassReport) Snapshot {
	return Snapshot{
		LeagueID:         r.LeagueID,
		RunID:            r.RunID,
		StartedAt:        r.StartedAt,
		DurationMillis:   r.Duration.Milliseconds(),
		RowsExtracted:    r.RowsExtracted,
		Updated:          r.Updated,
		Unchanged:        r.Unchanged,
		NotFound:         r.NotFound,
		FallbackFinished: r.FallbackFinished,
		Error:            r.Error,
	}
}

// Store persists pass snapshots keyed by league.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, leagueID string) (Snapshot, bool, error)
	List(ctx context.Context) ([]Snapshot, error)
	Close() error
}

// NewFromConfig initialises a Redis store when one is configured, and
// reports (nil, nil) otherwise so callers can run without it.
func NewFromConfig(cfg config.RedisConfig) (Store, error) {
	if cfg.Host == "" {
		return nil, nil
	}
	return NewRedisStore(cfg)
}
