// Package store persists match records. All cross-job coordination goes
// through this layer: concurrent writers to the same match serialize on
// per-record conditional updates, so no in-memory locking is shared
// between league jobs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"matchsync/internal/config"
	"matchsync/pkg/types"
)

// MatchStore reads and writes match records through database/sql.
type MatchStore struct {
	db          *sql.DB
	autoMigrate bool
}

// New opens the database configured in cfg, optionally creating the
// database and schema.
func New(cfg config.SQLConfig) (*MatchStore, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.New("sql config missing driver or dsn")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if cfg.CreateIfMissing && shouldAttemptCreateDatabase(cfg.Driver, err) {
			_ = db.Close()
			if err := createDatabase(ctx, cfg); err != nil {
				return nil, err
			}
			db, err = sql.Open(cfg.Driver, cfg.DSN)
			if err != nil {
				return nil, fmt.Errorf("open sql connection: %w", err)
			}
			if err := db.PingContext(ctx); err != nil {
				return nil, fmt.Errorf("ping sql connection: %w", err)
			}
		} else {
			return nil, fmt.Errorf("ping sql connection: %w", err)
		}
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}

	store := &MatchStore{db: db, autoMigrate: cfg.AutoMigrate}
	if cfg.AutoMigrate {
		if err := store.ensureSchema(context.Background()); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *MatchStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const matchColumns = `id, league_id, home_id, away_id, kickoff_at, venue, status, home_score, away_score, updated_at`

// FindByID loads a single match.
func (s *MatchStore) FindByID(ctx context.Context, id int64) (types.MatchRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
	return scanMatch(row)
}

// FindByLeagueAndStatus lists a league's matches in any of the given
// statuses, ordered by kickoff time.
func (s *MatchStore) FindByLeagueAndStatus(ctx context.Context, leagueID string, statuses ...types.MatchStatus) ([]types.MatchRecord, error) {
	if len(statuses) == 0 {
		return nil, errors.New("at least one status required")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM matches
		 WHERE league_id = $1 AND status = ANY($2)
		 ORDER BY kickoff_at`,
		leagueID, pq.Array(statusStrings(statuses)))
	if err != nil {
		return nil, fmt.Errorf("query matches by status: %w", err)
	}
	return collectMatches(rows)
}

// FindDayNonFinished lists a league's matches kicking off on the given
// local day that have not reached a terminal status.
func (s *MatchStore) FindDayNonFinished(ctx context.Context, leagueID string, day time.Time) ([]types.MatchRecord, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM matches
		 WHERE league_id = $1 AND kickoff_at >= $2 AND kickoff_at < $3 AND status <> $4
		 ORDER BY kickoff_at`,
		leagueID, start, end, string(types.StatusFinished))
	if err != nil {
		return nil, fmt.Errorf("query day matches: %w", err)
	}
	return collectMatches(rows)
}

// FindScheduledBefore lists SCHEDULED matches whose kickoff time has
// already passed. Used by the kickoff sweep, which flips them to LIVE
// without scraping.
func (s *MatchStore) FindScheduledBefore(ctx context.Context, leagueID string, cutoff time.Time) ([]types.MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM matches
		 WHERE league_id = $1 AND status = $2 AND kickoff_at <= $3
		 ORDER BY kickoff_at`,
		leagueID, string(types.StatusScheduled), cutoff)
	if err != nil {
		return nil, fmt.Errorf("query scheduled matches: %w", err)
	}
	return collectMatches(rows)
}

// UpdateState applies a guarded status/score write. The WHERE clause on
// the previous status makes the write conditional: a concurrent pass
// that already moved the record causes rowsAffected = 0 and the caller
// treats the update as lost without error.
func (s *MatchStore) UpdateState(ctx context.Context, id int64, prev, next types.MatchStatus, homeScore, awayScore *int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE matches
		 SET status = $1, home_score = $2, away_score = $3, updated_at = NOW()
		 WHERE id = $4 AND status = $5`,
		string(next), nullableInt(homeScore), nullableInt(awayScore), id, string(prev))
	if err != nil {
		return false, fmt.Errorf("update match state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateStatus changes only the status, preserving stored scores. Used
// by fallback completion, which must not null out the last known score.
func (s *MatchStore) UpdateStatus(ctx context.Context, id int64, prev, next types.MatchStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE matches SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		string(next), id, string(prev))
	if err != nil {
		return false, fmt.Errorf("update match status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// CorrectScores overwrites the score pair of a FINISHED match. The
// status itself is frozen; only the numbers move.
func (s *MatchStore) CorrectScores(ctx context.Context, id int64, homeScore, awayScore int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE matches SET home_score = $1, away_score = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		homeScore, awayScore, id, string(types.StatusFinished))
	if err != nil {
		return false, fmt.Errorf("correct match scores: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// UpsertFixture creates the match if absent or refreshes kickoff/venue
// on a still-SCHEDULED record. FINISHED and LIVE records are never
// touched by the season crawl.
func (s *MatchStore) UpsertFixture(ctx context.Context, rec types.MatchRecord) error {
	if err := s.upsertFixture(ctx, rec); err != nil {
		if s.autoMigrate && isUndefinedTableErr(err) {
			if schemaErr := s.ensureSchema(ctx); schemaErr != nil {
				return fmt.Errorf("ensure schema: %w", schemaErr)
			}
			if retryErr := s.upsertFixture(ctx, rec); retryErr != nil {
				return fmt.Errorf("upsert fixture: %w", retryErr)
			}
			return nil
		}
		return fmt.Errorf("upsert fixture: %w", err)
	}
	return nil
}

func (s *MatchStore) upsertFixture(ctx context.Context, rec types.MatchRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO matches (league_id, home_id, away_id, kickoff_at, venue, status, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (league_id, home_id, away_id, (kickoff_at::date)) DO UPDATE SET
		     kickoff_at = EXCLUDED.kickoff_at,
		     venue = EXCLUDED.venue,
		     updated_at = NOW()
		 WHERE matches.status = $7`,
		rec.LeagueID, rec.HomeID, rec.AwayID, rec.KickoffAt, rec.Venue,
		string(types.StatusScheduled), string(types.StatusScheduled))
	return err
}

func (s *MatchStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil || !s.autoMigrate {
		return nil
	}
	schemaCtx := ctx
	if schemaCtx == nil || schemaCtx.Err() != nil {
		schemaCtx = context.Background()
	}
	schemaCtx, cancel := context.WithTimeout(schemaCtx, 10*time.Second)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS matches (
		    id BIGSERIAL PRIMARY KEY,
		    league_id TEXT NOT NULL,
		    home_id TEXT NOT NULL,
		    away_id TEXT NOT NULL,
		    kickoff_at TIMESTAMPTZ NOT NULL,
		    venue TEXT NOT NULL DEFAULT '',
		    status TEXT NOT NULL DEFAULT 'SCHEDULED',
		    home_score INT,
		    away_score INT,
		    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_fixture
		    ON matches (league_id, home_id, away_id, (kickoff_at::date))`,
		`CREATE INDEX IF NOT EXISTS idx_matches_league_status ON matches (league_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_kickoff ON matches (kickoff_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func scanMatch(row *sql.Row) (types.MatchRecord, error) {
	var rec types.MatchRecord
	var venue sql.NullString
	var home, away sql.NullInt64
	var status string
	err := row.Scan(&rec.ID, &rec.LeagueID, &rec.HomeID, &rec.AwayID,
		&rec.KickoffAt, &venue, &status, &home, &away, &rec.UpdatedAt)
	if err != nil {
		return types.MatchRecord{}, err
	}
	rec.Venue = venue.String
	rec.Status = types.MatchStatus(status)
	rec.HomeScore = intPtr(home)
	rec.AwayScore = intPtr(away)
	return rec, nil
}

func collectMatches(rows *sql.Rows) ([]types.MatchRecord, error) {
	defer rows.Close()
	var out []types.MatchRecord
	for rows.Next() {
		var rec types.MatchRecord
		var venue sql.NullString
		var home, away sql.NullInt64
		var status string
		if err := rows.Scan(&rec.ID, &rec.LeagueID, &rec.HomeID, &rec.AwayID,
			&rec.KickoffAt, &venue, &status, &home, &away, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		rec.Venue = venue.String
		rec.Status = types.MatchStatus(status)
		rec.HomeScore = intPtr(home)
		rec.AwayScore = intPtr(away)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return out, nil
}

func statusStrings(statuses []types.MatchStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func shouldAttemptCreateDatabase(driver string, err error) bool {
	if !strings.EqualFold(driver, "postgres") {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "3D000"
	}
	return strings.Contains(strings.ToLower(err.Error()), "does not exist")
}

func createDatabase(ctx context.Context, cfg config.SQLConfig) error {
	parsed, err := url.Parse(cfg.DSN)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}
	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return errors.New("dsn missing database name")
	}
	if strings.EqualFold(dbName, "postgres") {
		return fmt.Errorf("target database %q cannot be auto-created", dbName)
	}
	parsed.Path = "/postgres"
	adminDB, err := sql.Open(cfg.Driver, parsed.String())
	if err != nil {
		return fmt.Errorf("connect admin database: %w", err)
	}
	defer adminDB.Close()
	if err := adminDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping admin database: %w", err)
	}
	stmt := fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName))
	if _, err := adminDB.ExecContext(ctx, stmt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P04" {
			return nil
		}
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	return nil
}

func isUndefinedTableErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist")
}
