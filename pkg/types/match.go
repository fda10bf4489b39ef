package types

import "time"

// MatchStatus is the canonical lifecycle state of a match, independent of
// whatever wording the external source uses.
type MatchStatus string

const (
	StatusScheduled MatchStatus = "SCHEDULED"
	StatusLive      MatchStatus = "LIVE"
	StatusFinished  MatchStatus = "FINISHED"
	StatusPostponed MatchStatus = "POSTPONED"
)

// Valid reports whether the status is one of the four canonical states.
func (s MatchStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusLive, StatusFinished, StatusPostponed:
		return true
	}
	return false
}

// Terminal reports whether the status can never change again.
func (s MatchStatus) Terminal() bool {
	return s == StatusFinished
}

// MatchRecord is the persisted view of a single match. Records are created
// by the season ingestion crawl and mutated exclusively by the reconciler.
type MatchRecord struct {
	ID        int64
	LeagueID  string
	HomeID    string
	AwayID    string
	KickoffAt time.Time
	Venue     string
	Status    MatchStatus
	HomeScore *int
	AwayScore *int
	UpdatedAt time.Time
}

// HasScore reports whether both score fields are populated.
func (m MatchRecord) HasScore() bool {
	return m.HomeScore != nil && m.AwayScore != nil
}

// ScrapedRow holds the raw fields extracted from one match row on the
// source page. It lives for a single reconciliation pass and is never
// persisted; participant names are as displayed, not identifiers.
type ScrapedRow struct {
	HomeName     string
	AwayName     string
	RawStatus    string
	RawHomeScore string
	RawAwayScore string
	Venue        string
	RawTime      string
}

// Outcome describes what happened to one match during one pass.
type Outcome string

const (
	OutcomeUpdated          Outcome = "updated"
	OutcomeUnchanged        Outcome = "unchanged"
	OutcomeNotFoundOnPage   Outcome = "not-found-on-page"
	OutcomeFallbackFinished Outcome = "fallback-finished"
)

// OutcomeRecord pairs a match with its per-pass outcome.
type OutcomeRecord struct {
	MatchID int64
	Outcome Outcome
}

// PassReport aggregates one reconciliation pass for logging and the
// admin API.
type PassReport struct {
	LeagueID         string        `json:"league_id"`
	RunID            string        `json:"run_id"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	RowsExtracted    int           `json:"rows_extracted"`
	Updated          int           `json:"updated"`
	Unchanged        int           `json:"unchanged"`
	NotFound         int           `json:"not_found"`
	FallbackFinished int           `json:"fallback_finished"`
	Error            string        `json:"error,omitempty"`
}

// Count increments the counter matching the outcome.
func (r *PassReport) Count(o Outcome) {
	switch o {
	case OutcomeUpdated:
		r.Updated++
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeNotFoundOnPage:
		r.NotFound++
	case OutcomeFallbackFinished:
		r.FallbackFinished++
	}
}
