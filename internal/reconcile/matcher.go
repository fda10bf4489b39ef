package reconcile

import (
	"strconv"
	"strings"

	"matchsync/internal/roster"
	"matchsync/pkg/types"
)

// MatchRow finds the scraped row corresponding to the persisted match by
// resolving both display names through the league's roster table and
// comparing identifier pairs positionally. Home and away are never
// treated as an unordered pair: swapped participants do not match. The
// first matching row wins; a page carrying the same identifier pair
// twice is a data error surfaced by integration tests, not here.
func MatchRow(rec types.MatchRecord, rows []types.ScrapedRow, table *roster.Table) (types.ScrapedRow, bool) {
	for _, row := range rows {
		homeID, ok := table.Resolve(row.HomeName)
		if !ok {
			continue
		}
		awayID, ok := table.Resolve(row.AwayName)
		if !ok {
			continue
		}
		if homeID == rec.HomeID && awayID == rec.AwayID {
			return row, true
		}
	}
	return types.ScrapedRow{}, false
}

// ParseScore converts raw score text to an integer. Non-numeric text
// (placeholder dashes, empty cells, extraction noise) yields nil,
// meaning "no score available this pass"; it never blocks a
// status-only update.
func ParseScore(raw string) *int {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
