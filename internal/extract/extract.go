// Package extract pulls raw match rows out of a rendered scoreboard DOM.
// Selectors are configuration, not code, so new leagues only need a
// config block.
package extract

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"matchsync/internal/config"
	"matchsync/pkg/types"
)

// ErrNoRows signals that the row selector matched nothing. The caller
// treats this as a transient page failure and retries the pass.
var ErrNoRows = errors.New("no match rows found on page")

// Extractor reads per-row fields using a league's selector set.
type Extractor struct {
	sel    config.SelectorConfig
	logger *slog.Logger
}

// New builds an extractor for one league.
func New(sel config.SelectorConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{sel: sel, logger: logger}
}

// Rows extracts every match row from the document. A malformed row is
// logged and skipped; the rest of the page continues processing.
func (e *Extractor) Rows(doc *goquery.Document) ([]types.ScrapedRow, error) {
	if doc == nil {
		return nil, errors.New("nil document")
	}
	nodes := doc.Find(e.sel.Row)
	if nodes.Length() == 0 {
		return nil, ErrNoRows
	}

	rows := make([]types.ScrapedRow, 0, nodes.Length())
	nodes.Each(func(i int, s *goquery.Selection) {
		row, err := e.row(s)
		if err != nil {
			e.logger.Warn("skipping malformed row", "index", i, "error", err)
			return
		}
		rows = append(rows, row)
	})
	return rows, nil
}

func (e *Extractor) row(s *goquery.Selection) (types.ScrapedRow, error) {
	home := fieldText(s, e.sel.HomeName)
	away := fieldText(s, e.sel.AwayName)
	if home == "" || away == "" {
		return types.ScrapedRow{}, errors.New("missing participant name")
	}

	return types.ScrapedRow{
		HomeName:     home,
		AwayName:     away,
		RawStatus:    fieldText(s, e.sel.Status),
		RawHomeScore: fieldText(s, e.sel.HomeScore),
		RawAwayScore: fieldText(s, e.sel.AwayScore),
		Venue:        fieldText(s, e.sel.Venue),
		RawTime:      fieldText(s, e.sel.Time),
	}, nil
}

// fieldText finds the first child matching the selector and returns its
// whitespace-normalized text. An empty selector yields an empty field,
// which lets leagues omit venue or time columns they do not publish.
func fieldText(s *goquery.Selection, selector string) string {
	if strings.TrimSpace(selector) == "" {
		return ""
	}
	return NormalizeText(s.Find(selector).First().Text())
}

// NormalizeText collapses interior whitespace runs and trims the result.
func NormalizeText(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
