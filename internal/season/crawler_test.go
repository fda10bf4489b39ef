package season

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"matchsync/internal/config"
	"matchsync/internal/roster"
	"matchsync/pkg/types"
)

func TestParseKickoff(t *testing.T) {
	month := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		raw  string
		want time.Time
	}{
		{"2026-03-14 14:00", time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)},
		{"2026.03.14 14:00", time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)},
		{"03.14 14:00", time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)},
		{"03-14 19:30", time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)},
		{"14 19:30", time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)},
		{"  14   19:30 ", time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := parseKickoff(tc.raw, month)
		if err != nil {
			t.Errorf("parseKickoff(%q): %v", tc.raw, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("parseKickoff(%q): expected %s, got %s", tc.raw, tc.want, got)
		}
	}

	for _, raw := range []string{"", "내일", "14:00:00:00"} {
		if _, err := parseKickoff(raw, month); err == nil {
			t.Errorf("parseKickoff(%q): expected error", raw)
		}
	}
}

func TestMonthsWindow(t *testing.T) {
	c := &Crawler{now: func() time.Time {
		return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	}}
	src := config.SeasonSourceConfig{MonthsBack: 1, MonthsAhead: 2}

	months := c.months(src)
	if len(months) != 4 {
		t.Fatalf("expected 4 months, got %d", len(months))
	}
	want := []string{"202602", "202603", "202604", "202605"}
	for i, m := range months {
		if got := m.Format("200601"); got != want[i] {
			t.Errorf("month %d: expected %s, got %s", i, want[i], got)
		}
	}
}

type fakeFixtureStore struct {
	mu      sync.Mutex
	upserts []types.MatchRecord
}

func (s *fakeFixtureStore) UpsertFixture(ctx context.Context, rec types.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, rec)
	return nil
}

const calendarHTML = `
<table class="schedule"><tbody>
<tr>
  <td class="time">03.14 14:00</td>
  <td class="home">울산 HD</td>
  <td class="away">FC 서울</td>
  <td class="venue">울산문수축구경기장</td>
</tr>
<tr>
  <td class="time">03.21 16:30</td>
  <td class="home">신생팀</td>
  <td class="away">FC 서울</td>
</tr>
</tbody></table>`

func TestSyncLeague(t *testing.T) {
	var requested []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Query().Get("month"))
		if r.URL.Query().Get("month") == "202604" {
			// Off-season month with an empty calendar.
			fmt.Fprint(w, `<table class="schedule"><tbody></tbody></table>`)
			return
		}
		fmt.Fprint(w, calendarHTML)
	}))
	defer server.Close()

	cfg := config.SeasonConfig{
		UserAgent:      "matchsync-test/1.0",
		RequestTimeout: config.DurationFrom(5 * time.Second),
		MaxBodyBytes:   1 << 20,
		RespectRobots:  false,
	}
	resolver := roster.NewResolver(roster.NewTable("kleague1", map[string]string{
		"울산 HD": "ulsan-hd",
		"FC 서울": "fc-seoul",
	}))
	store := &fakeFixtureStore{}
	crawler := NewCrawler(cfg, resolver, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	crawler.now = func() time.Time {
		return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	}

	src := config.SeasonSourceConfig{
		LeagueID:    "kleague1",
		URLTemplate: server.URL + "/schedule?month={month}",
		MonthsAhead: 1,
		Selectors: config.SelectorConfig{
			Row:      "table.schedule tbody tr",
			Time:     "td.time",
			Venue:    "td.venue",
			HomeName: "td.home",
			AwayName: "td.away",
		},
	}

	report, err := crawler.SyncLeague(context.Background(), src)
	if err != nil {
		t.Fatalf("SyncLeague: %v", err)
	}
	if len(requested) != 2 || requested[0] != "202603" || requested[1] != "202604" {
		t.Fatalf("unexpected months requested: %v", requested)
	}
	// Two rows per populated month; the unknown-team row is skipped.
	if report.Upserted != 1 || report.Skipped != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Errors != 0 {
		t.Fatalf("unexpected errors in report: %+v", report)
	}

	if len(store.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(store.upserts))
	}
	rec := store.upserts[0]
	if rec.LeagueID != "kleague1" || rec.HomeID != "ulsan-hd" || rec.AwayID != "fc-seoul" {
		t.Fatalf("unexpected fixture: %+v", rec)
	}
	if rec.Status != types.StatusScheduled {
		t.Fatalf("expected fixtures to be created SCHEDULED, got %s", rec.Status)
	}
	if rec.KickoffAt.Day() != 14 || rec.KickoffAt.Hour() != 14 {
		t.Fatalf("unexpected kickoff %s", rec.KickoffAt)
	}
	if rec.Venue != "울산문수축구경기장" {
		t.Fatalf("unexpected venue %q", rec.Venue)
	}
}

func TestSyncLeagueToleratesFailingMonth(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream error", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, calendarHTML)
	}))
	defer server.Close()

	cfg := config.SeasonConfig{
		UserAgent:      "matchsync-test/1.0",
		RequestTimeout: config.DurationFrom(5 * time.Second),
		MaxBodyBytes:   1 << 20,
	}
	resolver := roster.NewResolver(roster.NewTable("kleague1", map[string]string{
		"울산 HD": "ulsan-hd",
		"FC 서울": "fc-seoul",
	}))
	store := &fakeFixtureStore{}
	crawler := NewCrawler(cfg, resolver, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	crawler.now = func() time.Time {
		return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	}

	src := config.SeasonSourceConfig{
		LeagueID:    "kleague1",
		URLTemplate: server.URL + "/schedule?month={month}",
		MonthsAhead: 1,
		Selectors: config.SelectorConfig{
			Row:      "table.schedule tbody tr",
			Time:     "td.time",
			HomeName: "td.home",
			AwayName: "td.away",
		},
	}

	report, err := crawler.SyncLeague(context.Background(), src)
	if err != nil {
		t.Fatalf("SyncLeague: %v", err)
	}
	if report.Errors != 1 {
		t.Fatalf("expected the failed month to be counted, got %+v", report)
	}
	if report.Upserted != 1 {
		t.Fatalf("expected the surviving month to upsert, got %+v", report)
	}
}
