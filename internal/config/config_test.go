package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
db:
  driver: postgres
  dsn: postgres://localhost/matchsync
leagues:
  - id: KLeague1
    scoreboard_url: "https://sports.example.com/kleague1 "
    roster_path: configs/rosters/kleague1.yaml
    live_refresh: 30s
    selectors:
      row: "div.row"
      status: "span.status"
      home_name: "span.home"
      away_name: "span.away"
`

func TestLoadFromReaderAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	lg := cfg.Leagues[0]
	if lg.ID != "kleague1" {
		t.Errorf("expected lowercased league id, got %q", lg.ID)
	}
	if lg.ScoreboardURL != "https://sports.example.com/kleague1" {
		t.Errorf("expected trimmed scoreboard url, got %q", lg.ScoreboardURL)
	}
	if lg.KickoffSweep.Duration != 5*time.Minute {
		t.Errorf("expected default kickoff sweep of 5m, got %s", lg.KickoffSweep.Duration)
	}
	if lg.GraceWindow.Duration != 4*time.Hour {
		t.Errorf("expected default grace window of 4h, got %s", lg.GraceWindow.Duration)
	}
	if cfg.Browser.Timeout.Duration != 12*time.Second {
		t.Errorf("expected default browser timeout, got %s", cfg.Browser.Timeout.Duration)
	}
	if cfg.Browser.PassAttempts != 3 {
		t.Errorf("expected default pass attempts, got %d", cfg.Browser.PassAttempts)
	}
	if cfg.API.Addr != ":8080" {
		t.Errorf("expected default api addr, got %q", cfg.API.Addr)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	yaml := strings.Replace(validYAML, "db:", "databse:", 1)
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no leagues", func(c *Config) { c.Leagues = nil }},
		{"duplicate league", func(c *Config) { c.Leagues = append(c.Leagues, c.Leagues[0]) }},
		{"empty scoreboard url", func(c *Config) { c.Leagues[0].ScoreboardURL = "" }},
		{"empty roster path", func(c *Config) { c.Leagues[0].RosterPath = "" }},
		{"missing row selector", func(c *Config) { c.Leagues[0].Selectors.Row = "" }},
		{"missing status selector", func(c *Config) { c.Leagues[0].Selectors.Status = "" }},
		{"missing name selectors", func(c *Config) { c.Leagues[0].Selectors.HomeName = "" }},
		{"zero live refresh", func(c *Config) { c.Leagues[0].LiveRefresh = Duration{} }},
		{"zero browser sessions", func(c *Config) { c.Browser.ConcurrentSessions = 0 }},
		{"empty user agent", func(c *Config) { c.Browser.UserAgent = " " }},
		{"zero max jobs", func(c *Config) { c.API.MaxConcurrentJobs = 0 }},
		{"bad season clock", func(c *Config) {
			c.Season.Enabled = true
			c.Season.DailyAt = "25:99"
		}},
		{"season without sources", func(c *Config) { c.Season.Enabled = true }},
		{"season source unknown league", func(c *Config) {
			c.Season.Enabled = true
			c.Season.Sources = []SeasonSourceConfig{{LeagueID: "npb", URLTemplate: "https://x/{month}"}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadFromReader(strings.NewReader(validYAML))
			if err != nil {
				t.Fatalf("base config must be valid: %v", err)
			}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDurationAcceptsStringAndSeconds(t *testing.T) {
	yaml := strings.Replace(validYAML, "live_refresh: 30s", "live_refresh: 45", 1)
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Leagues[0].LiveRefresh.Duration != 45*time.Second {
		t.Fatalf("expected numeric duration as seconds, got %s", cfg.Leagues[0].LiveRefresh.Duration)
	}
}

func TestParseClock(t *testing.T) {
	offset, err := ParseClock("05:30")
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	if offset != 5*time.Hour+30*time.Minute {
		t.Fatalf("expected 5h30m, got %s", offset)
	}
	if _, err := ParseClock("morning"); err == nil {
		t.Fatal("expected error for unparseable clock")
	}
}

func TestLeagueLookup(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if _, ok := cfg.League("kleague1"); !ok {
		t.Fatal("expected configured league to be found")
	}
	if _, ok := cfg.League("npb"); ok {
		t.Fatal("expected unknown league lookup to fail")
	}
}
