package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the full configuration required to run the match
// synchronization daemon.
type Config struct {
	DB      SQLConfig      `yaml:"db"`
	Browser BrowserConfig  `yaml:"browser"`
	Leagues []LeagueConfig `yaml:"leagues"`
	Season  SeasonConfig   `yaml:"season"`
	API     APIConfig      `yaml:"api"`
	Redis   RedisConfig    `yaml:"redis"`
	Logging LoggingConfig  `yaml:"logging"`
}

// SQLConfig describes the relational database holding match records.
type SQLConfig struct {
	Driver          string   `yaml:"driver"`
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	CreateIfMissing bool     `yaml:"create_if_missing"`
	AutoMigrate     bool     `yaml:"auto_migrate"`
}

// BrowserConfig controls the headless browser sessions used by
// reconciliation passes.
type BrowserConfig struct {
	Timeout            Duration `yaml:"timeout"`
	ConcurrentSessions int      `yaml:"concurrent_sessions"`
	DisableHeadless    bool     `yaml:"disable_headless"`
	UserAgent          string   `yaml:"user_agent"`
	PassAttempts       int      `yaml:"pass_attempts"`
	RetryDelay         Duration `yaml:"retry_delay"`
}

// LeagueConfig declares one league's scoreboard source, name table, and
// scheduling cadence. Each league runs on its own independent timers.
type LeagueConfig struct {
	ID            string          `yaml:"id"`
	ScoreboardURL string          `yaml:"scoreboard_url"`
	RosterPath    string          `yaml:"roster_path"`
	Selectors     SelectorConfig  `yaml:"selectors"`
	LiveRefresh   Duration        `yaml:"live_refresh"`
	KickoffSweep  Duration        `yaml:"kickoff_sweep"`
	InitialDelay  Duration        `yaml:"initial_delay"`
	GraceWindow   Duration        `yaml:"grace_window"`
	LiveOnly      bool            `yaml:"live_only"`
	StatusTokens  StatusTokenSets `yaml:"status_tokens"`
}

// SelectorConfig holds the CSS selectors that locate one match row and
// its sub-fields on the league's scoreboard page.
type SelectorConfig struct {
	Row       string `yaml:"row"`
	WaitFor   string `yaml:"wait_for"`
	Time      string `yaml:"time"`
	Venue     string `yaml:"venue"`
	Status    string `yaml:"status"`
	HomeName  string `yaml:"home_name"`
	AwayName  string `yaml:"away_name"`
	HomeScore string `yaml:"home_score"`
	AwayScore string `yaml:"away_score"`
}

// StatusTokenSets appends league-specific raw status labels to the
// built-in classifier token sets.
type StatusTokenSets struct {
	Finished  []string `yaml:"finished"`
	Scheduled []string `yaml:"scheduled"`
	Postponed []string `yaml:"postponed"`
	Live      []string `yaml:"live"`
}

// SeasonConfig controls the coarse-grained season calendar crawl.
type SeasonConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	DailyAt        string               `yaml:"daily_at"`
	UserAgent      string               `yaml:"user_agent"`
	RequestTimeout Duration             `yaml:"request_timeout"`
	PerHostDelay   Duration             `yaml:"per_host_delay"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	RespectRobots  bool                 `yaml:"respect_robots"`
	MaxBodyBytes   int64                `yaml:"max_body_bytes"`
	Sources        []SeasonSourceConfig `yaml:"sources"`
}

// SeasonSourceConfig declares where one league's full fixture calendar
// is published. The URL template receives a YYYYMM month token.
type SeasonSourceConfig struct {
	LeagueID    string         `yaml:"league_id"`
	URLTemplate string         `yaml:"url_template"`
	MonthsAhead int            `yaml:"months_ahead"`
	MonthsBack  int            `yaml:"months_back"`
	Selectors   SelectorConfig `yaml:"selectors"`
}

// RateLimitConfig applies a token bucket per host during the season crawl.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// Enabled reports whether rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

// APIConfig controls the admin HTTP surface.
type APIConfig struct {
	Addr              string `yaml:"addr"`
	MaxConcurrentJobs int    `yaml:"max_concurrent_jobs"`
}

// RedisConfig locates the optional pass-snapshot store.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
	Key      string `yaml:"key"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		DB: SQLConfig{
			AutoMigrate: true,
		},
		Browser: BrowserConfig{
			Timeout:            DurationFrom(12 * time.Second),
			ConcurrentSessions: 2,
			UserAgent:          "matchsync-bot/1.0",
			PassAttempts:       3,
			RetryDelay:         DurationFrom(2 * time.Second),
		},
		Season: SeasonConfig{
			Enabled:        false,
			DailyAt:        "05:00",
			UserAgent:      "matchsync-bot/1.0",
			RequestTimeout: DurationFrom(10 * time.Second),
			PerHostDelay:   DurationFrom(500 * time.Millisecond),
			RespectRobots:  true,
			MaxBodyBytes:   6 * 1024 * 1024,
		},
		API: APIConfig{
			Addr:              ":8080",
			MaxConcurrentJobs: 3,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces required invariants for the daemon configuration.
func (c Config) Validate() error {
	if len(c.Leagues) == 0 {
		return errors.New("at least one league must be configured")
	}
	seen := make(map[string]struct{}, len(c.Leagues))
	for i, lg := range c.Leagues {
		if lg.ID == "" {
			return fmt.Errorf("league %d has empty id", i)
		}
		if _, dup := seen[lg.ID]; dup {
			return fmt.Errorf("league %q configured twice", lg.ID)
		}
		seen[lg.ID] = struct{}{}
		if lg.ScoreboardURL == "" {
			return fmt.Errorf("league %q missing scoreboard_url", lg.ID)
		}
		if lg.RosterPath == "" {
			return fmt.Errorf("league %q missing roster_path", lg.ID)
		}
		if lg.Selectors.Row == "" {
			return fmt.Errorf("league %q missing selectors.row", lg.ID)
		}
		if lg.Selectors.Status == "" {
			return fmt.Errorf("league %q missing selectors.status", lg.ID)
		}
		if lg.Selectors.HomeName == "" || lg.Selectors.AwayName == "" {
			return fmt.Errorf("league %q missing team name selectors", lg.ID)
		}
		if lg.LiveRefresh.Duration <= 0 {
			return fmt.Errorf("league %q live_refresh must be > 0", lg.ID)
		}
		if lg.GraceWindow.Duration <= 0 {
			return fmt.Errorf("league %q grace_window must be > 0", lg.ID)
		}
	}
	if c.Browser.Timeout.Duration <= 0 {
		return errors.New("browser.timeout must be > 0")
	}
	if c.Browser.ConcurrentSessions <= 0 {
		return fmt.Errorf("browser.concurrent_sessions must be > 0 (got %d)", c.Browser.ConcurrentSessions)
	}
	if c.Browser.PassAttempts <= 0 {
		return fmt.Errorf("browser.pass_attempts must be > 0 (got %d)", c.Browser.PassAttempts)
	}
	if strings.TrimSpace(c.Browser.UserAgent) == "" {
		return errors.New("browser.user_agent must be set")
	}
	if c.Season.Enabled {
		if _, err := ParseClock(c.Season.DailyAt); err != nil {
			return fmt.Errorf("season.daily_at: %w", err)
		}
		if len(c.Season.Sources) == 0 {
			return errors.New("season.sources must include at least one entry when season.enabled is true")
		}
		for i, src := range c.Season.Sources {
			if src.LeagueID == "" {
				return fmt.Errorf("season source %d missing league_id", i)
			}
			if _, known := seen[src.LeagueID]; !known {
				return fmt.Errorf("season source %d references unknown league %q", i, src.LeagueID)
			}
			if src.URLTemplate == "" {
				return fmt.Errorf("season source %q missing url_template", src.LeagueID)
			}
		}
		if c.Season.MaxBodyBytes <= 0 {
			return fmt.Errorf("season.max_body_bytes must be > 0 (got %d)", c.Season.MaxBodyBytes)
		}
	}
	if c.API.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("api.max_concurrent_jobs must be > 0 (got %d)", c.API.MaxConcurrentJobs)
	}
	return nil
}

func (c *Config) normalise() {
	for i := range c.Leagues {
		lg := &c.Leagues[i]
		lg.ID = strings.ToLower(strings.TrimSpace(lg.ID))
		lg.ScoreboardURL = strings.TrimSpace(lg.ScoreboardURL)
		lg.RosterPath = strings.TrimSpace(lg.RosterPath)
		if lg.KickoffSweep.IsZero() {
			lg.KickoffSweep = DurationFrom(5 * time.Minute)
		}
		if lg.GraceWindow.IsZero() {
			lg.GraceWindow = DurationFrom(4 * time.Hour)
		}
	}
	c.Browser.UserAgent = strings.TrimSpace(c.Browser.UserAgent)
	c.Season.UserAgent = strings.TrimSpace(c.Season.UserAgent)
	c.Season.DailyAt = strings.TrimSpace(c.Season.DailyAt)
	for i := range c.Season.Sources {
		c.Season.Sources[i].LeagueID = strings.ToLower(strings.TrimSpace(c.Season.Sources[i].LeagueID))
	}
	c.Redis.Host = strings.TrimSpace(c.Redis.Host)
}

// League returns the configuration block for the given league id.
func (c Config) League(id string) (LeagueConfig, bool) {
	for _, lg := range c.Leagues {
		if lg.ID == id {
			return lg, true
		}
	}
	return LeagueConfig{}, false
}

// ParseClock parses a HH:MM local wall-clock time into an offset from
// midnight.
func ParseClock(raw string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", raw, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
