package jobstate

import (
	"testing"
	"time"

	"matchsync/internal/config"
	"matchsync/pkg/types"
)

func TestFromReport(t *testing.T) {
	started := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	report := types.PassReport{
		LeagueID:         "kleague1",
		RunID:            "abc123",
		StartedAt:        started,
		Duration:         1500 * time.Millisecond,
		RowsExtracted:    6,
		Updated:          2,
		Unchanged:        3,
		NotFound:         1,
		FallbackFinished: 0,
		Error:            "",
	}

	snap := FromReport(report)
	if snap.LeagueID != "kleague1" || snap.RunID != "abc123" {
		t.Fatalf("identity not carried over: %+v", snap)
	}
	if !snap.StartedAt.Equal(started) {
		t.Fatalf("expected start time %s, got %s", started, snap.StartedAt)
	}
	if snap.DurationMillis != 1500 {
		t.Fatalf("expected 1500ms, got %d", snap.DurationMillis)
	}
	if snap.Updated != 2 || snap.Unchanged != 3 || snap.NotFound != 1 {
		t.Fatalf("counters not carried over: %+v", snap)
	}
}

func TestNewFromConfigWithoutHost(t *testing.T) {
	store, err := NewFromConfig(config.RedisConfig{})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if store != nil {
		t.Fatal("expected nil store when no redis host is configured")
	}
}
