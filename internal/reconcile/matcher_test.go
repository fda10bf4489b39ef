package reconcile

import (
	"testing"

	"matchsync/internal/roster"
	"matchsync/pkg/types"
)

var matcherTable = roster.NewTable("kleague1", map[string]string{
	"울산 HD":  "ulsan-hd",
	"FC 서울":  "fc-seoul",
	"전북 현대": "jeonbuk-hyundai",
})

func TestMatchRowPositional(t *testing.T) {
	rec := types.MatchRecord{HomeID: "ulsan-hd", AwayID: "fc-seoul"}
	rows := []types.ScrapedRow{
		{HomeName: "전북 현대", AwayName: "울산 HD"},
		{HomeName: "울산 HD", AwayName: "FC 서울", RawStatus: "후반"},
	}

	row, ok := MatchRow(rec, rows, matcherTable)
	if !ok {
		t.Fatal("expected a match")
	}
	if row.RawStatus != "후반" {
		t.Fatalf("matched wrong row: %+v", row)
	}
}

// Home and away are positional: the reversed fixture of the same two
// teams is a different match.
func TestMatchRowRejectsSwappedPair(t *testing.T) {
	rec := types.MatchRecord{HomeID: "ulsan-hd", AwayID: "fc-seoul"}
	rows := []types.ScrapedRow{
		{HomeName: "FC 서울", AwayName: "울산 HD"},
	}
	if _, ok := MatchRow(rec, rows, matcherTable); ok {
		t.Fatal("expected swapped home/away pair not to match")
	}
}

func TestMatchRowSkipsUnknownNames(t *testing.T) {
	rec := types.MatchRecord{HomeID: "ulsan-hd", AwayID: "fc-seoul"}
	rows := []types.ScrapedRow{
		{HomeName: "울산 HD", AwayName: "수원 FC"},
		{HomeName: "신생팀", AwayName: "FC 서울"},
	}
	if _, ok := MatchRow(rec, rows, matcherTable); ok {
		t.Fatal("expected rows with unresolvable names to be skipped")
	}
}

func TestMatchRowFirstWins(t *testing.T) {
	rec := types.MatchRecord{HomeID: "ulsan-hd", AwayID: "fc-seoul"}
	rows := []types.ScrapedRow{
		{HomeName: "울산 HD", AwayName: "FC 서울", RawStatus: "first"},
		{HomeName: "울산 HD", AwayName: "FC 서울", RawStatus: "second"},
	}
	row, ok := MatchRow(rec, rows, matcherTable)
	if !ok || row.RawStatus != "first" {
		t.Fatalf("expected first duplicate to win, got %+v ok=%v", row, ok)
	}
}

func TestParseScore(t *testing.T) {
	cases := []struct {
		raw  string
		want *int
	}{
		{"0", intp(0)},
		{"3", intp(3)},
		{" 12 ", intp(12)},
		{"", nil},
		{"-", nil},
		{"-1", nil},
		{"2:1", nil},
		{"abc", nil},
	}
	for _, tc := range cases {
		got := ParseScore(tc.raw)
		switch {
		case tc.want == nil && got != nil:
			t.Errorf("ParseScore(%q): expected nil, got %d", tc.raw, *got)
		case tc.want != nil && got == nil:
			t.Errorf("ParseScore(%q): expected %d, got nil", tc.raw, *tc.want)
		case tc.want != nil && got != nil && *tc.want != *got:
			t.Errorf("ParseScore(%q): expected %d, got %d", tc.raw, *tc.want, *got)
		}
	}
}

func intp(v int) *int { return &v }
