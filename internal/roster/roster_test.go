package roster

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTableResolve(t *testing.T) {
	table := NewTable("kleague1", map[string]string{
		"울산 HD":  "ulsan-hd",
		"FC 서울":  "fc-seoul",
		"전북 현대": "jeonbuk-hyundai",
	})

	cases := []struct {
		name   string
		wantID string
		wantOK bool
	}{
		{"울산 HD", "ulsan-hd", true},
		{"  울산   HD  ", "ulsan-hd", true}, // whitespace noise from extraction
		{"fc 서울", "fc-seoul", true},
		{"수원 FC", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		id, ok := table.Resolve(tc.name)
		if ok != tc.wantOK || id != tc.wantID {
			t.Errorf("Resolve(%q): expected (%q, %v), got (%q, %v)", tc.name, tc.wantID, tc.wantOK, id, ok)
		}
	}
}

func TestLoadTable(t *testing.T) {
	path := writeRoster(t, `
league: kleague1
participants:
  "울산 HD": ulsan-hd
  "FC 서울": fc-seoul
aliases:
  "울산": ulsan-hd
  "Ulsan HD FC": ulsan-hd
`)

	table, err := LoadTable("kleague1", path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if table.Len() != 4 {
		t.Fatalf("expected 4 resolvable names, got %d", table.Len())
	}
	for _, name := range []string{"울산 HD", "울산", "ulsan hd fc"} {
		if id, ok := table.Resolve(name); !ok || id != "ulsan-hd" {
			t.Errorf("Resolve(%q): expected ulsan-hd, got (%q, %v)", name, id, ok)
		}
	}
}

func TestLoadTableLeagueMismatch(t *testing.T) {
	path := writeRoster(t, `
league: kbo
participants:
  "LG 트윈스": lg-twins
`)
	if _, err := LoadTable("kleague1", path); err == nil {
		t.Fatal("expected error for league mismatch")
	}
}

func TestLoadTableAliasConflict(t *testing.T) {
	path := writeRoster(t, `
league: kleague1
participants:
  "울산 HD": ulsan-hd
aliases:
  "울산 HD": fc-seoul
`)
	if _, err := LoadTable("kleague1", path); err == nil {
		t.Fatal("expected error for conflicting alias")
	}
}

func TestLoadTableEmpty(t *testing.T) {
	path := writeRoster(t, "league: kleague1\n")
	if _, err := LoadTable("kleague1", path); err == nil {
		t.Fatal("expected error for roster without participants")
	}
}

func TestResolverRoutesByLeague(t *testing.T) {
	resolver := NewResolver(
		NewTable("kleague1", map[string]string{"울산 HD": "ulsan-hd"}),
		NewTable("kbo", map[string]string{"LG 트윈스": "lg-twins"}),
	)

	if id, ok := resolver.Resolve("kbo", "LG 트윈스"); !ok || id != "lg-twins" {
		t.Fatalf("expected lg-twins, got (%q, %v)", id, ok)
	}
	if _, ok := resolver.Resolve("kleague1", "LG 트윈스"); ok {
		t.Fatal("expected cross-league lookup to fail")
	}
	if _, ok := resolver.Resolve("npb", "LG 트윈스"); ok {
		t.Fatal("expected unknown league lookup to fail")
	}
}

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write roster fixture: %v", err)
	}
	return path
}
