// Package roster resolves displayed participant names to stable internal
// identifiers. One table is loaded per league from a YAML file at
// startup; tables are read-only afterwards.
package roster

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table maps normalized display names to participant identifiers for a
// single league.
type Table struct {
	leagueID string
	names    map[string]string
}

type rosterFile struct {
	League       string            `yaml:"league"`
	Participants map[string]string `yaml:"participants"`
	// Aliases collect alternate spellings the source is known to use.
	Aliases map[string]string `yaml:"aliases"`
}

// LoadTable reads a league roster file. Every display name the source
// uses for an active league must be present, or matching silently fails
// for that row during reconciliation.
func LoadTable(leagueID, path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	var file rosterFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode roster %s: %w", path, err)
	}
	if file.League != "" && !strings.EqualFold(file.League, leagueID) {
		return nil, fmt.Errorf("roster %s declares league %q, expected %q", path, file.League, leagueID)
	}
	if len(file.Participants) == 0 {
		return nil, fmt.Errorf("roster %s has no participants", path)
	}

	names := make(map[string]string, len(file.Participants)+len(file.Aliases))
	for name, id := range file.Participants {
		key := normalizeName(name)
		if key == "" || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("roster %s has empty name or id entry", path)
		}
		if prev, dup := names[key]; dup && prev != id {
			return nil, fmt.Errorf("roster %s maps %q to both %q and %q", path, name, prev, id)
		}
		names[key] = strings.TrimSpace(id)
	}
	for alias, id := range file.Aliases {
		key := normalizeName(alias)
		if key == "" || strings.TrimSpace(id) == "" {
			continue
		}
		if prev, dup := names[key]; dup && prev != strings.TrimSpace(id) {
			return nil, fmt.Errorf("roster %s alias %q conflicts with existing entry", path, alias)
		}
		names[key] = strings.TrimSpace(id)
	}

	return &Table{leagueID: leagueID, names: names}, nil
}

// NewTable builds a table from an in-memory mapping. Used by tests and
// by callers that already hold resolved configuration.
func NewTable(leagueID string, participants map[string]string) *Table {
	names := make(map[string]string, len(participants))
	for name, id := range participants {
		if key := normalizeName(name); key != "" {
			names[key] = id
		}
	}
	return &Table{leagueID: leagueID, names: names}
}

// LeagueID reports which league this table belongs to.
func (t *Table) LeagueID() string {
	return t.leagueID
}

// Len reports the number of known display names.
func (t *Table) Len() int {
	return len(t.names)
}

// Resolve maps a displayed participant name to its identifier. A false
// result means the name is unknown (new team, renamed team, or
// extraction noise); callers skip the row rather than fail the pass.
func (t *Table) Resolve(displayName string) (string, bool) {
	if t == nil {
		return "", false
	}
	id, ok := t.names[normalizeName(displayName)]
	return id, ok
}

// Resolver looks up participant identifiers across all configured
// leagues.
type Resolver struct {
	tables map[string]*Table
}

// NewResolver indexes the given tables by league id.
func NewResolver(tables ...*Table) *Resolver {
	indexed := make(map[string]*Table, len(tables))
	for _, t := range tables {
		if t != nil {
			indexed[t.leagueID] = t
		}
	}
	return &Resolver{tables: indexed}
}

// Resolve maps a league and display name to a participant identifier.
func (r *Resolver) Resolve(leagueID, displayName string) (string, bool) {
	table, ok := r.tables[leagueID]
	if !ok {
		return "", false
	}
	return table.Resolve(displayName)
}

// Table returns the table for a league, if loaded.
func (r *Resolver) Table(leagueID string) (*Table, bool) {
	t, ok := r.tables[leagueID]
	return t, ok
}

func normalizeName(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}
