// Package rules implements Semantic Rules: per-dataset required fields,
// minimum record density, and season windows, loaded once from a process
// config file and consulted read-only on the hot path.
package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dcsp-io/dcsp/internal/identity"
)

// SeasonWindow is an inclusive month range, possibly wrapping a year
// boundary (e.g. August-January for a winter sport).
type SeasonWindow struct {
	StartMonth int `yaml:"startMonth"`
	EndMonth   int `yaml:"endMonth"`
}

// InWindow reports whether month lies inside the window, accounting for
// wrap-around (StartMonth > EndMonth means the window crosses the year
// boundary).
func (w SeasonWindow) InWindow(month int) bool {
	if w.StartMonth == 0 && w.EndMonth == 0 {
		return true // no window declared: always in-season
	}

	if w.StartMonth <= w.EndMonth {
		return month >= w.StartMonth && month <= w.EndMonth
	}

	return month >= w.StartMonth || month <= w.EndMonth
}

// Rule is the process-local semantic contract for one datasetId.
type Rule struct {
	DatasetID      string        `yaml:"datasetId"`
	RequiredFields []string      `yaml:"requiredFields"`
	MinRecordCount int           `yaml:"minRecordCount"`
	SeasonWindow   *SeasonWindow `yaml:"seasonWindow,omitempty"`
}

// Config is the top-level rules file shape: one Rule per registered
// dataset plus the identity allow-lists consulted by internal/identity.
type Config struct {
	Rules              []Rule              `yaml:"rules"`
	IdentityAllowLists identity.AllowLists `yaml:"identityAllowLists"`
}

// Set is an in-memory, read-only lookup table built once at startup,
// mirroring spec.md §9's directive that global mutable state becomes a
// typed configuration struct threaded explicitly through constructors.
type Set struct {
	byDatasetID   map[string]Rule
	identityAllow identity.AllowLists
}

// NewSet indexes a Config's rules by datasetId.
func NewSet(cfg Config) *Set {
	s := &Set{
		byDatasetID:   make(map[string]Rule, len(cfg.Rules)),
		identityAllow: cfg.IdentityAllowLists,
	}
	for _, r := range cfg.Rules {
		s.byDatasetID[r.DatasetID] = r
	}

	return s
}

// IdentityAllowLists returns the allow-lists loaded alongside the
// Semantic Rules config (spec.md §6's "sport/competition/type
// allow-lists" knob), for callers registering a new dataset identity.
func (s *Set) IdentityAllowLists() identity.AllowLists {
	return s.identityAllow
}

// Lookup returns the rule for a datasetId, or false if none is registered.
func (s *Set) Lookup(datasetID string) (Rule, bool) {
	r, ok := s.byDatasetID[datasetID]

	return r, ok
}

// DatasetIDs returns every datasetId carrying a registered rule, in no
// particular order. Used by the Scheduler to enumerate what it drives.
func (s *Set) DatasetIDs() []string {
	ids := make([]string, 0, len(s.byDatasetID))
	for id := range s.byDatasetID {
		ids = append(ids, id)
	}

	return ids
}

// LoadConfig reads a YAML rules file. Mirroring the teacher's
// aliasing.Config graceful-degradation pattern, a missing file yields an
// empty Config (with a caller-visible error so the caller can decide
// whether to log-and-continue or fail startup) rather than a hard panic,
// since an empty rule set just means every dataset resolves to
// NoRuleDefined rather than crashing the process.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("rules: config file %s not found, starting with empty rule set: %w", path, err)
		}

		return Config{}, fmt.Errorf("rules: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("rules: parse %s: %w", path, err)
	}

	return cfg, nil
}
