// Package areatable implements the Area Table primitive (spec §2): a
// static mapping from area-id to an area configuration.
package areatable

import (
	"regexp"

	"github.com/openr-go/openr/pkg/serrors"
)

// Config is one area's configuration: which interfaces are eligible for
// adjacency discovery, which interfaces redistribute their addresses as
// loopback prefixes, and which KV-store keys this area accepts.
type Config struct {
	AreaID string
	// InterfaceRegexes are matched against interface names to decide
	// eligibility for adjacency discovery (Spark neighbor finding).
	InterfaceRegexes []*regexp.Regexp
	// RedistributeRegexes are matched against interface names to decide
	// whether a global-unicast address discovered on that interface is
	// redistributed to Prefix-Manager as a LOOPBACK prefix (spec §4.2
	// "Redistribution"). Distinct from InterfaceRegexes: a loopback is
	// commonly redistribute-eligible without ever running Spark on it.
	RedistributeRegexes []*regexp.Regexp
	// KeyPrefixes restricts which KV-store keys are accepted into this
	// area; empty means no restriction.
	KeyPrefixes []string
}

// InterfaceEligible reports whether ifName is eligible for adjacency
// discovery in this area.
func (c Config) InterfaceEligible(ifName string) bool {
	for _, re := range c.InterfaceRegexes {
		if re.MatchString(ifName) {
			return true
		}
	}
	return false
}

// RedistributeEligible reports whether addresses on ifName should be
// redistributed as loopback prefixes in this area.
func (c Config) RedistributeEligible(ifName string) bool {
	for _, re := range c.RedistributeRegexes {
		if re.MatchString(ifName) {
			return true
		}
	}
	return false
}

// KeyAccepted reports whether key passes this area's key filters.
func (c Config) KeyAccepted(key string) bool {
	if len(c.KeyPrefixes) == 0 {
		return true
	}
	for _, p := range c.KeyPrefixes {
		if len(key) >= len(p) && key[:len(p)] == p {
			return true
		}
	}
	return false
}

// Table is the static area-id -> Config mapping, built once at startup
// and never mutated afterward; it is safe for concurrent read access
// from every component.
type Table struct {
	areas map[string]Config
}

// New builds a Table from area configs, validating that area-ids are
// unique. The interface regexes arrive already compiled and are not
// checked here.
func New(areas []Config) (*Table, error) {
	t := &Table{areas: make(map[string]Config, len(areas))}
	for _, a := range areas {
		if _, dup := t.areas[a.AreaID]; dup {
			return nil, serrors.New("duplicate area id", "area", a.AreaID)
		}
		t.areas[a.AreaID] = a
	}
	return t, nil
}

// Get returns the Config for areaID and whether it exists.
func (t *Table) Get(areaID string) (Config, bool) {
	c, ok := t.areas[areaID]
	return c, ok
}

// Areas returns all configured area-ids.
func (t *Table) Areas() []string {
	ids := make([]string, 0, len(t.areas))
	for id := range t.areas {
		ids = append(ids, id)
	}
	return ids
}

// AreasForInterface returns every area that considers ifName eligible
// for adjacency discovery.
func (t *Table) AreasForInterface(ifName string) []string {
	var ids []string
	for id, cfg := range t.areas {
		if cfg.InterfaceEligible(ifName) {
			ids = append(ids, id)
		}
	}
	return ids
}

// AreasForRedistribute returns every area whose redistribute-regex
// matches ifName.
func (t *Table) AreasForRedistribute(ifName string) []string {
	var ids []string
	for id, cfg := range t.areas {
		if cfg.RedistributeEligible(ifName) {
			ids = append(ids, id)
		}
	}
	return ids
}
