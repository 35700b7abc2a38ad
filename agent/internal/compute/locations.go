package compute

import (
	"fmt"
	"sort"
	"strings"
)

// Location is one monitored hydrophone location and the channels (data
// products) expected from it. Aliases are the site names used for it in
// divert notices.
type Location struct {
	Code     string   `yaml:"code"     json:"code"`
	Channels []string `yaml:"channels" json:"channels"`
	Aliases  []string `yaml:"aliases"  json:"aliases,omitempty"`
}

// LocationTable is the read-only set of locations an engine analyses.
// It also resolves divert-notice site names to location codes.
type LocationTable struct {
	locs    []Location
	byCode  map[string]int
	byAlias map[string][]string
}

// NewLocationTable validates locs and builds the table. Codes must be
// unique and non-empty and every location needs at least one channel.
func NewLocationTable(locs []Location) (*LocationTable, error) {
	t := &LocationTable{
		byCode:  make(map[string]int, len(locs)),
		byAlias: make(map[string][]string),
	}
	for i, l := range locs {
		code := strings.TrimSpace(l.Code)
		if code == "" {
			return nil, &ConfigError{Field: fmt.Sprintf("locations[%d].code", i), Reason: "must not be empty"}
		}
		if _, dup := t.byCode[code]; dup {
			return nil, &ConfigError{Field: fmt.Sprintf("locations[%d].code", i), Reason: fmt.Sprintf("duplicate location %q", code)}
		}
		if len(l.Channels) == 0 {
			return nil, &ConfigError{Field: fmt.Sprintf("locations[%d].channels", i), Reason: "at least one channel is required"}
		}
		loc := Location{
			Code:     code,
			Channels: append([]string(nil), l.Channels...),
			Aliases:  append([]string(nil), l.Aliases...),
		}
		t.byCode[code] = len(t.locs)
		t.locs = append(t.locs, loc)
		for _, a := range loc.Aliases {
			key := aliasKey(a)
			t.byAlias[key] = append(t.byAlias[key], code)
		}
	}
	sort.Slice(t.locs, func(i, j int) bool { return t.locs[i].Code < t.locs[j].Code })
	for i, l := range t.locs {
		t.byCode[l.Code] = i
	}
	return t, nil
}

// Locations returns the table's locations ordered by code.
func (t *LocationTable) Locations() []Location {
	if t == nil {
		return nil
	}
	return append([]Location(nil), t.locs...)
}

// Channels returns the channels configured for code, or nil.
func (t *LocationTable) Channels(code string) []string {
	if t == nil {
		return nil
	}
	i, ok := t.byCode[code]
	if !ok {
		return nil
	}
	return append([]string(nil), t.locs[i].Channels...)
}

// Len returns the number of locations.
func (t *LocationTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.locs)
}

// Resolve maps a notice site name to location codes. A name that is itself
// a configured code resolves to that code; otherwise aliases are matched
// case-insensitively.
func (t *LocationTable) Resolve(name string) []string {
	if t == nil {
		return nil
	}
	name = strings.TrimSpace(name)
	if _, ok := t.byCode[name]; ok {
		return []string{name}
	}
	codes := t.byAlias[aliasKey(name)]
	if len(codes) == 0 {
		return nil
	}
	return append([]string(nil), codes...)
}

func aliasKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
