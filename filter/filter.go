// Package filter implements the composable predicate filters the
// resolver wraps every channel query with: Inclusion, Exclusion,
// LatestVersion, and LatestBuild, per spec.md §4.3. A Filter is any
// function from a slice of records to a (possibly smaller, possibly
// reordered) slice of records; a Chain composes them in order.
package filter

import (
	"strings"

	"condamirror/matchspec"
	"condamirror/record"
	"condamirror/version"
)

// Filter narrows a set of candidate records.
type Filter func(records []record.Record) []record.Record

// Chain composes filters in order. The resolver wraps every
// channel.Reader.Query call through a Chain.
type Chain []Filter

// Apply runs records through every filter in the chain, in order.
func (c Chain) Apply(records []record.Record) []record.Record {
	for _, f := range c {
		records = f(records)
	}
	return records
}

// Group groups specs by name, the shape every filter below keys its
// per-record lookups by.
func Group(specs []matchspec.Specification) map[string][]matchspec.Specification {
	groups := make(map[string][]matchspec.Specification, len(specs))
	for _, s := range specs {
		groups[s.Name()] = append(groups[s.Name()], s)
	}
	return groups
}

func anyMatch(specs []matchspec.Specification, r record.Record) bool {
	for _, s := range specs {
		if s.Match(r) {
			return true
		}
	}
	return false
}

func allMatch(specs []matchspec.Specification, r record.Record) bool {
	for _, s := range specs {
		if !s.Match(r) {
			return false
		}
	}
	return true
}

// Inclusion keeps a record iff every spec in groups[r.Name] matches it.
// A name with no group entry is accepted vacuously (all returns true
// over an empty slice).
func Inclusion(groups map[string][]matchspec.Specification) Filter {
	return func(records []record.Record) []record.Record {
		out := records[:0:0]
		for _, r := range records {
			if allMatch(groups[r.Name], r) {
				out = append(out, r)
			}
		}
		return out
	}
}

// Exclusion drops a record iff some spec in groups[r.Name] matches it.
func Exclusion(groups map[string][]matchspec.Specification) Filter {
	return func(records []record.Record) []record.Record {
		out := records[:0:0]
		for _, r := range records {
			if !anyMatch(groups[r.Name], r) {
				out = append(out, r)
			}
		}
		return out
	}
}

// LatestVersion keeps, within each name group, only the record(s) at
// the lexically-greatest version (per package/version package ordering
// rules), plus any record whose name is pinned and matches its pin.
func LatestVersion(pins map[string][]matchspec.Specification) Filter {
	return func(records []record.Record) []record.Record {
		byName := groupByName(records)
		var out []record.Record
		for name, group := range byName {
			if pinned, ok := pins[name]; ok && len(pinned) > 0 {
				for _, r := range group {
					if anyMatch(pinned, r) {
						out = append(out, r)
					} else if r.Version == maxVersion(group) {
						out = append(out, r)
					}
				}
				continue
			}
			best := maxVersion(group)
			for _, r := range group {
				if r.Version == best {
					out = append(out, r)
				}
			}
		}
		return out
	}
}

// LatestBuild keeps, within each (name, version, depends) group, only
// the record(s) with the maximum timestamp, plus any record whose name
// is pinned and matches its pin.
func LatestBuild(pins map[string][]matchspec.Specification) Filter {
	return func(records []record.Record) []record.Record {
		groups := make(map[string][]record.Record)
		order := make([]string, 0)
		for _, r := range records {
			key := buildGroupKey(r)
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], r)
		}
		var out []record.Record
		for _, key := range order {
			group := groups[key]
			name := group[0].Name
			if pinned, ok := pins[name]; ok && len(pinned) > 0 {
				best := maxTimestamp(group)
				for _, r := range group {
					if anyMatch(pinned, r) || r.Timestamp == best {
						out = append(out, r)
					}
				}
				continue
			}
			best := maxTimestamp(group)
			for _, r := range group {
				if r.Timestamp == best {
					out = append(out, r)
				}
			}
		}
		return out
	}
}

func groupByName(records []record.Record) map[string][]record.Record {
	groups := make(map[string][]record.Record)
	for _, r := range records {
		groups[r.Name] = append(groups[r.Name], r)
	}
	return groups
}

func buildGroupKey(r record.Record) string {
	var sb strings.Builder
	sb.WriteString(r.Name)
	sb.WriteByte('\x00')
	sb.WriteString(r.Version)
	sb.WriteByte('\x00')
	for _, d := range r.Depends {
		sb.WriteString(d)
		sb.WriteByte('\x01')
	}
	return sb.String()
}

func maxVersion(group []record.Record) string {
	versions := make([]string, len(group))
	for i, r := range group {
		versions[i] = r.Version
	}
	return version.Max(versions)
}

func maxTimestamp(group []record.Record) int64 {
	best := group[0].Timestamp
	for _, r := range group[1:] {
		if r.Timestamp > best {
			best = r.Timestamp
		}
	}
	return best
}
