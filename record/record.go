// Package record defines the immutable package record value type that
// flows through the rest of condamirror.
package record

import "fmt"

// Identity is the channel-independent identity of a Record. Channel is
// deliberately excluded: two records from different channels at the same
// version compare equal, which is what lets the diff engine compare an
// upstream resolution against a local mirror without normalization.
type Identity struct {
	Subdir      string
	Name        string
	Version     string
	BuildNumber int
	Build       string
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s-%s-%s", id.Subdir, id.Name, id.Version, id.Build)
}

// Record is one package entry from a channel's repodata. It is immutable:
// nothing in this repository mutates a Record after construction, and
// the dependency graph stores each Record by value.
type Record struct {
	Name        string
	Version     string
	Build       string
	BuildNumber int
	Subdir      string
	Filename    string
	URL         string
	SHA256      string
	Size        int64
	// Depends holds dependency match-spec strings in declaration order.
	// Order matters: the resolver's work-list processes them in this
	// order, and that order is part of the documented determinism
	// contract.
	Depends []string
	// Timestamp is optional; zero means absent. Used by the LatestBuild
	// filter.
	Timestamp int64
}

// Identity returns the channel-independent identity key of r.
func (r Record) Identity() Identity {
	return Identity{
		Subdir:      r.Subdir,
		Name:        r.Name,
		Version:     r.Version,
		BuildNumber: r.BuildNumber,
		Build:       r.Build,
	}
}

func (r Record) String() string {
	return fmt.Sprintf("%s-%s-%s[%s]", r.Name, r.Version, r.Build, r.Subdir)
}
