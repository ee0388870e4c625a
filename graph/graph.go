// Package graph implements the bipartite dependency graph the resolver
// builds and prunes: a directed graph whose node set is the disjoint
// union of match-spec strings and package records, with edges strictly
// alternating spec->record ("record satisfies spec") and record->spec
// ("spec is a dependency of record"). See spec.md §3/§4.4.
//
// The two node kinds live in disjoint identity spaces (a spec string
// can never collide with a record identity), so nodes are addressed by
// a small tagged-union Node key rather than a single homogeneous ID
// space.
package graph

import "condamirror/record"

// Kind distinguishes the two node types a Graph holds.
type Kind int

const (
	// SpecKind identifies a match-specification string node.
	SpecKind Kind = iota
	// RecordKind identifies a package record node.
	RecordKind
)

// Node addresses either a spec-string node or a record node. The zero
// value is not a valid Node; construct one with Spec or Record.
type Node struct {
	kind Kind
	spec string
	rec  record.Identity
}

// Spec returns the Node addressing the given match-spec string.
func Spec(s string) Node { return Node{kind: SpecKind, spec: s} }

// Record returns the Node addressing the record with the given
// identity.
func Record(id record.Identity) Node { return Node{kind: RecordKind, rec: id} }

// Kind reports whether n addresses a spec or a record.
func (n Node) Kind() Kind { return n.kind }

// SpecString returns the spec string n addresses. Only meaningful when
// n.Kind() == SpecKind.
func (n Node) SpecString() string { return n.spec }

// Identity returns the record identity n addresses. Only meaningful
// when n.Kind() == RecordKind.
func (n Node) Identity() record.Identity { return n.rec }

func (n Node) String() string {
	if n.kind == SpecKind {
		return "spec(" + n.spec + ")"
	}
	return "record(" + n.rec.String() + ")"
}

type specEntry struct {
	root bool
	// candidates holds outgoing spec->record edges: records that
	// satisfy this spec.
	candidates map[record.Identity]struct{}
	// dependents holds incoming record->spec edges: records that
	// declared this spec as a dependency.
	dependents map[record.Identity]struct{}
}

type recordEntry struct {
	rec record.Record
	// dependencies holds outgoing record->spec edges: this record's
	// declared dependency specs.
	dependencies map[string]struct{}
	// satisfies holds incoming spec->record edges: specs this record
	// was linked as a candidate for.
	satisfies map[string]struct{}
}

// Graph is a bipartite directed graph of match-spec strings and package
// records. The zero value is not usable; construct one with New.
type Graph struct {
	specs   map[string]*specEntry
	records map[record.Identity]*recordEntry
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		specs:   make(map[string]*specEntry),
		records: make(map[record.Identity]*recordEntry),
	}
}

// AddRoot adds s as a root spec node. Remove does not check the root
// flag; the resolver's pruning never calls it on a root and leaves an
// unsatisfied root in place. A no-op if s is already present (its root
// flag is only ever promoted, never demoted).
func (g *Graph) AddRoot(s string) {
	e := g.specEntry(s)
	e.root = true
}

// AddSpec adds s as a (non-root) spec node. A no-op if s is already
// present, including if it is already a root.
func (g *Graph) AddSpec(s string) {
	g.specEntry(s)
}

func (g *Graph) specEntry(s string) *specEntry {
	e, ok := g.specs[s]
	if !ok {
		e = &specEntry{
			candidates: make(map[record.Identity]struct{}),
			dependents: make(map[record.Identity]struct{}),
		}
		g.specs[s] = e
	}
	return e
}

// AddRecord adds r as a record node. A no-op if its identity is already
// present.
func (g *Graph) AddRecord(r record.Record) {
	id := r.Identity()
	if _, ok := g.records[id]; ok {
		return
	}
	g.records[id] = &recordEntry{
		rec:          r,
		dependencies: make(map[string]struct{}),
		satisfies:    make(map[string]struct{}),
	}
}

// LinkCandidate adds the edge spec -> rec: rec is a candidate that
// satisfies spec. Both nodes must already exist.
func (g *Graph) LinkCandidate(spec string, id record.Identity) {
	se, ok := g.specs[spec]
	if !ok {
		return
	}
	re, ok := g.records[id]
	if !ok {
		return
	}
	se.candidates[id] = struct{}{}
	re.satisfies[spec] = struct{}{}
}

// LinkDependency adds the edge rec -> spec: spec is a dependency of
// rec. Both nodes must already exist.
func (g *Graph) LinkDependency(id record.Identity, spec string) {
	re, ok := g.records[id]
	if !ok {
		return
	}
	se, ok := g.specs[spec]
	if !ok {
		return
	}
	re.dependencies[spec] = struct{}{}
	se.dependents[id] = struct{}{}
}

// Contains reports whether n is present in the graph.
func (g *Graph) Contains(n Node) bool {
	if n.kind == SpecKind {
		_, ok := g.specs[n.spec]
		return ok
	}
	_, ok := g.records[n.rec]
	return ok
}

// IsRoot reports whether n is a root spec. Records are never roots.
func (g *Graph) IsRoot(n Node) bool {
	if n.kind != SpecKind {
		return false
	}
	e, ok := g.specs[n.spec]
	return ok && e.root
}

// RecordOf returns the record.Record value a record Node addresses.
func (g *Graph) RecordOf(n Node) (record.Record, bool) {
	if n.kind != RecordKind {
		return record.Record{}, false
	}
	e, ok := g.records[n.rec]
	if !ok {
		return record.Record{}, false
	}
	return e.rec, true
}

// Successors returns the nodes n has outgoing edges to.
func (g *Graph) Successors(n Node) []Node {
	if n.kind == SpecKind {
		e, ok := g.specs[n.spec]
		if !ok {
			return nil
		}
		out := make([]Node, 0, len(e.candidates))
		for id := range e.candidates {
			out = append(out, Record(id))
		}
		return out
	}
	e, ok := g.records[n.rec]
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(e.dependencies))
	for s := range e.dependencies {
		out = append(out, Spec(s))
	}
	return out
}

// Predecessors returns the nodes with outgoing edges to n.
func (g *Graph) Predecessors(n Node) []Node {
	if n.kind == SpecKind {
		e, ok := g.specs[n.spec]
		if !ok {
			return nil
		}
		out := make([]Node, 0, len(e.dependents))
		for id := range e.dependents {
			out = append(out, Record(id))
		}
		return out
	}
	e, ok := g.records[n.rec]
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(e.satisfies))
	for s := range e.satisfies {
		out = append(out, Spec(s))
	}
	return out
}

// OutDegree returns len(Successors(n)).
func (g *Graph) OutDegree(n Node) int { return len(g.Successors(n)) }

// InDegree returns len(Predecessors(n)).
func (g *Graph) InDegree(n Node) int { return len(g.Predecessors(n)) }

// NodesOfKind returns every node of the given kind currently in the
// graph. The order follows Go map iteration: it is not insertion order
// and may differ between calls.
func (g *Graph) NodesOfKind(k Kind) []Node {
	if k == SpecKind {
		out := make([]Node, 0, len(g.specs))
		for s := range g.specs {
			out = append(out, Spec(s))
		}
		return out
	}
	out := make([]Node, 0, len(g.records))
	for id := range g.records {
		out = append(out, Record(id))
	}
	return out
}

// Remove deletes n and every edge incident to it. Remove on an absent
// node is a no-op: the pruning passes in the resolver rely on this
// idempotence to revisit nodes without tracking whether they were
// already removed.
func (g *Graph) Remove(n Node) {
	if n.kind == SpecKind {
		e, ok := g.specs[n.spec]
		if !ok {
			return
		}
		for id := range e.candidates {
			if re, ok := g.records[id]; ok {
				delete(re.satisfies, n.spec)
			}
		}
		for id := range e.dependents {
			if re, ok := g.records[id]; ok {
				delete(re.dependencies, n.spec)
			}
		}
		delete(g.specs, n.spec)
		return
	}
	e, ok := g.records[n.rec]
	if !ok {
		return
	}
	for s := range e.satisfies {
		if se, ok := g.specs[s]; ok {
			delete(se.candidates, n.rec)
		}
	}
	for s := range e.dependencies {
		if se, ok := g.specs[s]; ok {
			delete(se.dependents, n.rec)
		}
	}
	delete(g.records, n.rec)
}

// Len returns the total number of nodes (specs plus records).
func (g *Graph) Len() int { return len(g.specs) + len(g.records) }
