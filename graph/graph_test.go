package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"condamirror/record"
)

func mkRecord(name, ver string) record.Record {
	return record.Record{Name: name, Version: ver, Build: "0", Subdir: "noarch"}
}

func TestLinkAndTraverse(t *testing.T) {
	g := New()
	g.AddRoot("a")
	r := mkRecord("a", "1.0")
	g.AddRecord(r)
	g.LinkCandidate("a", r.Identity())

	if !g.Contains(Spec("a")) || !g.Contains(Record(r.Identity())) {
		t.Fatalf("expected both nodes present")
	}
	if !g.IsRoot(Spec("a")) {
		t.Errorf("expected a to be root")
	}
	if g.IsRoot(Record(r.Identity())) {
		t.Errorf("records are never roots")
	}

	succ := g.Successors(Spec("a"))
	if len(succ) != 1 || succ[0] != Record(r.Identity()) {
		t.Errorf("Successors(a) = %v", succ)
	}
	pred := g.Predecessors(Record(r.Identity()))
	if len(pred) != 1 || pred[0] != Spec("a") {
		t.Errorf("Predecessors(record) = %v", pred)
	}
}

func TestDependencyEdge(t *testing.T) {
	g := New()
	g.AddRoot("a")
	a := mkRecord("a", "1.0")
	g.AddRecord(a)
	g.LinkCandidate("a", a.Identity())
	g.AddSpec("b")
	g.LinkDependency(a.Identity(), "b")

	succ := g.Successors(Record(a.Identity()))
	if len(succ) != 1 || succ[0] != Spec("b") {
		t.Errorf("Successors(a-record) = %v", succ)
	}
	pred := g.Predecessors(Spec("b"))
	if len(pred) != 1 || pred[0] != Record(a.Identity()) {
		t.Errorf("Predecessors(b) = %v", pred)
	}
}

func TestRemoveIsIdempotentAndCleansEdges(t *testing.T) {
	g := New()
	g.AddRoot("a")
	a := mkRecord("a", "1.0")
	g.AddRecord(a)
	g.LinkCandidate("a", a.Identity())
	g.AddSpec("b")
	g.LinkDependency(a.Identity(), "b")

	g.Remove(Record(a.Identity()))
	if g.Contains(Record(a.Identity())) {
		t.Errorf("expected record removed")
	}
	if g.OutDegree(Spec("a")) != 0 {
		t.Errorf("expected a to have no surviving candidates after record removal")
	}
	if g.InDegree(Spec("b")) != 0 {
		t.Errorf("expected b to have no surviving dependents after record removal")
	}

	// Removing again, and removing an absent node, must not panic.
	g.Remove(Record(a.Identity()))
	g.Remove(Spec("does-not-exist"))
}

func TestNodesOfKind(t *testing.T) {
	g := New()
	g.AddRoot("a")
	g.AddSpec("b")
	r := mkRecord("a", "1.0")
	g.AddRecord(r)

	specs := g.NodesOfKind(SpecKind)
	if len(specs) != 2 {
		t.Errorf("got %d spec nodes, want 2", len(specs))
	}
	records := g.NodesOfKind(RecordKind)
	if len(records) != 1 {
		t.Errorf("got %d record nodes, want 1", len(records))
	}
}

// TestNodesOfKindStructuralSet compares the full node set regardless
// of NodesOfKind's iteration order, via go-cmp's slice-sorting option.
func TestNodesOfKindStructuralSet(t *testing.T) {
	g := New()
	g.AddRoot("a")
	g.AddRoot("b")
	g.AddSpec("c")

	want := nodeStrings([]Node{Spec("a"), Spec("b"), Spec("c")})
	got := nodeStrings(g.NodesOfKind(SpecKind))

	if diff := cmp.Diff(want, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Fatalf("NodesOfKind(SpecKind) mismatch (-want +got):\n%s", diff)
	}
}

func nodeStrings(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.String()
	}
	return out
}
