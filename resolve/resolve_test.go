package resolve

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"condamirror/condaerr"
	"condamirror/matchspec"
	"condamirror/patch"
	"condamirror/record"
)

// fakeReader is an in-memory channel.Reader fixture covering the
// end-to-end resolution scenarios below.
type fakeReader struct {
	records []record.Record
}

func (f *fakeReader) Query(_ context.Context, specString string, subdirs []string) ([]record.Record, error) {
	spec, err := matchspec.DefaultParser.Parse(specString)
	if err != nil {
		return nil, err
	}
	var out []record.Record
	for _, r := range f.records {
		if !inSubdirs(r.Subdir, subdirs) {
			continue
		}
		if spec.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReader) Iter(_ context.Context, subdirs []string) ([]record.Record, error) {
	var out []record.Record
	for _, r := range f.records {
		if inSubdirs(r.Subdir, subdirs) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReader) FindSubdirs(context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, r := range f.records {
		if !seen[r.Subdir] {
			seen[r.Subdir] = true
			out = append(out, r.Subdir)
		}
	}
	return out, nil
}

func (f *fakeReader) ReadInstructions(context.Context, string) (patch.Instructions, error) {
	return patch.Empty(), nil
}

func inSubdirs(subdir string, subdirs []string) bool {
	if len(subdirs) == 0 {
		return true
	}
	for _, s := range subdirs {
		if s == subdir {
			return true
		}
	}
	return false
}

func rec(name, ver, build string, deps ...string) record.Record {
	return record.Record{Name: name, Version: ver, Build: build, Subdir: "noarch", Depends: deps}
}

func names(t *testing.T, recs []record.Record) []string {
	t.Helper()
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Name + "-" + r.Version + "-" + r.Build
	}
	sort.Strings(out)
	return out
}

func mustResolve(t *testing.T, reader *fakeReader, cfg Config) []record.Record {
	t.Helper()
	cfg.Subdirs = []string{"noarch"}
	out, err := New(reader, nil).Resolve(context.Background(), cfg)
	require.NoError(t, err)
	return out
}

func TestSimplePin(t *testing.T) {
	reader := &fakeReader{records: []record.Record{
		rec("a", "1", "0"), rec("a", "2", "0"), rec("a", "3", "0"),
	}}
	out := mustResolve(t, reader, Config{Requirements: []string{"a >=2"}})
	got := names(t, out)
	want := []string{"a-2-0", "a-3-0"}
	assertNames(t, got, want)
}

func TestExactBuild(t *testing.T) {
	reader := &fakeReader{records: []record.Record{
		rec("a", "3", "0"), rec("a", "3", "b001_0"),
	}}
	out := mustResolve(t, reader, Config{Requirements: []string{"a 3.0 b001_0"}})
	got := names(t, out)
	want := []string{"a-3-b001_0"}
	assertNames(t, got, want)
}

func TestTransitivePin(t *testing.T) {
	reader := &fakeReader{records: []record.Record{
		rec("a", "1", "0", "b >=1,<2"),
		rec("a", "2", "0", "b >=2,<3"),
		rec("a", "3", "0", "b >=3"),
		rec("b", "1", "0"),
		rec("b", "2", "0"),
		rec("b", "3", "0"),
	}}
	out := mustResolve(t, reader, Config{Requirements: []string{"a", "b >=2"}})
	got := names(t, out)
	want := []string{"a-2-0", "a-3-0", "b-2-0", "b-3-0"}
	assertNames(t, got, want)
}

func TestUnsatisfiableDependencyPartial(t *testing.T) {
	reader := &fakeReader{records: []record.Record{
		rec("a", "1", "0", "b"),
		rec("a", "2", "0", "c"),
		rec("c", "1", "0"),
	}}
	out := mustResolve(t, reader, Config{Requirements: []string{"a"}})
	got := names(t, out)
	want := []string{"a-2-0", "c-1-0"}
	assertNames(t, got, want)
}

func TestUnsatisfiableDependencyFails(t *testing.T) {
	reader := &fakeReader{records: []record.Record{
		rec("a", "1", "0", "b"),
		rec("a", "2", "0", "c"),
	}}
	_, err := New(reader, nil).Resolve(context.Background(), Config{
		Requirements: []string{"a"},
		Subdirs:      []string{"noarch"},
	})
	var unsat *condaerr.UnsatisfiedRequirements
	require.ErrorAs(t, err, &unsat)
	require.Equal(t, []string{"a"}, unsat.Missing)
}

func TestCycle(t *testing.T) {
	reader := &fakeReader{records: []record.Record{
		rec("a", "1", "0", "b"),
		rec("b", "1", "0", "a"),
	}}
	out := mustResolve(t, reader, Config{Requirements: []string{"a"}})
	got := names(t, out)
	want := []string{"a-1-0", "b-1-0"}
	assertNames(t, got, want)
}

func TestExclusionScenario(t *testing.T) {
	reader := &fakeReader{records: []record.Record{
		rec("a", "1", "0"), rec("a", "2", "0"), rec("a", "3", "0"),
	}}
	out := mustResolve(t, reader, Config{
		Requirements: []string{"a"},
		Exclusions:   []string{"a <2"},
	})
	got := names(t, out)
	want := []string{"a-2-0", "a-3-0"}
	assertNames(t, got, want)
}

func TestDisposable(t *testing.T) {
	reader := &fakeReader{records: []record.Record{
		rec("a", "1", "0", "b"),
		rec("b", "1", "0"),
	}}
	out := mustResolve(t, reader, Config{
		Requirements: []string{"a"},
		Disposables:  []string{"b"},
	})
	got := names(t, out)
	want := []string{"a-1-0"}
	assertNames(t, got, want)
}

func TestEmptyRequirementsYieldsEmptyResult(t *testing.T) {
	reader := &fakeReader{records: []record.Record{rec("a", "1", "0")}}
	out := mustResolve(t, reader, Config{})
	require.Empty(t, out)
}

func TestIdempotence(t *testing.T) {
	reader := &fakeReader{records: []record.Record{
		rec("a", "1", "0", "b >=1"), rec("b", "1", "0"), rec("b", "2", "0"),
	}}
	cfg := Config{Requirements: []string{"a"}}
	first := mustResolve(t, reader, cfg)
	second := mustResolve(t, reader, cfg)
	require.Equal(t, names(t, first), names(t, second))
}

func TestLatestRootsPinsRootButNotTransitive(t *testing.T) {
	reader := &fakeReader{records: []record.Record{
		rec("a", "1", "0", "b"),
		rec("a", "2", "0", "b"),
		rec("b", "1", "0"),
		rec("b", "2", "0"),
	}}
	out := mustResolve(t, reader, Config{
		Requirements:   []string{"a", "b"},
		LatestVersions: true,
		LatestRoots:    true,
	})
	got := names(t, out)
	// a is a root requirement, so latest_roots pins it: both versions
	// survive. b is also a root here, so it is pinned too: both
	// versions survive as well.
	want := []string{"a-1-0", "a-2-0", "b-1-0", "b-2-0"}
	assertNames(t, got, want)
}

func TestLatestRootsFiltersTransitiveDependency(t *testing.T) {
	reader := &fakeReader{records: []record.Record{
		rec("a", "1", "0", "b"),
		rec("b", "1", "0"),
		rec("b", "2", "0"),
	}}
	out := mustResolve(t, reader, Config{
		Requirements:   []string{"a"},
		LatestVersions: true,
		LatestRoots:    true,
	})
	got := names(t, out)
	// a is the only root and is pinned (kept in full). b is a
	// transitive dependency, not in the pin_set, so LatestVersions
	// still narrows it to its single latest build.
	want := []string{"a-1-0", "b-2-0"}
	assertNames(t, got, want)
}

func TestLatestVersionsAppliesToTransitiveRegardlessOfLatestRoots(t *testing.T) {
	reader := &fakeReader{records: []record.Record{
		rec("a", "1", "0", "b"),
		rec("b", "1", "0"),
		rec("b", "2", "0"),
	}}
	// b is never a root requirement either way, so LatestVersions must
	// narrow it to its single latest build whether or not LatestRoots
	// is set: the pin_set only ever covers root names.
	withoutLatestRoots := mustResolve(t, reader, Config{
		Requirements:   []string{"a"},
		LatestVersions: true,
	})
	withLatestRoots := mustResolve(t, reader, Config{
		Requirements:   []string{"a"},
		LatestVersions: true,
		LatestRoots:    true,
	})
	want := []string{"a-1-0", "b-2-0"}
	assertNames(t, names(t, withoutLatestRoots), want)
	assertNames(t, names(t, withLatestRoots), want)
}

func TestContextCancellation(t *testing.T) {
	reader := &fakeReader{records: []record.Record{rec("a", "1", "0")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(reader, nil).Resolve(ctx, Config{
		Requirements: []string{"a"},
		Subdirs:      []string{"noarch"},
	})
	require.Error(t, err)
}

func assertNames(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(want)
	require.Equal(t, want, got)
}
