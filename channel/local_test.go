package channel

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"condamirror/patch"
)

func writeRepodataFixture(t *testing.T, root, subdir string, packages map[string]string) {
	t.Helper()
	dir := filepath.Join(root, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	var sb bytes.Buffer
	sb.WriteString(`{"info":{"subdir":"` + subdir + `"},"repodata_version":1,"packages":{`)
	first := true
	for filename, body := range packages {
		if !first {
			sb.WriteString(",")
		}
		first = false
		sb.WriteString(`"` + filename + `":` + body)
	}
	sb.WriteString(`},"packages.conda":{},"removed":[]}`)
	if err := os.WriteFile(filepath.Join(dir, repodataFilename), sb.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLocalQueryReadsRepodata(t *testing.T) {
	root := t.TempDir()
	writeRepodataFixture(t, root, "noarch", map[string]string{
		"a-1-0.tar.bz2": `{"name":"a","version":"1","build":"0","depends":[]}`,
		"a-2-0.tar.bz2": `{"name":"a","version":"2","build":"0","depends":[]}`,
	})

	l := NewLocal(root, "", nil)
	recs, err := l.Query(context.Background(), "a >=2", []string{"noarch"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(recs) != 1 || recs[0].Version != "2" {
		t.Fatalf("got %v, want [a-2]", recs)
	}
}

func TestLocalIterReturnsAllRecords(t *testing.T) {
	root := t.TempDir()
	writeRepodataFixture(t, root, "noarch", map[string]string{
		"a-1-0.tar.bz2": `{"name":"a","version":"1","build":"0","depends":[]}`,
		"b-1-0.tar.bz2": `{"name":"b","version":"1","build":"0","depends":[]}`,
	})

	l := NewLocal(root, "", nil)
	recs, err := l.Iter(context.Background(), []string{"noarch"})
	if err != nil {
		t.Fatalf("Iter: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Iter returned %d records, want 2: %v", len(recs), recs)
	}
}

func TestLocalQueryCaches(t *testing.T) {
	root := t.TempDir()
	writeRepodataFixture(t, root, "noarch", map[string]string{
		"a-1-0.tar.bz2": `{"name":"a","version":"1","build":"0","depends":[]}`,
	})
	l := NewLocal(root, "", nil)
	ctx := context.Background()
	first, err := l.Query(ctx, "a", []string{"noarch"})
	if err != nil {
		t.Fatal(err)
	}
	// Remove the backing repodata; a cache hit should still return the
	// previous result.
	if err := os.Remove(filepath.Join(root, "noarch", repodataFilename)); err != nil {
		t.Fatal(err)
	}
	second, err := l.Query(ctx, "a", []string{"noarch"})
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("cache miss: %v vs %v", first, second)
	}
}

func TestLocalFindSubdirs(t *testing.T) {
	root := t.TempDir()
	writeRepodataFixture(t, root, "noarch", nil)
	writeRepodataFixture(t, root, "linux-64", nil)

	l := NewLocal(root, "", nil)
	subdirs, err := l.FindSubdirs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(subdirs) != 2 {
		t.Fatalf("got %v, want 2 subdirs", subdirs)
	}
}

func TestLocalReadInstructionsDefaultsEmpty(t *testing.T) {
	root := t.TempDir()
	l := NewLocal(root, "", nil)
	in, err := l.ReadInstructions(context.Background(), "noarch")
	if err != nil {
		t.Fatal(err)
	}
	if in.Version != 1 || len(in.Remove) != 0 {
		t.Fatalf("expected empty instructions, got %+v", in)
	}
}

func TestLocalWriteInstructionsRoundTrip(t *testing.T) {
	root := t.TempDir()
	l := NewLocal(root, "", nil)
	in := patch.Empty()
	in.AppendRemove("old-1-0.tar.bz2")

	if err := l.WriteInstructions("noarch", in); err != nil {
		t.Fatal(err)
	}
	got, err := l.ReadInstructions(context.Background(), "noarch")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Remove) != 1 || got.Remove[0] != "old-1-0.tar.bz2" {
		t.Fatalf("got %+v", got)
	}
}

func TestPurgeRemovedDeletesFilesAndClearsList(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "noarch")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stale-1-0.tar.bz2"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	repodata := `{"info":{"subdir":"noarch"},"repodata_version":1,"packages":{},"packages.conda":{},"removed":["stale-1-0.tar.bz2"]}`
	if err := os.WriteFile(filepath.Join(dir, repodataFilename), []byte(repodata), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLocal(root, "", nil)
	if err := l.PurgeRemoved(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "stale-1-0.tar.bz2")); !os.IsNotExist(err) {
		t.Fatalf("expected stale package removed, stat err = %v", err)
	}
	rd, err := l.readRepodata("noarch")
	if err != nil {
		t.Fatal(err)
	}
	if len(rd.Removed) != 0 {
		t.Fatalf("expected removed list cleared, got %v", rd.Removed)
	}
}

func TestMergeCopiesSubdirTree(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	writeRepodataFixture(t, srcRoot, "noarch", map[string]string{
		"a-1-0.tar.bz2": `{"name":"a","version":"1","build":"0","depends":[]}`,
	})

	src := NewLocal(srcRoot, "", nil)
	dst := NewLocal(dstRoot, "", nil)
	if err := dst.Merge(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dstRoot, "noarch", repodataFilename)); err != nil {
		t.Fatalf("expected merged repodata.json, got err %v", err)
	}
}

func TestWritePatchGeneratorProducesValidArchive(t *testing.T) {
	root := t.TempDir()
	l := NewLocal(root, "", nil)
	if err := l.WriteInstructions("noarch", patch.Empty()); err != nil {
		t.Fatal(err)
	}
	if err := l.WritePatchGenerator(context.Background()); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(root, patchGeneratorFilename))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	tr := tar.NewReader(zr)
	hdr, err := tr.Next()
	if err != nil {
		t.Fatalf("expected at least one tar entry: %v", err)
	}
	if hdr.Name != filepath.Join("noarch", instructionsFilename) {
		t.Fatalf("got entry %q", hdr.Name)
	}
	if _, err := io.ReadAll(tr); err != nil {
		t.Fatal(err)
	}
}
