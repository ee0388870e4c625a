package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"condamirror/condaerr"
	"condamirror/internal/logging"
	"condamirror/matchspec"
	"condamirror/patch"
	"condamirror/record"
)

const (
	repodataFilename       = "repodata.json"
	repodataZstFilename    = "repodata.json.zst"
	instructionsFilename   = "patch_instructions.json"
	patchGeneratorFilename = "patch_generator.tar.zst"
)

// knownSubdirs is conda's fixed platform-partition list, grounded on
// original_source/src/conda_replicate/adapters/subdir.py's
// get_known_subdirs (itself a thin wrapper over conda's own constant).
var knownSubdirs = []string{
	"noarch",
	"linux-32", "linux-64", "linux-aarch64", "linux-armv6l", "linux-armv7l",
	"linux-ppc64", "linux-ppc64le", "linux-s390x",
	"osx-64", "osx-arm64",
	"win-32", "win-64", "win-arm64",
}

// Local is a channel.Reader backed by a local filesystem tree: one
// subdirectory per subdir, each holding repodata.json(.zst) and
// patch_instructions.json. Grounded on
// original_source/src/conda_replicate/adapters/channel.py's
// LocalCondaChannel/CondaFilesystem.
type Local struct {
	root    string
	baseURL string
	cache   *queryCache
	log     logging.Logger
}

// NewLocal returns a Local channel reader rooted at dir. baseURL, if
// non-empty, is used to synthesize record URLs that repodata omits. A
// nil log is replaced with logging.Nop.
func NewLocal(dir, baseURL string, log logging.Logger) *Local {
	if log == nil {
		log = logging.Nop
	}
	return &Local{root: dir, baseURL: baseURL, cache: newQueryCache(256), log: log}
}

func (l *Local) subdirPath(subdir string) string { return filepath.Join(l.root, subdir) }

func (l *Local) readRepodata(subdir string) (patch.RepoData, error) {
	dir := l.subdirPath(subdir)

	if data, err := os.ReadFile(filepath.Join(dir, repodataZstFilename)); err == nil {
		decompressed, derr := decompressZstd(data)
		if derr != nil {
			return patch.RepoData{}, &condaerr.InvalidRepodata{Subdir: subdir, Err: derr}
		}
		rd, perr := patch.ParseRepoData(subdir, decompressed)
		if perr != nil {
			return patch.RepoData{}, &condaerr.InvalidRepodata{Subdir: subdir, Err: perr}
		}
		return rd, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, repodataFilename))
	if os.IsNotExist(err) {
		return patch.RepoData{Subdir: subdir}, nil
	}
	if err != nil {
		return patch.RepoData{}, &condaerr.ChannelUnavailable{Channel: l.root, Err: err}
	}
	rd, err := patch.ParseRepoData(subdir, data)
	if err != nil {
		return patch.RepoData{}, &condaerr.InvalidRepodata{Subdir: subdir, Err: err}
	}
	return rd, nil
}

func decompressZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

// Iter returns every record across the given subdirs. Equivalent to
// Query("*", subdirs).
func (l *Local) Iter(ctx context.Context, subdirs []string) ([]record.Record, error) {
	return l.Query(ctx, "*", subdirs)
}

// Query implements channel.Reader.
func (l *Local) Query(ctx context.Context, specString string, subdirs []string) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cached, ok := l.cache.get(specString, subdirs); ok {
		l.log.Debug("query cache hit", logging.F("spec", specString))
		return cached, nil
	}

	spec, err := matchspec.DefaultParser.Parse(specString)
	if err != nil {
		return nil, err
	}

	var out []record.Record
	for _, subdir := range subdirs {
		rd, err := l.readRepodata(subdir)
		if err != nil {
			return nil, err
		}
		recs, err := rd.Records(l.baseURL)
		if err != nil {
			return nil, &condaerr.InvalidRepodata{Subdir: subdir, Err: err}
		}
		for _, r := range recs {
			if spec.Match(r) {
				out = append(out, r)
			}
		}
	}

	l.cache.put(specString, subdirs, out)
	return out, nil
}

// FindSubdirs implements channel.Reader.
func (l *Local) FindSubdirs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var found []string
	for _, subdir := range knownSubdirs {
		info, err := os.Stat(l.subdirPath(subdir))
		if err == nil && info.IsDir() {
			found = append(found, subdir)
		}
	}
	return found, nil
}

// ReadInstructions implements channel.Reader.
func (l *Local) ReadInstructions(ctx context.Context, subdir string) (patch.Instructions, error) {
	if err := ctx.Err(); err != nil {
		return patch.Instructions{}, err
	}
	data, err := os.ReadFile(filepath.Join(l.subdirPath(subdir), instructionsFilename))
	if os.IsNotExist(err) {
		return patch.Empty(), nil
	}
	if err != nil {
		return patch.Instructions{}, &condaerr.ChannelUnavailable{Channel: l.root, Err: err}
	}
	var in patch.Instructions
	if err := json.Unmarshal(data, &in); err != nil {
		return patch.Instructions{}, &condaerr.InvalidRepodata{Subdir: subdir, Err: err}
	}
	return in, nil
}

// WriteInstructions writes instructions for subdir atomically: the
// document is written to a uuid-suffixed temp file in the same
// directory, then renamed into place, so a reader never observes a
// partially-written file.
func (l *Local) WriteInstructions(subdir string, in patch.Instructions) error {
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("channel: encode instructions for %q: %w", subdir, err)
	}
	return l.atomicWrite(subdir, instructionsFilename, data)
}

// atomicWrite writes contents to subdir/filename via a uuid-suffixed
// temp file plus rename, per SPEC_FULL.md §3's "temp-file suffixes for
// atomic instruction/repodata writes".
func (l *Local) atomicWrite(subdir, filename string, contents []byte) error {
	dir := l.subdirPath(subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("channel: create subdir %q: %w", subdir, err)
	}
	tmp := filepath.Join(dir, filename+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, contents, 0o644); err != nil {
		return fmt.Errorf("channel: write temp file for %q: %w", filename, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, filename)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("channel: rename temp file for %q: %w", filename, err)
	}
	return nil
}
