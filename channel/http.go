package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"condamirror/condaerr"
	"condamirror/internal/logging"
	"condamirror/matchspec"
	"condamirror/patch"
	"condamirror/record"
)

// HTTP is a channel.Reader backed by a remote conda channel served over
// HTTP(S), grounded on
// original_source/src/conda_replicate/adapters/channel.py's CondaChannel
// (the fsspec-backed base class; Local above plays the role of its
// LocalCondaChannel subclass). Per spec.md §5, upstream repodata fetches
// for distinct subdirs may run in parallel; HTTP uses
// golang.org/x/sync/errgroup to do so and cancels the remaining fetches
// on first error.
type HTTP struct {
	baseURL string
	client  *http.Client
	cache   *queryCache
	log     logging.Logger
}

// NewHTTP returns an HTTP channel reader for baseURL (no trailing
// slash). A nil client defaults to an *http.Client with a 30s timeout;
// a nil log is replaced with logging.Nop.
func NewHTTP(baseURL string, client *http.Client, log logging.Logger) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logging.Nop
	}
	return &HTTP{baseURL: baseURL, client: client, cache: newQueryCache(256), log: log}
}

func (h *HTTP) fetch(ctx context.Context, subdir, filename string) ([]byte, bool, error) {
	url := fmt.Sprintf("%s/%s/%s", h.baseURL, subdir, filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, false, &condaerr.ChannelUnavailable{Channel: h.baseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, &condaerr.ChannelUnavailable{
			Channel: h.baseURL,
			Err:     fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url),
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, &condaerr.ChannelUnavailable{Channel: h.baseURL, Err: err}
	}
	return data, true, nil
}

func (h *HTTP) readRepodata(ctx context.Context, subdir string) (patch.RepoData, error) {
	if data, ok, err := h.fetch(ctx, subdir, repodataZstFilename); err != nil {
		return patch.RepoData{}, err
	} else if ok {
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

	data, ok, err := h.fetch(ctx, subdir, repodataFilename)
	if err != nil {
		return patch.RepoData{}, err
	}
	if !ok {
		return patch.RepoData{Subdir: subdir}, nil
	}
	rd, err := patch.ParseRepoData(subdir, data)
	if err != nil {
		return patch.RepoData{}, &condaerr.InvalidRepodata{Subdir: subdir, Err: err}
	}
	return rd, nil
}

// Iter is equivalent to Query("*", subdirs).
func (h *HTTP) Iter(ctx context.Context, subdirs []string) ([]record.Record, error) {
	return h.Query(ctx, "*", subdirs)
}

// Query implements channel.Reader, fetching each subdir's repodata
// concurrently via errgroup.
func (h *HTTP) Query(ctx context.Context, specString string, subdirs []string) ([]record.Record, error) {
	if cached, ok := h.cache.get(specString, subdirs); ok {
		h.log.Debug("query cache hit", logging.F("spec", specString))
		return cached, nil
	}

	spec, err := matchspec.DefaultParser.Parse(specString)
	if err != nil {
		return nil, err
	}

	perSubdir := make([][]record.Record, len(subdirs))
	g, gctx := errgroup.WithContext(ctx)
	for i, subdir := range subdirs {
		i, subdir := i, subdir
		g.Go(func() error {
			rd, err := h.readRepodata(gctx, subdir)
			if err != nil {
				return err
			}
			recs, err := rd.Records(h.baseURL)
			if err != nil {
				return &condaerr.InvalidRepodata{Subdir: subdir, Err: err}
			}
			perSubdir[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []record.Record
	for _, recs := range perSubdir {
		for _, r := range recs {
			if spec.Match(r) {
				out = append(out, r)
			}
		}
	}

	h.cache.put(specString, subdirs, out)
	return out, nil
}

// FindSubdirs probes every known subdir in parallel, returning the
// ones whose repodata fetch succeeds.
func (h *HTTP) FindSubdirs(ctx context.Context) ([]string, error) {
	var (
		mu    sync.Mutex
		found []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, subdir := range knownSubdirs {
		subdir := subdir
		g.Go(func() error {
			_, ok, err := h.fetch(gctx, subdir, repodataZstFilename)
			if err == nil && !ok {
				_, ok, err = h.fetch(gctx, subdir, repodataFilename)
			}
			if err != nil {
				// A network failure probing one subdir shouldn't abort
				// discovery of the others; treat it as absent.
				return nil
			}
			if ok {
				mu.Lock()
				found = append(found, subdir)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

// ReadInstructions implements channel.Reader.
func (h *HTTP) ReadInstructions(ctx context.Context, subdir string) (patch.Instructions, error) {
	data, ok, err := h.fetch(ctx, subdir, instructionsFilename)
	if err != nil {
		return patch.Instructions{}, err
	}
	if !ok {
		return patch.Empty(), nil
	}
	var in patch.Instructions
	if err := json.Unmarshal(data, &in); err != nil {
		return patch.Instructions{}, &condaerr.InvalidRepodata{Subdir: subdir, Err: err}
	}
	return in, nil
}
