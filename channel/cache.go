package channel

import (
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"

	"condamirror/record"
)

// queryCache memoizes Reader.Query results keyed by (spec string,
// subdirs), per spec.md §5 "Shared resources": a ChannelReader may
// cache query results as long as repeated reads within one resolver
// run stay stable. groupcache/lru.Cache is not safe for concurrent
// use on its own, so access is serialized with a mutex — the HTTP
// reader fetches subdirs in parallel but still funnels cache reads
// through this single lock.
type queryCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func newQueryCache(maxEntries int) *queryCache {
	return &queryCache{cache: lru.New(maxEntries)}
}

func cacheKey(specString string, subdirs []string) string {
	var sb strings.Builder
	sb.WriteString(specString)
	sb.WriteByte('\x00')
	sb.WriteString(strings.Join(subdirs, ","))
	return sb.String()
}

func (c *queryCache) get(specString string, subdirs []string) ([]record.Record, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Get(cacheKey(specString, subdirs))
	if !ok {
		return nil, false
	}
	return v.([]record.Record), true
}

func (c *queryCache) put(specString string, subdirs []string, records []record.Record) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(cacheKey(specString, subdirs), records)
}
