package pubfile

import (
	"encoding/binary"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/ksi-go/pkg/ksierrors"
	"github.com/certen/ksi-go/pkg/signature"
)

// DefaultTTL is how long a fetched publications file is trusted before a
// refetch is due (SPEC_FULL.md §C.6).
const DefaultTTL = time.Hour

// Fetcher retrieves the current publications file's raw bytes from its
// configured source (an HTTP endpoint in practice, fetched with a plain GET
// rather than through pkg/transport.Transport).
type Fetcher interface {
	Fetch() ([]byte, error)
}

// entry is what both cache layers store: the raw file bytes plus when it
// was fetched, so TTL expiry can be judged independently of either
// backend's own eviction policy. The parsed *File is derived lazily and
// kept alongside for the front (in-process) layer only.
type entry struct {
	raw       []byte
	fetchedAt time.Time
	file      *File
}

// Cache is a two-level, TTL-bounded cache in front of a Fetcher: a small
// in-process LRU absorbs repeated lookups within one process, and a
// persistent KV store (so a restarted process doesn't immediately
// refetch) backs it. Grounded on liteclient/cache/account.go's
// TTL-stamped entries, layered per SPEC_FULL.md §C.6 over the teacher
// go.mod's github.com/hashicorp/golang-lru/v2 and
// github.com/cometbft/cometbft-db.
type Cache struct {
	mu      sync.Mutex
	front   *lru.Cache[string, entry]
	backend dbm.DB
	fetcher Fetcher
	ttl     time.Duration
}

const cacheKey = "current"

// NewCache builds a Cache wrapping fetcher, persisting to backend (pass
// nil to run memory-only) with front-cache capacity frontSize and entry
// lifetime ttl. ttl == 0 disables expiry entirely (a fetched entry is
// trusted forever, until Invalidate); ttl < 0 selects DefaultTTL.
func NewCache(fetcher Fetcher, backend dbm.DB, frontSize int, ttl time.Duration) (*Cache, error) {
	if frontSize <= 0 {
		frontSize = 4
	}
	if ttl < 0 {
		ttl = DefaultTTL
	}
	front, err := lru.New[string, entry](frontSize)
	if err != nil {
		return nil, ksierrors.Wrap(ksierrors.InvalidArgument, err, "build publications file front cache")
	}
	return &Cache{front: front, backend: backend, fetcher: fetcher, ttl: ttl}, nil
}

// Get returns the current publications file, refetching through the
// Fetcher if the cached copy is missing or stale.
func (c *Cache) Get() (*File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked()
}

func (c *Cache) getLocked() (*File, error) {
	if e, ok := c.front.Get(cacheKey); ok && c.fresh(e) {
		return e.file, nil
	}
	if c.backend != nil {
		if e, ok, err := c.getBackend(); err == nil && ok && c.fresh(e) {
			file, err := Parse(e.raw)
			if err != nil {
				return nil, err
			}
			e.file = file
			c.front.Add(cacheKey, e)
			return file, nil
		}
	}

	raw, err := c.fetcher.Fetch()
	if err != nil {
		return nil, ksierrors.Wrap(ksierrors.NetworkError, err, "fetch publications file")
	}
	file, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	e := entry{raw: raw, fetchedAt: time.Now(), file: file}
	c.front.Add(cacheKey, e)
	if c.backend != nil {
		_ = c.putBackend(e)
	}
	return file, nil
}

// fresh reports whether e is still within ttl. ttl == 0 means the cache
// never expires entries on its own (see NewCache); only Invalidate forces
// a refetch in that mode.
func (c *Cache) fresh(e entry) bool {
	if c.ttl == 0 {
		return true
	}
	return time.Since(e.fetchedAt) < c.ttl
}

// Invalidate drops any cached publications file, forcing the next Get to
// refetch regardless of TTL.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.front.Remove(cacheKey)
	if c.backend != nil {
		_ = c.backend.Delete([]byte(cacheKey))
	}
}

// Lookup implements verifier.PublicationsFileSource: it fetches (or
// reuses) the current publications file and searches it for an exact
// publication time match.
func (c *Cache) Lookup(publicationTime int64) (signature.PublicationRecord, bool, error) {
	c.mu.Lock()
	file, err := c.getLocked()
	c.mu.Unlock()
	if err != nil {
		return signature.PublicationRecord{}, false, err
	}
	return file.Lookup(publicationTime)
}

func (c *Cache) getBackend() (entry, bool, error) {
	raw, err := c.backend.Get([]byte(cacheKey))
	if err != nil {
		return entry{}, false, err
	}
	if raw == nil {
		return entry{}, false, nil
	}
	if len(raw) < 8 {
		return entry{}, false, ksierrors.New(ksierrors.InvalidFormat, "corrupt publications file cache entry")
	}
	fetchedAtUnix := int64(binary.BigEndian.Uint64(raw[:8]))
	return entry{raw: raw[8:], fetchedAt: time.Unix(fetchedAtUnix, 0)}, true, nil
}

func (c *Cache) putBackend(e entry) error {
	buf := make([]byte, 8+len(e.raw))
	binary.BigEndian.PutUint64(buf[:8], uint64(e.fetchedAt.Unix()))
	copy(buf[8:], e.raw)
	return c.backend.Set([]byte(cacheKey), buf)
}
