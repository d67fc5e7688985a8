package loader

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/arc/v2"
	"github.com/pkg/errors"

	"github.com/roach88/solforge/internal/dsl"
)

// DefaultCacheSize is the number of decoded programs a Cache keeps.
const DefaultCacheSize = 64

type cacheKey struct {
	source string
	mtime  time.Time
}

// Cache memoizes a Loader. Entries are keyed by source and modification
// time, so an edited file is decoded again. Builtin sources never change
// and always hit once loaded.
type Cache struct {
	next  Loader
	cache *arc.ARCCache[cacheKey, *dsl.Program]
}

// NewCache wraps next with an adaptive replacement cache of size entries.
func NewCache(next Loader, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := arc.NewARC[cacheKey, *dsl.Program](size)
	if err != nil {
		return nil, errors.Wrap(err, "creating program cache")
	}
	return &Cache{next: next, cache: c}, nil
}

func (c *Cache) Load(ctx context.Context, source string) (*dsl.Program, error) {
	mtime, err := modTime(source)
	if err != nil {
		return c.next.Load(ctx, source)
	}
	key := cacheKey{source: source, mtime: mtime}
	if p, ok := c.cache.Get(key); ok {
		log.WithField("source", source).Debug("program cache hit")
		return p, nil
	}
	p, err := c.next.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, p)
	return p, nil
}

// Len returns the number of cached programs.
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Purge drops every cached program.
func (c *Cache) Purge() {
	c.cache.Purge()
}

// modTime is zero for builtin sources and the newest .cue file time for
// directories.
func modTime(source string) (time.Time, error) {
	if strings.HasPrefix(source, BuiltinPrefix) {
		return time.Time{}, nil
	}
	info, err := os.Stat(source)
	if err != nil {
		return time.Time{}, err
	}
	if !info.IsDir() {
		return info.ModTime(), nil
	}
	files, err := FindCUEFiles(source)
	if err != nil {
		return time.Time{}, err
	}
	var newest time.Time
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			return time.Time{}, err
		}
		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}
	return newest, nil
}
