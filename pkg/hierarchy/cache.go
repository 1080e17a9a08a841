// Package hierarchy memoizes the option lists of the classification tree.
package hierarchy

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/lookup"
	"github.com/greenledger/ghgstage/pkg/notify"
)

// Cache serves option lists from memory once fetched. Entries are keyed by
// the level and its full ancestor chain, so two parents that share a name
// never share children.
//
// Failed fetches are reported through the notifier, yield an empty list and
// are not cached: the next request tries again.
type Cache struct {
	source   lookup.Hierarchy
	notifier notify.Notifier

	mu      sync.RWMutex
	entries map[string]ghg.Options
	group   singleflight.Group
}

func New(source lookup.Hierarchy, notifier notify.Notifier) *Cache {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Cache{
		source:   source,
		notifier: notifier,
		entries:  make(map[string]ghg.Options),
	}
}

// Children returns the options of level under path. Concurrent callers
// asking for the same key share one request. The shared request outlives
// the caller that started it, so a cancelled caller never fails the others;
// each caller stops waiting when its own ctx is done.
func (c *Cache) Children(ctx context.Context, level ghg.Level, path ghg.Path) ghg.Options {
	key := path.Key(level)

	c.mu.RLock()
	opts, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return opts
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		list, err := lookup.ListChildren(fetchCtx, c.source, level, path)
		if err != nil {
			return nil, err
		}
		opts := ghg.Options(list)
		if opts == nil {
			opts = ghg.Options{}
		}
		c.mu.Lock()
		c.entries[key] = opts
		c.mu.Unlock()
		return opts, nil
	})

	select {
	case <-ctx.Done():
		return ghg.Options{}
	case res := <-ch:
		if res.Err != nil {
			if ctx.Err() == nil {
				notify.Warn(c.notifier, res.Err, "Could not load %s options", level)
			}
			return ghg.Options{}
		}
		return res.Val.(ghg.Options)
	}
}

// Cached reports whether the list for level under path is already held.
func (c *Cache) Cached(level ghg.Level, path ghg.Path) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[path.Key(level)]
	return ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]ghg.Options)
}
