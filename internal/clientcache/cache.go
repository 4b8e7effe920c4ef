// Copyright confd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package clientcache implements the per-process client cache of §4.13:
// reference-counted Dir subscriptions with ancestor/descendant coverage
// collapsing, a preloaded entry/dir cache with negative caching, and a
// purely client-side listener tree fed by coalesced, idle-turn-flushed
// notifications.
package clientcache

import (
	"context"
	"sort"
	"sync"

	"github.com/hyperair/confd/internal/clientengine"
	"github.com/hyperair/confd/internal/keypath"
	"github.com/hyperair/confd/internal/listenertree"
	"github.com/hyperair/confd/internal/value"
)

// PreloadKind selects how much of a Dir's subtree is pulled into the
// cache at subscription time (§4.13 step 2).
type PreloadKind int

const (
	PreloadNone PreloadKind = iota
	PreloadOneLevel
	PreloadRecursive
)

type dirEntry struct {
	prefix   string
	refs     int
	preload  PreloadKind
	connID   int64 // server-side subscription id, 0 if covered by an ancestor
	hasConn  bool
}

// Cache is one client's view onto a single remote database.
type Cache struct {
	mu sync.Mutex

	engine    clientengine.Engine
	dbID      string
	clientIOR string

	dirs    map[string]*dirEntry
	entries map[string]*value.Value // nil = negative cache hit
	dirDone map[string]bool         // prefixes whose direct children are fully cached

	tree    *listenertree.Tree
	pending map[string]bool
	order   []string

	closed bool
}

// New builds a Cache for database dbID reached through engine. clientIOR
// is this client's own callback address, passed through to AddListener so
// the daemon knows where to deliver notifications.
func New(engine clientengine.Engine, dbID, clientIOR string) *Cache {
	return &Cache{
		engine:    engine,
		dbID:      dbID,
		clientIOR: clientIOR,
		dirs:      map[string]*dirEntry{},
		entries:   map[string]*value.Value{},
		dirDone:   map[string]bool{},
		tree:      listenertree.New(),
		pending:   map[string]bool{},
	}
}

// AddDir subscribes to prefix with preload kind, reference-counting
// repeated subscriptions to the same prefix (§4.13 step 1). A new server
// listener is installed unless an existing Dir's prefix is already an
// ancestor of prefix; any existing Dir whose prefix is a descendant of
// prefix has its own server subscription torn down, since it is now
// covered by this one.
func (c *Cache) AddDir(ctx context.Context, prefix string, preload PreloadKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.dirs[prefix]; ok {
		d.refs++
		return nil
	}

	d := &dirEntry{prefix: prefix, refs: 1, preload: preload}
	covered := false
	for _, other := range c.dirs {
		if other.prefix != prefix && (keypath.IsBelow(other.prefix, prefix) || other.prefix == prefix) {
			covered = true
		}
	}
	if !covered {
		connID, err := c.engine.AddListener(ctx, c.dbID, prefix, c.clientIOR)
		if err != nil {
			return err
		}
		d.connID, d.hasConn = connID, true
		for _, other := range c.dirs {
			if other.hasConn && keypath.IsBelow(prefix, other.prefix) {
				if err := c.engine.RemoveListener(ctx, c.dbID, other.connID); err != nil {
					return err
				}
				other.connID, other.hasConn = 0, false
			}
		}
	}
	c.dirs[prefix] = d

	return c.preload(ctx, d)
}

func (c *Cache) preload(ctx context.Context, d *dirEntry) error {
	if d.preload == PreloadNone {
		return nil
	}
	if err := c.preloadOneLevel(ctx, d.prefix); err != nil {
		return err
	}
	if d.preload == PreloadRecursive {
		subdirs, err := c.engine.AllDirs(ctx, c.dbID, d.prefix)
		if err != nil {
			return err
		}
		for _, sd := range subdirs {
			if err := c.preloadOneLevel(ctx, sd); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Cache) preloadOneLevel(ctx context.Context, dir string) error {
	res, err := c.engine.AllEntries(ctx, c.dbID, dir, nil)
	if err != nil {
		return err
	}
	for _, e := range res.Entries {
		c.entries[e.Key] = e.Value
	}
	c.dirDone[dir] = true
	return nil
}

// RemoveDir releases one reference on prefix, tearing down its server
// subscription (if any) once the count reaches zero.
func (c *Cache) RemoveDir(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.dirs[prefix]
	if !ok {
		return nil
	}
	d.refs--
	if d.refs > 0 {
		return nil
	}
	delete(c.dirs, prefix)
	delete(c.dirDone, prefix)
	if d.hasConn {
		return c.engine.RemoveListener(ctx, c.dbID, d.connID)
	}
	return nil
}

// Get resolves key per §4.13 step 3: a populated cache entry returns
// directly (including a cached "unset" from a negative hit); a miss whose
// parent directory is fully cached synthesizes a negative hit without any
// remote call; otherwise issues a remote lookup, caching the result only
// if key falls under a watched Dir.
func (c *Cache) Get(ctx context.Context, key string, locales []string) (*value.Value, error) {
	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	parent := keypath.ParentOf(key)
	if c.dirDone[parent] {
		c.mu.Unlock()
		return nil, nil
	}
	watched := c.watches(key)
	c.mu.Unlock()

	res, err := c.engine.LookupWithLocale(ctx, c.dbID, key, locales)
	if err != nil {
		return nil, err
	}
	if watched {
		c.mu.Lock()
		c.entries[key] = res.Value
		c.mu.Unlock()
	}
	return res.Value, nil
}

func (c *Cache) watches(key string) bool {
	for prefix := range c.dirs {
		if prefix == key || keypath.IsBelow(prefix, key) {
			return true
		}
	}
	return false
}

// NotifyAdd registers a purely client-side listener at namespace,
// identical in semantics to the server's listener tree (§4.13 step 4).
func (c *Cache) NotifyAdd(namespace string, cb listenertree.Callback) int64 {
	return c.tree.Add(namespace, cb)
}

// NotifyRemove unregisters a client-side listener.
func (c *Cache) NotifyRemove(connID int64) {
	c.tree.Remove(connID)
}

// HandleServerNotify is invoked by this client's ClientCallback
// implementation when the daemon delivers a notification: the cache is
// updated immediately (so re-entrant reads see new state, §5), and the
// key is queued for a coalesced flush on the next idle turn.
func (c *Cache) HandleServerNotify(key string, v *value.Value, isDefault bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watches(key) {
		c.entries[key] = v
	}
	if !c.pending[key] {
		c.pending[key] = true
		c.order = append(c.order, key)
	}
}

// Flush dispatches every queued key, deduplicated and sorted for
// determinism within one turn (§4.13 step 5, §5). Order across distinct
// keys is otherwise unspecified by the source material.
func (c *Cache) Flush() {
	c.mu.Lock()
	if c.closed || len(c.order) == 0 {
		c.mu.Unlock()
		return
	}
	keys := append([]string(nil), c.order...)
	sort.Strings(keys)
	c.order = nil
	c.pending = map[string]bool{}
	entries := make(map[string]*value.Value, len(keys))
	for _, k := range keys {
		entries[k] = c.entries[k]
	}
	c.mu.Unlock()

	for _, k := range keys {
		c.tree.Notify(k, listenertree.Event{Key: k, Value: entries[k], Unset: entries[k] == nil})
	}
}

// Close cancels any pending flush and marks the cache unusable for
// further notification queuing (§5, "Cancellation").
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.order = nil
	c.pending = map[string]bool{}
}
