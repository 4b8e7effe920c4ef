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

// Package database composes a source.Stack with a listenertree.Tree into
// the Database of §4.8: one source stack, one listener tree, an access
// timestamp used for idle eviction by the daemon (§4.10).
package database

import (
	"sync"
	"time"

	"github.com/hyperair/confd/internal/backend"
	"github.com/hyperair/confd/internal/cerr"
	"github.com/hyperair/confd/internal/keypath"
	"github.com/hyperair/confd/internal/listenertree"
	"github.com/hyperair/confd/internal/source"
	"github.com/hyperair/confd/internal/value"
)

// Database is a source stack plus a listener tree bound to one address.
//
// The original implementation runs a single-threaded event loop, so its
// in-process state needs no locks (§5). This port serves concurrent RPC
// connections on goroutines, so mu serializes every mutating operation on
// the stack and lastAccess. Notification delivery is serialized separately
// by notifyMu, taken only after mu is released: a callback is an HTTP round
// trip to a client that may be slow or dead, and firing it while still
// holding mu would both stall every other Query/Set on this Database and
// invert lock order against the daemon, which takes its own mutex from
// inside a callback (internal/daemon's callbackFor). notifyMu alone still
// preserves "notifications for modification M complete before any
// subsequent modification's notifications begin" (SPEC_FULL §4.8, Open
// Question resolution) since tree.Notify calls never run concurrently with
// each other.
type Database struct {
	Address        string
	PersistentName string

	mu         sync.Mutex
	stack      *source.Stack
	tree       *listenertree.Tree
	lastAccess time.Time

	notifyMu sync.Mutex
}

// New composes a Database from an already-opened source.Stack.
func New(address string, stack *source.Stack) *Database {
	return &Database{
		Address:    address,
		stack:      stack,
		tree:       listenertree.New(),
		lastAccess: time.Now(),
	}
}

func (d *Database) touch() {
	d.lastAccess = time.Now()
}

// LastAccess returns the timestamp of the most recent request served by
// this Database.
func (d *Database) LastAccess() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastAccess
}

// ListenerCount reports the number of live listeners, consulted by the
// daemon's idle sweep (§4.10).
func (d *Database) ListenerCount() int {
	return d.tree.Count()
}

// Query looks up key, synthesizing a schema default on miss (§4.6).
func (d *Database) Query(key string, locales []string) (*source.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touch()
	if ok, reason := keypath.IsValid(key); !ok {
		return nil, badKeyErr(key, reason)
	}
	return d.stack.Query(key, locales)
}

// Set writes key's value and notifies listeners on or above key after the
// store update has taken effect.
func (d *Database) Set(key string, v *value.Value) error {
	d.mu.Lock()
	d.touch()
	if ok, reason := keypath.IsValid(key); !ok {
		d.mu.Unlock()
		return badKeyErr(key, reason)
	}
	if err := d.stack.Set(key, v); err != nil {
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()

	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	d.tree.Notify(key, listenertree.Event{Key: key, Value: v})
	return nil
}

// Unset removes key's value and notifies.
func (d *Database) Unset(key string) error {
	d.mu.Lock()
	d.touch()
	if ok, reason := keypath.IsValid(key); !ok {
		d.mu.Unlock()
		return badKeyErr(key, reason)
	}
	if err := d.stack.Unset(key); err != nil {
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()

	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	d.tree.Notify(key, listenertree.Event{Key: key, Unset: true})
	return nil
}

// SetSchema associates schemaKey with key and notifies key's listeners,
// since the effective (possibly defaulted) value observed at key may
// change as a result.
func (d *Database) SetSchema(key, schemaKey string) error {
	d.mu.Lock()
	d.touch()
	if ok, reason := keypath.IsValid(key); !ok {
		d.mu.Unlock()
		return badKeyErr(key, reason)
	}
	if err := d.stack.SetSchema(key, schemaKey); err != nil {
		d.mu.Unlock()
		return err
	}
	res, _ := d.stack.Query(key, nil)
	ev := listenertree.Event{Key: key}
	if res != nil {
		ev.Value, ev.IsDefault = res.Value, res.IsDefault
	}
	d.mu.Unlock()

	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	d.tree.Notify(key, ev)
	return nil
}

// RemoveDir recursively removes dir and notifies dir's listeners.
func (d *Database) RemoveDir(dir string) error {
	d.mu.Lock()
	d.touch()
	if ok, reason := keypath.IsValid(dir); !ok {
		d.mu.Unlock()
		return badKeyErr(dir, reason)
	}
	if err := d.stack.RemoveDir(dir); err != nil {
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()

	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	d.tree.Notify(dir, listenertree.Event{Key: dir, Unset: true})
	return nil
}

// AllEntries lists dir's direct children.
func (d *Database) AllEntries(dir string, locales []string) ([]backend.Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touch()
	return d.stack.AllEntries(dir, locales)
}

// AllDirs lists dir's direct subdirectories.
func (d *Database) AllDirs(dir string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touch()
	return d.stack.AllDirs(dir)
}

// DirExists reports whether dir exists in any source.
func (d *Database) DirExists(dir string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touch()
	return d.stack.DirExists(dir)
}

// Sync drives the stack's SyncAll.
func (d *Database) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stack.SyncAll()
}

// ClearCache is forwarded to each source.
func (d *Database) ClearCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stack.ClearCache()
}

// AddListener registers cb at prefix, returning a connection id held by
// no other live listener of this Database; an id released by
// RemoveListener may be handed out again.
func (d *Database) AddListener(prefix string, cb listenertree.Callback) int64 {
	return d.tree.Add(prefix, cb)
}

// RemoveListener unregisters connID.
func (d *Database) RemoveListener(connID int64) {
	d.tree.Remove(connID)
}

// ListenerPrefixes returns every live connection id's registration prefix,
// used by listener log compaction (§4.9).
func (d *Database) ListenerPrefixes() map[int64]string {
	return d.tree.Prefixes()
}

// Close releases the underlying source stack.
func (d *Database) Close() error {
	return d.stack.Close()
}

func badKeyErr(key, reason string) error {
	return cerr.New(cerr.BadKey, "%s: %s", key, reason)
}
