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

// Package memory implements a process-local, in-memory backend.Backend.
// Its on-disk byte layout is deliberately out of scope system-wide
// (§1) -- this backend has none -- but it implements the full interface
// of §4.4, including the `%locale%<tag>` pseudo-subdirectory convention,
// so that the source stack and end-to-end tests (§8) have a concrete,
// working backend to run against.
package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/hyperair/confd/internal/backend"
	"github.com/hyperair/confd/internal/cerr"
	"github.com/hyperair/confd/internal/keypath"
	"github.com/hyperair/confd/internal/value"
)

func init() {
	backend.Register("mem", &Backend{})
}

// Backend is the memory-backed implementation of backend.Backend. One
// Handle is created per distinct Address.Location so that multiple
// addresses in a source-path file remain isolated from one another.
type Backend struct {
	mu      sync.Mutex
	stores  map[string]*store
}

type store struct {
	mu          sync.Mutex
	values      map[string]*value.Value
	schemaAssoc map[string]string
	dirs        map[string]bool
	meta        map[string]backend.MetaInfo
	addr        backend.Address
}

func newStore(addr backend.Address) *store {
	return &store{
		values:      make(map[string]*value.Value),
		schemaAssoc: make(map[string]string),
		dirs:        map[string]bool{"/": true},
		meta:        make(map[string]backend.MetaInfo),
		addr:        addr,
	}
}

func (b *Backend) ResolveAddress(addr backend.Address) (backend.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stores == nil {
		b.stores = make(map[string]*store)
	}
	s, ok := b.stores[addr.Location]
	if !ok {
		s = newStore(addr)
		b.stores[addr.Location] = s
	}
	return s, nil
}

func h(handle backend.Handle) *store { return handle.(*store) }

func (b *Backend) Readable(handle backend.Handle, key string) bool { return true }
func (b *Backend) Writable(handle backend.Handle, key string) bool { return true }

func localeKey(key, locale string) string {
	if locale == "" {
		return key
	}
	parent := keypath.ParentOf(key)
	leaf := keypath.LeafOf(key)
	return keypath.Concat(keypath.Concat(parent, "%locale%"+locale), leaf)
}

func (b *Backend) QueryValue(handle backend.Handle, key string, locales []string) (*value.Value, string, error) {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	schemaName := s.schemaAssoc[key]
	prefs := locales
	if len(prefs) == 0 {
		prefs = []string{""}
	}
	for _, loc := range prefs {
		l := loc
		if l == "C" {
			l = ""
		}
		if v, ok := s.values[localeKey(key, l)]; ok {
			return v, schemaName, nil
		}
	}
	return nil, schemaName, nil
}

func (b *Backend) QueryMetaInfo(handle backend.Handle, key string) (*backend.MetaInfo, error) {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	mi, ok := s.meta[key]
	if !ok {
		return nil, nil
	}
	return &mi, nil
}

func (s *store) markDirs(key string) {
	dir := keypath.ParentOf(key)
	for {
		s.dirs[dir] = true
		if dir == "/" {
			break
		}
		dir = keypath.ParentOf(dir)
	}
}

func (b *Backend) SetValue(handle backend.Handle, key string, v *value.Value) error {
	ok, reason := keypath.IsValid(key)
	if !ok {
		return cerr.New(cerr.BadKey, "%s: %s", key, reason)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v.Copy()
	s.meta[key] = backend.MetaInfo{Mtime: time.Now(), SchemaName: s.schemaAssoc[key]}
	s.markDirs(key)
	return nil
}

func (b *Backend) UnsetValue(handle backend.Handle, key string, locale *string) error {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	if locale != nil {
		delete(s.values, localeKey(key, *locale))
		return nil
	}
	delete(s.values, key)
	prefix := keypath.Concat(keypath.ParentOf(key), "%locale%")
	leaf := keypath.LeafOf(key)
	for k := range s.values {
		if strings.HasPrefix(k, prefix) && strings.HasSuffix(k, "/"+leaf) {
			delete(s.values, k)
		}
	}
	delete(s.meta, key)
	return nil
}

func (b *Backend) AllEntries(handle backend.Handle, dir string, locales []string) ([]backend.Entry, error) {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var entries []backend.Entry
	for k, v := range s.values {
		if keypath.ParentOf(k) != dir || strings.Contains(keypath.LeafOf(k), "%locale%") {
			continue
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		entries = append(entries, backend.Entry{
			Key:        k,
			Value:      v,
			SchemaName: s.schemaAssoc[k],
			IsWritable: true,
		})
	}
	for k, sn := range s.schemaAssoc {
		if keypath.ParentOf(k) != dir || seen[k] {
			continue
		}
		entries = append(entries, backend.Entry{Key: k, SchemaName: sn, IsWritable: true})
	}
	return entries, nil
}

func (b *Backend) AllSubdirs(handle backend.Handle, dir string) ([]string, error) {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	var subdirs []string
	for d := range s.dirs {
		if d == "/" || keypath.ParentOf(d) != dir {
			continue
		}
		if strings.Contains(keypath.LeafOf(d), "%locale%") {
			continue
		}
		subdirs = append(subdirs, d)
	}
	return subdirs, nil
}

func (b *Backend) DirExists(handle backend.Handle, dir string) bool {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirs[dir]
}

func (b *Backend) RemoveDir(handle backend.Handle, dir string) error {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.values {
		if keypath.IsBelow(dir, k) {
			delete(s.values, k)
			delete(s.meta, k)
		}
	}
	for k := range s.schemaAssoc {
		if keypath.IsBelow(dir, k) {
			delete(s.schemaAssoc, k)
		}
	}
	for d := range s.dirs {
		if d != "/" && keypath.IsBelow(dir, d) {
			delete(s.dirs, d)
		}
	}
	return nil
}

func (b *Backend) SetSchema(handle backend.Handle, key, schemaKey string) error {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemaAssoc[key] = schemaKey
	s.markDirs(key)
	return nil
}

func (b *Backend) SyncAll(handle backend.Handle) error { return nil }
func (b *Backend) ClearCache(handle backend.Handle)    {}

func (b *Backend) DestroySource(handle backend.Handle) error {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]*value.Value)
	s.schemaAssoc = make(map[string]string)
	s.dirs = map[string]bool{"/": true}
	return nil
}
