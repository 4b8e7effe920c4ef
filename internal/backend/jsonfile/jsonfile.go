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

// Package jsonfile implements a durable backend.Backend storing one JSON
// document per source location. Like the memory backend, this is a
// reference implementation of the backend interface (§4.4) -- the XML and
// BerkeleyDB backends' actual on-disk byte layouts are out of scope (§1)
// -- chosen so the source stack has a persistent backend to exercise.
package jsonfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hyperair/confd/internal/backend"
	"github.com/hyperair/confd/internal/cerr"
	"github.com/hyperair/confd/internal/keypath"
	"github.com/hyperair/confd/internal/value"
)

func init() {
	backend.Register("jsonfile", &Backend{})
}

// Backend is the JSON-file-backed implementation of backend.Backend.
type Backend struct {
	mu     sync.Mutex
	stores map[string]*store
}

type document struct {
	Values      map[string]string `json:"values"`
	SchemaAssoc map[string]string `json:"schema_assoc"`
	Dirs        []string          `json:"dirs"`
}

type store struct {
	mu   sync.Mutex
	path string
	addr backend.Address
	doc  document
	meta map[string]backend.MetaInfo
}

func (b *Backend) ResolveAddress(addr backend.Address) (backend.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stores == nil {
		b.stores = make(map[string]*store)
	}
	if s, ok := b.stores[addr.Location]; ok {
		return s, nil
	}
	s := &store{
		path: addr.Location,
		addr: addr,
		doc:  document{Values: map[string]string{}, SchemaAssoc: map[string]string{}, Dirs: []string{"/"}},
		meta: map[string]backend.MetaInfo{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	b.stores[addr.Location] = s
	return s, nil
}

func (s *store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return cerr.Wrap(cerr.Corrupt, err, "reading %s", s.path)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return cerr.Wrap(cerr.Corrupt, err, "parsing %s", s.path)
	}
	if s.doc.Values == nil {
		s.doc.Values = map[string]string{}
	}
	if s.doc.SchemaAssoc == nil {
		s.doc.SchemaAssoc = map[string]string{}
	}
	return nil
}

// save writes the document atomically: write to a temp file, fsync, rename
// over the destination, mirroring the crash-safety discipline used for the
// listener log (§4.9).
func (s *store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return cerr.Wrap(cerr.Failed, err, "creating directory for %s", s.path)
	}
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return cerr.Wrap(cerr.Failed, err, "marshaling %s", s.path)
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return cerr.Wrap(cerr.Failed, err, "opening %s", tmp)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return cerr.Wrap(cerr.Failed, err, "writing %s", tmp)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return cerr.Wrap(cerr.Failed, err, "fsyncing %s", tmp)
	}
	if err := f.Close(); err != nil {
		return cerr.Wrap(cerr.Failed, err, "closing %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return cerr.Wrap(cerr.Failed, err, "renaming %s to %s", tmp, s.path)
	}
	return nil
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
	schemaName := s.doc.SchemaAssoc[key]
	prefs := locales
	if len(prefs) == 0 {
		prefs = []string{""}
	}
	for _, loc := range prefs {
		l := loc
		if l == "C" {
			l = ""
		}
		enc, ok := s.doc.Values[localeKey(key, l)]
		if !ok {
			continue
		}
		v, err := value.Decode(enc)
		if err != nil {
			return nil, schemaName, cerr.Wrap(cerr.Corrupt, err, "decoding stored value for %s", key)
		}
		return v, schemaName, nil
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
		if !containsStr(s.doc.Dirs, dir) {
			s.doc.Dirs = append(s.doc.Dirs, dir)
		}
		if dir == "/" {
			break
		}
		dir = keypath.ParentOf(dir)
	}
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func (b *Backend) SetValue(handle backend.Handle, key string, v *value.Value) error {
	ok, reason := keypath.IsValid(key)
	if !ok {
		return cerr.New(cerr.BadKey, "%s: %s", key, reason)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	enc, err := v.Encode()
	if err != nil {
		return err
	}
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Values[key] = enc
	s.meta[key] = backend.MetaInfo{Mtime: time.Now(), SchemaName: s.doc.SchemaAssoc[key]}
	s.markDirs(key)
	return s.save()
}

func (b *Backend) UnsetValue(handle backend.Handle, key string, locale *string) error {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	if locale != nil {
		delete(s.doc.Values, localeKey(key, *locale))
		return s.save()
	}
	delete(s.doc.Values, key)
	delete(s.meta, key)
	prefix := keypath.Concat(keypath.ParentOf(key), "%locale%")
	leaf := keypath.LeafOf(key)
	for k := range s.doc.Values {
		if strings.HasPrefix(k, prefix) && strings.HasSuffix(k, "/"+leaf) {
			delete(s.doc.Values, k)
		}
	}
	return s.save()
}

func (b *Backend) AllEntries(handle backend.Handle, dir string, locales []string) ([]backend.Entry, error) {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var entries []backend.Entry
	for k, enc := range s.doc.Values {
		if keypath.ParentOf(k) != dir || strings.Contains(keypath.LeafOf(k), "%locale%") {
			continue
		}
		v, err := value.Decode(enc)
		if err != nil {
			return nil, cerr.Wrap(cerr.Corrupt, err, "decoding %s", k)
		}
		seen[k] = true
		entries = append(entries, backend.Entry{Key: k, Value: v, SchemaName: s.doc.SchemaAssoc[k], IsWritable: true})
	}
	for k, sn := range s.doc.SchemaAssoc {
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
	for _, d := range s.doc.Dirs {
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
	return containsStr(s.doc.Dirs, dir)
}

func (b *Backend) RemoveDir(handle backend.Handle, dir string) error {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.doc.Values {
		if keypath.IsBelow(dir, k) {
			delete(s.doc.Values, k)
			delete(s.meta, k)
		}
	}
	for k := range s.doc.SchemaAssoc {
		if keypath.IsBelow(dir, k) {
			delete(s.doc.SchemaAssoc, k)
		}
	}
	var kept []string
	for _, d := range s.doc.Dirs {
		if d == dir || (d != "/" && keypath.IsBelow(dir, d)) {
			continue
		}
		kept = append(kept, d)
	}
	s.doc.Dirs = kept
	return s.save()
}

func (b *Backend) SetSchema(handle backend.Handle, key, schemaKey string) error {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.SchemaAssoc[key] = schemaKey
	s.markDirs(key)
	return s.save()
}

func (b *Backend) SyncAll(handle backend.Handle) error {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

func (b *Backend) ClearCache(handle backend.Handle) {}

func (b *Backend) DestroySource(handle backend.Handle) error {
	s := h(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = document{Values: map[string]string{}, SchemaAssoc: map[string]string{}, Dirs: []string{"/"}}
	return nil
}
