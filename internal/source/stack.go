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

package source

import (
	"sort"

	"github.com/hyperair/confd/internal/backend"
	"github.com/hyperair/confd/internal/cerr"
	"github.com/hyperair/confd/internal/value"
)

// Stack is an ordered sequence of Sources forming one logical database
// with first-hit-wins read and first-writable-wins write semantics (§4.6).
type Stack struct {
	Sources []*Source
}

// NewStack builds a Stack by opening each address in order.
func NewStack(addrs []string) (*Stack, error) {
	st := &Stack{}
	for _, a := range addrs {
		src, err := Open(a)
		if err != nil {
			for _, opened := range st.Sources {
				_ = opened.Close()
			}
			return nil, err
		}
		st.Sources = append(st.Sources, src)
	}
	return st, nil
}

// Result is the outcome of a Query.
type Result struct {
	Value      *value.Value
	SchemaName string
	IsDefault  bool
}

// Query reads key per §4.6: walk top-to-bottom for the first Value; on a
// total miss, recursively resolve the first schema_name seen and
// synthesize a default from it, marking IsDefault. IsDefault is false
// whenever no schema was consulted, even on a miss.
func (st *Stack) Query(key string, locales []string) (*Result, error) {
	firstSchemaName := ""
	for _, src := range st.Sources {
		if !src.Readable(key) {
			continue
		}
		v, schemaName, err := src.Backend.QueryValue(src.Handle, key, locales)
		if err != nil {
			return nil, cerr.Wrap(cerr.Failed, err, "querying %s", key)
		}
		if v != nil {
			return &Result{Value: v, SchemaName: schemaName, IsDefault: false}, nil
		}
		if firstSchemaName == "" && schemaName != "" {
			firstSchemaName = schemaName
		}
	}
	if firstSchemaName == "" {
		return &Result{}, nil
	}
	schemaResult, err := st.Query(firstSchemaName, locales)
	if err != nil || schemaResult.Value == nil || schemaResult.Value.Type() != value.Schema {
		return &Result{SchemaName: firstSchemaName}, nil
	}
	sd, err := schemaResult.Value.GetSchema()
	if err != nil || sd.Default == nil {
		return &Result{SchemaName: firstSchemaName}, nil
	}
	return &Result{Value: sd.Default, SchemaName: firstSchemaName, IsDefault: true}, nil
}

// Set writes key per §4.6: the first writable source wins; a non-writable
// source that already holds a value for key shadows anything written
// further down and the write is refused as Overridden; unset read-only
// layers are skipped over.
func (st *Stack) Set(key string, v *value.Value) error {
	for _, src := range st.Sources {
		if src.Writable(key) {
			return src.Backend.SetValue(src.Handle, key, v)
		}
		existing, _, err := src.Backend.QueryValue(src.Handle, key, nil)
		if err != nil {
			return cerr.Wrap(cerr.Failed, err, "probing %s for override", key)
		}
		if existing != nil {
			return cerr.New(cerr.Overridden, "write to %s would be shadowed by read-only source %s", key, src.Addr.Raw)
		}
	}
	return cerr.New(cerr.NoWritableDatabase, "no writable source in the stack accepted %s", key)
}

// Unset removes key's value from every writable source in the stack.
func (st *Stack) Unset(key string) error {
	var errs []error
	for _, src := range st.Sources {
		if !src.Writable(key) {
			continue
		}
		if err := src.Backend.UnsetValue(src.Handle, key, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return cerr.Compose(errs...)
}

// SetSchema associates schemaKey with key at the first writable source.
func (st *Stack) SetSchema(key, schemaKey string) error {
	for _, src := range st.Sources {
		if src.Writable(key) {
			return src.Backend.SetSchema(src.Handle, key, schemaKey)
		}
	}
	return cerr.New(cerr.NoWritableDatabase, "no writable source in the stack to hold schema association for %s", key)
}

// RemoveDir removes dir recursively from every writable source.
func (st *Stack) RemoveDir(dir string) error {
	var errs []error
	for _, src := range st.Sources {
		if !src.Writable(dir) {
			continue
		}
		if err := src.Backend.RemoveDir(src.Handle, dir); err != nil {
			errs = append(errs, err)
		}
	}
	return cerr.Compose(errs...)
}

// AllEntries merges the direct children of dir across the stack per §4.6:
// first occurrence wins the value slot; a later source can fill an
// empty-valued slot but never overwrites one. Entries left valueless but
// carrying a schema_name have their default synthesized afterwards.
func (st *Stack) AllEntries(dir string, locales []string) ([]backend.Entry, error) {
	order := []string{}
	merged := map[string]backend.Entry{}
	for _, src := range st.Sources {
		if !src.Readable(dir) {
			continue
		}
		entries, err := src.Backend.AllEntries(src.Handle, dir, locales)
		if err != nil {
			return nil, cerr.Wrap(cerr.Failed, err, "listing entries under %s", dir)
		}
		for _, e := range entries {
			existing, ok := merged[e.Key]
			if !ok {
				merged[e.Key] = e
				order = append(order, e.Key)
				continue
			}
			if existing.Value == nil && e.Value != nil {
				existing.Value = e.Value
				if existing.SchemaName == "" {
					existing.SchemaName = e.SchemaName
				}
				merged[e.Key] = existing
			}
			if existing.SchemaName == "" && e.SchemaName != "" {
				existing.SchemaName = e.SchemaName
				merged[e.Key] = existing
			}
		}
	}
	out := make([]backend.Entry, 0, len(order))
	for _, k := range order {
		e := merged[k]
		if e.Value == nil && e.SchemaName != "" {
			schemaResult, err := st.Query(e.SchemaName, locales)
			if err == nil && schemaResult.Value != nil && schemaResult.Value.Type() == value.Schema {
				if sd, err := schemaResult.Value.GetSchema(); err == nil && sd.Default != nil {
					e.Value = sd.Default
					e.IsDefault = true
				}
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// AllDirs unions direct subdirectories of dir across the stack, each name
// appearing at most once, sorted for determinism.
func (st *Stack) AllDirs(dir string) ([]string, error) {
	seen := map[string]bool{}
	for _, src := range st.Sources {
		if !src.Readable(dir) {
			continue
		}
		subdirs, err := src.Backend.AllSubdirs(src.Handle, dir)
		if err != nil {
			return nil, cerr.Wrap(cerr.Failed, err, "listing subdirs of %s", dir)
		}
		for _, d := range subdirs {
			seen[d] = true
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

// DirExists reports whether dir exists in any source of the stack.
func (st *Stack) DirExists(dir string) bool {
	for _, src := range st.Sources {
		if src.Readable(dir) && src.Backend.DirExists(src.Handle, dir) {
			return true
		}
	}
	return false
}

// SyncAll flushes every source, composing errors; overall success requires
// every source to succeed (§4.6).
func (st *Stack) SyncAll() error {
	var errs []error
	for _, src := range st.Sources {
		if err := src.Backend.SyncAll(src.Handle); err != nil {
			errs = append(errs, err)
		}
	}
	return cerr.Compose(errs...)
}

// ClearCache forwards to every source.
func (st *Stack) ClearCache() {
	for _, src := range st.Sources {
		src.Backend.ClearCache(src.Handle)
	}
}

// Close releases every source in the stack.
func (st *Stack) Close() error {
	var errs []error
	for _, src := range st.Sources {
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return cerr.Compose(errs...)
}
