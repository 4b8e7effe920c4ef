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

// Package changeset implements the batched set/unset change sets of
// §4.14 step 6: an ordered list of per-key operations committed against
// a target in one pass, with a computed reversal.
package changeset

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hyperair/confd/internal/source"
	"github.com/hyperair/confd/internal/value"
)

// Target is whatever a ChangeSet is committed against: a database.Database
// satisfies it directly.
type Target interface {
	Query(key string, locales []string) (*source.Result, error)
	Set(key string, v *value.Value) error
	Unset(key string) error
}

// op is either a set (Value != nil) or an unset (Value == nil) of Key.
type op struct {
	Key   string
	Value *value.Value
}

// ChangeSet is an ordered batch of set/unset operations.
type ChangeSet struct {
	id  string
	ops []op
}

// New returns an empty ChangeSet, stamped with a fresh id so a caller
// committing several batches can tell one apart from another in logs and
// error messages (the same role contour's uuid.NewString() plays stamping
// xDS snapshot versions).
func New() *ChangeSet {
	return &ChangeSet{id: uuid.NewString()}
}

// ID returns the change set's identifier.
func (cs *ChangeSet) ID() string { return cs.id }

// Set appends a set(key, v) operation.
func (cs *ChangeSet) Set(key string, v *value.Value) {
	cs.ops = append(cs.ops, op{Key: key, Value: v})
}

// Unset appends an unset(key) operation.
func (cs *ChangeSet) Unset(key string) {
	cs.ops = append(cs.ops, op{Key: key})
}

// Len reports the number of queued operations.
func (cs *ChangeSet) Len() int { return len(cs.ops) }

// Commit applies every operation against t in order, stopping at the
// first error (§4.14 step 6). The order in which operations are applied
// is otherwise unspecified by the source material; this implementation
// applies them in append order, which is simplest to reason about and
// to reverse.
func (cs *ChangeSet) Commit(t Target) error {
	for _, o := range cs.ops {
		var err error
		if o.Value != nil {
			err = t.Set(o.Key, o.Value)
		} else {
			err = t.Unset(o.Key)
		}
		if err != nil {
			return fmt.Errorf("change set %s: %w", cs.id, err)
		}
	}
	return nil
}

// Reverse computes a ChangeSet whose application against t would undo cs,
// using t's *current* state: for each entry in cs, the reverse restores
// whatever value t currently holds at that key, or unsets it if t
// currently has no value there. Keys are deduplicated, keeping only the
// first occurrence's current snapshot, since cs may touch the same key
// more than once.
func (cs *ChangeSet) Reverse(t Target) (*ChangeSet, error) {
	seen := map[string]bool{}
	rev := New()
	for _, o := range cs.ops {
		if seen[o.Key] {
			continue
		}
		seen[o.Key] = true

		res, err := t.Query(o.Key, nil)
		if err != nil {
			return nil, err
		}
		if res == nil || res.Value == nil || res.IsDefault {
			rev.Unset(o.Key)
		} else {
			rev.Set(o.Key, res.Value)
		}
	}
	return rev, nil
}
