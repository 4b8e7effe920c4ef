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

package listenertree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHierarchyFiresAncestorFirst(t *testing.T) {
	tr := New()
	var order []string
	tr.Add("/", func(connID int64, prefix string, ev Event) { order = append(order, prefix) })
	tr.Add("/a", func(connID int64, prefix string, ev Event) { order = append(order, prefix) })
	tr.Add("/a/b", func(connID int64, prefix string, ev Event) { order = append(order, prefix) })

	tr.Notify("/a/b/c", Event{Key: "/a/b/c"})
	assert.Equal(t, []string{"/", "/a", "/a/b"}, order)
}

func TestModifyingAncestorFiresOnlyAncestors(t *testing.T) {
	tr := New()
	var order []string
	tr.Add("/", func(connID int64, prefix string, ev Event) { order = append(order, prefix) })
	tr.Add("/a", func(connID int64, prefix string, ev Event) { order = append(order, prefix) })
	tr.Add("/a/b", func(connID int64, prefix string, ev Event) { order = append(order, prefix) })

	tr.Notify("/a", Event{Key: "/a"})
	assert.Equal(t, []string{"/", "/a"}, order)
}

func TestRemoveGarbageCollectsEmptyNodes(t *testing.T) {
	tr := New()
	id := tr.Add("/a/b/c", func(int64, string, Event) {})
	assert.Equal(t, 1, tr.Count())
	tr.Remove(id)
	assert.Equal(t, 0, tr.Count())
	// The node arena should have reclaimed the now-empty chain; a fresh
	// Add should succeed and only this listener should fire.
	var fired bool
	tr.Add("/a/b/c", func(int64, string, Event) { fired = true })
	tr.Notify("/a/b/c", Event{})
	assert.True(t, fired)
}

func TestTwoListenersBothFireOnce(t *testing.T) {
	tr := New()
	count := 0
	tr.Add("/app/cfg", func(int64, string, Event) { count++ })
	tr.Add("/app/cfg", func(int64, string, Event) { count++ })
	tr.Notify("/app/cfg/sub/key", Event{Key: "/app/cfg/sub/key"})
	assert.Equal(t, 2, count)
}
