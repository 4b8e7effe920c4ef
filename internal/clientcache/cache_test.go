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

package clientcache

import (
	"context"
	"testing"

	"github.com/hyperair/confd/internal/backend"
	"github.com/hyperair/confd/internal/listenertree"
	"github.com/hyperair/confd/internal/rpc"
	"github.com/hyperair/confd/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEngine is a minimal clientengine.Engine for exercising the cache
// without a real daemon or transport.
type mockEngine struct {
	listenerCalls int
	removeCalls   int
	entries       map[string][]backend.Entry
	remoteLookups int
}

func (m *mockEngine) GetDefaultDatabase(context.Context) (string, error) { return "default", nil }
func (m *mockEngine) GetDatabase(context.Context, string) (string, error) {
	return "default", nil
}
func (m *mockEngine) LookupWithLocale(_ context.Context, _, key string, _ []string) (rpc.LookupResult, error) {
	m.remoteLookups++
	return rpc.LookupResult{}, nil
}
func (m *mockEngine) Set(context.Context, string, string, *value.Value) error { return nil }
func (m *mockEngine) Unset(context.Context, string, string) error            { return nil }
func (m *mockEngine) AllEntries(_ context.Context, _, dir string, _ []string) (rpc.AllEntriesResult, error) {
	return rpc.AllEntriesResult{Entries: m.entries[dir]}, nil
}
func (m *mockEngine) RecursiveUnset(context.Context, string, string) error { return nil }
func (m *mockEngine) Shutdown(context.Context) error                       { return nil }
func (m *mockEngine) AllDirs(context.Context, string, string) ([]string, error) { return nil, nil }
func (m *mockEngine) DirExists(context.Context, string, string) (bool, error)   { return false, nil }
func (m *mockEngine) SetSchema(context.Context, string, string, string) error  { return nil }
func (m *mockEngine) Sync(context.Context, string) error                       { return nil }
func (m *mockEngine) AddListener(context.Context, string, string, string) (int64, error) {
	m.listenerCalls++
	return int64(m.listenerCalls), nil
}
func (m *mockEngine) RemoveListener(context.Context, string, int64) error {
	m.removeCalls++
	return nil
}
func (m *mockEngine) Close() error { return nil }

func TestAddDirAncestorCoversDescendant(t *testing.T) {
	m := &mockEngine{entries: map[string][]backend.Entry{}}
	c := New(m, "default", "http://client")
	ctx := context.Background()

	require.NoError(t, c.AddDir(ctx, "/app", PreloadNone))
	require.NoError(t, c.AddDir(ctx, "/app/sub", PreloadNone))
	assert.Equal(t, 1, m.listenerCalls, "descendant subscription should be covered by the ancestor's")
}

func TestAddDirNewAncestorCollapsesExistingDescendant(t *testing.T) {
	m := &mockEngine{entries: map[string][]backend.Entry{}}
	c := New(m, "default", "http://client")
	ctx := context.Background()

	require.NoError(t, c.AddDir(ctx, "/app/sub", PreloadNone))
	require.NoError(t, c.AddDir(ctx, "/app", PreloadNone))
	assert.Equal(t, 2, m.listenerCalls)
	assert.Equal(t, 1, m.removeCalls, "the now-covered descendant subscription should be torn down")
}

func TestAddDirIsRefCounted(t *testing.T) {
	m := &mockEngine{entries: map[string][]backend.Entry{}}
	c := New(m, "default", "http://client")
	ctx := context.Background()

	require.NoError(t, c.AddDir(ctx, "/app", PreloadNone))
	require.NoError(t, c.AddDir(ctx, "/app", PreloadNone))
	assert.Equal(t, 1, m.listenerCalls)

	require.NoError(t, c.RemoveDir(ctx, "/app"))
	assert.Equal(t, 0, m.removeCalls)
	require.NoError(t, c.RemoveDir(ctx, "/app"))
	assert.Equal(t, 1, m.removeCalls)
}

func TestGetNegativeCacheHitIssuesNoRemoteCall(t *testing.T) {
	m := &mockEngine{entries: map[string][]backend.Entry{
		"/x": {},
	}}
	c := New(m, "default", "http://client")
	ctx := context.Background()

	require.NoError(t, c.AddDir(ctx, "/x", PreloadOneLevel))
	v, err := c.Get(ctx, "/x/absent", nil)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 0, m.remoteLookups)
}

func TestFlushCoalescesAndDedupsAndCancelsOnClose(t *testing.T) {
	m := &mockEngine{entries: map[string][]backend.Entry{}}
	c := New(m, "default", "http://client")

	var fired []string
	c.NotifyAdd("/a", func(_ int64, _ string, ev listenertree.Event) { fired = append(fired, ev.Key) })

	c.HandleServerNotify("/a/k1", value.NewInt(1), false)
	c.HandleServerNotify("/a/k1", value.NewInt(2), false)
	c.HandleServerNotify("/a/k2", value.NewInt(3), false)
	c.Flush()
	assert.Equal(t, []string{"/a/k1", "/a/k2"}, fired)

	fired = nil
	c.HandleServerNotify("/a/k3", value.NewInt(4), false)
	c.Close()
	c.Flush()
	assert.Empty(t, fired)
}
