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

package clientengine

import (
	"context"
	"testing"

	_ "github.com/hyperair/confd/internal/backend/memory"
	"github.com/hyperair/confd/internal/cerr"
	"github.com/hyperair/confd/internal/rpc"
	"github.com/hyperair/confd/internal/source"
	"github.com/hyperair/confd/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyDaemon struct {
	fails int
	store map[string]*value.Value
}

func (f *flakyDaemon) nextFails() error {
	if f.fails > 0 {
		f.fails--
		return cerr.New(cerr.NoServer, "transport down")
	}
	return nil
}

func (f *flakyDaemon) GetDefaultDatabase(context.Context) (string, error) { return "default", nil }
func (f *flakyDaemon) GetDatabase(context.Context, string) (string, error) {
	return "default", nil
}
func (f *flakyDaemon) AddClient(context.Context, string) error    { return nil }
func (f *flakyDaemon) RemoveClient(context.Context, string) error { return nil }
func (f *flakyDaemon) Ping(context.Context) error                 { return nil }
func (f *flakyDaemon) Shutdown(context.Context) error             { return nil }
func (f *flakyDaemon) LookupWithLocale(_ context.Context, _, key string, _ []string, _ bool) (rpc.LookupResult, error) {
	if err := f.nextFails(); err != nil {
		return rpc.LookupResult{}, err
	}
	return rpc.LookupResult{Value: f.store[key]}, nil
}
func (f *flakyDaemon) LookupDefaultValue(context.Context, string, string, []string) (*value.Value, error) {
	return nil, nil
}
func (f *flakyDaemon) Set(_ context.Context, _, key string, v *value.Value) error {
	if err := f.nextFails(); err != nil {
		return err
	}
	f.store[key] = v
	return nil
}
func (f *flakyDaemon) Unset(context.Context, string, string) error            { return nil }
func (f *flakyDaemon) RecursiveUnset(context.Context, string, string) error  { return nil }
func (f *flakyDaemon) AllEntries(context.Context, string, string, []string) (rpc.AllEntriesResult, error) {
	return rpc.AllEntriesResult{}, nil
}
func (f *flakyDaemon) AllDirs(context.Context, string, string) ([]string, error) { return nil, nil }
func (f *flakyDaemon) DirExists(context.Context, string, string) (bool, error)   { return false, nil }
func (f *flakyDaemon) SetSchema(context.Context, string, string, string) error  { return nil }
func (f *flakyDaemon) Sync(context.Context, string) error                       { return nil }
func (f *flakyDaemon) AddListener(context.Context, string, string, string) (int64, error) {
	return 1, nil
}
func (f *flakyDaemon) RemoveListener(context.Context, string, int64) error { return nil }

var _ rpc.DaemonAPI = (*flakyDaemon)(nil)

func TestRemoteRetriesOnceOnTransportFailure(t *testing.T) {
	store := map[string]*value.Value{"/k": value.NewInt(1)}
	calls := 0
	fd := &flakyDaemon{fails: 1, store: store}
	r := NewRemote(func() rpc.DaemonAPI {
		calls++
		return fd
	})

	res, err := r.LookupWithLocale(context.Background(), "default", "/k", nil)
	require.NoError(t, err)
	i, _ := res.Value.GetInt()
	assert.Equal(t, int32(1), i)
	assert.Equal(t, 2, calls) // initial dial + one redial after failure
}

func TestRemoteSurfacesSecondFailure(t *testing.T) {
	r := NewRemote(func() rpc.DaemonAPI {
		return &flakyDaemon{fails: 2, store: map[string]*value.Value{}}
	})
	_, err := r.LookupWithLocale(context.Background(), "default", "/k", nil)
	require.Error(t, err)
	assert.True(t, cerr.Is(err, cerr.NoServer))
}

func TestLocalListenerRegistrationFails(t *testing.T) {
	st, err := source.NewStack([]string{"mem:readwrite:" + t.Name()})
	require.NoError(t, err)
	l := NewLocal(st)

	_, err = l.AddListener(context.Background(), "default", "/", "")
	require.Error(t, err)
	assert.True(t, cerr.Is(err, cerr.LocalEngine))
}

func TestLocalSetAndLookup(t *testing.T) {
	st, err := source.NewStack([]string{"mem:readwrite:" + t.Name()})
	require.NoError(t, err)
	l := NewLocal(st)

	require.NoError(t, l.Set(context.Background(), "default", "/k", value.NewString("v")))
	res, err := l.LookupWithLocale(context.Background(), "default", "/k", nil)
	require.NoError(t, err)
	s, _ := res.Value.GetString()
	assert.Equal(t, "v", s)
}
