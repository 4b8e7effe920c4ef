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

package daemon

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/hyperair/confd/internal/backend/memory"
	"github.com/hyperair/confd/internal/config"
	"github.com/hyperair/confd/internal/listenerlog"
	"github.com/hyperair/confd/internal/lock"
	"github.com/hyperair/confd/internal/rpc"
	"github.com/hyperair/confd/internal/rpc/httptransport"
	"github.com/hyperair/confd/internal/value"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.SourcePath = []string{"mem:readwrite:" + t.Name()}

	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)

	d, err := New(log, cfg, filepath.Join(dir, "lock"), filepath.Join(dir, "saved_state"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })
	return d
}

func TestDaemonSetGetRoundTrip(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	dbID, err := d.GetDefaultDatabase(ctx)
	require.NoError(t, err)
	require.Equal(t, listenerlog.DefaultDBAddress, dbID)

	require.NoError(t, d.Set(ctx, dbID, "/test/key", value.NewString("hello")))

	res, err := d.LookupWithLocale(ctx, dbID, "/test/key", nil, true)
	require.NoError(t, err)
	s, err := res.Value.GetString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)
}

func TestDebugSnapshotReportsDefaultDatabase(t *testing.T) {
	d := newTestDaemon(t)
	snap := d.DebugSnapshot()
	require.Len(t, snap.Databases, 1)
	require.True(t, snap.Databases[0].IsDefault)
	require.Equal(t, listenerlog.DefaultDBAddress, snap.Databases[0].Address)
}

func TestDaemonListenerRegistrationAndNotify(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	notified := make(chan struct{}, 1)
	router := httptransport.NewClientCallbackRouter(&fakeCallback{notified: notified})
	srv := httptest.NewServer(router)
	defer srv.Close()

	dbID, err := d.GetDefaultDatabase(ctx)
	require.NoError(t, err)

	connID, err := d.AddListener(ctx, dbID, "/test", srv.URL)
	require.NoError(t, err)
	require.NotZero(t, connID)

	require.NoError(t, d.Set(ctx, dbID, "/test/key", value.NewString("world")))

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("expected notification to be delivered")
	}

	require.NoError(t, d.RemoveListener(ctx, dbID, connID))
}

func TestIdleSweepEvictsUnusedNamedDatabase(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	dbID, err := d.GetDatabase(ctx, "mem:readwrite:"+t.Name()+"-named")
	require.NoError(t, err)
	require.NotEmpty(t, dbID)

	shouldExit, err := d.IdleSweep(0)
	require.NoError(t, err)
	require.True(t, shouldExit)

	d.mu.Lock()
	_, stillThere := d.dbs[dbID]
	d.mu.Unlock()
	require.False(t, stillThere)
}

func TestAcquireFailsWhenLockAlreadyHeld(t *testing.T) {
	dir := t.TempDir()
	lockDir := filepath.Join(dir, "lock")
	_, err := lock.Acquire(lockDir, "somewhere", func(string) bool { return true })
	require.NoError(t, err)

	_, err = lock.Acquire(lockDir, "somewhere-else", func(string) bool { return true })
	require.Error(t, err)
}

type fakeCallback struct {
	notified chan struct{}
}

func (f *fakeCallback) Notify(ctx context.Context, dbID string, connID int64, key string, v *value.Value, isDefault bool) error {
	select {
	case f.notified <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeCallback) UpdateListener(ctx context.Context, dbID, address string, oldConnID int64, prefix string, newConnID int64) error {
	return nil
}

func (f *fakeCallback) Ping(ctx context.Context) error { return nil }

var _ rpc.ClientCallback = (*fakeCallback)(nil)
