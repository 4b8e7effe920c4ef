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

package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperair/confd/internal/cerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "%lock")
	l, err := Acquire(dir, "http://127.0.0.1:1/rpc", func(string) bool { return false })
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "ior"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "http://127.0.0.1:1/rpc")

	foreign, err := Release(l)
	require.NoError(t, err)
	assert.False(t, foreign)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireFailsAgainstLivePeer(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "%lock")
	_, err := Acquire(dir, "http://peer/rpc", func(string) bool { return false })
	require.NoError(t, err)

	_, err = Acquire(dir, "http://us/rpc", func(string) bool { return true })
	require.Error(t, err)
	assert.True(t, cerr.Is(err, cerr.LockFailed))
}

func TestAcquireStealsStaleLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "%lock")
	_, err := Acquire(dir, "http://dead-peer/rpc", func(string) bool { return false })
	require.NoError(t, err)

	l2, err := Acquire(dir, "http://us/rpc", func(string) bool { return false })
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "ior"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "http://us/rpc")

	_, err = Release(l2)
	require.NoError(t, err)
}

func TestDaemonAlwaysWinsOverToolLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "%lock")
	_, err := Acquire(dir, "", nil) // a non-daemon tool locks with endpoint "none"
	require.NoError(t, err)

	l2, err := Acquire(dir, "http://daemon/rpc", func(string) bool { return false })
	require.NoError(t, err)
	_, err = Release(l2)
	require.NoError(t, err)
}

func TestToolFailsAgainstExistingToolLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "%lock")
	_, err := Acquire(dir, "", nil)
	require.NoError(t, err)

	_, err = Acquire(dir, "", nil)
	require.Error(t, err)
	assert.True(t, cerr.Is(err, cerr.LockFailed))
}
