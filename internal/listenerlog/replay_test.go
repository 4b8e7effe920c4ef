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

package listenerlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayCancelsRemovedListeners(t *testing.T) {
	records := []Record{
		{Kind: ClientAdd, ClientIOR: "http://a"},
		{Kind: Add, ConnID: 1, DBAddress: DefaultDBAddress, Prefix: "/a", ClientIOR: "http://a"},
		{Kind: Add, ConnID: 2, DBAddress: DefaultDBAddress, Prefix: "/b", ClientIOR: "http://a"},
		{Kind: Remove, ConnID: 1, DBAddress: DefaultDBAddress, Prefix: "/a", ClientIOR: "http://a"},
		{Kind: Add, ConnID: 1, DBAddress: DefaultDBAddress, Prefix: "/c", ClientIOR: "http://a"},
	}
	out := Replay(records)
	require.Len(t, out.Listeners, 2)
	byConn := map[int64]Record{}
	for _, r := range out.Listeners {
		byConn[r.ConnID] = r
	}
	assert.Equal(t, "/c", byConn[1].Prefix)
	assert.Equal(t, "/b", byConn[2].Prefix)
	assert.Equal(t, []string{"http://a"}, out.Clients)
}

func TestCompactionIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved_state")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(Record{Kind: ClientAdd, ClientIOR: "http://a"}))
	require.NoError(t, l.Append(Record{Kind: Add, ConnID: 1, DBAddress: DefaultDBAddress, Prefix: "/a", ClientIOR: "http://a"}))
	require.NoError(t, l.Append(Record{Kind: Add, ConnID: 2, DBAddress: DefaultDBAddress, Prefix: "/b", ClientIOR: "http://a"}))
	require.NoError(t, l.Append(Record{Kind: Remove, ConnID: 1, DBAddress: DefaultDBAddress, Prefix: "/a", ClientIOR: "http://a"}))
	require.NoError(t, l.Close())

	before, err := ReplayFile(path)
	require.NoError(t, err)

	require.NoError(t, Compact(path, before.Listeners, before.Clients))

	after, err := ReplayFile(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, before.Listeners, after.Listeners)
	assert.ElementsMatch(t, before.Clients, after.Clients)

	require.NoError(t, Compact(path, after.Listeners, after.Clients))
	again, err := ReplayFile(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, after.Listeners, again.Listeners)
}
