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

func TestRecordRoundTrip(t *testing.T) {
	for _, r := range []Record{
		{Kind: Add, ConnID: 7, DBAddress: DefaultDBAddress, Prefix: "/app/cfg", ClientIOR: `http://host/"weird\path`},
		{Kind: Remove, ConnID: 7, DBAddress: DefaultDBAddress, Prefix: "/app/cfg", ClientIOR: "http://host"},
		{Kind: ClientAdd, ClientIOR: "http://host:1234/callback"},
	} {
		got, err := ParseRecord(r.Format())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
}

func TestAppendThenReadAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved_state")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(Record{Kind: ClientAdd, ClientIOR: "http://a"}))
	require.NoError(t, l.Append(Record{Kind: Add, ConnID: 1, DBAddress: DefaultDBAddress, Prefix: "/a", ClientIOR: "http://a"}))
	require.NoError(t, l.Append(Record{Kind: Add, ConnID: 2, DBAddress: DefaultDBAddress, Prefix: "/b", ClientIOR: "http://a"}))
	require.NoError(t, l.Append(Record{Kind: Remove, ConnID: 1, DBAddress: DefaultDBAddress, Prefix: "/a", ClientIOR: "http://a"}))
	require.NoError(t, l.Close())

	records, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, Add, records[1].Kind)
	assert.Equal(t, int64(2), records[2].ConnID)
}

func TestReadAllMissingFileIsEmpty(t *testing.T) {
	records, err := ReadAll(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, records)
}
