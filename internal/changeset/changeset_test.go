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

package changeset

import (
	"testing"

	_ "github.com/hyperair/confd/internal/backend/memory"
	"github.com/hyperair/confd/internal/database"
	"github.com/hyperair/confd/internal/source"
	"github.com/hyperair/confd/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) *database.Database {
	t.Helper()
	st, err := source.NewStack([]string{"mem:readwrite:" + t.Name()})
	require.NoError(t, err)
	return database.New("default", st)
}

func TestCommitAppliesInOrder(t *testing.T) {
	db := newDB(t)
	require.NoError(t, db.Set("/a", value.NewInt(1)))

	cs := New()
	cs.Set("/a", value.NewInt(2))
	cs.Unset("/b")
	cs.Set("/c", value.NewString("x"))
	require.NoError(t, cs.Commit(db))

	res, err := db.Query("/a", nil)
	require.NoError(t, err)
	i, _ := res.Value.GetInt()
	assert.Equal(t, int32(2), i)

	res, err = db.Query("/c", nil)
	require.NoError(t, err)
	s, _ := res.Value.GetString()
	assert.Equal(t, "x", s)
}

func TestIDIsUniquePerChangeSet(t *testing.T) {
	a, b := New(), New()
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestCommitErrorIncludesID(t *testing.T) {
	db := newDB(t)
	cs := New()
	cs.Set("bad key without leading slash", value.NewInt(1))
	err := cs.Commit(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), cs.ID())
}

func TestReverseRestoresPriorState(t *testing.T) {
	db := newDB(t)
	require.NoError(t, db.Set("/a", value.NewInt(1)))

	cs := New()
	cs.Set("/a", value.NewInt(99))
	cs.Set("/b", value.NewInt(5))

	rev, err := cs.Reverse(db)
	require.NoError(t, err)
	require.NoError(t, cs.Commit(db))
	require.NoError(t, rev.Commit(db))

	res, err := db.Query("/a", nil)
	require.NoError(t, err)
	i, _ := res.Value.GetInt()
	assert.Equal(t, int32(1), i)

	res, err = db.Query("/b", nil)
	require.NoError(t, err)
	assert.Nil(t, res.Value)
}
