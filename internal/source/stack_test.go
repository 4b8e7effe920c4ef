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
	"fmt"
	"testing"

	_ "github.com/hyperair/confd/internal/backend/memory"
	"github.com/hyperair/confd/internal/cerr"
	"github.com/hyperair/confd/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memAddr(t *testing.T, readwrite bool, location string) string {
	t.Helper()
	if readwrite {
		return fmt.Sprintf("mem:readwrite:%s", location)
	}
	return fmt.Sprintf("mem:readonly:%s", location)
}

func TestStackOverrideReadOnlyWins(t *testing.T) {
	ro, err := Open(memAddr(t, false, "ro-"+t.Name()))
	require.NoError(t, err)
	rw, err := Open(memAddr(t, true, "rw-"+t.Name()))
	require.NoError(t, err)
	require.NoError(t, ro.Backend.SetValue(ro.Handle, "/k", value.NewString("a")))

	st := &Stack{Sources: []*Source{ro, rw}}
	err = st.Set("/k", value.NewString("b"))
	require.Error(t, err)
	assert.True(t, cerr.Is(err, cerr.Overridden))

	res, err := st.Query("/k", nil)
	require.NoError(t, err)
	s, _ := res.Value.GetString()
	assert.Equal(t, "a", s)
}

func TestStackWriteRoutesToFirstWritable(t *testing.T) {
	rw1, err := Open(memAddr(t, true, "rw1-"+t.Name()))
	require.NoError(t, err)
	rw2, err := Open(memAddr(t, true, "rw2-"+t.Name()))
	require.NoError(t, err)
	st := &Stack{Sources: []*Source{rw1, rw2}}

	require.NoError(t, st.Set("/k", value.NewString("b")))
	v1, _, _ := rw1.Backend.QueryValue(rw1.Handle, "/k", nil)
	v2, _, _ := rw2.Backend.QueryValue(rw2.Handle, "/k", nil)
	assert.NotNil(t, v1)
	assert.Nil(t, v2)

	require.NoError(t, st.Unset("/k"))
	v1, _, _ = rw1.Backend.QueryValue(rw1.Handle, "/k", nil)
	assert.Nil(t, v1)
}

func TestStackScalarRoundTrip(t *testing.T) {
	rw, err := Open(memAddr(t, true, t.Name()))
	require.NoError(t, err)
	st := &Stack{Sources: []*Source{rw}}

	require.NoError(t, st.Set("/t/int", value.NewInt(42)))
	res, err := st.Query("/t/int", nil)
	require.NoError(t, err)
	i, err := res.Value.GetInt()
	require.NoError(t, err)
	assert.Equal(t, int32(42), i)

	require.NoError(t, st.Unset("/t/int"))
	res, err = st.Query("/t/int", nil)
	require.NoError(t, err)
	assert.Nil(t, res.Value)
}

func TestStackSchemaDefault(t *testing.T) {
	rw, err := Open(memAddr(t, true, t.Name()))
	require.NoError(t, err)
	st := &Stack{Sources: []*Source{rw}}

	schemaVal := value.NewSchema(&value.SchemaDescriptor{
		ValueType: value.String,
		Default:   value.NewString("red"),
	})
	require.NoError(t, rw.Backend.SetValue(rw.Handle, "/schemas/t/color", schemaVal))
	require.NoError(t, st.SetSchema("/t/color", "/schemas/t/color"))

	res, err := st.Query("/t/color", nil)
	require.NoError(t, err)
	require.NotNil(t, res.Value)
	s, _ := res.Value.GetString()
	assert.Equal(t, "red", s)
	assert.True(t, res.IsDefault)

	require.NoError(t, st.Set("/t/color", value.NewString("blue")))
	res, err = st.Query("/t/color", nil)
	require.NoError(t, err)
	s, _ = res.Value.GetString()
	assert.Equal(t, "blue", s)
	assert.False(t, res.IsDefault)
}
