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

package main

import (
	"context"
	"testing"

	_ "github.com/hyperair/confd/internal/backend/memory"
	"github.com/hyperair/confd/internal/clientengine"
	"github.com/hyperair/confd/internal/source"
	"github.com/hyperair/confd/internal/value"
	"github.com/stretchr/testify/require"
)

func TestParseSetValue(t *testing.T) {
	v, err := parseSetValue("int", "42")
	require.NoError(t, err)
	i, err := v.GetInt()
	require.NoError(t, err)
	require.Equal(t, int32(42), i)

	v, err = parseSetValue("bool", "true")
	require.NoError(t, err)
	b, err := v.GetBool()
	require.NoError(t, err)
	require.True(t, b)

	_, err = parseSetValue("wat", "x")
	require.Error(t, err)
}

func TestRecursiveListDirWalksSubdirectories(t *testing.T) {
	stack, err := source.NewStack([]string{"mem:readwrite:" + t.Name()})
	require.NoError(t, err)
	e := clientengine.NewLocal(stack)
	defer e.Close()

	ctx := context.Background()
	dbID, err := e.GetDefaultDatabase(ctx)
	require.NoError(t, err)

	require.NoError(t, e.Set(ctx, dbID, "/a/x", value.NewString("1")))
	require.NoError(t, e.Set(ctx, dbID, "/a/b/y", value.NewString("2")))

	require.NoError(t, recursiveListDir(ctx, e, dbID, "/a"))
}
