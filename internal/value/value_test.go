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

package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v *Value) *Value {
	t.Helper()
	enc, err := v.Encode()
	require.NoError(t, err)
	dec, err := Decode(enc)
	require.NoError(t, err)
	return dec
}

func TestScalarRoundTrip(t *testing.T) {
	cases := []*Value{
		NewInt(42),
		NewInt(-7),
		NewFloat(3.14159),
		NewBool(true),
		NewBool(false),
		NewString("hello world"),
		NewString(`with "quotes" and \backslash\`),
		NewString(""),
	}
	for _, v := range cases {
		dec := roundTrip(t, v)
		assert.True(t, Equal(v, dec), "round-trip mismatch for %s", v.Debug())
	}
}

func TestListRoundTrip(t *testing.T) {
	list, err := NewList(Int, []*Value{NewInt(1), NewInt(2), NewInt(3)})
	require.NoError(t, err)
	dec := roundTrip(t, list)
	assert.True(t, Equal(list, dec))
}

func TestPairRoundTrip(t *testing.T) {
	pair, err := NewPair(NewInt(1), NewString("x"))
	require.NoError(t, err)
	dec := roundTrip(t, pair)
	assert.True(t, Equal(pair, dec))
}

func TestSchemaRoundTrip(t *testing.T) {
	sv := NewSchema(&SchemaDescriptor{
		ValueType: String,
		Locale:    "en",
		Owner:     "confd",
		ShortDesc: "short",
		LongDesc:  "long \"desc\"",
		Default:   NewString("red"),
	})
	dec := roundTrip(t, sv)
	assert.True(t, Equal(sv, dec))
}

func TestNumericEncodingLocaleIndependent(t *testing.T) {
	v := NewFloat(1234.5678)
	enc, err := v.Encode()
	require.NoError(t, err)
	// strconv never consults the process locale, so repeated encodes
	// are byte-identical regardless of what locale the host is in.
	for i := 0; i < 3; i++ {
		again, err := v.Encode()
		require.NoError(t, err)
		assert.Equal(t, enc, again)
	}
}

func TestListRejectsNestedList(t *testing.T) {
	inner, err := NewList(Int, []*Value{NewInt(1)})
	require.NoError(t, err)
	bad := &Value{typ: List, elemT: List, list: []*Value{inner}}
	assert.Error(t, bad.Validate())
}

func TestDecodeDropsMalformedListElement(t *testing.T) {
	// Hand-build an encoding where the second element is of the wrong
	// type; Decode should keep the survivors per §8 scenario 3.
	good, err := NewInt(1).Encode()
	require.NoError(t, err)
	bad, err := NewString("oops").Encode()
	require.NoError(t, err)
	enc := "li" + quote(good) + "," + quote(bad)
	dec, err := Decode(enc)
	require.NoError(t, err)
	elems, elemT, err := dec.GetList()
	require.NoError(t, err)
	assert.Equal(t, Int, elemT)
	require.Len(t, elems, 1)
	assert.Equal(t, int32(1), mustInt(t, elems[0]))
}

func mustInt(t *testing.T, v *Value) int32 {
	t.Helper()
	i, err := v.GetInt()
	require.NoError(t, err)
	return i
}

func TestCompareTotalOrder(t *testing.T) {
	assert.True(t, Compare(NewInt(1), NewInt(2)) < 0)
	assert.True(t, Compare(NewInt(1), NewFloat(0)) < 0, "Int sorts before Float by ordinal")
	assert.True(t, Compare(NewBool(false), NewBool(true)) < 0)
	assert.True(t, Compare(NewString("a"), NewString("b")) < 0)

	l1, _ := NewList(Int, []*Value{NewInt(1)})
	l2, _ := NewList(Int, []*Value{NewInt(1), NewInt(2)})
	assert.True(t, Compare(l1, l2) < 0, "shorter list with equal prefix sorts first")

	p1, _ := NewPair(NewInt(1), NewInt(2))
	p2, _ := NewPair(NewInt(1), NewInt(3))
	assert.True(t, Compare(p1, p2) < 0, "pair compares cdr when car ties")
}

func TestCompareOrdersNaNConsistently(t *testing.T) {
	nan := NewFloat(math.NaN())
	one := NewFloat(1)
	two := NewFloat(2)

	assert.True(t, Compare(one, nan) < 0)
	assert.True(t, Compare(nan, one) > 0)
	assert.Equal(t, 0, Compare(nan, NewFloat(math.NaN())))
	assert.True(t, Compare(one, two) < 0, "non-NaN order is unaffected")
}
