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

package schemafile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `<?xml version="1.0"?>
<gconfschemafile>
  <schemalist>
    <schema>
      <key>/schemas/confd/test/enabled</key>
      <owner>confd</owner>
      <type>bool</type>
      <default>true</default>
      <applyto>/confd/test/enabled</applyto>
      <locale name="C">
        <default>true</default>
        <short>Enable the thing</short>
        <long>Whether the thing should be enabled by default.</long>
      </locale>
      <locale name="fr">
        <short>Activer le truc</short>
      </locale>
    </schema>
  </schemalist>
</gconfschemafile>`

func TestParseSchemaFile(t *testing.T) {
	entries, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "/schemas/confd/test/enabled", e.Key)
	assert.Equal(t, []string{"/confd/test/enabled"}, e.ApplyTo)

	c := e.Family.ByLocale["C"]
	require.NotNil(t, c)
	assert.Equal(t, "confd", c.Owner)
	assert.Equal(t, "Enable the thing", c.ShortDesc)
	require.NotNil(t, c.Default)
	b, err := c.Default.GetBool()
	require.NoError(t, err)
	assert.True(t, b)

	fr := e.Family.ByLocale["fr"]
	require.NotNil(t, fr)
	assert.Equal(t, "Activer le truc", fr.ShortDesc)
	// fr has no <default>, falls back to the schema-level default.
	require.NotNil(t, fr.Default)
	fb, err := fr.Default.GetBool()
	require.NoError(t, err)
	assert.True(t, fb)
}

func TestParseRejectsMissingKey(t *testing.T) {
	_, err := Parse(strings.NewReader(`<gconfschemafile><schemalist><schema>
		<locale name="C"><short>x</short></locale>
	</schema></schemalist></gconfschemafile>`))
	assert.Error(t, err)
}

func TestParseRejectsNoLocales(t *testing.T) {
	_, err := Parse(strings.NewReader(`<gconfschemafile><schemalist><schema>
		<key>/schemas/x</key><type>string</type>
	</schema></schemalist></gconfschemafile>`))
	assert.Error(t, err)
}
