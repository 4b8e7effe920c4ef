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

package addrfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSkipsCommentsAndBlankLines(t *testing.T) {
	addrs, err := Parse(strings.NewReader("# comment\n\nxml:readonly:/etc/gconf/gconf.xml.defaults\n"), "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"xml:readonly:/etc/gconf/gconf.xml.defaults"}, addrs)
}

func TestParseSubstitutesEnvVar(t *testing.T) {
	t.Setenv("CONFD_TEST_ROOT", "/opt/confd-test")
	addrs, err := Parse(strings.NewReader("xml:readwrite:$(ENV_CONFD_TEST_ROOT)/defaults\n"), "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"xml:readwrite:/opt/confd-test/defaults"}, addrs)
}

func TestParseDropsLineOnEmptySubstitution(t *testing.T) {
	t.Setenv("CONFD_TEST_UNSET", "")
	os.Unsetenv("CONFD_TEST_UNSET")
	addrs, err := Parse(strings.NewReader("xml:readwrite:$(ENV_CONFD_TEST_UNSET)/defaults\n"), "/")
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestParseFollowsInclude(t *testing.T) {
	dir := t.TempDir()
	included := filepath.Join(dir, "included.path")
	require.NoError(t, os.WriteFile(included, []byte("bdb:readwrite:/var/lib/confd/extra\n"), 0o644))

	main := "xml:readonly:/etc/gconf/gconf.xml.defaults\ninclude included.path\n"
	addrs, err := Parse(strings.NewReader(main), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"xml:readonly:/etc/gconf/gconf.xml.defaults",
		"bdb:readwrite:/var/lib/confd/extra",
	}, addrs)
}
