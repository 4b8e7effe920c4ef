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

package keypath

import "testing"

func TestIsValid(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{"/", true},
		{"/foo", true},
		{"/foo/", false},
		{"//foo", false},
		{"/foo//bar", false},
		{"/foo/.bar", false},
		{"/foo/%bar", false},
		{"/foo-bar.baz:1", true},
	}
	for _, c := range cases {
		got, reason := IsValid(c.key)
		if got != c.want {
			t.Errorf("IsValid(%q) = %v (%s), want %v", c.key, got, reason, c.want)
		}
	}
}

func TestIsBelow(t *testing.T) {
	if IsBelow("/foo", "/foofoo") {
		t.Error("/foofoo must not be below /foo")
	}
	if !IsBelow("/foo", "/foo/bar") {
		t.Error("/foo/bar must be below /foo")
	}
	if !IsBelow("/foo", "/foo") {
		t.Error("a key is below itself")
	}
	if !IsBelow("/", "/anything/deep") {
		t.Error("everything is below root")
	}
}

func TestParentAndLeaf(t *testing.T) {
	if got := ParentOf("/a/b/c"); got != "/a/b" {
		t.Errorf("ParentOf(/a/b/c) = %q", got)
	}
	if got := ParentOf("/a"); got != "/" {
		t.Errorf("ParentOf(/a) = %q", got)
	}
	if got := LeafOf("/a/b/c"); got != "c" {
		t.Errorf("LeafOf(/a/b/c) = %q", got)
	}
}

func TestConcat(t *testing.T) {
	if got := Concat("/foo/", "/bar"); got != "/foo/bar" {
		t.Errorf("Concat = %q", got)
	}
	if got := Concat("/", "baz"); got != "/baz" {
		t.Errorf("Concat = %q", got)
	}
}
