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

// Package keypath implements the key grammar of §3 and §4.3: pure
// functions over absolute, slash-separated configuration key strings.
package keypath

import "strings"

// reserved holds the characters a key component may never contain.
const reserved = " \t\r\n\"$&<>,+=#!()'|{}[]?~`;%\\"

// IsValid reports whether key satisfies the grammar: an absolute path of
// non-empty components, none beginning with '.', none containing a
// reserved character, with no trailing slash (except the root "/") and no
// "//" anywhere.
func IsValid(key string) (bool, string) {
	if key == "" || key[0] != '/' {
		return false, "key must be absolute (start with '/')"
	}
	if key == "/" {
		return true, ""
	}
	if strings.HasSuffix(key, "/") {
		return false, "key must not end with '/'"
	}
	if strings.Contains(key, "//") {
		return false, "key must not contain '//'"
	}
	for _, comp := range strings.Split(key[1:], "/") {
		if comp == "" {
			return false, "key must not contain empty components"
		}
		if comp[0] == '.' {
			return false, "key component must not begin with '.'"
		}
		if idx := strings.IndexAny(comp, reserved); idx >= 0 {
			return false, "key component contains a reserved character"
		}
	}
	return true, ""
}

// ParentOf returns the parent directory of key ("/" for a top-level key,
// and "/" itself has no parent and is returned unchanged).
func ParentOf(key string) string {
	if key == "/" {
		return "/"
	}
	idx := strings.LastIndexByte(key, '/')
	if idx <= 0 {
		return "/"
	}
	return key[:idx]
}

// LeafOf returns the final path component of key.
func LeafOf(key string) string {
	if key == "/" {
		return ""
	}
	idx := strings.LastIndexByte(key, '/')
	return key[idx+1:]
}

// IsBelow reports whether descendant is below-or-equal-to ancestor: equal
// to it, or lexically prefixed by it followed by '/'. Crucially this is
// component-aware: IsBelow("/foo", "/foofoo") is false.
func IsBelow(ancestor, descendant string) bool {
	if ancestor == descendant {
		return true
	}
	if ancestor == "/" {
		return strings.HasPrefix(descendant, "/")
	}
	return strings.HasPrefix(descendant, ancestor+"/")
}

// IsStrictlyBelow is IsBelow excluding equality.
func IsStrictlyBelow(ancestor, descendant string) bool {
	return ancestor != descendant && IsBelow(ancestor, descendant)
}

// Concat joins a directory and a key component, normalizing adjacent
// slashes ("/foo/" + "/bar" => "/foo/bar").
func Concat(dir, key string) string {
	d := strings.TrimRight(dir, "/")
	k := strings.TrimLeft(key, "/")
	if d == "" {
		return "/" + k
	}
	if k == "" {
		return d
	}
	return d + "/" + k
}

// Components splits key into its path components ("/" yields none).
func Components(key string) []string {
	if key == "/" || key == "" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(key, "/"), "/")
}
