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

// Package addrfile parses the source-path file format of §6: one backend
// address per line, `#` comments, `include <path>` splicing, and
// $(HOME)/$(USER)/$(ENV_<NAME>) substitution with empty-result line
// dropping.
package addrfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hyperair/confd/internal/cerr"
)

var varPattern = regexp.MustCompile(`\$\(([A-Za-z_][A-Za-z0-9_]*)\)`)

// Parse reads a source-path file from r, resolving `include` directives
// relative to baseDir (the directory the file itself lives in). It
// returns the ordered list of backend addresses.
func Parse(r io.Reader, baseDir string) ([]string, error) {
	var addrs []string
	if err := parseInto(&addrs, r, baseDir, 0); err != nil {
		return nil, err
	}
	return addrs, nil
}

// ParseFile is a convenience wrapper around Parse for a path on disk.
func ParseFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cerr.Wrap(cerr.Failed, err, "opening source path file %s", path)
	}
	defer f.Close()
	return Parse(f, filepath.Dir(path))
}

const maxIncludeDepth = 16

func parseInto(addrs *[]string, r io.Reader, baseDir string, depth int) error {
	if depth > maxIncludeDepth {
		return cerr.New(cerr.ParseError, "source path file include nesting exceeds %d levels", maxIncludeDepth)
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if rest, ok := strings.CutPrefix(line, "include "); ok {
			incPath, ok := substitute(strings.TrimSpace(rest))
			if !ok {
				continue
			}
			if !filepath.IsAbs(incPath) {
				incPath = filepath.Join(baseDir, incPath)
			}
			f, err := os.Open(incPath)
			if err != nil {
				return cerr.Wrap(cerr.Failed, err, "opening included source path file %s", incPath)
			}
			err = parseInto(addrs, f, filepath.Dir(incPath), depth+1)
			f.Close()
			if err != nil {
				return err
			}
			continue
		}

		resolved, ok := substitute(line)
		if !ok {
			continue
		}
		*addrs = append(*addrs, resolved)
	}
	if err := scanner.Err(); err != nil {
		return cerr.Wrap(cerr.Failed, err, "reading source path file")
	}
	return nil
}

// substitute expands $(HOME), $(USER) and $(ENV_<NAME>) references in
// line. If any reference expands to the empty string, ok is false and
// the caller drops the whole line.
func substitute(line string) (result string, ok bool) {
	ok = true
	result = varPattern.ReplaceAllStringFunc(line, func(m string) string {
		name := varPattern.FindStringSubmatch(m)[1]
		val := lookupVar(name)
		if val == "" {
			ok = false
		}
		return val
	})
	return result, ok
}

func lookupVar(name string) string {
	switch name {
	case "HOME":
		if u, err := user.Current(); err == nil {
			return u.HomeDir
		}
		return os.Getenv("HOME")
	case "USER":
		if u, err := user.Current(); err == nil {
			return u.Username
		}
		return os.Getenv("USER")
	default:
		if env, ok := strings.CutPrefix(name, "ENV_"); ok {
			return os.Getenv(env)
		}
		return ""
	}
}

// Format renders addrs back into source-path file form, one per line.
func Format(addrs []string) string {
	var b strings.Builder
	for _, a := range addrs {
		fmt.Fprintln(&b, a)
	}
	return b.String()
}
