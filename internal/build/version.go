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

// Package build carries version information stamped in at build time via
// -ldflags, surfaced through the build info gauge and the CLI's --version
// flag.
package build

import "gopkg.in/yaml.v3"

// Info is the structured form of the build metadata below.
type Info struct {
	Branch   string `yaml:"branch,omitempty"`
	Revision string `yaml:"revision,omitempty"`
	Version  string `yaml:"version,omitempty"`
}

// Branch, Revision and Version are set via -ldflags at build time; the
// zero values below are what a `go run`/`go test` invocation sees.
var (
	Branch   = "unknown"
	Revision = "unknown"
	Version  = "devel"
)

// String renders the current build metadata as YAML, in the idiom of
// confd's other structured diagnostics output.
func String() string {
	out, err := yaml.Marshal(Info{Branch: Branch, Revision: Revision, Version: Version})
	if err != nil {
		panic(err)
	}
	return string(out)
}
