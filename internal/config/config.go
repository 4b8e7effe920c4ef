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

// Package config parses the daemon's YAML configuration file.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperair/confd/internal/addrfile"
	"github.com/hyperair/confd/internal/backend"
	"gopkg.in/yaml.v3"
)

// Parameters is the root of the daemon configuration file.
type Parameters struct {
	// Listen is the address the daemon's RPC HTTP transport binds to.
	Listen string `yaml:"listen,omitempty"`

	// SourcePath lists the backend addresses making up the default
	// database's source stack, highest-priority first (§4.6). Ignored
	// when SourcePathFile is set.
	SourcePath []string `yaml:"source-path,omitempty"`

	// SourcePathFile, if set, names a §6 source-path file (the format
	// internal/addrfile parses: include directives, comments, $(VAR)
	// substitution) to read the source path from instead of SourcePath.
	SourcePathFile string `yaml:"source-path-file,omitempty"`

	// LockDir overrides the default `<source-root>/%lock` convention.
	LockDir string `yaml:"lock-dir,omitempty"`

	// ListenerLogPath overrides the default $HOME/.confd/saved_state.
	ListenerLogPath string `yaml:"listener-log-path,omitempty"`

	// IdleSweepInterval is how often the daemon checks for idle
	// databases to evict and triggers listener log compaction (§4.10).
	IdleSweepInterval time.Duration `yaml:"idle-sweep-interval,omitempty"`

	// IdleTimeout is how long a database may go without a request
	// before the idle sweep evicts it (§4.10).
	IdleTimeout time.Duration `yaml:"idle-timeout,omitempty"`

	Debug bool `yaml:"debug,omitempty"`
}

// Default returns the parameter set the daemon uses when no configuration
// file is supplied.
func Default() Parameters {
	return Parameters{
		Listen:            "127.0.0.1:9595",
		SourcePath:        []string{"jsonfile:readwrite:" + defaultSourcePath()},
		IdleSweepInterval: 30 * time.Minute,
		IdleTimeout:       20 * time.Minute,
	}
}

func defaultSourcePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return home + "/.confd/defaults.json"
}

// Parse reads and validates a Parameters document from r, overlaying it
// on top of Default() so a partial file only overrides what it sets.
func Parse(r io.Reader) (Parameters, error) {
	p := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && err != io.EOF {
		return Parameters{}, fmt.Errorf("parsing confd configuration: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

// ParseFile is a convenience wrapper around Parse for a path on disk.
func ParseFile(path string) (Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return Parameters{}, fmt.Errorf("opening confd configuration %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// EffectiveSourcePath returns p.SourcePath, unless p.SourcePathFile is set,
// in which case it parses that file per §6 and returns its addresses.
func (p Parameters) EffectiveSourcePath() ([]string, error) {
	if p.SourcePathFile == "" {
		return p.SourcePath, nil
	}
	return addrfile.ParseFile(p.SourcePathFile)
}

// EffectiveLockDir returns p.LockDir if set, else the §6 convention of a
// %lock directory alongside the first backend address's location.
func (p Parameters) EffectiveLockDir() string {
	if p.LockDir != "" {
		return p.LockDir
	}
	root := "."
	if paths, err := p.EffectiveSourcePath(); err == nil && len(paths) > 0 {
		if addr, err := backend.ParseAddress(paths[0]); err == nil {
			root = filepath.Dir(addr.Location)
		}
	}
	return filepath.Join(root, "%lock")
}

// EffectiveListenerLogPath returns p.ListenerLogPath if set, else
// $HOME/.confd/saved_state per §6.
func (p Parameters) EffectiveListenerLogPath() string {
	if p.ListenerLogPath != "" {
		return p.ListenerLogPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".confd", "saved_state")
}

// Validate reports the first structural problem found in p.
func (p Parameters) Validate() error {
	if p.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if len(p.SourcePath) == 0 && p.SourcePathFile == "" {
		return fmt.Errorf("source-path must name at least one backend address, or source-path-file must be set")
	}
	if p.IdleSweepInterval <= 0 {
		return fmt.Errorf("idle-sweep-interval must be positive")
	}
	if p.IdleTimeout <= 0 {
		return fmt.Errorf("idle-timeout must be positive")
	}
	if p.IdleTimeout >= p.IdleSweepInterval {
		return fmt.Errorf("idle-timeout (%s) must be shorter than idle-sweep-interval (%s)", p.IdleTimeout, p.IdleSweepInterval)
	}
	return nil
}
