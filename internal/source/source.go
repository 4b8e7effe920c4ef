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

// Package source implements a single backend-bound Source (§4.5) and the
// ordered SourceStack merge (§4.6).
package source

import (
	"github.com/hyperair/confd/internal/backend"
)

// Source binds one backend instance to one address (§3).
type Source struct {
	Addr    backend.Address
	Backend backend.Backend
	Handle  backend.Handle
}

// Open resolves raw against the backend registry and returns a bound
// Source.
func Open(raw string) (*Source, error) {
	b, addr, h, err := backend.Resolve(raw)
	if err != nil {
		return nil, err
	}
	return &Source{Addr: addr, Backend: b, Handle: h}, nil
}

// Readable reports whether key can be read from this source: the coarse
// all_readable flag AND the backend's fine-grained per-key override.
func (s *Source) Readable(key string) bool {
	return s.Addr.AllReadable && s.Backend.Readable(s.Handle, key)
}

// Writable reports whether key can be written to this source: not
// never_writable, the coarse all_writable flag, AND the backend's
// fine-grained per-key override.
func (s *Source) Writable(key string) bool {
	if s.Addr.NeverWritable || !s.Addr.AllWritable {
		return false
	}
	return s.Backend.Writable(s.Handle, key)
}

// Close releases the backend resources bound to this source.
func (s *Source) Close() error {
	return s.Backend.DestroySource(s.Handle)
}
