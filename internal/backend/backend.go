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

// Package backend defines the plugin interface every storage backend
// implements (§4.4), plus a static, scheme-keyed registry standing in for
// the original's dynamic plugin loader (§9): backends are selected by
// Address.Scheme and registered at init time by blank-importing the
// concrete backend package, the way database/sql drivers register
// themselves.
package backend

import (
	"time"

	"github.com/hyperair/confd/internal/value"
)

// Address is a parsed `scheme:<flags>:<location>` source address (§6).
type Address struct {
	Scheme         string
	Location       string
	AllReadable    bool
	AllWritable    bool
	NeverWritable  bool
	Raw            string
}

// Entry is a key's observable state, as returned by AllEntries (§3).
type Entry struct {
	Key        string
	Value      *value.Value
	SchemaName string
	IsDefault  bool
	IsWritable bool
}

// MetaInfo carries last-modified bookkeeping for a key (§4.4).
type MetaInfo struct {
	Mtime      time.Time
	User       string
	SchemaName string
}

// Handle is the opaque per-source state returned by ResolveAddress and
// threaded through every subsequent call against that source.
type Handle interface{}

// Backend is the fixed operation set every storage plugin implements,
// transcribed directly from the table in §4.4.
type Backend interface {
	ResolveAddress(addr Address) (Handle, error)
	Readable(h Handle, key string) bool
	Writable(h Handle, key string) bool
	// QueryValue returns the locale-best value for key, and the name of
	// the schema associated with key (independent of whether a value was
	// found), per the locale preference list (""/"C" meaning default).
	QueryValue(h Handle, key string, locales []string) (*value.Value, string, error)
	QueryMetaInfo(h Handle, key string) (*MetaInfo, error)
	SetValue(h Handle, key string, v *value.Value) error
	// UnsetValue removes key's value. A nil locale removes every locale.
	UnsetValue(h Handle, key string, locale *string) error
	AllEntries(h Handle, dir string, locales []string) ([]Entry, error)
	AllSubdirs(h Handle, dir string) ([]string, error)
	DirExists(h Handle, dir string) bool
	RemoveDir(h Handle, dir string) error
	SetSchema(h Handle, key, schemaKey string) error
	SyncAll(h Handle) error
	ClearCache(h Handle)
	DestroySource(h Handle) error
}
