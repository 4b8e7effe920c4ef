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

// Package rpc declares the abstract client-daemon request/reply contract
// of §4.11. Wire marshaling is deliberately out of scope here; a concrete
// binding lives in internal/rpc/httptransport.
package rpc

import (
	"context"

	"github.com/hyperair/confd/internal/backend"
	"github.com/hyperair/confd/internal/value"
)

// LookupResult is the reply to LookupWithLocale.
type LookupResult struct {
	Value     *value.Value
	IsDefault bool
}

// AllEntriesResult is the reply to AllEntries.
type AllEntriesResult struct {
	Entries []backend.Entry
}

// DaemonAPI is every call a client issues against the daemon.
type DaemonAPI interface {
	GetDefaultDatabase(ctx context.Context) (dbID string, err error)
	GetDatabase(ctx context.Context, addr string) (dbID string, err error)
	AddClient(ctx context.Context, clientIOR string) error
	RemoveClient(ctx context.Context, clientIOR string) error
	Ping(ctx context.Context) error
	Shutdown(ctx context.Context) error

	LookupWithLocale(ctx context.Context, dbID, key string, locales []string, useDefault bool) (LookupResult, error)
	LookupDefaultValue(ctx context.Context, dbID, key string, locales []string) (*value.Value, error)
	Set(ctx context.Context, dbID, key string, v *value.Value) error
	Unset(ctx context.Context, dbID, key string) error
	RecursiveUnset(ctx context.Context, dbID, key string) error
	AllEntries(ctx context.Context, dbID, dir string, locales []string) (AllEntriesResult, error)
	AllDirs(ctx context.Context, dbID, dir string) ([]string, error)
	DirExists(ctx context.Context, dbID, dir string) (bool, error)
	SetSchema(ctx context.Context, dbID, key, schemaKey string) error
	Sync(ctx context.Context, dbID string) error
	AddListener(ctx context.Context, dbID, prefix, clientIOR string) (connID int64, err error)
	RemoveListener(ctx context.Context, dbID string, connID int64) error
}

// ClientCallback is every call the daemon issues back against a client,
// delivered to the small HTTP router each client runs at its client_ior
// (§4.9, §4.11).
type ClientCallback interface {
	Notify(ctx context.Context, dbID string, connID int64, key string, v *value.Value, isDefault bool) error
	UpdateListener(ctx context.Context, dbID, address string, oldConnID int64, prefix string, newConnID int64) error
	Ping(ctx context.Context) error
}
