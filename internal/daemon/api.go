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

package daemon

import (
	"context"

	"github.com/hyperair/confd/internal/backend"
	"github.com/hyperair/confd/internal/cerr"
	"github.com/hyperair/confd/internal/keypath"
	"github.com/hyperair/confd/internal/listenerlog"
	"github.com/hyperair/confd/internal/rpc"
	"github.com/hyperair/confd/internal/value"
)

// dbID is just the database's address string; GetDefaultDatabase hands
// back the literal "def" token the listener log also uses.
func (d *Daemon) resolve(dbID string) (*dbEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entryForAddress(dbID)
	if !ok {
		return nil, cerr.New(cerr.BadAddress, "unknown database %q", dbID)
	}
	return e, nil
}

func (d *Daemon) GetDefaultDatabase(ctx context.Context) (string, error) {
	return listenerlog.DefaultDBAddress, nil
}

func (d *Daemon) GetDatabase(ctx context.Context, addr string) (string, error) {
	if _, err := backend.ParseAddress(addr); err != nil {
		return "", err
	}
	d.mu.Lock()
	_, ok := d.entryForAddress(addr)
	d.mu.Unlock()
	if !ok {
		return "", cerr.New(cerr.BadAddress, "cannot open database %q", addr)
	}
	return addr, nil
}

func (d *Daemon) AddClient(ctx context.Context, clientIOR string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.knownClients[clientIOR] {
		return nil
	}
	if err := d.llog.Append(listenerlog.Record{Kind: listenerlog.ClientAdd, ClientIOR: clientIOR}); err != nil {
		return err
	}
	d.knownClients[clientIOR] = true
	d.updateGauges()
	return nil
}

func (d *Daemon) RemoveClient(ctx context.Context, clientIOR string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.knownClients, clientIOR)
	d.callbackMu.Lock()
	delete(d.callbackHTTP, clientIOR)
	d.callbackMu.Unlock()
	d.updateGauges()
	return nil
}

func (d *Daemon) Ping(ctx context.Context) error { return nil }

func (d *Daemon) LookupWithLocale(ctx context.Context, dbID, key string, locales []string, useDefault bool) (rpc.LookupResult, error) {
	e, err := d.resolve(dbID)
	if err != nil {
		return rpc.LookupResult{}, err
	}
	res, err := e.db.Query(key, locales)
	if err != nil {
		return rpc.LookupResult{}, err
	}
	if res.IsDefault && !useDefault {
		return rpc.LookupResult{}, nil
	}
	return rpc.LookupResult{Value: res.Value, IsDefault: res.IsDefault}, nil
}

func (d *Daemon) LookupDefaultValue(ctx context.Context, dbID, key string, locales []string) (*value.Value, error) {
	e, err := d.resolve(dbID)
	if err != nil {
		return nil, err
	}
	res, err := e.db.Query(key, locales)
	if err != nil {
		return nil, err
	}
	if !res.IsDefault {
		return nil, nil
	}
	return res.Value, nil
}

func (d *Daemon) Set(ctx context.Context, dbID, key string, v *value.Value) error {
	e, err := d.resolve(dbID)
	if err != nil {
		return err
	}
	return e.db.Set(key, v)
}

func (d *Daemon) Unset(ctx context.Context, dbID, key string) error {
	e, err := d.resolve(dbID)
	if err != nil {
		return err
	}
	return e.db.Unset(key)
}

func (d *Daemon) RecursiveUnset(ctx context.Context, dbID, key string) error {
	e, err := d.resolve(dbID)
	if err != nil {
		return err
	}
	return e.db.RemoveDir(key)
}

func (d *Daemon) AllEntries(ctx context.Context, dbID, dir string, locales []string) (rpc.AllEntriesResult, error) {
	e, err := d.resolve(dbID)
	if err != nil {
		return rpc.AllEntriesResult{}, err
	}
	entries, err := e.db.AllEntries(dir, locales)
	if err != nil {
		return rpc.AllEntriesResult{}, err
	}
	return rpc.AllEntriesResult{Entries: entries}, nil
}

func (d *Daemon) AllDirs(ctx context.Context, dbID, dir string) ([]string, error) {
	e, err := d.resolve(dbID)
	if err != nil {
		return nil, err
	}
	return e.db.AllDirs(dir)
}

func (d *Daemon) DirExists(ctx context.Context, dbID, dir string) (bool, error) {
	e, err := d.resolve(dbID)
	if err != nil {
		return false, err
	}
	return e.db.DirExists(dir), nil
}

func (d *Daemon) SetSchema(ctx context.Context, dbID, key, schemaKey string) error {
	e, err := d.resolve(dbID)
	if err != nil {
		return err
	}
	return e.db.SetSchema(key, schemaKey)
}

func (d *Daemon) Sync(ctx context.Context, dbID string) error {
	e, err := d.resolve(dbID)
	if err != nil {
		return err
	}
	return e.db.Sync()
}

func (d *Daemon) AddListener(ctx context.Context, dbID, prefix, clientIOR string) (int64, error) {
	if ok, reason := keypath.IsValid(prefix); !ok {
		return 0, cerr.New(cerr.BadKey, "%s: %s", prefix, reason)
	}
	e, err := d.resolve(dbID)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	connID := e.db.AddListener(prefix, d.notifyCallback(e.address, clientIOR))
	if err := d.llog.Append(listenerlog.Record{Kind: listenerlog.Add, ConnID: connID, DBAddress: e.address, Prefix: prefix, ClientIOR: clientIOR}); err != nil {
		e.db.RemoveListener(connID)
		return 0, err
	}
	e.listeners[connID] = listenerInfo{prefix: prefix, clientIOR: clientIOR}
	d.updateGauges()
	return connID, nil
}

func (d *Daemon) RemoveListener(ctx context.Context, dbID string, connID int64) error {
	e, err := d.resolve(dbID)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	li, ok := e.listeners[connID]
	if !ok {
		return cerr.New(cerr.BadKey, "no listener %d on database %q", connID, dbID)
	}
	e.db.RemoveListener(connID)
	delete(e.listeners, connID)
	if err := d.llog.Append(listenerlog.Record{Kind: listenerlog.Remove, ConnID: connID, DBAddress: e.address, Prefix: li.prefix, ClientIOR: li.clientIOR}); err != nil {
		return err
	}
	d.updateGauges()
	return nil
}
