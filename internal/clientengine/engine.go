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

// Package clientengine implements the two client engine modes of §4.12:
// Remote, which proxies every call over rpc.DaemonAPI and retries once on
// transport failure, and Local, which owns a source.Stack directly and
// bypasses the daemon entirely (at the cost of never delivering
// notifications).
package clientengine

import (
	"context"
	"sync"

	"github.com/hyperair/confd/internal/cerr"
	"github.com/hyperair/confd/internal/rpc"
	"github.com/hyperair/confd/internal/source"
	"github.com/hyperair/confd/internal/value"
)

// Engine is whatever a Client talks to: a Remote engine proxying a daemon
// connection, or a Local engine wrapping an in-process source.Stack.
type Engine interface {
	LookupWithLocale(ctx context.Context, dbID, key string, locales []string) (rpc.LookupResult, error)
	Set(ctx context.Context, dbID, key string, v *value.Value) error
	Unset(ctx context.Context, dbID, key string) error
	RecursiveUnset(ctx context.Context, dbID, key string) error
	AllEntries(ctx context.Context, dbID, dir string, locales []string) (rpc.AllEntriesResult, error)
	AllDirs(ctx context.Context, dbID, dir string) ([]string, error)
	DirExists(ctx context.Context, dbID, dir string) (bool, error)
	SetSchema(ctx context.Context, dbID, key, schemaKey string) error
	Sync(ctx context.Context, dbID string) error
	// AddListener fails with cerr.LocalEngine on a Local engine, since
	// notifications require a daemon (§4.12).
	AddListener(ctx context.Context, dbID, prefix, clientIOR string) (int64, error)
	RemoveListener(ctx context.Context, dbID string, connID int64) error
	GetDefaultDatabase(ctx context.Context) (string, error)
	GetDatabase(ctx context.Context, addr string) (string, error)
	// Shutdown asks a connected daemon to exit; a Local engine has no
	// daemon to ask and fails with cerr.LocalEngine (§4.12).
	Shutdown(ctx context.Context) error
	Close() error
}

// dialer builds a fresh rpc.DaemonAPI connection, used by Remote to
// obtain a new handle after a transport failure (§4.12).
type dialer func() rpc.DaemonAPI

// Remote proxies every operation over an rpc.DaemonAPI, retrying once
// with a freshly dialed connection on transport failure before surfacing
// cerr.NoServer (§7, §4.12).
type Remote struct {
	mu     sync.Mutex
	api    rpc.DaemonAPI
	dial   dialer
}

// NewRemote builds a Remote engine. dial must return a new rpc.DaemonAPI
// connection each time it is called.
func NewRemote(dial dialer) *Remote {
	return &Remote{api: dial(), dial: dial}
}

func (r *Remote) current() rpc.DaemonAPI {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.api
}

func (r *Remote) redial() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.api = r.dial()
}

// retry runs op against the current connection; on a transport failure
// (cerr.NoServer) it dials a fresh connection and tries exactly once
// more, surfacing the second failure verbatim.
func retry[T any](r *Remote, op func(rpc.DaemonAPI) (T, error)) (T, error) {
	res, err := op(r.current())
	if err != nil && cerr.Is(err, cerr.NoServer) {
		r.redial()
		res, err = op(r.current())
	}
	return res, err
}

func retryErr(r *Remote, op func(rpc.DaemonAPI) error) error {
	_, err := retry(r, func(api rpc.DaemonAPI) (struct{}, error) {
		return struct{}{}, op(api)
	})
	return err
}

func (r *Remote) GetDefaultDatabase(ctx context.Context) (string, error) {
	return retry(r, func(api rpc.DaemonAPI) (string, error) { return api.GetDefaultDatabase(ctx) })
}

func (r *Remote) GetDatabase(ctx context.Context, addr string) (string, error) {
	return retry(r, func(api rpc.DaemonAPI) (string, error) { return api.GetDatabase(ctx, addr) })
}

func (r *Remote) LookupWithLocale(ctx context.Context, dbID, key string, locales []string) (rpc.LookupResult, error) {
	return retry(r, func(api rpc.DaemonAPI) (rpc.LookupResult, error) {
		return api.LookupWithLocale(ctx, dbID, key, locales, true)
	})
}

func (r *Remote) Set(ctx context.Context, dbID, key string, v *value.Value) error {
	return retryErr(r, func(api rpc.DaemonAPI) error { return api.Set(ctx, dbID, key, v) })
}

func (r *Remote) Unset(ctx context.Context, dbID, key string) error {
	return retryErr(r, func(api rpc.DaemonAPI) error { return api.Unset(ctx, dbID, key) })
}

func (r *Remote) RecursiveUnset(ctx context.Context, dbID, key string) error {
	return retryErr(r, func(api rpc.DaemonAPI) error { return api.RecursiveUnset(ctx, dbID, key) })
}

func (r *Remote) Shutdown(ctx context.Context) error {
	return retryErr(r, func(api rpc.DaemonAPI) error { return api.Shutdown(ctx) })
}

func (r *Remote) AllEntries(ctx context.Context, dbID, dir string, locales []string) (rpc.AllEntriesResult, error) {
	return retry(r, func(api rpc.DaemonAPI) (rpc.AllEntriesResult, error) {
		return api.AllEntries(ctx, dbID, dir, locales)
	})
}

func (r *Remote) AllDirs(ctx context.Context, dbID, dir string) ([]string, error) {
	return retry(r, func(api rpc.DaemonAPI) ([]string, error) { return api.AllDirs(ctx, dbID, dir) })
}

func (r *Remote) DirExists(ctx context.Context, dbID, dir string) (bool, error) {
	return retry(r, func(api rpc.DaemonAPI) (bool, error) { return api.DirExists(ctx, dbID, dir) })
}

func (r *Remote) SetSchema(ctx context.Context, dbID, key, schemaKey string) error {
	return retryErr(r, func(api rpc.DaemonAPI) error { return api.SetSchema(ctx, dbID, key, schemaKey) })
}

func (r *Remote) Sync(ctx context.Context, dbID string) error {
	return retryErr(r, func(api rpc.DaemonAPI) error { return api.Sync(ctx, dbID) })
}

func (r *Remote) AddListener(ctx context.Context, dbID, prefix, clientIOR string) (int64, error) {
	return retry(r, func(api rpc.DaemonAPI) (int64, error) { return api.AddListener(ctx, dbID, prefix, clientIOR) })
}

func (r *Remote) RemoveListener(ctx context.Context, dbID string, connID int64) error {
	return retryErr(r, func(api rpc.DaemonAPI) error { return api.RemoveListener(ctx, dbID, connID) })
}

func (r *Remote) Close() error { return nil }

var _ Engine = (*Remote)(nil)

// Local owns a source.Stack directly, bypassing any daemon. Listener
// registration always fails with cerr.LocalEngine (§4.12): there is no
// notification path without a daemon in this mode.
type Local struct {
	mu     sync.Mutex
	stacks map[string]*source.Stack
	addrs  map[string]string // dbID -> resolved address, for GetDatabase idempotence
}

// NewLocal builds a Local engine whose default database is backed by
// defaultStack.
func NewLocal(defaultStack *source.Stack) *Local {
	return &Local{
		stacks: map[string]*source.Stack{"default": defaultStack},
		addrs:  map[string]string{},
	}
}

func (l *Local) GetDefaultDatabase(context.Context) (string, error) { return "default", nil }

func (l *Local) GetDatabase(ctx context.Context, addr string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, a := range l.addrs {
		if a == addr {
			return id, nil
		}
	}
	st, err := source.NewStack([]string{addr})
	if err != nil {
		return "", err
	}
	id := addr
	l.stacks[id] = st
	l.addrs[id] = addr
	return id, nil
}

func (l *Local) stack(dbID string) (*source.Stack, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.stacks[dbID]
	if !ok {
		return nil, cerr.New(cerr.BadAddress, "unknown local database %q", dbID)
	}
	return st, nil
}

func (l *Local) LookupWithLocale(_ context.Context, dbID, key string, locales []string) (rpc.LookupResult, error) {
	st, err := l.stack(dbID)
	if err != nil {
		return rpc.LookupResult{}, err
	}
	res, err := st.Query(key, locales)
	if err != nil {
		return rpc.LookupResult{}, err
	}
	return rpc.LookupResult{Value: res.Value, IsDefault: res.IsDefault}, nil
}

func (l *Local) Set(_ context.Context, dbID, key string, v *value.Value) error {
	st, err := l.stack(dbID)
	if err != nil {
		return err
	}
	return st.Set(key, v)
}

func (l *Local) Unset(_ context.Context, dbID, key string) error {
	st, err := l.stack(dbID)
	if err != nil {
		return err
	}
	return st.Unset(key)
}

func (l *Local) RecursiveUnset(_ context.Context, dbID, key string) error {
	st, err := l.stack(dbID)
	if err != nil {
		return err
	}
	return st.RemoveDir(key)
}

func (l *Local) Shutdown(context.Context) error {
	return cerr.New(cerr.LocalEngine, "shutdown requires a daemon connection")
}

func (l *Local) AllEntries(_ context.Context, dbID, dir string, locales []string) (rpc.AllEntriesResult, error) {
	st, err := l.stack(dbID)
	if err != nil {
		return rpc.AllEntriesResult{}, err
	}
	entries, err := st.AllEntries(dir, locales)
	if err != nil {
		return rpc.AllEntriesResult{}, err
	}
	return rpc.AllEntriesResult{Entries: entries}, nil
}

func (l *Local) AllDirs(_ context.Context, dbID, dir string) ([]string, error) {
	st, err := l.stack(dbID)
	if err != nil {
		return nil, err
	}
	return st.AllDirs(dir)
}

func (l *Local) DirExists(_ context.Context, dbID, dir string) (bool, error) {
	st, err := l.stack(dbID)
	if err != nil {
		return false, err
	}
	return st.DirExists(dir), nil
}

func (l *Local) SetSchema(_ context.Context, dbID, key, schemaKey string) error {
	st, err := l.stack(dbID)
	if err != nil {
		return err
	}
	return st.SetSchema(key, schemaKey)
}

func (l *Local) Sync(_ context.Context, dbID string) error {
	st, err := l.stack(dbID)
	if err != nil {
		return err
	}
	return st.SyncAll()
}

func (l *Local) AddListener(context.Context, string, string, string) (int64, error) {
	return 0, cerr.New(cerr.LocalEngine, "listener registration requires a daemon connection")
}

func (l *Local) RemoveListener(context.Context, string, int64) error {
	return cerr.New(cerr.LocalEngine, "listener removal requires a daemon connection")
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for _, st := range l.stacks {
		if err := st.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return cerr.Compose(errs...)
}

var _ Engine = (*Local)(nil)
