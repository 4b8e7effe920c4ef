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

// Package daemon implements the confd server process of §4.10: the
// address→Database registry, the default database, the listener log, the
// process lock and the known-client set, tied together by an idle sweep
// that evicts unused databases and compacts the log.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/hyperair/confd/internal/cerr"
	"github.com/hyperair/confd/internal/config"
	"github.com/hyperair/confd/internal/database"
	"github.com/hyperair/confd/internal/listenerlog"
	"github.com/hyperair/confd/internal/listenertree"
	"github.com/hyperair/confd/internal/lock"
	"github.com/hyperair/confd/internal/metrics"
	"github.com/hyperair/confd/internal/rpc"
	"github.com/hyperair/confd/internal/rpc/httptransport"
	"github.com/hyperair/confd/internal/source"
	"github.com/sirupsen/logrus"
)

// listenerInfo is everything the daemon needs to remember about a live
// listener beyond what the Database's own tree tracks, so the listener
// log and compaction can be driven from outside internal/listenertree.
type listenerInfo struct {
	prefix    string
	clientIOR string
}

type dbEntry struct {
	db        *database.Database
	address   string // listenerlog.DefaultDBAddress for the default database
	listeners map[int64]listenerInfo
}

// Daemon is the confd server. It implements rpc.DaemonAPI directly; a
// transport (internal/rpc/httptransport.NewDaemonRouter) exposes it over
// HTTP.
type Daemon struct {
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	cfg     config.Parameters

	llog *listenerlog.Log
	lk   *lock.Lock

	mu           sync.Mutex
	dbs          map[string]*dbEntry // keyed by address, "" entry is unused; default kept separately
	defaultDB    *dbEntry
	knownClients map[string]bool
	shuttingDown bool
	shutdownOnce sync.Once
	shutdownChan chan struct{}

	// callbackMu guards callbackHTTP independently of mu: callbackFor is
	// called from inside a Database's notification delivery, which by
	// design never holds that Database's own mutex (see internal/database),
	// but must also never block on mu, which the idle sweep holds across
	// calls back into a Database (LastAccess). Keeping this cache behind
	// its own lock keeps mu and a Database's mutex from ever being
	// acquired in opposite orders.
	callbackMu   sync.Mutex
	callbackHTTP map[string]*httptransport.ClientCallbackClient
}

// Option customizes New.
type Option func(*Daemon)

// WithMetrics attaches a metrics.Metrics for the daemon to update.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

// New opens the default database from cfg.SourcePath, opens (creating if
// needed) the listener log at listenerLogPath, acquires the process lock
// at lockDir, and replays any prior listener state (§4.9 "Replay path").
// ping is used to probe a prior lock holder's liveness (§4.14); pass a
// Pinger that issues an HTTP GET against "/v1/ping".
func New(log logrus.FieldLogger, cfg config.Parameters, lockDir, listenerLogPath string, ping lock.Pinger, opts ...Option) (*Daemon, error) {
	stack, err := source.NewStack(cfg.SourcePath)
	if err != nil {
		return nil, err
	}

	l, err := lock.Acquire(lockDir, cfg.Listen, ping)
	if err != nil {
		stack.Close()
		return nil, err
	}

	llog, err := listenerlog.Open(listenerLogPath)
	if err != nil {
		lock.Release(l)
		stack.Close()
		return nil, err
	}

	d := &Daemon{
		log:          log,
		cfg:          cfg,
		llog:         llog,
		lk:           l,
		dbs:          map[string]*dbEntry{},
		knownClients: map[string]bool{},
		callbackHTTP: map[string]*httptransport.ClientCallbackClient{},
		shutdownChan: make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}

	d.defaultDB = &dbEntry{
		db:        database.New(listenerlog.DefaultDBAddress, stack),
		address:   listenerlog.DefaultDBAddress,
		listeners: map[int64]listenerInfo{},
	}

	if err := d.replay(listenerLogPath); err != nil {
		llog.Close()
		lock.Release(l)
		stack.Close()
		return nil, err
	}

	return d, nil
}

func (d *Daemon) callbackFor(clientIOR string) *httptransport.ClientCallbackClient {
	d.callbackMu.Lock()
	defer d.callbackMu.Unlock()
	c, ok := d.callbackHTTP[clientIOR]
	if !ok {
		c = httptransport.NewClientCallbackClient(clientIOR)
		d.callbackHTTP[clientIOR] = c
	}
	return c
}

// replay reconstructs listener state from the log on startup, per §4.9's
// "Replay path": surviving ADDs get re-registered under fresh connection
// ids, the log is updated to reflect the new ids, and each affected
// client is told about its renumbering.
func (d *Daemon) replay(path string) error {
	replayed, err := listenerlog.ReplayFile(path)
	if err != nil {
		return err
	}
	for _, c := range replayed.Clients {
		d.knownClients[c] = true
	}

	for _, r := range replayed.Listeners {
		entry, ok := d.entryForAddress(r.DBAddress)
		if !ok {
			// The database this listener belonged to is gone (e.g. its
			// backend address was dropped from the config); drop it.
			continue
		}

		cb := httptransport.NewClientCallbackClient(r.ClientIOR)
		if err := cb.Ping(context.Background()); err != nil {
			// Client no longer reachable: drop silently (§4.9 step 1).
			if err := d.llog.Append(listenerlog.Record{Kind: listenerlog.Remove, ConnID: r.ConnID, DBAddress: r.DBAddress, Prefix: r.Prefix, ClientIOR: r.ClientIOR}); err != nil {
				return err
			}
			continue
		}

		newConnID := entry.db.AddListener(r.Prefix, d.notifyCallback(entry.address, r.ClientIOR))
		entry.listeners[newConnID] = listenerInfo{prefix: r.Prefix, clientIOR: r.ClientIOR}

		// Step 2: cancel the old id before announcing the new one, so a
		// crash between these two appends still replays correctly.
		if err := d.llog.Append(listenerlog.Record{Kind: listenerlog.Remove, ConnID: r.ConnID, DBAddress: r.DBAddress, Prefix: r.Prefix, ClientIOR: r.ClientIOR}); err != nil {
			return err
		}
		if err := cb.UpdateListener(context.Background(), entry.address, entry.address, r.ConnID, r.Prefix, newConnID); err != nil {
			d.log.WithError(err).WithField("client", r.ClientIOR).Warn("failed to notify client of listener renumbering")
		}
		if err := d.llog.Append(listenerlog.Record{Kind: listenerlog.Add, ConnID: newConnID, DBAddress: entry.address, Prefix: r.Prefix, ClientIOR: r.ClientIOR}); err != nil {
			return err
		}
	}
	return nil
}

// entryForAddress resolves a listener log's db_address token to a live
// dbEntry, opening the backing database on demand for named addresses.
func (d *Daemon) entryForAddress(addr string) (*dbEntry, bool) {
	if addr == listenerlog.DefaultDBAddress {
		return d.defaultDB, true
	}
	if e, ok := d.dbs[addr]; ok {
		return e, true
	}
	stack, err := source.NewStack([]string{addr})
	if err != nil {
		return nil, false
	}
	e := &dbEntry{db: database.New(addr, stack), address: addr, listeners: map[int64]listenerInfo{}}
	d.dbs[addr] = e
	return e, true
}

// notifyCallback builds the listenertree.Callback that forwards a
// database notification to a connected client over its callback HTTP
// endpoint.
func (d *Daemon) notifyCallback(dbAddress, clientIOR string) listenertree.Callback {
	return func(connID int64, prefix string, ev listenertree.Event) {
		cb := d.callbackFor(clientIOR)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cb.Notify(ctx, dbAddress, connID, ev.Key, ev.Value, ev.IsDefault); err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{"client": clientIOR, "db": dbAddress}).Warn("notify delivery failed")
		}
	}
}

// DatabaseSnapshot is one entry of a DebugSnapshot: the address of a
// single open database, whether it is the default one, and its listener
// count.
type DatabaseSnapshot struct {
	Address   string `json:"address"`
	IsDefault bool   `json:"is_default"`
	Listeners int    `json:"listeners"`
}

// DebugSnapshot reports the daemon's current in-memory state for the
// /debug/confd introspection endpoint: which databases are open, how many
// listeners each holds, how many clients are in the known-client set
// (added by AddClient or listener log replay and not since removed by
// RemoveClient), and the daemon's own listen address as lock holder.
type DebugSnapshot struct {
	Databases    []DatabaseSnapshot `json:"databases"`
	KnownClients int                `json:"known_clients"`
	LockHolder   string             `json:"lock_holder"`
}

func (d *Daemon) DebugSnapshot() DebugSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	dbs := []DatabaseSnapshot{{
		Address:   listenerlog.DefaultDBAddress,
		IsDefault: true,
		Listeners: d.defaultDB.db.ListenerCount(),
	}}
	for addr, e := range d.dbs {
		dbs = append(dbs, DatabaseSnapshot{Address: addr, Listeners: e.db.ListenerCount()})
	}
	return DebugSnapshot{
		Databases:    dbs,
		KnownClients: len(d.knownClients),
		LockHolder:   d.cfg.Listen,
	}
}

func (d *Daemon) countListeners() int {
	n := d.defaultDB.db.ListenerCount()
	for _, e := range d.dbs {
		n += e.db.ListenerCount()
	}
	return n
}

func (d *Daemon) updateGauges() {
	if d.metrics == nil {
		return
	}
	d.metrics.Databases.Set(float64(1 + len(d.dbs)))
	d.metrics.Listeners.Set(float64(d.countListeners()))
	d.metrics.KnownClients.Set(float64(len(d.knownClients)))
}

// IdleSweep evicts databases (other than the default) with zero listeners
// whose last access predates threshold, and compacts the listener log. If
// the default database itself has no listeners and no other databases
// remain, it returns true to signal the caller should shut down (§4.10,
// "the daemon exits").
func (d *Daemon) IdleSweep(threshold time.Duration) (shouldExit bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for addr, e := range d.dbs {
		if e.db.ListenerCount() == 0 && now.Sub(e.db.LastAccess()) > threshold {
			e.db.Close()
			delete(d.dbs, addr)
		}
	}

	if err := d.compactLocked(); err != nil {
		return false, err
	}
	d.updateGauges()

	return len(d.dbs) == 0 && d.defaultDB.db.ListenerCount() == 0, nil
}

func (d *Daemon) compactLocked() error {
	var listeners []listenerlog.Record
	for connID, li := range d.defaultDB.listeners {
		listeners = append(listeners, listenerlog.Record{Kind: listenerlog.Add, ConnID: connID, DBAddress: d.defaultDB.address, Prefix: li.prefix, ClientIOR: li.clientIOR})
	}
	for _, e := range d.dbs {
		for connID, li := range e.listeners {
			listeners = append(listeners, listenerlog.Record{Kind: listenerlog.Add, ConnID: connID, DBAddress: e.address, Prefix: li.prefix, ClientIOR: li.clientIOR})
		}
	}
	clients := make([]string, 0, len(d.knownClients))
	for c := range d.knownClients {
		clients = append(clients, c)
	}

	if err := d.llog.Close(); err != nil {
		return cerr.Wrap(cerr.Failed, err, "closing listener log before compaction")
	}
	if err := listenerlog.Compact(d.llog.Path(), listeners, clients); err != nil {
		return err
	}
	reopened, err := listenerlog.Open(d.llog.Path())
	if err != nil {
		return cerr.Wrap(cerr.Failed, err, "reopening listener log after compaction")
	}
	d.llog = reopened
	return nil
}

// Shutdown performs the clean-shutdown path of §4.10: compact the log and
// release the process lock. It is idempotent.
func (d *Daemon) Shutdown(ctx context.Context) error {
	var err error
	d.shutdownOnce.Do(func() {
		d.mu.Lock()
		d.shuttingDown = true
		compactErr := d.compactLocked()
		d.mu.Unlock()

		_ = d.llog.Close()
		_, lerr := lock.Release(d.lk)
		d.defaultDB.db.Close()
		for _, e := range d.dbs {
			e.db.Close()
		}
		close(d.shutdownChan)

		switch {
		case compactErr != nil:
			err = compactErr
		case lerr != nil:
			err = lerr
		}
	})
	return err
}

// Done is closed once Shutdown has completed, for a workgroup member
// waiting on the daemon to decide it should exit (e.g. after IdleSweep
// reports shouldExit).
func (d *Daemon) Done() <-chan struct{} { return d.shutdownChan }

var _ rpc.DaemonAPI = (*Daemon)(nil)
