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

package listenerlog

import (
	"fmt"
	"os"

	"github.com/hyperair/confd/internal/cerr"
)

// pendingKey identifies one ADD/REMOVE pair: a connection id is unique
// only within a single database address, and an id freed by a REMOVE may
// be handed out again by a later ADD.
type pendingKey struct {
	connID    int64
	dbAddress string
}

// Replayed is the result of replaying the journal: the listeners that
// were added and never subsequently removed, and every client that ever
// announced itself via CLIENTADD (used to seed the daemon's known-client
// set, §4.10).
type Replayed struct {
	Listeners []Record
	Clients   []string
}

// Replay reconstructs live state from a sequence of records read in
// file order. Each ADD is tentatively live; a later REMOVE bearing the
// same (connID, dbAddress) cancels it. Records are otherwise append-only
// and never rewritten in place, so replay is the only place cancellation
// happens (§4.9 step 4).
func Replay(records []Record) Replayed {
	live := map[pendingKey]Record{}
	order := []pendingKey{}
	clientSeen := map[string]bool{}
	var clients []string

	for _, r := range records {
		switch r.Kind {
		case ClientAdd:
			if !clientSeen[r.ClientIOR] {
				clientSeen[r.ClientIOR] = true
				clients = append(clients, r.ClientIOR)
			}
		case Add:
			k := pendingKey{connID: r.ConnID, dbAddress: r.DBAddress}
			if _, exists := live[k]; !exists {
				order = append(order, k)
			}
			live[k] = r
		case Remove:
			k := pendingKey{connID: r.ConnID, dbAddress: r.DBAddress}
			delete(live, k)
		}
	}

	out := Replayed{Clients: clients}
	for _, k := range order {
		if r, ok := live[k]; ok {
			out.Listeners = append(out.Listeners, r)
			delete(live, k)
		}
	}
	return out
}

// ReplayFile reads path and replays it in one step; a missing file
// replays as empty state.
func ReplayFile(path string) (Replayed, error) {
	records, err := ReadAll(path)
	if err != nil {
		return Replayed{}, err
	}
	return Replay(records), nil
}

// Compact rewrites the journal at path to contain exactly one ADD per
// surviving listener and one CLIENTADD per known client, discarding the
// REMOVE history that produced that state. The original file is staged
// aside as path+".orig" during the swap and removed only after the
// replacement is durably in place, so a crash mid-compaction leaves
// either the old file or the new one intact, never a half-written one
// (§4.9, "Compaction").
func Compact(path string, listeners []Record, clients []string) error {
	tmp := path + ".tmp"
	orig := path + ".orig"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return cerr.Wrap(cerr.Failed, err, "creating compaction file %s", tmp)
	}
	for _, c := range clients {
		if _, err := fmt.Fprintln(f, (Record{Kind: ClientAdd, ClientIOR: c}).Format()); err != nil {
			f.Close()
			return cerr.Wrap(cerr.Failed, err, "writing compacted listener log")
		}
	}
	for _, r := range listeners {
		r.Kind = Add
		if _, err := fmt.Fprintln(f, r.Format()); err != nil {
			f.Close()
			return cerr.Wrap(cerr.Failed, err, "writing compacted listener log")
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return cerr.Wrap(cerr.Failed, err, "fsyncing compaction file")
	}
	if err := f.Close(); err != nil {
		return cerr.Wrap(cerr.Failed, err, "closing compaction file")
	}

	if err := os.Rename(path, orig); err != nil && !os.IsNotExist(err) {
		return cerr.Wrap(cerr.Failed, err, "staging previous listener log aside")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Rename(orig, path)
		return cerr.Wrap(cerr.Failed, err, "installing compacted listener log")
	}
	_ = os.Remove(orig)
	return nil
}
