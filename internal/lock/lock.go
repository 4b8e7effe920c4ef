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

// Package lock implements the directory-plus-ior advisory lock of §4.14:
// a liveness-probe protocol, not a generic flock. Staleness is decided by
// pinging the endpoint recorded by the previous holder, not by any OS
// file-locking primitive, so this is implemented directly against os
// rather than borrowed from a generic file-lock library in the retrieval
// pack (see DESIGN.md).
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hyperair/confd/internal/cerr"
)

// Pinger probes whether the peer recorded in an ior file is still alive.
// endpoint is whatever was written after the colon in "<pid>:<endpoint>";
// it is "none" for a lock held by a non-daemon tool.
type Pinger func(endpoint string) bool

// Lock is a held lock directory. The zero value is not usable; obtain one
// via Acquire.
type Lock struct {
	dir      string
	iorPath  string
	pid      int
	endpoint string
}

func iorPath(dir string) string { return filepath.Join(dir, "ior") }

func parseIOR(data string) (pid int, endpoint string, err error) {
	data = strings.TrimSpace(data)
	idx := strings.IndexByte(data, ':')
	if idx < 0 {
		return 0, "", cerr.New(cerr.Corrupt, "malformed ior contents %q", data)
	}
	pid, convErr := strconv.Atoi(data[:idx])
	if convErr != nil {
		return 0, "", cerr.Wrap(cerr.Corrupt, convErr, "parsing ior pid")
	}
	return pid, data[idx+1:], nil
}

func formatIOR(pid int, endpoint string) string {
	if endpoint == "" {
		endpoint = "none"
	}
	return fmt.Sprintf("%d:%s", pid, endpoint)
}

// Acquire implements the §4.14 acquisition algorithm against dir, using
// ping to probe a prior holder's endpoint when present. ourEndpoint is
// written into ior as this process's own contact address, or "none" for
// a non-daemon caller such as conftool.
func Acquire(dir, ourEndpoint string, ping Pinger) (*Lock, error) {
	ip := iorPath(dir)

	existed := true
	if err := os.Mkdir(dir, 0o700); err != nil {
		if !os.IsExist(err) {
			return nil, cerr.Wrap(cerr.LockFailed, err, "creating lock directory %s", dir)
		}
	} else {
		existed = false
	}

	if existed {
		data, err := os.ReadFile(ip)
		if err != nil && !os.IsNotExist(err) {
			return nil, cerr.Wrap(cerr.LockFailed, err, "reading %s", ip)
		}
		if err == nil {
			pid, endpoint, perr := parseIOR(string(data))
			if perr != nil {
				return nil, perr
			}
			if endpoint == "none" {
				// Held by a non-daemon tool: a daemon always wins and
				// declares the lock stale, but a non-daemon caller must
				// fail outright (§4.14 step 2).
				if ourEndpoint == "" {
					return nil, cerr.New(cerr.LockFailed, "lock %s held by tool pid %d", dir, pid)
				}
			} else if ping != nil && ping(endpoint) {
				return nil, cerr.New(cerr.LockFailed, "lock %s held by live peer at %s", dir, endpoint)
			}
			if err := os.Remove(ip); err != nil && !os.IsNotExist(err) {
				return nil, cerr.Wrap(cerr.LockFailed, err, "removing stale ior %s", ip)
			}
		}
	}

	f, err := os.OpenFile(ip, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o700)
	if err != nil {
		return nil, cerr.Wrap(cerr.LockFailed, err, "creating ior %s", ip)
	}
	pid := os.Getpid()
	if _, err := f.WriteString(formatIOR(pid, ourEndpoint)); err != nil {
		f.Close()
		return nil, cerr.Wrap(cerr.LockFailed, err, "writing ior %s", ip)
	}
	if err := f.Close(); err != nil {
		return nil, cerr.Wrap(cerr.LockFailed, err, "closing ior %s", ip)
	}

	return &Lock{dir: dir, iorPath: ip, pid: pid, endpoint: ourEndpoint}, nil
}

// Release implements the §4.14 release algorithm: read ior, warn (via the
// returned bool) if it no longer names our pid, then unlink ior and rmdir
// the lock directory regardless.
func Release(l *Lock) (foreignOwner bool, err error) {
	data, rerr := os.ReadFile(l.iorPath)
	if rerr == nil {
		pid, _, perr := parseIOR(string(data))
		if perr == nil && pid != l.pid {
			foreignOwner = true
		}
	}

	if err := os.Remove(l.iorPath); err != nil && !os.IsNotExist(err) {
		return foreignOwner, cerr.Wrap(cerr.Failed, err, "removing ior %s", l.iorPath)
	}
	if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
		return foreignOwner, cerr.Wrap(cerr.Failed, err, "removing lock directory %s", l.dir)
	}
	return foreignOwner, nil
}

// Dir returns the directory this lock holds.
func (l *Lock) Dir() string { return l.dir }
