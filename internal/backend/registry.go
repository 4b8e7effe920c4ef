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

package backend

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/hyperair/confd/internal/cerr"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Backend{}
)

// Register installs a Backend under scheme. Concrete backend packages call
// this from an init func; daemon/cmd binaries select which backends are
// compiled in with blank imports, e.g. `_ "github.com/hyperair/confd/internal/backend/jsonfile"`.
func Register(scheme string, b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[scheme] = b
}

// Lookup returns the Backend registered for scheme.
func Lookup(scheme string) (Backend, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[scheme]
	return b, ok
}

var addrPattern = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*):([^:]*):(.*)$`)

// ParseAddress parses the `scheme:<flags>:<location>` grammar of §6.
func ParseAddress(raw string) (Address, error) {
	m := addrPattern.FindStringSubmatch(raw)
	if m == nil {
		return Address{}, cerr.New(cerr.BadAddress, "malformed address %q", raw)
	}
	addr := Address{Scheme: m[1], Location: m[3], Raw: raw}
	for _, flag := range strings.Split(m[2], ",") {
		switch flag {
		case "":
		case "readonly":
			addr.AllWritable = false
			addr.NeverWritable = true
		case "readwrite":
			addr.AllReadable = true
			addr.AllWritable = true
		default:
			return Address{}, cerr.New(cerr.BadAddress, "unknown address flag %q in %q", flag, raw)
		}
	}
	if !addr.AllWritable {
		addr.AllReadable = true
	}
	return addr, nil
}

// Resolve parses raw and dispatches to the registered Backend for its
// scheme, returning the bound Handle.
func Resolve(raw string) (Backend, Address, Handle, error) {
	addr, err := ParseAddress(raw)
	if err != nil {
		return nil, Address{}, nil, err
	}
	b, ok := Lookup(addr.Scheme)
	if !ok {
		return nil, Address{}, nil, cerr.New(cerr.BadAddress, "no backend registered for scheme %q", addr.Scheme)
	}
	h, err := b.ResolveAddress(addr)
	if err != nil {
		return nil, Address{}, nil, cerr.Wrap(cerr.BadAddress, err, "resolving address %s", raw)
	}
	return b, addr, h, nil
}

func (a Address) String() string {
	var flags []string
	if a.NeverWritable {
		flags = append(flags, "readonly")
	} else if a.AllWritable {
		flags = append(flags, "readwrite")
	}
	return fmt.Sprintf("%s:%s:%s", a.Scheme, strings.Join(flags, ","), a.Location)
}
