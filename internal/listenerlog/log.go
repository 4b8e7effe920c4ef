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

// Package listenerlog implements the crash-resilient append-only listener
// journal of §4.9: every subscribe/unsubscribe is durably recorded before
// the operation that caused it returns success, so a restarted daemon can
// rebuild its listener tree and hand clients their new connection ids.
package listenerlog

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hyperair/confd/internal/cerr"
)

// Kind distinguishes the three record shapes of §4.9.
type Kind string

const (
	Add       Kind = "ADD"
	Remove    Kind = "REMOVE"
	ClientAdd Kind = "CLIENTADD"
)

// DefaultDBAddress is the literal address token used in log records for
// the default (anonymous) database.
const DefaultDBAddress = "def"

// Record is one line of the listener log.
type Record struct {
	Kind      Kind
	ConnID    int64
	DBAddress string
	Prefix    string
	ClientIOR string
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func unquote(s string) (string, int, error) {
	if len(s) == 0 || s[0] != '"' {
		return "", 0, cerr.New(cerr.ParseError, "expected quoted field")
	}
	var b strings.Builder
	i := 1
	for i < len(s) {
		switch s[i] {
		case '"':
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return "", 0, cerr.New(cerr.ParseError, "dangling escape")
			}
			b.WriteByte(s[i+1])
			i += 2
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return "", 0, cerr.New(cerr.ParseError, "unterminated quoted field")
}

// Format renders r as one log line (without trailing newline).
func (r Record) Format() string {
	switch r.Kind {
	case ClientAdd:
		return fmt.Sprintf("CLIENTADD %s", quote(r.ClientIOR))
	default:
		return fmt.Sprintf("%s %d %s %s %s", r.Kind, r.ConnID, quote(r.DBAddress), quote(r.Prefix), quote(r.ClientIOR))
	}
}

// ParseRecord parses one log line.
func ParseRecord(line string) (Record, error) {
	sp := strings.IndexByte(line, ' ')
	if sp < 0 {
		return Record{}, cerr.New(cerr.ParseError, "malformed listener log line %q", line)
	}
	kind := Kind(line[:sp])
	rest := strings.TrimSpace(line[sp+1:])
	switch kind {
	case ClientAdd:
		ior, n, err := unquote(rest)
		if err != nil {
			return Record{}, cerr.Wrap(cerr.ParseError, err, "parsing CLIENTADD line")
		}
		if n != len(rest) {
			return Record{}, cerr.New(cerr.ParseError, "trailing garbage in CLIENTADD line")
		}
		return Record{Kind: ClientAdd, ClientIOR: ior}, nil
	case Add, Remove:
		sp2 := strings.IndexByte(rest, ' ')
		if sp2 < 0 {
			return Record{}, cerr.New(cerr.ParseError, "malformed %s line %q", kind, line)
		}
		id, err := strconv.ParseInt(rest[:sp2], 10, 64)
		if err != nil {
			return Record{}, cerr.Wrap(cerr.ParseError, err, "parsing connection id")
		}
		rest = strings.TrimSpace(rest[sp2+1:])
		dbAddr, n, err := unquote(rest)
		if err != nil {
			return Record{}, err
		}
		rest = strings.TrimSpace(rest[n:])
		prefix, n, err := unquote(rest)
		if err != nil {
			return Record{}, err
		}
		rest = strings.TrimSpace(rest[n:])
		ior, n, err := unquote(rest)
		if err != nil {
			return Record{}, err
		}
		if n != len(rest) {
			return Record{}, cerr.New(cerr.ParseError, "trailing garbage in %s line", kind)
		}
		return Record{Kind: kind, ConnID: id, DBAddress: dbAddr, Prefix: prefix, ClientIOR: ior}, nil
	default:
		return Record{}, cerr.New(cerr.ParseError, "unknown listener log record kind %q", kind)
	}
}

// Log is the append-only journal. Append is the only durable write path;
// callers must not return success from the operation that triggered the
// append until Append itself has returned successfully (§4.9).
type Log struct {
	path string
	f    *os.File
}

// Open opens (creating if necessary) the log file at path for appending.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, cerr.Wrap(cerr.Failed, err, "opening listener log %s", path)
	}
	return &Log{path: path, f: f}, nil
}

// Append writes r and flushes it to the OS before returning; failure is
// fatal to whatever operation triggered the append (§4.9).
func (l *Log) Append(r Record) error {
	line := r.Format() + "\n"
	if _, err := l.f.WriteString(line); err != nil {
		return cerr.Wrap(cerr.Failed, err, "appending to listener log")
	}
	if err := l.f.Sync(); err != nil {
		return cerr.Wrap(cerr.Failed, err, "fsyncing listener log")
	}
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	return l.f.Close()
}

// Path returns the path Log was opened against.
func (l *Log) Path() string { return l.path }

// ReadAll parses every record in the file at path, in order. A missing
// file yields an empty, non-error result (a fresh daemon has no prior
// state).
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap(cerr.Failed, err, "opening listener log %s", path)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, cerr.Wrap(cerr.Failed, err, "reading listener log %s", path)
	}
	return records, nil
}
