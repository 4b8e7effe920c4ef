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

// Package cerr defines the error taxonomy shared by every layer of confd,
// from backend I/O up through the RPC transport and into the client
// engine. A Kind survives marshaling across the RPC boundary unchanged.
package cerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the error kinds of the configuration database.
type Kind string

const (
	Failed              Kind = "failed"
	NoServer            Kind = "no_server"
	NoPermission        Kind = "no_permission"
	BadAddress          Kind = "bad_address"
	BadKey              Kind = "bad_key"
	ParseError          Kind = "parse_error"
	Corrupt             Kind = "corrupt"
	TypeMismatch        Kind = "type_mismatch"
	IsDir               Kind = "is_dir"
	IsKey               Kind = "is_key"
	Overridden          Kind = "overridden"
	NoWritableDatabase  Kind = "no_writable_database"
	LocalEngine         Kind = "local_engine"
	LockFailed          Kind = "lock_failed"
)

// Error is a typed confd error. It wraps an underlying cause (if any) with
// github.com/pkg/errors so that a stack trace is available at the point the
// error was first classified, without losing the Kind across process and
// RPC boundaries.
type Error struct {
	Kind Kind
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

// New builds an Error of the given Kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error as Kind, attaching a stack trace via
// github.com/pkg/errors so the original call site survives logging.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrapf(err, format, args...)
	return &Error{Kind: kind, Msg: wrapped.Error(), err: wrapped}
}

// KindOf extracts the Kind from err, defaulting to Failed for untyped
// errors (e.g. a raw I/O error that slipped past classification).
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Failed
}

// Is reports whether err is a confd Error of the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Compose merges multiple errors (e.g. from SourceStack.SyncAll fanning out
// across sources) into a single error with a concatenated message and the
// Kind of the first non-nil element (Failed if that Kind is empty), or
// returns nil if every element was nil.
func Compose(errs ...error) error {
	var msgs []string
	kind := Kind("")
	for _, e := range errs {
		if e == nil {
			continue
		}
		if kind == "" {
			kind = KindOf(e)
		}
		msgs = append(msgs, e.Error())
	}
	if len(msgs) == 0 {
		return nil
	}
	if kind == "" {
		kind = Failed
	}
	joined := msgs[0]
	for _, m := range msgs[1:] {
		joined += "; " + m
	}
	return &Error{Kind: kind, Msg: joined}
}
