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

package rpc

import (
	"net/http"

	"github.com/hyperair/confd/internal/cerr"
)

// StatusFor maps a cerr.Kind to the HTTP status a transport binding
// should use for it. The Kind itself still travels in the response body
// so the caller can reconstruct the typed error exactly; the status code
// only needs to be roughly right for proxies, logs and curl.
func StatusFor(kind cerr.Kind) int {
	switch kind {
	case cerr.BadKey, cerr.BadAddress, cerr.ParseError, cerr.TypeMismatch, cerr.IsDir, cerr.IsKey:
		return http.StatusBadRequest
	case cerr.NoPermission, cerr.Overridden:
		return http.StatusForbidden
	case cerr.NoWritableDatabase:
		return http.StatusConflict
	case cerr.Corrupt:
		return http.StatusUnprocessableEntity
	case cerr.NoServer:
		return http.StatusBadGateway
	case cerr.LocalEngine:
		return http.StatusNotImplemented
	case cerr.LockFailed:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// KindForStatus is the inverse used by a caller that, for whatever reason,
// only has a bare status code to go on (e.g. a proxy ate the body).
func KindForStatus(status int) cerr.Kind {
	switch status {
	case http.StatusBadRequest:
		return cerr.BadKey
	case http.StatusForbidden:
		return cerr.NoPermission
	case http.StatusConflict:
		return cerr.NoWritableDatabase
	case http.StatusUnprocessableEntity:
		return cerr.Corrupt
	case http.StatusBadGateway:
		return cerr.NoServer
	case http.StatusNotImplemented:
		return cerr.LocalEngine
	case http.StatusLocked:
		return cerr.LockFailed
	default:
		return cerr.Failed
	}
}
