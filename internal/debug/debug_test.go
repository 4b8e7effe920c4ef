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

package debug

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterServesSnapshotAsJSON(t *testing.T) {
	mux := http.NewServeMux()
	Register(mux, func() any {
		return map[string]int{"databases": 2}
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/confd", nil)
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]int
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 2, body["databases"])
}

func TestRegisterServesPprofIndex(t *testing.T) {
	mux := http.NewServeMux()
	Register(mux, func() any { return nil })

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}
