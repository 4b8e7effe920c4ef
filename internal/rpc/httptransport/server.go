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

package httptransport

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/hyperair/confd/internal/cerr"
	"github.com/hyperair/confd/internal/rpc"
)

// NewDaemonRouter builds the HTTP surface the daemon exposes for api.
func NewDaemonRouter(api rpc.DaemonAPI) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/v1/ping", func(w http.ResponseWriter, req *http.Request) {
		if err := api.Ping(req.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/shutdown", func(w http.ResponseWriter, req *http.Request) {
		if err := api.Shutdown(req.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/databases/default", func(w http.ResponseWriter, req *http.Request) {
		id, err := api.GetDefaultDatabase(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			DBID string `json:"db_id"`
		}{id})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/databases", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Addr string `json:"addr"`
		}
		if err := readJSON(req, &body); err != nil {
			writeError(w, err)
			return
		}
		id, err := api.GetDatabase(req.Context(), body.Addr)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			DBID string `json:"db_id"`
		}{id})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/clients", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ClientIOR string `json:"client_ior"`
		}
		if err := readJSON(req, &body); err != nil {
			writeError(w, err)
			return
		}
		if err := api.AddClient(req.Context(), body.ClientIOR); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/clients/remove", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ClientIOR string `json:"client_ior"`
		}
		if err := readJSON(req, &body); err != nil {
			writeError(w, err)
			return
		}
		if err := api.RemoveClient(req.Context(), body.ClientIOR); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/databases/{db}/lookup", func(w http.ResponseWriter, req *http.Request) {
		dbID := mux.Vars(req)["db"]
		var body struct {
			Key        string   `json:"key"`
			Locales    []string `json:"locales"`
			UseDefault bool     `json:"use_default"`
		}
		if err := readJSON(req, &body); err != nil {
			writeError(w, err)
			return
		}
		res, err := api.LookupWithLocale(req.Context(), dbID, body.Key, body.Locales, body.UseDefault)
		if err != nil {
			writeError(w, err)
			return
		}
		wv, err := valueToWire(res.Value)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Value     *wireValue `json:"value,omitempty"`
			IsDefault bool       `json:"is_default"`
		}{wv, res.IsDefault})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/databases/{db}/lookup_default", func(w http.ResponseWriter, req *http.Request) {
		dbID := mux.Vars(req)["db"]
		var body struct {
			Key     string   `json:"key"`
			Locales []string `json:"locales"`
		}
		if err := readJSON(req, &body); err != nil {
			writeError(w, err)
			return
		}
		v, err := api.LookupDefaultValue(req.Context(), dbID, body.Key, body.Locales)
		if err != nil {
			writeError(w, err)
			return
		}
		wv, err := valueToWire(v)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Value *wireValue `json:"value,omitempty"`
		}{wv})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/databases/{db}/set", func(w http.ResponseWriter, req *http.Request) {
		dbID := mux.Vars(req)["db"]
		var body struct {
			Key   string     `json:"key"`
			Value *wireValue `json:"value"`
		}
		if err := readJSON(req, &body); err != nil {
			writeError(w, err)
			return
		}
		v, err := wireToValue(body.Value)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := api.Set(req.Context(), dbID, body.Key, v); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/databases/{db}/unset", func(w http.ResponseWriter, req *http.Request) {
		dbID := mux.Vars(req)["db"]
		var body struct {
			Key string `json:"key"`
		}
		if err := readJSON(req, &body); err != nil {
			writeError(w, err)
			return
		}
		if err := api.Unset(req.Context(), dbID, body.Key); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/databases/{db}/recursive_unset", func(w http.ResponseWriter, req *http.Request) {
		dbID := mux.Vars(req)["db"]
		var body struct {
			Key string `json:"key"`
		}
		if err := readJSON(req, &body); err != nil {
			writeError(w, err)
			return
		}
		if err := api.RecursiveUnset(req.Context(), dbID, body.Key); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/databases/{db}/all_entries", func(w http.ResponseWriter, req *http.Request) {
		dbID := mux.Vars(req)["db"]
		var body struct {
			Dir     string   `json:"dir"`
			Locales []string `json:"locales"`
		}
		if err := readJSON(req, &body); err != nil {
			writeError(w, err)
			return
		}
		res, err := api.AllEntries(req.Context(), dbID, body.Dir, body.Locales)
		if err != nil {
			writeError(w, err)
			return
		}
		type wireEntry struct {
			Key        string     `json:"key"`
			Value      *wireValue `json:"value,omitempty"`
			SchemaName string     `json:"schema_name,omitempty"`
			IsDefault  bool       `json:"is_default"`
			IsWritable bool       `json:"is_writable"`
		}
		out := make([]wireEntry, 0, len(res.Entries))
		for _, e := range res.Entries {
			wv, err := valueToWire(e.Value)
			if err != nil {
				writeError(w, err)
				return
			}
			out = append(out, wireEntry{Key: e.Key, Value: wv, SchemaName: e.SchemaName, IsDefault: e.IsDefault, IsWritable: e.IsWritable})
		}
		writeJSON(w, http.StatusOK, struct {
			Entries []wireEntry `json:"entries"`
		}{out})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/databases/{db}/all_dirs", func(w http.ResponseWriter, req *http.Request) {
		dbID := mux.Vars(req)["db"]
		var body struct {
			Dir string `json:"dir"`
		}
		if err := readJSON(req, &body); err != nil {
			writeError(w, err)
			return
		}
		dirs, err := api.AllDirs(req.Context(), dbID, body.Dir)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Dirs []string `json:"dirs"`
		}{dirs})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/databases/{db}/dir_exists", func(w http.ResponseWriter, req *http.Request) {
		dbID := mux.Vars(req)["db"]
		var body struct {
			Dir string `json:"dir"`
		}
		if err := readJSON(req, &body); err != nil {
			writeError(w, err)
			return
		}
		exists, err := api.DirExists(req.Context(), dbID, body.Dir)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Exists bool `json:"exists"`
		}{exists})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/databases/{db}/set_schema", func(w http.ResponseWriter, req *http.Request) {
		dbID := mux.Vars(req)["db"]
		var body struct {
			Key       string `json:"key"`
			SchemaKey string `json:"schema_key"`
		}
		if err := readJSON(req, &body); err != nil {
			writeError(w, err)
			return
		}
		if err := api.SetSchema(req.Context(), dbID, body.Key, body.SchemaKey); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/databases/{db}/sync", func(w http.ResponseWriter, req *http.Request) {
		dbID := mux.Vars(req)["db"]
		if err := api.Sync(req.Context(), dbID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/databases/{db}/listeners", func(w http.ResponseWriter, req *http.Request) {
		dbID := mux.Vars(req)["db"]
		var body struct {
			Prefix    string `json:"prefix"`
			ClientIOR string `json:"client_ior"`
		}
		if err := readJSON(req, &body); err != nil {
			writeError(w, err)
			return
		}
		connID, err := api.AddListener(req.Context(), dbID, body.Prefix, body.ClientIOR)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			ConnID int64 `json:"conn_id"`
		}{connID})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/databases/{db}/listeners/{conn_id}", func(w http.ResponseWriter, req *http.Request) {
		dbID := mux.Vars(req)["db"]
		connID, err := strconv.ParseInt(mux.Vars(req)["conn_id"], 10, 64)
		if err != nil {
			writeError(w, cerr.New(cerr.BadKey, "malformed conn_id"))
			return
		}
		if err := api.RemoveListener(req.Context(), dbID, connID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodDelete)

	return r
}
