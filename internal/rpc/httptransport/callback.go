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
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hyperair/confd/internal/rpc"
	"github.com/hyperair/confd/internal/value"
)

// NewClientCallbackRouter builds the small HTTP surface each client runs
// at its client_ior so the daemon can deliver notifications and listener
// renumbering (§4.9, §4.11).
func NewClientCallbackRouter(cb rpc.ClientCallback) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/v1/ping", func(w http.ResponseWriter, req *http.Request) {
		if err := cb.Ping(req.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/notify", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			DB        string     `json:"db"`
			ConnID    int64      `json:"conn_id"`
			Key       string     `json:"key"`
			Value     *wireValue `json:"value"`
			IsDefault bool       `json:"is_default"`
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
		if err := cb.Notify(req.Context(), body.DB, body.ConnID, body.Key, v, body.IsDefault); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/update_listener", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			DB        string `json:"db"`
			Address   string `json:"address"`
			OldConnID int64  `json:"old_conn_id"`
			Prefix    string `json:"prefix"`
			NewConnID int64  `json:"new_conn_id"`
		}
		if err := readJSON(req, &body); err != nil {
			writeError(w, err)
			return
		}
		if err := cb.UpdateListener(req.Context(), body.DB, body.Address, body.OldConnID, body.Prefix, body.NewConnID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}).Methods(http.MethodPost)

	return r
}

// ClientCallbackClient implements rpc.ClientCallback against a remote
// client's callback router: the daemon holds one of these per connected
// client (the client's client_ior).
type ClientCallbackClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClientCallbackClient builds a callback client against a client's
// client_ior base URL.
func NewClientCallbackClient(baseURL string) *ClientCallbackClient {
	return &ClientCallbackClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: 5 * time.Second}}
}

func (c *ClientCallbackClient) do(ctx context.Context, method, path string, reqBody any) error {
	d := &DaemonClient{BaseURL: c.BaseURL, HTTP: c.HTTP}
	return d.do(ctx, method, path, reqBody, nil)
}

func (c *ClientCallbackClient) Notify(ctx context.Context, dbID string, connID int64, key string, v *value.Value, isDefault bool) error {
	wv, err := valueToWire(v)
	if err != nil {
		return err
	}
	req := struct {
		DB        string     `json:"db"`
		ConnID    int64      `json:"conn_id"`
		Key       string     `json:"key"`
		Value     *wireValue `json:"value"`
		IsDefault bool       `json:"is_default"`
	}{dbID, connID, key, wv, isDefault}
	return c.do(ctx, http.MethodPost, "/v1/notify", req)
}

func (c *ClientCallbackClient) UpdateListener(ctx context.Context, dbID, address string, oldConnID int64, prefix string, newConnID int64) error {
	req := struct {
		DB        string `json:"db"`
		Address   string `json:"address"`
		OldConnID int64  `json:"old_conn_id"`
		Prefix    string `json:"prefix"`
		NewConnID int64  `json:"new_conn_id"`
	}{dbID, address, oldConnID, prefix, newConnID}
	return c.do(ctx, http.MethodPost, "/v1/update_listener", req)
}

func (c *ClientCallbackClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/ping", nil)
}

var _ rpc.ClientCallback = (*ClientCallbackClient)(nil)
