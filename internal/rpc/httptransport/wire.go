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

// Package httptransport binds the abstract internal/rpc contract to a
// concrete HTTP/JSON transport built on gorilla/mux, symmetric in both
// directions: the daemon serves DaemonAPI, and each client serves
// ClientCallback at its own listen address (its client_ior).
package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/hyperair/confd/internal/cerr"
	"github.com/hyperair/confd/internal/rpc"
	"github.com/hyperair/confd/internal/value"
)

// errorBody is the JSON shape of a non-2xx response.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := cerr.KindOf(err)
	writeJSON(w, rpc.StatusFor(kind), errorBody{Kind: string(kind), Message: err.Error()})
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return cerr.Wrap(cerr.ParseError, err, "decoding request body")
	}
	return nil
}

// errorFromResponse reconstructs a *cerr.Error from a non-2xx HTTP reply.
func errorFromResponse(resp *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Kind == "" {
		body.Kind = string(rpc.KindForStatus(resp.StatusCode))
	}
	if body.Message == "" {
		body.Message = resp.Status
	}
	return cerr.New(cerr.Kind(body.Kind), "%s", body.Message)
}

// wireValue is the JSON shape of a *value.Value: its canonical encoding
// (§4.1), nil represented as an absent/empty Encoded field.
type wireValue struct {
	Encoded string `json:"encoded,omitempty"`
}

func valueToWire(v *value.Value) (*wireValue, error) {
	if v == nil {
		return nil, nil
	}
	enc, err := v.Encode()
	if err != nil {
		return nil, err
	}
	return &wireValue{Encoded: enc}, nil
}

func wireToValue(w *wireValue) (*value.Value, error) {
	if w == nil || w.Encoded == "" {
		return nil, nil
	}
	return value.Decode(w.Encoded)
}
