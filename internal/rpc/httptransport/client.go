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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperair/confd/internal/backend"
	"github.com/hyperair/confd/internal/cerr"
	"github.com/hyperair/confd/internal/rpc"
	"github.com/hyperair/confd/internal/value"
)

// DaemonClient implements rpc.DaemonAPI by issuing HTTP requests against a
// daemon's NewDaemonRouter. Every transport-level failure (as opposed to a
// decoded application error) is classified NoServer, matching §7's "RPC
// transport errors trigger one automatic retry... a second failure
// surfaces as no_server" — the retry itself lives in internal/clientengine,
// which wraps a DaemonClient.
type DaemonClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewDaemonClient builds a client against baseURL (e.g. "http://host:port").
func NewDaemonClient(baseURL string) *DaemonClient {
	return &DaemonClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

func (c *DaemonClient) do(ctx context.Context, method, path string, reqBody, respBody any) error {
	var body bytes.Buffer
	if reqBody != nil {
		if err := json.NewEncoder(&body).Encode(reqBody); err != nil {
			return cerr.Wrap(cerr.Failed, err, "encoding request")
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &body)
	if err != nil {
		return cerr.Wrap(cerr.NoServer, err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return cerr.Wrap(cerr.NoServer, err, "contacting daemon at %s", c.BaseURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return errorFromResponse(resp)
	}
	if respBody == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return cerr.Wrap(cerr.Failed, err, "decoding response")
	}
	return nil
}

func (c *DaemonClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/ping", nil, nil)
}

func (c *DaemonClient) Shutdown(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/shutdown", nil, nil)
}

func (c *DaemonClient) GetDefaultDatabase(ctx context.Context) (string, error) {
	var resp struct {
		DBID string `json:"db_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/databases/default", nil, &resp); err != nil {
		return "", err
	}
	return resp.DBID, nil
}

func (c *DaemonClient) GetDatabase(ctx context.Context, addr string) (string, error) {
	var resp struct {
		DBID string `json:"db_id"`
	}
	req := struct {
		Addr string `json:"addr"`
	}{addr}
	if err := c.do(ctx, http.MethodPost, "/v1/databases", req, &resp); err != nil {
		return "", err
	}
	return resp.DBID, nil
}

func (c *DaemonClient) AddClient(ctx context.Context, clientIOR string) error {
	req := struct {
		ClientIOR string `json:"client_ior"`
	}{clientIOR}
	return c.do(ctx, http.MethodPost, "/v1/clients", req, nil)
}

func (c *DaemonClient) RemoveClient(ctx context.Context, clientIOR string) error {
	req := struct {
		ClientIOR string `json:"client_ior"`
	}{clientIOR}
	return c.do(ctx, http.MethodPost, "/v1/clients/remove", req, nil)
}

func (c *DaemonClient) LookupWithLocale(ctx context.Context, dbID, key string, locales []string, useDefault bool) (rpc.LookupResult, error) {
	req := struct {
		Key        string   `json:"key"`
		Locales    []string `json:"locales"`
		UseDefault bool     `json:"use_default"`
	}{key, locales, useDefault}
	var resp struct {
		Value     *wireValue `json:"value"`
		IsDefault bool       `json:"is_default"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/databases/%s/lookup", dbID), req, &resp); err != nil {
		return rpc.LookupResult{}, err
	}
	v, err := wireToValue(resp.Value)
	if err != nil {
		return rpc.LookupResult{}, err
	}
	return rpc.LookupResult{Value: v, IsDefault: resp.IsDefault}, nil
}

func (c *DaemonClient) LookupDefaultValue(ctx context.Context, dbID, key string, locales []string) (*value.Value, error) {
	req := struct {
		Key     string   `json:"key"`
		Locales []string `json:"locales"`
	}{key, locales}
	var resp struct {
		Value *wireValue `json:"value"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/databases/%s/lookup_default", dbID), req, &resp); err != nil {
		return nil, err
	}
	return wireToValue(resp.Value)
}

func (c *DaemonClient) Set(ctx context.Context, dbID, key string, v *value.Value) error {
	wv, err := valueToWire(v)
	if err != nil {
		return err
	}
	req := struct {
		Key   string     `json:"key"`
		Value *wireValue `json:"value"`
	}{key, wv}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/databases/%s/set", dbID), req, nil)
}

func (c *DaemonClient) Unset(ctx context.Context, dbID, key string) error {
	req := struct {
		Key string `json:"key"`
	}{key}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/databases/%s/unset", dbID), req, nil)
}

func (c *DaemonClient) RecursiveUnset(ctx context.Context, dbID, key string) error {
	req := struct {
		Key string `json:"key"`
	}{key}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/databases/%s/recursive_unset", dbID), req, nil)
}

func (c *DaemonClient) AllEntries(ctx context.Context, dbID, dir string, locales []string) (rpc.AllEntriesResult, error) {
	req := struct {
		Dir     string   `json:"dir"`
		Locales []string `json:"locales"`
	}{dir, locales}
	type wireEntry struct {
		Key        string     `json:"key"`
		Value      *wireValue `json:"value"`
		SchemaName string     `json:"schema_name"`
		IsDefault  bool       `json:"is_default"`
		IsWritable bool       `json:"is_writable"`
	}
	var resp struct {
		Entries []wireEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/databases/%s/all_entries", dbID), req, &resp); err != nil {
		return rpc.AllEntriesResult{}, err
	}
	out := rpc.AllEntriesResult{}
	for _, e := range resp.Entries {
		v, err := wireToValue(e.Value)
		if err != nil {
			return rpc.AllEntriesResult{}, err
		}
		out.Entries = append(out.Entries, backend.Entry{
			Key:        e.Key,
			Value:      v,
			SchemaName: e.SchemaName,
			IsDefault:  e.IsDefault,
			IsWritable: e.IsWritable,
		})
	}
	return out, nil
}

func (c *DaemonClient) AllDirs(ctx context.Context, dbID, dir string) ([]string, error) {
	req := struct {
		Dir string `json:"dir"`
	}{dir}
	var resp struct {
		Dirs []string `json:"dirs"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/databases/%s/all_dirs", dbID), req, &resp); err != nil {
		return nil, err
	}
	return resp.Dirs, nil
}

func (c *DaemonClient) DirExists(ctx context.Context, dbID, dir string) (bool, error) {
	req := struct {
		Dir string `json:"dir"`
	}{dir}
	var resp struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/databases/%s/dir_exists", dbID), req, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

func (c *DaemonClient) SetSchema(ctx context.Context, dbID, key, schemaKey string) error {
	req := struct {
		Key       string `json:"key"`
		SchemaKey string `json:"schema_key"`
	}{key, schemaKey}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/databases/%s/set_schema", dbID), req, nil)
}

func (c *DaemonClient) Sync(ctx context.Context, dbID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/databases/%s/sync", dbID), nil, nil)
}

func (c *DaemonClient) AddListener(ctx context.Context, dbID, prefix, clientIOR string) (int64, error) {
	req := struct {
		Prefix    string `json:"prefix"`
		ClientIOR string `json:"client_ior"`
	}{prefix, clientIOR}
	var resp struct {
		ConnID int64 `json:"conn_id"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/databases/%s/listeners", dbID), req, &resp); err != nil {
		return 0, err
	}
	return resp.ConnID, nil
}

func (c *DaemonClient) RemoveListener(ctx context.Context, dbID string, connID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/databases/%s/listeners/%d", dbID, connID), nil, nil)
}

var _ rpc.DaemonAPI = (*DaemonClient)(nil)
