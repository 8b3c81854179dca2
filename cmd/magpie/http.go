// Copyright 2018-2024 CERN
//
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
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DACCS-Climate/Magpie/pkg/token"
)

// The client talks to the services under their default prefixes.
const (
	adminPrefix = "/adminapi"
	authPrefix  = "/authapi"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// envelope is the common part of every server response.
type envelope map[string]interface{}

// apiCall sends one request to the configured host, attaching the
// session token when one is stored, and decodes the response envelope.
// Error envelopes come back as errors carrying the server detail.
func apiCall(method, path string, body interface{}) (envelope, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, strings.TrimRight(conf.Host, "/")+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tkn, err := readToken(); err == nil && tkn != "" {
		req.Header.Set(token.TokenHeader, tkn)
	}

	res, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNoContent {
		return envelope{}, nil
	}

	var out envelope
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("error decoding response (status %d): %v", res.StatusCode, err)
	}

	if res.StatusCode >= http.StatusBadRequest {
		if detail, ok := out["detail"].(string); ok && detail != "" {
			return nil, fmt.Errorf("%s (status %d)", detail, res.StatusCode)
		}
		return nil, fmt.Errorf("request failed with status %d", res.StatusCode)
	}
	return out, nil
}

// printBody pretty prints one field of the envelope.
func printBody(e envelope, field string) error {
	v, ok := e[field]
	if !ok {
		return fmt.Errorf("response has no %q field", field)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// listField returns an envelope field that holds a list.
func listField(e envelope, field string) []interface{} {
	l, _ := e[field].([]interface{})
	return l
}

// str reads a string field of a decoded JSON object.
func str(v interface{}, field string) string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	s, _ := m[field].(string)
	return s
}

// num reads a numeric field of a decoded JSON object.
func num(v interface{}, field string) int64 {
	m, ok := v.(map[string]interface{})
	if !ok {
		return 0
	}
	f, _ := m[field].(float64)
	return int64(f)
}
