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

package wps

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DACCS-Climate/Magpie/pkg/service"
)

const executeBody = `<?xml version="1.0" encoding="UTF-8"?>
<wps:Execute service="WPS" version="1.0.0" xmlns:wps="http://www.opengis.net/wps/1.0.0" xmlns:ows="http://www.opengis.net/ows/1.1">
  <ows:Identifier>subset</ows:Identifier>
  <wps:DataInputs>
    <wps:Input>
      <ows:Identifier>resource</ows:Identifier>
    </wps:Input>
  </wps:DataInputs>
</wps:Execute>`

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		method string
		query  url.Values
		body   string
		want   service.Target
	}{
		{
			name:  "get capabilities",
			query: url.Values{"service": {"WPS"}, "request": {"GetCapabilities"}},
			want:  service.Target{Name: PermissionGetCapabilities},
		},
		{
			name:  "get capabilities ignores identifier",
			query: url.Values{"request": {"GetCapabilities"}, "identifier": {"subset"}},
			want:  service.Target{Name: PermissionGetCapabilities},
		},
		{
			name:  "describe process",
			query: url.Values{"request": {"DescribeProcess"}, "identifier": {"subset"}},
			want:  service.Target{Path: []string{"subset"}, Name: PermissionDescribeProcess},
		},
		{
			name:  "execute via query",
			query: url.Values{"REQUEST": {"Execute"}, "IDENTIFIER": {"subset"}},
			want:  service.Target{Path: []string{"subset"}, Name: PermissionExecute},
		},
		{
			name:  "execute without identifier targets root",
			query: url.Values{"request": {"Execute"}},
			want:  service.Target{Name: PermissionExecute},
		},
		{
			name:   "execute via xml body",
			method: "POST",
			body:   executeBody,
			want:   service.Target{Path: []string{"subset"}, Name: PermissionExecute},
		},
		{
			name:   "malformed body",
			method: "POST",
			body:   "not xml at all",
			want:   service.Target{Name: service.NameUnknown},
		},
		{
			name:  "unknown operation",
			query: url.Values{"request": {"GetTea"}},
			want:  service.Target{Name: service.NameUnknown},
		},
		{
			name: "no request parameter",
			want: service.Target{Name: service.NameUnknown},
		},
	}

	typ, ok := service.Lookup("wps")
	assert.True(t, ok)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = "GET"
			}
			got := typ.Parser.Parse(&service.Request{
				Method: method,
				Path:   "/mywps",
				Query:  tt.query,
				Body:   []byte(tt.body),
			})
			assert.Equal(t, tt.want, got)
		})
	}
}
