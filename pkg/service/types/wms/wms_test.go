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

package wms

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DACCS-Climate/Magpie/pkg/service"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		query url.Values
		want  service.Target
	}{
		{
			name:  "capabilities for one workspace",
			path:  "/mywms/geoserver/watershed/wms",
			query: url.Values{"request": {"GetCapabilities"}},
			want:  service.Target{Path: []string{"watershed"}, Name: PermissionGetCapabilities},
		},
		{
			name:  "capabilities for all workspaces",
			path:  "/mywms/geoserver/wms",
			query: url.Values{"request": {"GetCapabilities"}},
			want:  service.Target{Name: PermissionGetCapabilities},
		},
		{
			name:  "capabilities directly below the service",
			path:  "/mywms/wms",
			query: url.Values{"request": {"getcapabilities"}},
			want:  service.Target{Name: PermissionGetCapabilities},
		},
		{
			name:  "map from qualified layer",
			path:  "/mywms/geoserver/wms",
			query: url.Values{"request": {"GetMap"}, "layers": {"watershed:BV_1NS"}},
			want:  service.Target{Path: []string{"watershed"}, Name: PermissionGetMap},
		},
		{
			name:  "map from unqualified layer",
			path:  "/mywms/geoserver/wms",
			query: url.Values{"request": {"GetMap"}, "LAYERS": {"watershed"}},
			want:  service.Target{Path: []string{"watershed"}, Name: PermissionGetMap},
		},
		{
			name:  "feature info",
			path:  "/mywms/geoserver/wms",
			query: url.Values{"request": {"GETFEATUREINFO"}, "layers": {"forests:trees"}},
			want:  service.Target{Path: []string{"forests"}, Name: PermissionGetFeatureInfo},
		},
		{
			name:  "map without layers",
			path:  "/mywms/geoserver/wms",
			query: url.Values{"request": {"GetMap"}},
			want:  service.Target{Name: service.NameUnknown},
		},
		{
			name:  "unknown operation keeps the layer target",
			path:  "/mywms/geoserver/wms",
			query: url.Values{"request": {"GetCoffee"}, "layers": {"watershed:BV"}},
			want:  service.Target{Path: []string{"watershed"}, Name: service.NameUnknown},
		},
		{
			name: "no request parameter",
			path: "/mywms/geoserver/wms",
			want: service.Target{Name: service.NameUnknown},
		},
	}

	typ, ok := service.Lookup("wms")
	assert.True(t, ok)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := typ.Parser.Parse(&service.Request{Method: "GET", Path: tt.path, Query: tt.query})
			assert.Equal(t, tt.want, got)
		})
	}
}
