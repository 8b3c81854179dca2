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

package service

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DACCS-Climate/Magpie/pkg/resource"
)

func TestNormalizeName(t *testing.T) {
	candidates := []string{"get_capabilities", "describe_process", "execute"}

	tests := []struct {
		raw  string
		want string
	}{
		{"GetCapabilities", "get_capabilities"},
		{"GETCAPABILITIES", "get_capabilities"},
		{"get_capabilities", "get_capabilities"},
		{"get-capabilities", "get_capabilities"},
		{"describeProcess", "describe_process"},
		{"Execute", "execute"},
		{"GetTea", NameUnknown},
		{"", NameUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.raw, candidates))
		})
	}
}

func TestRegistry(t *testing.T) {
	typ := Type{
		Name:        "test-type",
		Permissions: []string{"read"},
		ChildTypes: map[resource.Type][]resource.Type{
			resource.TypeService: {resource.TypeRoute},
		},
	}
	Register(typ)

	got, ok := Lookup("test-type")
	assert.True(t, ok)
	assert.Equal(t, "test-type", got.Name)

	_, ok = Lookup("no-such-type")
	assert.False(t, ok)

	assert.Contains(t, Types(), "test-type")
}

func TestTypePredicates(t *testing.T) {
	typ := Type{
		Name:        "t",
		Permissions: []string{"read", "write"},
		ChildTypes: map[resource.Type][]resource.Type{
			resource.TypeService:   {resource.TypeDirectory},
			resource.TypeDirectory: {resource.TypeDirectory, resource.TypeFile},
		},
	}

	assert.True(t, typ.HasPermission("read"))
	assert.False(t, typ.HasPermission("execute"))
	assert.False(t, typ.HasPermission(NameUnknown))

	assert.True(t, typ.ChildAllowed(resource.TypeService, resource.TypeDirectory))
	assert.True(t, typ.ChildAllowed(resource.TypeDirectory, resource.TypeFile))
	assert.False(t, typ.ChildAllowed(resource.TypeService, resource.TypeFile))
	assert.False(t, typ.ChildAllowed(resource.TypeFile, resource.TypeFile))
}

func TestRequestParam(t *testing.T) {
	r := &Request{Query: url.Values{"REQUEST": {"GetMap"}, "Layers": {"ws:layer"}}}

	assert.Equal(t, "GetMap", r.Param("request"))
	assert.Equal(t, "ws:layer", r.Param("layers"))
	assert.Equal(t, "", r.Param("version"))
}

func TestRequestSegments(t *testing.T) {
	r := &Request{Path: "//svc/a//b/"}
	assert.Equal(t, []string{"svc", "a", "b"}, r.Segments())
}
