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

// Package api provides the generic HTTP service type. Every path
// segment below the service root is a route resource and the request
// method decides between read and write.
package api

import (
	"net/http"

	"github.com/DACCS-Climate/Magpie/pkg/resource"
	"github.com/DACCS-Climate/Magpie/pkg/service"
)

const (
	// PermissionRead covers HEAD and GET requests.
	PermissionRead = "read"
	// PermissionWrite covers every other method.
	PermissionWrite = "write"
)

func init() {
	service.Register(service.Type{
		Name:        "api",
		Permissions: []string{PermissionRead, PermissionWrite},
		ChildTypes: map[resource.Type][]resource.Type{
			resource.TypeService: {resource.TypeRoute},
			resource.TypeRoute:   {resource.TypeRoute},
		},
		Parser: parser{},
	})
}

type parser struct{}

func (parser) Parse(r *service.Request) service.Target {
	segs := r.Segments()
	t := service.Target{Name: PermissionWrite}
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		t.Name = PermissionRead
	}
	if len(segs) > 1 {
		t.Path = segs[1:]
	}
	return t
}
