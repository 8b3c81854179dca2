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

// Package thredds provides the THREDDS data server service type.
// THREDDS exposes one catalog under several access protocols, so the
// path carries a protocol marker and the catalog path follows it.
package thredds

import (
	"strings"

	"github.com/DACCS-Climate/Magpie/pkg/resource"
	"github.com/DACCS-Climate/Magpie/pkg/service"
)

const (
	PermissionRead  = "read"
	PermissionWrite = "write"
)

// markers in lookup order. fileServer wins when a path carries more
// than one.
var markers = []string{"fileServer", "dodsC", "catalog"}

func init() {
	service.Register(service.Type{
		Name:        "thredds",
		Permissions: []string{PermissionRead, PermissionWrite},
		ChildTypes: map[resource.Type][]resource.Type{
			resource.TypeService:   {resource.TypeDirectory},
			resource.TypeDirectory: {resource.TypeDirectory, resource.TypeFile},
		},
		Parser: parser{},
	})
}

type parser struct{}

// Parse locates the protocol marker and returns the catalog path
// after it. OPeNDAP appends .html to dataset forms, so that suffix
// is stripped on the dodsC branch. THREDDS access is always a read.
func (parser) Parse(r *service.Request) service.Target {
	segs := r.Segments()
	for _, marker := range markers {
		idx := index(segs, marker)
		if idx < 0 {
			continue
		}
		path := segs[idx+1:]
		if marker == "dodsC" && len(path) > 0 {
			path[len(path)-1] = strings.TrimSuffix(path[len(path)-1], ".html")
		}
		return service.Target{Path: path, Name: PermissionRead}
	}
	return service.Target{Name: service.NameUnknown}
}

func index(segs []string, name string) int {
	for i, s := range segs {
		if s == name {
			return i
		}
	}
	return -1
}
