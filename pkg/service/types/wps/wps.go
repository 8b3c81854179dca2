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

// Package wps provides the OGC Web Processing Service type. Requests
// name an operation in the request parameter, either on the query
// string or as the root element of a POST XML body, and an optional
// process identifier.
package wps

import (
	"net/http"

	"github.com/beevik/etree"

	"github.com/DACCS-Climate/Magpie/pkg/resource"
	"github.com/DACCS-Climate/Magpie/pkg/service"
)

const (
	PermissionGetCapabilities = "get_capabilities"
	PermissionDescribeProcess = "describe_process"
	PermissionExecute         = "execute"
)

var permissions = []string{
	PermissionGetCapabilities,
	PermissionDescribeProcess,
	PermissionExecute,
}

func init() {
	service.Register(service.Type{
		Name:        "wps",
		Permissions: permissions,
		ChildTypes: map[resource.Type][]resource.Type{
			resource.TypeService: {resource.TypeProcess},
		},
		Parser: parser{},
	})
}

type parser struct{}

func (parser) Parse(r *service.Request) service.Target {
	req := r.Param("request")
	identifier := r.Param("identifier")
	if req == "" && r.Method == http.MethodPost {
		req, identifier = parseBody(r.Body)
	}

	name := service.NormalizeName(req, permissions)
	// GetCapabilities addresses the service as a whole, whatever
	// else the request carries.
	if name == PermissionGetCapabilities || identifier == "" {
		return service.Target{Name: name}
	}
	return service.Target{Path: []string{identifier}, Name: name}
}

// parseBody extracts the operation and process identifier from a POST
// XML body. The root element names the operation and the first
// Identifier element anywhere below it names the process.
func parseBody(body []byte) (req, identifier string) {
	if len(body) == 0 {
		return "", ""
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return "", ""
	}
	root := doc.Root()
	if root == nil {
		return "", ""
	}
	return root.Tag, findIdentifier(root)
}

func findIdentifier(e *etree.Element) string {
	for _, child := range e.ChildElements() {
		if child.Tag == "Identifier" {
			return child.Text()
		}
		if id := findIdentifier(child); id != "" {
			return id
		}
	}
	return ""
}
