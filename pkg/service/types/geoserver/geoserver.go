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

// Package geoserver implements the request parsing shared by the WMS
// and WFS service types. Both front geoserver instances that scope
// layers by workspace, and both encode the workspace the same way:
// in the path for GetCapabilities and as the prefix of the layer
// parameter for everything else.
package geoserver

import (
	"strings"

	"github.com/DACCS-Climate/Magpie/pkg/service"
)

// Parser parses WMS and WFS style requests. Marker is the path
// segment ending the workspace prefix, wms or wfs, and LayerParam the
// query parameter carrying workspace qualified layer names.
type Parser struct {
	Marker          string
	LayerParam      string
	Permissions     []string
	GetCapabilities string
}

// Parse maps a request onto a workspace child of the service root.
//
// GetCapabilities takes the workspace from the path: the segment
// before the marker, unless that segment is geoserver or the service
// name itself, in which case the request addresses every workspace
// and thus the service root. Other operations take the workspace
// from the layer parameter, cutting at the first colon.
func (p Parser) Parse(r *service.Request) service.Target {
	name := service.NormalizeName(r.Param("request"), p.Permissions)
	if name == p.GetCapabilities {
		return service.Target{Path: p.pathWorkspace(r), Name: name}
	}

	layer := r.Param(p.LayerParam)
	if layer == "" {
		return service.Target{Name: service.NameUnknown}
	}
	workspace, _, _ := strings.Cut(layer, ":")
	return service.Target{Path: []string{workspace}, Name: name}
}

func (p Parser) pathWorkspace(r *service.Request) []string {
	segs := r.Segments()
	for i, s := range segs {
		if !strings.EqualFold(s, p.Marker) {
			continue
		}
		// No segment between the service name and the marker, or
		// only the geoserver mount point: all workspaces.
		if i < 2 || segs[i-1] == "geoserver" {
			return nil
		}
		return []string{segs[i-1]}
	}
	return nil
}
