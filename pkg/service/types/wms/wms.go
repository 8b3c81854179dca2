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

// Package wms provides the OGC Web Map Service type.
package wms

import (
	"github.com/DACCS-Climate/Magpie/pkg/resource"
	"github.com/DACCS-Climate/Magpie/pkg/service"
	"github.com/DACCS-Climate/Magpie/pkg/service/types/geoserver"
)

const (
	PermissionGetCapabilities  = "get_capabilities"
	PermissionGetMap           = "get_map"
	PermissionGetFeatureInfo   = "get_feature_info"
	PermissionGetLegendGraphic = "get_legend_graphic"
	PermissionGetMetadata      = "get_metadata"
)

var permissions = []string{
	PermissionGetCapabilities,
	PermissionGetMap,
	PermissionGetFeatureInfo,
	PermissionGetLegendGraphic,
	PermissionGetMetadata,
}

func init() {
	service.Register(service.Type{
		Name:        "wms",
		Permissions: permissions,
		ChildTypes: map[resource.Type][]resource.Type{
			resource.TypeService: {resource.TypeWorkspace},
		},
		Parser: geoserver.Parser{
			Marker:          "wms",
			LayerParam:      "layers",
			Permissions:     permissions,
			GetCapabilities: PermissionGetCapabilities,
		},
	})
}
