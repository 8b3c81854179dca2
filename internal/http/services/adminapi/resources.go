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

package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/DACCS-Climate/Magpie/internal/http/services/response"
	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/resource"
)

func (s *svc) createResource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParentID int64  `json:"parent_id"`
		Name     string `json:"resource_name"`
		Type     string `json:"resource_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, r, errtypes.BadRequest("invalid request body: "+err.Error()))
		return
	}
	res, err := s.admin.CreateResource(r.Context(), req.ParentID, req.Name, resource.Type(req.Type))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusCreated, "resource created", response.Body{"resource": resourceBody(res)})
}

func (s *svc) getResource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	res, err := s.admin.GetResource(r.Context(), id)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "resource found", response.Body{"resource": resourceBody(res)})
}

func (s *svc) updateResource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	var req struct {
		Name     string `json:"resource_name"`
		ParentID int64  `json:"parent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, r, errtypes.BadRequest("invalid request body: "+err.Error()))
		return
	}
	res, err := s.admin.UpdateResource(r.Context(), id, req.Name, req.ParentID)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "resource updated", response.Body{"resource": resourceBody(res)})
}

func (s *svc) deleteResource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := s.admin.DeleteResource(r.Context(), id); err != nil {
		response.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *svc) listResourcePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	entries, err := s.admin.ListPermissionsForResource(r.Context(), id)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "permissions listed", response.Body{"permissions": entries})
}

func (s *svc) setResourceOwner(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	var req struct {
		OwnerUserID  int64 `json:"owner_user_id"`
		OwnerGroupID int64 `json:"owner_group_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, r, errtypes.BadRequest("invalid request body: "+err.Error()))
		return
	}
	if err := s.admin.SetResourceOwner(r.Context(), id, req.OwnerUserID, req.OwnerGroupID); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "owner set", nil)
}
