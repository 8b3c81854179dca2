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

	"github.com/go-chi/chi/v5"

	"github.com/DACCS-Climate/Magpie/internal/http/services/response"
	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
)

func (s *svc) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.admin.ListGroups(r.Context())
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "groups listed", response.Body{"groups": groups})
}

func (s *svc) createGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"group_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, r, errtypes.BadRequest("invalid request body: "+err.Error()))
		return
	}
	g, err := s.admin.CreateGroup(r.Context(), req.Name)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusCreated, "group created", response.Body{"group": g})
}

func (s *svc) getGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.admin.GetGroup(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "group found", response.Body{"group": g})
}

func (s *svc) deleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteGroup(r.Context(), chi.URLParam(r, "name")); err != nil {
		response.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *svc) listMembers(w http.ResponseWriter, r *http.Request) {
	users, err := s.admin.ListMembers(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "members listed", response.Body{"users": users})
}

func (s *svc) listGroupPermissions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.admin.ListPermissionsForGroup(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "permissions listed", response.Body{"permissions": entries})
}

func (s *svc) setGroupPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, r, errtypes.BadRequest("invalid request body: "+err.Error()))
		return
	}
	g, err := s.admin.GetGroup(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	e := req.toEntry()
	e.GroupID = g.ID
	stored, err := s.admin.SetPermission(r.Context(), e)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "permission set", response.Body{"permission": stored})
}

func (s *svc) clearGroupPermission(w http.ResponseWriter, r *http.Request) {
	g, err := s.admin.GetGroup(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	e, err := entryFromQuery(r)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	e.GroupID = g.ID
	if err := s.admin.ClearPermission(r.Context(), e); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "permission cleared", nil)
}
