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
	"github.com/DACCS-Climate/Magpie/pkg/permission"
)

func (s *svc) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.admin.ListUsers(r.Context())
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "users listed", response.Body{"users": users})
}

func (s *svc) createUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"user_name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Group    string `json:"group_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, r, errtypes.BadRequest("invalid request body: "+err.Error()))
		return
	}
	u, err := s.admin.CreateUser(r.Context(), req.Name, req.Email, req.Password, req.Group)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusCreated, "user created", response.Body{"user": u})
}

func (s *svc) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.admin.GetUser(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "user found", response.Body{"user": u})
}

func (s *svc) deleteUser(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	if err := s.admin.DeleteUser(r.Context(), chi.URLParam(r, "name"), force); err != nil {
		response.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *svc) listUserGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.admin.ListGroupsForUser(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "groups listed", response.Body{"groups": groups})
}

func (s *svc) joinGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Group string `json:"group_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, r, errtypes.BadRequest("invalid request body: "+err.Error()))
		return
	}
	if err := s.admin.AddMember(r.Context(), chi.URLParam(r, "name"), req.Group); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusCreated, "member added", nil)
}

func (s *svc) leaveGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.RemoveMember(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "group")); err != nil {
		response.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *svc) listUserPermissions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.admin.ListPermissionsForUser(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "permissions listed", response.Body{"permissions": entries})
}

// permissionRequest is the body of the set and clear permission calls.
// Access and scope default to an allow on the exact resource.
type permissionRequest struct {
	ResourceID int64  `json:"resource_id"`
	Name       string `json:"name"`
	Access     string `json:"access"`
	Scope      string `json:"scope"`
}

func (p *permissionRequest) toEntry() *permission.Entry {
	e := &permission.Entry{
		ResourceID: p.ResourceID,
		Set: permission.Set{
			Name:   p.Name,
			Access: permission.Access(p.Access),
			Scope:  permission.Scope(p.Scope),
		},
	}
	if e.Access == "" {
		e.Access = permission.Allow
	}
	if e.Scope == "" {
		e.Scope = permission.Match
	}
	return e
}

func (s *svc) setUserPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, r, errtypes.BadRequest("invalid request body: "+err.Error()))
		return
	}
	u, err := s.admin.GetUser(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	e := req.toEntry()
	e.UserID = u.ID
	stored, err := s.admin.SetPermission(r.Context(), e)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "permission set", response.Body{"permission": stored})
}

func (s *svc) clearUserPermission(w http.ResponseWriter, r *http.Request) {
	u, err := s.admin.GetUser(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	e, err := entryFromQuery(r)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	e.UserID = u.ID
	if err := s.admin.ClearPermission(r.Context(), e); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "permission cleared", nil)
}

// entryFromQuery reads the resource_id and name query parameters
// identifying the entry to clear.
func entryFromQuery(r *http.Request) (*permission.Entry, error) {
	id, err := queryID(r, "resource_id")
	if err != nil {
		return nil, err
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		return nil, errtypes.BadRequest("missing name parameter")
	}
	return &permission.Entry{ResourceID: id, Set: permission.Set{Name: name}}, nil
}

func (s *svc) listIdentities(w http.ResponseWriter, r *http.Request) {
	ids, err := s.admin.ListIdentities(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "identities listed", response.Body{"identities": ids})
}

func (s *svc) linkIdentity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider     string `json:"provider_name"`
		ExternalID   string `json:"external_id"`
		ExternalName string `json:"external_user_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, r, errtypes.BadRequest("invalid request body: "+err.Error()))
		return
	}
	if err := s.admin.LinkIdentity(r.Context(), req.Provider, req.ExternalID, req.ExternalName, chi.URLParam(r, "name")); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusCreated, "identity linked", nil)
}

func (s *svc) unlinkIdentity(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider_name")
	externalID := r.URL.Query().Get("external_id")
	if provider == "" || externalID == "" {
		response.WriteError(w, r, errtypes.BadRequest("missing provider_name or external_id parameter"))
		return
	}
	if err := s.admin.UnlinkIdentity(r.Context(), provider, externalID); err != nil {
		response.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
