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

func (s *svc) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.admin.ListServices(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	out := make([]response.Body, 0, len(services))
	for _, svc := range services {
		out = append(out, serviceBody(svc))
	}
	response.Write(w, r, http.StatusOK, "services listed", response.Body{"services": out})
}

func (s *svc) createService(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"service_name"`
		Type string `json:"service_type"`
		URL  string `json:"service_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, r, errtypes.BadRequest("invalid request body: "+err.Error()))
		return
	}
	svc, err := s.admin.CreateService(r.Context(), req.Name, req.Type, req.URL)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusCreated, "service created", response.Body{"service": serviceBody(svc)})
}

func (s *svc) getService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.admin.GetService(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "service found", response.Body{"service": serviceBody(svc)})
}

func (s *svc) deleteService(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteService(r.Context(), chi.URLParam(r, "name")); err != nil {
		response.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *svc) getServiceResources(w http.ResponseWriter, r *http.Request) {
	svc, err := s.admin.GetService(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	tree, err := s.admin.GetResourceTree(r.Context(), svc.ID)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	out := make([]response.Body, 0, len(tree))
	for _, res := range tree {
		out = append(out, resourceBody(res))
	}
	response.Write(w, r, http.StatusOK, "resources listed", response.Body{
		"service":   serviceBody(svc),
		"resources": out,
	})
}
