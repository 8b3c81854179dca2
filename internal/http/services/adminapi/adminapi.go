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

// Package adminapi exposes the administration operations as a JSON
// REST API: services, resource trees, users, groups and permission
// entries. Every route requires an administrator caller.
package adminapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/DACCS-Climate/Magpie/internal/http/services/response"
	"github.com/DACCS-Climate/Magpie/pkg/admin"
	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/identity"
	"github.com/DACCS-Climate/Magpie/pkg/resource"
	"github.com/DACCS-Climate/Magpie/pkg/rhttp/global"
	"github.com/DACCS-Climate/Magpie/pkg/utils/cfg"
)

func init() {
	global.Register("adminapi", New)
}

type config struct {
	Prefix string                 `mapstructure:"prefix"`
	Stores map[string]interface{} `mapstructure:"stores"`
}

func (c *config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "adminapi"
	}
}

type svc struct {
	c      *config
	router chi.Router
	admin  *admin.Admin
}

// New returns the admin API service.
func New(m map[string]interface{}, log *zerolog.Logger) (global.Service, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, err
	}

	a, err := admin.NewFromConfig(c.Stores)
	if err != nil {
		return nil, err
	}

	s := &svc{
		c:      &c,
		router: chi.NewRouter(),
		admin:  a,
	}
	s.routerInit()
	return s, nil
}

func (s *svc) routerInit() {
	s.router.Use(s.requireAdmin)

	s.router.Route("/services", func(r chi.Router) {
		r.Get("/", s.listServices)
		r.Post("/", s.createService)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.getService)
			r.Delete("/", s.deleteService)
			r.Get("/resources", s.getServiceResources)
		})
	})

	s.router.Route("/resources", func(r chi.Router) {
		r.Post("/", s.createResource)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getResource)
			r.Patch("/", s.updateResource)
			r.Delete("/", s.deleteResource)
			r.Get("/permissions", s.listResourcePermissions)
			r.Put("/owner", s.setResourceOwner)
		})
	})

	s.router.Route("/users", func(r chi.Router) {
		r.Get("/", s.listUsers)
		r.Post("/", s.createUser)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.getUser)
			r.Delete("/", s.deleteUser)
			r.Get("/groups", s.listUserGroups)
			r.Post("/groups", s.joinGroup)
			r.Delete("/groups/{group}", s.leaveGroup)
			r.Get("/permissions", s.listUserPermissions)
			r.Post("/permissions", s.setUserPermission)
			r.Delete("/permissions", s.clearUserPermission)
			r.Get("/identities", s.listIdentities)
			r.Post("/identities", s.linkIdentity)
			r.Delete("/identities", s.unlinkIdentity)
		})
	})

	s.router.Route("/groups", func(r chi.Router) {
		r.Get("/", s.listGroups)
		r.Post("/", s.createGroup)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.getGroup)
			r.Delete("/", s.deleteGroup)
			r.Get("/members", s.listMembers)
			r.Get("/permissions", s.listGroupPermissions)
			r.Post("/permissions", s.setGroupPermission)
			r.Delete("/permissions", s.clearGroupPermission)
		})
	})
}

// requireAdmin refuses every request whose caller is not a member of
// the administrators group. The auth interceptor already rejected
// requests without a valid token.
func (s *svc) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := identity.ContextGetUser(r.Context())
		if !ok {
			response.WriteError(w, r, errtypes.UserRequired("no user in context"))
			return
		}
		p, err := s.admin.ResolvePrincipal(r.Context(), u.Name)
		if err != nil {
			response.WriteError(w, r, err)
			return
		}
		if !p.Admin {
			response.WriteError(w, r, errtypes.PermissionDenied("administrator rights required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *svc) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Unset the raw path, chi fails to match percent encoded
		// segments otherwise.
		r.URL.RawPath = ""
		s.router.ServeHTTP(w, r)
	})
}

func (s *svc) Prefix() string { return s.c.Prefix }

func (s *svc) Close() error { return nil }

func (s *svc) Unprotected() []string { return nil }

// pathID parses the {id} route parameter.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errtypes.BadRequest("invalid resource id: " + raw)
	}
	return id, nil
}

// queryID parses a numeric id query parameter.
func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errtypes.BadRequest("invalid " + name + " parameter: " + raw)
	}
	return id, nil
}

func serviceBody(svc *resource.Service) response.Body {
	return response.Body{
		"resource_id":  svc.ID,
		"service_name": svc.Name,
		"service_type": svc.ServiceType,
		"service_url":  svc.URL,
	}
}

func resourceBody(res *resource.Resource) response.Body {
	b := response.Body{
		"resource_id":     res.ID,
		"resource_name":   res.Name,
		"resource_type":   res.Type,
		"parent_id":       res.ParentID,
		"root_service_id": res.RootServiceID,
	}
	if res.OwnerUserID != 0 {
		b["owner_user_id"] = res.OwnerUserID
	}
	if res.OwnerGroupID != 0 {
		b["owner_group_id"] = res.OwnerGroupID
	}
	return b
}
