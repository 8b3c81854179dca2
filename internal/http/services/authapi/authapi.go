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

// Package authapi handles sessions: sign-in against the internal
// password store, sign-out, the whoami endpoint and the external
// identity links of the signed-in user.
package authapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/DACCS-Climate/Magpie/internal/http/interceptors/auth"
	"github.com/DACCS-Climate/Magpie/internal/http/services/response"
	"github.com/DACCS-Climate/Magpie/pkg/admin"
	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/identity"
	"github.com/DACCS-Climate/Magpie/pkg/rhttp/global"
	"github.com/DACCS-Climate/Magpie/pkg/token"
	tokenmgr "github.com/DACCS-Climate/Magpie/pkg/token/manager/registry"
	"github.com/DACCS-Climate/Magpie/pkg/utils/cfg"
)

func init() {
	global.Register("authapi", New)
}

type config struct {
	Prefix        string                            `mapstructure:"prefix"`
	TokenManager  string                            `mapstructure:"token_manager"`
	TokenManagers map[string]map[string]interface{} `mapstructure:"token_managers"`
	Stores        map[string]interface{}            `mapstructure:"stores"`
}

func (c *config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "authapi"
	}
	if c.TokenManager == "" {
		c.TokenManager = "jwt"
	}
}

type svc struct {
	c      *config
	router chi.Router
	admin  *admin.Admin
	tokens token.Manager
}

// New returns the session service.
func New(m map[string]interface{}, log *zerolog.Logger) (global.Service, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, err
	}

	a, err := admin.NewFromConfig(c.Stores)
	if err != nil {
		return nil, err
	}

	f, ok := tokenmgr.NewFuncs[c.TokenManager]
	if !ok {
		return nil, errtypes.NotFound("token manager not found: " + c.TokenManager)
	}
	tokens, err := f(c.TokenManagers[c.TokenManager])
	if err != nil {
		return nil, err
	}

	s := &svc{
		c:      &c,
		router: chi.NewRouter(),
		admin:  a,
		tokens: tokens,
	}
	s.router.Post("/signin", s.signin)
	s.router.Get("/signout", s.signout)
	s.router.Get("/session", s.session)
	s.router.Get("/identities", s.identities)
	return s, nil
}

func (s *svc) Handler() http.Handler { return s.router }

func (s *svc) Prefix() string { return s.c.Prefix }

func (s *svc) Close() error { return nil }

func (s *svc) Unprotected() []string { return []string{"/signin", "/signout", "/session"} }

// signin verifies the credentials against the internal password store
// and hands out a session token, both in the body and as a cookie for
// browser clients. Credentials arrive as JSON or as a classic form.
func (s *svc) signin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Name     string `json:"user_name"`
		Password string `json:"password"`
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		creds.Name = r.PostFormValue("user_name")
		creds.Password = r.PostFormValue("password")
	} else if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		response.WriteError(w, r, errtypes.BadRequest("invalid request body: "+err.Error()))
		return
	}

	u, err := s.admin.VerifyPassword(r.Context(), creds.Name, creds.Password)
	if err != nil {
		if _, ok := err.(errtypes.IsNotFound); ok {
			// Do not leak which of name and password was wrong.
			err = errtypes.InvalidCredentials(creds.Name)
		}
		response.WriteError(w, r, err)
		return
	}

	tkn, err := s.tokens.MintToken(r.Context(), u)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    tkn,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(token.TokenHeader, tkn)
	response.Write(w, r, http.StatusOK, "signin successful", response.Body{
		"user":         u,
		"access_token": tkn,
	})
}

// signout drops the session cookie. The token itself stays valid until
// it expires, sign-out is a client side affair.
func (s *svc) signout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	response.Write(w, r, http.StatusOK, "signout successful", nil)
}

// session reports who the caller is. Requests without a valid token
// are anonymous, not an error.
func (s *svc) session(w http.ResponseWriter, r *http.Request) {
	u, ok := identity.ContextGetUser(r.Context())
	if !ok {
		response.Write(w, r, http.StatusOK, "session status", response.Body{"authenticated": false})
		return
	}
	groups, err := s.admin.ListGroupsForUser(r.Context(), u.Name)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	response.Write(w, r, http.StatusOK, "session status", response.Body{
		"authenticated": true,
		"user":          u,
		"group_names":   names,
	})
}

// identities lists the external identity links of the signed-in user.
func (s *svc) identities(w http.ResponseWriter, r *http.Request) {
	u, ok := identity.ContextGetUser(r.Context())
	if !ok {
		response.WriteError(w, r, errtypes.UserRequired("no user in context"))
		return
	}
	ids, err := s.admin.ListIdentities(r.Context(), u.Name)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Write(w, r, http.StatusOK, "identities listed", response.Body{"identities": ids})
}
