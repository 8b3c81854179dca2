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

// Package auth verifies the access token of incoming requests and
// stores the authenticated user in the request context. Requests
// without a valid token only pass on unprotected endpoints.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/DACCS-Climate/Magpie/pkg/appctx"
	"github.com/DACCS-Climate/Magpie/pkg/identity"
	"github.com/DACCS-Climate/Magpie/pkg/rhttp/global"
	"github.com/DACCS-Climate/Magpie/pkg/token"
	tokenmgr "github.com/DACCS-Climate/Magpie/pkg/token/manager/registry"
	"github.com/DACCS-Climate/Magpie/pkg/utils"
	"github.com/DACCS-Climate/Magpie/pkg/utils/cfg"
)

// CookieName is the cookie the signin endpoint stores the token in so
// browser sessions authenticate without custom headers.
const CookieName = "magpie_token"

type config struct {
	// Realm is optional, the request host is used when not given.
	Realm         string                            `mapstructure:"realm"`
	TokenManager  string                            `mapstructure:"token_manager"`
	TokenManagers map[string]map[string]interface{} `mapstructure:"token_managers"`
}

func (c *config) ApplyDefaults() {
	if c.TokenManager == "" {
		c.TokenManager = "jwt"
	}
}

// New returns an auth middleware. Requests to the given unprotected
// path prefixes pass through unauthenticated.
func New(m map[string]interface{}, unprotected []string) (global.Middleware, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, errors.Wrap(err, "auth: error decoding config")
	}

	f, ok := tokenmgr.NewFuncs[c.TokenManager]
	if !ok {
		return nil, fmt.Errorf("auth: token manager not found: %s", c.TokenManager)
	}
	mgr, err := f(c.TokenManagers[c.TokenManager])
	if err != nil {
		return nil, errors.Wrap(err, "auth: error creating token manager")
	}

	chain := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := appctx.GetLogger(ctx)

			// OPTIONS requests need to pass for preflight requests
			if r.Method == http.MethodOptions {
				h.ServeHTTP(w, r)
				return
			}

			tkn := getToken(r)
			if tkn == "" {
				if utils.Skip(r.URL.Path, unprotected) {
					log.Debug().Msg("skipping auth check for: " + r.URL.Path)
					h.ServeHTTP(w, r)
					return
				}
				unauthorized(w, r, c.Realm)
				return
			}

			u, err := mgr.DismantleToken(ctx, tkn)
			if err != nil {
				log.Warn().Err(err).Msg("rejecting invalid token")
				if utils.Skip(r.URL.Path, unprotected) {
					h.ServeHTTP(w, r)
					return
				}
				unauthorized(w, r, c.Realm)
				return
			}

			ctx = identity.ContextSetUser(ctx, u)
			ctx = token.ContextSetToken(ctx, tkn)
			r = r.WithContext(ctx)
			h.ServeHTTP(w, r)
		})
	}
	return chain, nil
}

// getToken picks the access token from the places clients put it: the
// token header, a bearer Authorization header or the session cookie.
func getToken(r *http.Request) string {
	if tkn := r.Header.Get(token.TokenHeader); tkn != "" {
		return tkn
	}
	hdr := r.Header.Get("Authorization")
	if tkn := strings.TrimPrefix(hdr, "Bearer "); tkn != hdr && tkn != "" {
		return tkn
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, realm string) {
	if realm == "" {
		realm = r.Host
	}
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm=%q`, realm))
	w.WriteHeader(http.StatusUnauthorized)
}
