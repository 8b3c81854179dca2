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

// Package owsproxy is the gateway call-in. A proxy forwards the
// method, path, query and body of a request it intends to serve, as
// /{service}/{path...} below the service prefix, and gets back an
// allow or deny verdict: 200 with {"allow": true} or 403 with the
// deny reason. Requests without a token resolve as anonymous.
package owsproxy

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/DACCS-Climate/Magpie/internal/http/services/response"
	"github.com/DACCS-Climate/Magpie/pkg/access"
	"github.com/DACCS-Climate/Magpie/pkg/admin"
	"github.com/DACCS-Climate/Magpie/pkg/appctx"
	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/identity"
	"github.com/DACCS-Climate/Magpie/pkg/rhttp/global"
	"github.com/DACCS-Climate/Magpie/pkg/service"
	"github.com/DACCS-Climate/Magpie/pkg/utils/cfg"
)

func init() {
	global.Register("owsproxy", New)
}

// MethodHeader lets the proxy carry the method of the original
// request when the verification subrequest uses a different one,
// nginx auth_request always issues GETs for example.
const MethodHeader = "x-original-method"

// maxBodySize bounds the request body read for parsing. WPS execute
// documents stay well below this.
const maxBodySize = 1 << 20

type config struct {
	Prefix string                 `mapstructure:"prefix"`
	Stores map[string]interface{} `mapstructure:"stores"`
}

func (c *config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "owsproxy"
	}
}

type svc struct {
	c     *config
	admin *admin.Admin
}

// New returns the gateway verification service.
func New(m map[string]interface{}, log *zerolog.Logger) (global.Service, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, err
	}
	a, err := admin.NewFromConfig(c.Stores)
	if err != nil {
		return nil, err
	}
	return &svc{c: &c, admin: a}, nil
}

func (s *svc) Handler() http.Handler { return http.HandlerFunc(s.verify) }

func (s *svc) Prefix() string { return s.c.Prefix }

func (s *svc) Close() error { return nil }

// Unprotected opens every path: anonymous requests are resolved, not
// rejected. A valid token still puts the user in the context.
func (s *svc) Unprotected() []string { return []string{"/"} }

func (s *svc) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	name, rest := splitService(r.URL.Path)
	if name == "" {
		response.WriteError(w, r, errtypes.BadRequest("missing service name in path"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		response.WriteError(w, r, errtypes.BadRequest("error reading body: "+err.Error()))
		return
	}

	method := r.Header.Get(MethodHeader)
	if method == "" {
		method = r.Method
	}

	principal, err := s.principal(ctx)
	if err != nil {
		appctx.GetLogger(ctx).Error().Err(err).Msg("owsproxy: error resolving principal")
		writeDecision(w, r, access.Decision{Allow: false, Reason: access.ReasonStoreError})
		return
	}

	req := &service.Request{
		Method: strings.ToUpper(method),
		Path:   "/" + name + "/" + rest,
		Query:  r.URL.Query(),
		Body:   body,
	}
	writeDecision(w, r, s.admin.ResolveAccess(ctx, principal, name, req))
}

// principal expands the context user, falling back to the anonymous
// principal when there is none or the token names a user that no
// longer exists.
func (s *svc) principal(ctx context.Context) (*identity.PrincipalSet, error) {
	u, ok := identity.ContextGetUser(ctx)
	if !ok {
		return s.admin.ResolveAnonymous(ctx)
	}
	p, err := s.admin.ResolvePrincipal(ctx, u.Name)
	if err != nil {
		if _, gone := err.(errtypes.IsNotFound); gone {
			return s.admin.ResolveAnonymous(ctx)
		}
		return nil, err
	}
	return p, nil
}

func splitService(p string) (string, string) {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i], p[i+1:]
	}
	return p, ""
}

func writeDecision(w http.ResponseWriter, r *http.Request, d access.Decision) {
	body := response.Body{"allow": d.Allow, "reason": d.Reason}
	if d.Allow {
		response.Write(w, r, http.StatusOK, "access allowed", body)
		return
	}
	response.Write(w, r, http.StatusForbidden, "access denied", body)
}
