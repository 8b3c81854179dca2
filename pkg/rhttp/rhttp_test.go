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

package rhttp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DACCS-Climate/Magpie/pkg/rhttp/global"
)

// stubService mounts under a prefix and echoes the path it was called
// with, so tests can assert the router stripped the prefix.
type stubService struct {
	prefix      string
	unprotected []string
}

func (s stubService) Prefix() string        { return s.prefix }
func (s stubService) Close() error          { return nil }
func (s stubService) Unprotected() []string { return s.unprotected }

func (s stubService) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-served-by", s.prefix)
		_, _ = w.Write([]byte(r.URL.Path))
	})
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(
		WithServices(map[string]global.Service{
			"adminapi": stubService{prefix: "adminapi"},
			"authapi":  stubService{prefix: "authapi", unprotected: []string{"/signin", "/session"}},
			"owsproxy": stubService{prefix: "ows"},
		}),
		WithMiddlewares([]global.Middleware{
			func(h http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("x-wrapped", "yes")
					h.ServeHTTP(w, r)
				})
			},
		}),
	)
	require.NoError(t, err)
	return s
}

func TestRoutingByPrefix(t *testing.T) {
	s := newTestServer(t)
	h, err := s.getHandler()
	require.NoError(t, err)

	tests := map[string]struct {
		url      string
		status   int
		servedBy string
		subPath  string
	}{
		"bare prefix": {
			url:      "/adminapi",
			status:   http.StatusOK,
			servedBy: "adminapi",
			subPath:  "",
		},
		"nested path": {
			url:      "/adminapi/users/alice",
			status:   http.StatusOK,
			servedBy: "adminapi",
			subPath:  "/users/alice",
		},
		"trailing slash": {
			url:      "/authapi/signin/",
			status:   http.StatusOK,
			servedBy: "authapi",
			subPath:  "/signin",
		},
		"verify endpoint": {
			url:      "/ows/verify",
			status:   http.StatusOK,
			servedBy: "ows",
			subPath:  "/verify",
		},
		"prefixes match whole segments": {
			url:    "/owsextra",
			status: http.StatusNotFound,
		},
		"unknown service": {
			url:    "/nope",
			status: http.StatusNotFound,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.url, nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "yes", w.Header().Get("x-wrapped"), "middleware must wrap every route")
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.servedBy, w.Header().Get("x-served-by"))
				assert.Equal(t, tt.subPath, w.Body.String(), "prefix must be stripped before dispatch")
			}
		})
	}
}

func TestUnprotectedAnchoredUnderPrefix(t *testing.T) {
	s := newTestServer(t)
	assert.ElementsMatch(t, []string{"/authapi/signin", "/authapi/session"}, s.unprotected)
}

func TestURLHasPrefix(t *testing.T) {
	tests := map[string]struct {
		url    string
		prefix string
		want   bool
	}{
		"root catches all": {
			url:    "/authapi/session",
			prefix: "/",
			want:   true,
		},
		"empty prefix": {
			url:    "/adminapi",
			prefix: "",
			want:   true,
		},
		"whole segments only": {
			url:    "/owsextra/verify",
			prefix: "/ows",
			want:   false,
		},
		"prefix longer than url": {
			url:    "/ows",
			prefix: "/ows/verify",
			want:   false,
		},
		"trailing slashes": {
			url:    "/adminapi/users/",
			prefix: "/adminapi/",
			want:   true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, urlHasPrefix(tt.url, tt.prefix))
		})
	}
}
