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

package adminapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DACCS-Climate/Magpie/internal/http/services/adminapi"
	"github.com/DACCS-Climate/Magpie/pkg/admin"
	"github.com/DACCS-Climate/Magpie/pkg/identity"
	"github.com/DACCS-Climate/Magpie/pkg/sharedconf"

	_ "github.com/DACCS-Climate/Magpie/pkg/identity/manager/loader"
	_ "github.com/DACCS-Climate/Magpie/pkg/permission/manager/loader"
	_ "github.com/DACCS-Climate/Magpie/pkg/resource/manager/loader"
	_ "github.com/DACCS-Climate/Magpie/pkg/service/types/loader"
)

func storesConf(name string) map[string]interface{} {
	driver := func() map[string]interface{} {
		return map[string]interface{}{
			"driver": "memory",
			"drivers": map[string]interface{}{
				"memory": map[string]interface{}{"name": name},
			},
		}
	}
	return map[string]interface{}{
		"identity":   driver(),
		"resource":   driver(),
		"permission": driver(),
	}
}

// newAPI builds the service over fresh memory stores and returns a
// handler that serves requests as the given caller, plus a facade
// attached to the same stores for out of band setup.
func newAPI(t *testing.T) (func(caller *identity.User) http.Handler, *admin.Admin) {
	t.Helper()

	stores := storesConf(t.Name())
	log := zerolog.Nop()
	svc, err := adminapi.New(map[string]interface{}{"stores": stores}, &log)
	require.NoError(t, err)

	a, err := admin.NewFromConfig(stores)
	require.NoError(t, err)

	as := func(caller *identity.User) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if caller != nil {
				r = r.WithContext(identity.ContextSetUser(r.Context(), caller))
			}
			svc.Handler().ServeHTTP(w, r)
		})
	}
	return as, a
}

func newAdminCaller(t *testing.T, a *admin.Admin) *identity.User {
	t.Helper()
	u, err := a.CreateUser(context.Background(), "root", "root@example.org", "s3cret", sharedconf.GetAdminGroup())
	require.NoError(t, err)
	return u
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	}
	return w, env
}

func TestServiceEndpoints(t *testing.T) {
	as, a := newAPI(t)
	h := as(newAdminCaller(t, a))

	w, env := do(t, h, http.MethodPost, "/services", `{"service_name":"thredds","service_type":"thredds","service_url":"http://localhost:8080/thredds"}`)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	assert.EqualValues(t, http.StatusCreated, env["code"])
	svc := env["service"].(map[string]interface{})
	assert.Equal(t, "thredds", svc["service_name"])
	assert.Equal(t, "thredds", svc["service_type"])

	w, _ = do(t, h, http.MethodPost, "/services", `{"service_name":"thredds","service_type":"thredds","service_url":""}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = do(t, h, http.MethodPost, "/services", `{"service_name":"flyingcircus","service_type":"gopher","service_url":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(t, h, http.MethodGet, "/services?type=thredds", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env["services"], 1)

	w, env = do(t, h, http.MethodGet, "/services?type=wps", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env["services"])

	w, env = do(t, h, http.MethodGet, "/services/thredds", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "thredds", env["service"].(map[string]interface{})["service_name"])

	w, _ = do(t, h, http.MethodGet, "/services/nosuch", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, h, http.MethodDelete, "/services/thredds", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = do(t, h, http.MethodDelete, "/services/thredds", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResourceEndpoints(t *testing.T) {
	as, a := newAPI(t)
	h := as(newAdminCaller(t, a))

	_, env := do(t, h, http.MethodPost, "/services", `{"service_name":"birdhouse","service_type":"thredds","service_url":"http://localhost:8080/thredds"}`)
	rootID := int64(env["service"].(map[string]interface{})["resource_id"].(float64))

	w, env := do(t, h, http.MethodPost, "/resources", fmt.Sprintf(`{"parent_id":%d,"resource_name":"birdhouse-data","resource_type":"directory"}`, rootID))
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	dir := env["resource"].(map[string]interface{})
	dirID := int64(dir["resource_id"].(float64))
	assert.Equal(t, "directory", dir["resource_type"])

	w, _ = do(t, h, http.MethodPost, "/resources", fmt.Sprintf(`{"parent_id":%d,"resource_name":"ws","resource_type":"workspace"}`, rootID))
	assert.Equal(t, http.StatusBadRequest, w.Code, "workspace below a thredds root must be refused")

	w, env = do(t, h, http.MethodGet, fmt.Sprintf("/resources/%d", dirID), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "birdhouse-data", env["resource"].(map[string]interface{})["resource_name"])

	w, env = do(t, h, http.MethodPatch, fmt.Sprintf("/resources/%d", dirID), `{"resource_name":"renamed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "renamed", env["resource"].(map[string]interface{})["resource_name"])

	w, env = do(t, h, http.MethodGet, "/services/birdhouse/resources", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env["resources"], 2, "root plus one directory")

	w, _ = do(t, h, http.MethodDelete, fmt.Sprintf("/resources/%d", rootID), "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "tree roots go away with their service")

	w, _ = do(t, h, http.MethodDelete, fmt.Sprintf("/resources/%d", dirID), "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = do(t, h, http.MethodGet, "/resources/zzz", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserAndGroupEndpoints(t *testing.T) {
	as, a := newAPI(t)
	h := as(newAdminCaller(t, a))

	w, env := do(t, h, http.MethodPost, "/users", `{"user_name":"alice","email":"alice@example.org","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	assert.Equal(t, "alice", env["user"].(map[string]interface{})["user_name"])

	w, _ = do(t, h, http.MethodPost, "/users", `{"user_name":"alice","password":"x"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = do(t, h, http.MethodPost, "/groups", `{"group_name":"modellers"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "modellers", env["group"].(map[string]interface{})["group_name"])

	w, _ = do(t, h, http.MethodPost, "/users/alice/groups", `{"group_name":"modellers"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w, env = do(t, h, http.MethodGet, "/users/alice/groups", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env["groups"], 2, "users and modellers")

	w, env = do(t, h, http.MethodGet, "/groups/modellers/members", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env["users"], 1)

	w, _ = do(t, h, http.MethodDelete, "/users/alice/groups/modellers", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = do(t, h, http.MethodDelete, "/users/alice/groups/modellers", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, h, http.MethodDelete, "/groups/"+sharedconf.GetAdminGroup(), "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "well-known groups cannot be deleted")

	w, _ = do(t, h, http.MethodDelete, "/users/alice", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = do(t, h, http.MethodGet, "/users/alice", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPermissionEndpoints(t *testing.T) {
	as, a := newAPI(t)
	h := as(newAdminCaller(t, a))

	_, env := do(t, h, http.MethodPost, "/services", `{"service_name":"api","service_type":"api","service_url":"http://localhost:5000"}`)
	rootID := int64(env["service"].(map[string]interface{})["resource_id"].(float64))

	do(t, h, http.MethodPost, "/users", `{"user_name":"alice","password":"hunter22"}`)
	do(t, h, http.MethodPost, "/groups", `{"group_name":"modellers"}`)

	w, env := do(t, h, http.MethodPost, "/users/alice/permissions",
		fmt.Sprintf(`{"resource_id":%d,"name":"read","access":"allow","scope":"recursive"}`, rootID))
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	perm := env["permission"].(map[string]interface{})
	assert.Equal(t, "read", perm["name"])
	assert.Equal(t, "recursive", perm["scope"])

	w, _ = do(t, h, http.MethodPost, "/users/alice/permissions",
		fmt.Sprintf(`{"resource_id":%d,"name":"get_map"}`, rootID))
	assert.Equal(t, http.StatusBadRequest, w.Code, "get_map is not an api permission")

	w, env = do(t, h, http.MethodGet, "/users/alice/permissions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env["permissions"], 1)

	w, env = do(t, h, http.MethodPost, "/groups/modellers/permissions",
		fmt.Sprintf(`{"resource_id":%d,"name":"write","access":"deny","scope":"match"}`, rootID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "deny", env["permission"].(map[string]interface{})["access"])

	w, env = do(t, h, http.MethodGet, fmt.Sprintf("/resources/%d/permissions", rootID), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env["permissions"], 2)

	w, _ = do(t, h, http.MethodDelete, fmt.Sprintf("/users/alice/permissions?resource_id=%d&name=read", rootID), "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, h, http.MethodDelete, fmt.Sprintf("/users/alice/permissions?resource_id=%d&name=read", rootID), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, h, http.MethodDelete, "/users/alice/permissions?name=read", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdentityEndpoints(t *testing.T) {
	as, a := newAPI(t)
	h := as(newAdminCaller(t, a))

	do(t, h, http.MethodPost, "/users", `{"user_name":"alice","password":"hunter22"}`)

	w, _ := do(t, h, http.MethodPost, "/users/alice/identities", `{"provider_name":"github","external_id":"gh-42","external_user_name":"alice-gh"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w, _ = do(t, h, http.MethodPost, "/users/alice/identities", `{"provider_name":"github","external_id":"gh-42"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env := do(t, h, http.MethodGet, "/users/alice/identities", "")
	require.Equal(t, http.StatusOK, w.Code)
	ids := env["identities"].([]interface{})
	require.Len(t, ids, 1)
	assert.Equal(t, "github", ids[0].(map[string]interface{})["provider_name"])

	w, _ = do(t, h, http.MethodDelete, "/users/alice/identities?provider_name=github&external_id=gh-42", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = do(t, h, http.MethodDelete, "/users/alice/identities?provider_name=github&external_id=gh-42", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCallerMustBeAdmin(t *testing.T) {
	as, a := newAPI(t)

	alice, err := a.CreateUser(context.Background(), "alice", "", "hunter22", "")
	require.NoError(t, err)

	w, env := do(t, as(alice), http.MethodGet, "/services", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.EqualValues(t, http.StatusForbidden, env["code"])

	w, _ = do(t, as(nil), http.MethodGet, "/services", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
