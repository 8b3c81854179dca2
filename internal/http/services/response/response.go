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

// Package response writes the JSON envelopes of the APIs. Every
// response carries code, type and detail fields next to the domain
// body, so clients always find the outcome in the same place.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/DACCS-Climate/Magpie/pkg/appctx"
	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
)

// Body is the domain part of a response, merged into the envelope.
type Body map[string]interface{}

// Write sends the envelope with the given status code and detail plus
// the domain body.
func Write(w http.ResponseWriter, r *http.Request, code int, detail string, body Body) {
	out := make(map[string]interface{}, len(body)+3)
	for k, v := range body {
		out[k] = v
	}
	out["code"] = code
	out["type"] = "application/json"
	out["detail"] = detail

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		appctx.GetLogger(r.Context()).Error().Err(err).Msg("error encoding response")
	}
}

// WriteError sends the envelope for a failed operation, mapping the
// error kind to the HTTP status code.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appctx.GetLogger(r.Context()).Debug().Err(err).Msg("request failed")
	Write(w, r, StatusCode(err), err.Error(), nil)
}

// StatusCode maps an error kind to its HTTP status code. Unknown
// errors are internal by definition.
func StatusCode(err error) int {
	switch err.(type) {
	case errtypes.NotFound:
		return http.StatusNotFound
	case errtypes.AlreadyExists:
		return http.StatusConflict
	case errtypes.BadRequest:
		return http.StatusBadRequest
	case errtypes.PolicyViolation:
		return http.StatusBadRequest
	case errtypes.PermissionDenied:
		return http.StatusForbidden
	case errtypes.UserRequired, errtypes.InvalidCredentials:
		return http.StatusUnauthorized
	case errtypes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
