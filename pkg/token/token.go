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

// Package token defines the session tokens handed out at sign in and
// the manager that mints and verifies them.
package token

import (
	"context"

	"github.com/DACCS-Climate/Magpie/pkg/identity"
)

// TokenHeader is the header used across http services to forward the
// access token.
const TokenHeader = "x-access-token"

type key int

const tokenKey key = iota

// Manager is the interface to implement to sign and verify tokens.
type Manager interface {
	MintToken(ctx context.Context, u *identity.User) (string, error)
	DismantleToken(ctx context.Context, token string) (*identity.User, error)
}

// ContextGetToken returns the token if set in the given context.
func ContextGetToken(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey).(string)
	return t, ok
}

// ContextSetToken stores the token in the context.
func ContextSetToken(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, tokenKey, t)
}
