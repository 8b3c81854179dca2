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

// Package jwt provides the token manager backed by signed JWTs.
package jwt

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/identity"
	"github.com/DACCS-Climate/Magpie/pkg/sharedconf"
	"github.com/DACCS-Climate/Magpie/pkg/token"
	"github.com/DACCS-Climate/Magpie/pkg/token/manager/registry"
	"github.com/DACCS-Climate/Magpie/pkg/utils/cfg"
)

func init() {
	registry.Register("jwt", New)
}

type config struct {
	Secret  string `mapstructure:"secret"`
	Expires int64  `mapstructure:"expires"`
}

func (c *config) ApplyDefaults() {
	if c.Expires == 0 {
		c.Expires = 86400 // 24 hours
	}
	c.Secret = sharedconf.GetJWTSecret(c.Secret)
}

type manager struct {
	conf *config
}

// New returns a token manager that mints and verifies HS256 signed
// JWTs carrying the user.
func New(m map[string]interface{}) (token.Manager, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, errors.Wrap(err, "jwt: error decoding config")
	}
	return &manager{conf: &c}, nil
}

// claims are the custom claims minted into the token.
type claims struct {
	jwt.RegisteredClaims
	User *identity.User `json:"user"`
}

func (m *manager) MintToken(ctx context.Context, u *identity.User) (string, error) {
	ttl := time.Duration(m.conf.Expires) * time.Second
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			Issuer:    "magpie",
			Audience:  jwt.ClaimStrings{"magpie"},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   u.Name,
		},
		User: u,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	tkn, err := t.SignedString([]byte(m.conf.Secret))
	if err != nil {
		return "", errors.Wrapf(err, "error signing token for user %s", u.Name)
	}
	return tkn, nil
}

func (m *manager) DismantleToken(ctx context.Context, tkn string) (*identity.User, error) {
	t, err := jwt.ParseWithClaims(tkn, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(m.conf.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errtypes.InvalidCredentials("invalid token: " + err.Error())
	}
	c, ok := t.Claims.(*claims)
	if !ok || c.User == nil {
		return nil, errtypes.InvalidCredentials("token carries no user")
	}
	return c.User, nil
}
