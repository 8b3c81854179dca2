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

package jwt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/identity"
)

func TestMintAndDismantle(t *testing.T) {
	ctx := context.Background()
	m, err := New(map[string]interface{}{"secret": "Quooth4i"})
	require.NoError(t, err)

	u := &identity.User{ID: 7, Name: "alice", Email: "alice@example.org"}
	tkn, err := m.MintToken(ctx, u)
	require.NoError(t, err)
	require.NotEmpty(t, tkn)

	got, err := m.DismantleToken(ctx, tkn)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestDismantleRejectsForgedToken(t *testing.T) {
	ctx := context.Background()
	m, err := New(map[string]interface{}{"secret": "Quooth4i"})
	require.NoError(t, err)
	other, err := New(map[string]interface{}{"secret": "ieGh2zuZ"})
	require.NoError(t, err)

	tkn, err := other.MintToken(ctx, &identity.User{ID: 1, Name: "mallory"})
	require.NoError(t, err)

	_, err = m.DismantleToken(ctx, tkn)
	require.Error(t, err)
	_, ok := err.(errtypes.IsInvalidCredentials)
	assert.True(t, ok, "got %v", err)
}

func TestDismantleRejectsExpiredToken(t *testing.T) {
	ctx := context.Background()
	m, err := New(map[string]interface{}{"secret": "Quooth4i", "expires": int64(-60)})
	require.NoError(t, err)

	tkn, err := m.MintToken(ctx, &identity.User{ID: 1, Name: "alice"})
	require.NoError(t, err)

	_, err = m.DismantleToken(ctx, tkn)
	require.Error(t, err)
	_, ok := err.(errtypes.IsInvalidCredentials)
	assert.True(t, ok, "got %v", err)
}

func TestDismantleRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	m, err := New(map[string]interface{}{"secret": "Quooth4i"})
	require.NoError(t, err)

	_, err = m.DismantleToken(ctx, "not.a.token")
	require.Error(t, err)
}
