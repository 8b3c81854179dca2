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

package errtypes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
)

// Callers discriminate error kinds by asserting the marker
// interfaces, so each kind must satisfy its own marker and no other.
func TestMarkersDiscriminate(t *testing.T) {
	var err error = errtypes.NotFound("user alice")

	_, notFound := err.(errtypes.IsNotFound)
	assert.True(t, notFound)

	_, alreadyExists := err.(errtypes.IsAlreadyExists)
	assert.False(t, alreadyExists)

	_, badRequest := err.(errtypes.IsBadRequest)
	assert.False(t, badRequest)

	err = errtypes.PolicyViolation("file below service")
	_, policy := err.(errtypes.IsPolicyViolation)
	assert.True(t, policy)
	_, notFound = err.(errtypes.IsNotFound)
	assert.False(t, notFound)
}

func TestMessagesCarryTheDetail(t *testing.T) {
	assert.Equal(t, "error: not found: group editors", errtypes.NotFound("group editors").Error())
	assert.Equal(t, "error: already exists: service thredds", errtypes.AlreadyExists("service thredds").Error())
	assert.Equal(t, "error: unavailable: deadlock", errtypes.Unavailable("deadlock").Error())
}
