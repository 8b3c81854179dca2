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

package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRank(t *testing.T) {
	tests := []struct {
		set  Set
		want int
	}{
		{Set{Name: "read", Access: Deny, Scope: Match}, 4},
		{Set{Name: "read", Access: Allow, Scope: Match}, 3},
		{Set{Name: "read", Access: Deny, Scope: Recursive}, 2},
		{Set{Name: "read", Access: Allow, Scope: Recursive}, 1},
		{Set{Name: "read"}, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.set.Rank())
	}
}

func TestStrongest(t *testing.T) {
	tests := []struct {
		name  string
		sets  []Set
		want  Set
		found bool
	}{
		{
			name: "empty",
		},
		{
			name:  "single",
			sets:  []Set{{Name: "read", Access: Allow, Scope: Recursive}},
			want:  Set{Name: "read", Access: Allow, Scope: Recursive},
			found: true,
		},
		{
			name: "exact deny beats exact allow",
			sets: []Set{
				{Name: "read", Access: Allow, Scope: Match},
				{Name: "read", Access: Deny, Scope: Match},
			},
			want:  Set{Name: "read", Access: Deny, Scope: Match},
			found: true,
		},
		{
			name: "exact allow beats inherited deny",
			sets: []Set{
				{Name: "read", Access: Deny, Scope: Recursive},
				{Name: "read", Access: Allow, Scope: Match},
			},
			want:  Set{Name: "read", Access: Allow, Scope: Match},
			found: true,
		},
		{
			name: "inherited deny beats inherited allow",
			sets: []Set{
				{Name: "read", Access: Allow, Scope: Recursive},
				{Name: "read", Access: Deny, Scope: Recursive},
			},
			want:  Set{Name: "read", Access: Deny, Scope: Recursive},
			found: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := Strongest(tt.sets)
			assert.Equal(t, tt.found, found)
			if found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Allow.Valid())
	assert.True(t, Deny.Valid())
	assert.False(t, Access("maybe").Valid())

	assert.True(t, Match.Valid())
	assert.True(t, Recursive.Valid())
	assert.False(t, Scope("global").Valid())
}
