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

// Package permission defines the permission entries principals hold
// on resources and the algebra that combines competing entries into
// one outcome.
package permission

import (
	"context"
)

// Access tells whether an entry grants or refuses its permission.
type Access string

const (
	// Allow grants the permission.
	Allow Access = "allow"
	// Deny refuses the permission.
	Deny Access = "deny"
)

// Valid reports whether a is a known access value.
func (a Access) Valid() bool { return a == Allow || a == Deny }

// Scope tells where an entry applies: only on the resource carrying
// it or on every resource below it as well.
type Scope string

const (
	// Match applies on the carrying resource only.
	Match Scope = "match"
	// Recursive applies on the carrying resource and its subtree.
	Recursive Scope = "recursive"
)

// Valid reports whether s is a known scope value.
func (s Scope) Valid() bool { return s == Match || s == Recursive }

// Set is one permission triple: a name recognized by the service
// type, an access and a scope.
type Set struct {
	Name   string `json:"name"`
	Access Access `json:"access"`
	Scope  Scope  `json:"scope"`
}

// Rank orders sets by decision strength. A deny bound to the exact
// resource is the strongest statement, an allow inherited from above
// the weakest:
//
//	(deny, match) > (allow, match) > (deny, recursive) > (allow, recursive)
func (s Set) Rank() int {
	switch {
	case s.Access == Deny && s.Scope == Match:
		return 4
	case s.Access == Allow && s.Scope == Match:
		return 3
	case s.Access == Deny && s.Scope == Recursive:
		return 2
	case s.Access == Allow && s.Scope == Recursive:
		return 1
	}
	return 0
}

// Strongest returns the set with the highest rank. The second return
// is false when sets is empty.
func Strongest(sets []Set) (Set, bool) {
	var best Set
	found := false
	for _, s := range sets {
		if !found || s.Rank() > best.Rank() {
			best = s
			found = true
		}
	}
	return best, found
}

// Entry attaches a set to a user or a group on one resource. Exactly
// one of UserID and GroupID is non zero.
type Entry struct {
	ID         int64 `json:"id"`
	UserID     int64 `json:"user_id,omitempty"`
	GroupID    int64 `json:"group_id,omitempty"`
	ResourceID int64 `json:"resource_id"`
	Set
}

// Manager is the interface permission stores implement. Stores keep
// plain entries and know nothing about resolution, tree shapes or
// permission names; those rules live with the callers.
type Manager interface {
	// Upsert stores the entry. When the principal already holds the
	// name on the resource the access and scope are replaced, so
	// storing the same entry twice is idempotent.
	Upsert(ctx context.Context, e *Entry) (*Entry, error)
	// Clear removes the entry matching e's principal, resource and
	// name. Clearing an absent entry returns errtypes.NotFound.
	Clear(ctx context.Context, e *Entry) error
	ListForUser(ctx context.Context, userID int64) ([]*Entry, error)
	ListForGroup(ctx context.Context, groupID int64) ([]*Entry, error)
	ListForResource(ctx context.Context, resourceID int64) ([]*Entry, error)
	// ListOnPath returns every entry for the given name held on any
	// of the resources by the user or by any of the groups. It is
	// the one batched read access resolution performs.
	ListOnPath(ctx context.Context, userID int64, groupIDs, resourceIDs []int64, name string) ([]*Entry, error)
	// ClearForResources removes every entry on the given resources.
	ClearForResources(ctx context.Context, resourceIDs []int64) error
	// ClearForUser removes every entry held by the user.
	ClearForUser(ctx context.Context, userID int64) error
	// ClearForGroup removes every entry held by the group.
	ClearForGroup(ctx context.Context, groupID int64) error
}
