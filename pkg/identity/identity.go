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

// Package identity defines the users and groups permissions are
// granted to, and the principal sets access resolution runs against.
package identity

import (
	"context"
	"fmt"
	"regexp"

	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/sharedconf"
)

type key int

const userKey key = iota

// User represents a user of the system.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"user_name"`
	Email string `json:"email,omitempty"`
}

// Group represents a named set of users.
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"group_name"`
}

// ExternalIdentity links a user to an account at an external identity
// provider. A user may carry several links, one per provider account.
type ExternalIdentity struct {
	Provider     string `json:"provider_name"`
	ExternalID   string `json:"external_id"`
	ExternalName string `json:"external_user_name,omitempty"`
	UserID       int64  `json:"user_id"`
}

// PrincipalSet is the identity access resolution works on: the user,
// the ids of every group it belongs to and whether one of them is the
// administrators group. The anonymous group is always a member of
// GroupIDs; an unauthenticated request carries a nil User and nothing
// but the anonymous group.
type PrincipalSet struct {
	User     *User
	GroupIDs []int64
	Admin    bool
}

// UserID returns the id of the user, zero for anonymous principals.
func (p *PrincipalSet) UserID() int64 {
	if p.User == nil {
		return 0
	}
	return p.User.ID
}

// HasGroup reports whether the principal belongs to the given group.
func (p *PrincipalSet) HasGroup(id int64) bool {
	for _, g := range p.GroupIDs {
		if g == id {
			return true
		}
	}
	return false
}

// ContextGetUser returns the user if set in the given context.
func ContextGetUser(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey).(*User)
	return u, ok
}

// ContextMustGetUser panics if user is not in context.
func ContextMustGetUser(ctx context.Context) *User {
	u, ok := ContextGetUser(ctx)
	if !ok {
		panic("user not found in context")
	}
	return u
}

// ContextSetUser stores the user in the context.
func ContextSetUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateName checks a user or group name against the accepted
// charset and the configured maximum length.
func ValidateName(name string) error {
	if name == "" {
		return errtypes.BadRequest("empty name")
	}
	if max := sharedconf.GetUserNameMaxLength(); len(name) > max {
		return errtypes.BadRequest(fmt.Sprintf("name longer than %d characters", max))
	}
	if !nameRegexp.MatchString(name) {
		return errtypes.BadRequest("name contains invalid characters")
	}
	return nil
}

// Manager is the interface identity stores implement.
//
// The well-known groups from sharedconf always exist: stores create
// them on first use and refuse to delete them.
type Manager interface {
	// CreateUser adds a user and joins it to the default users
	// group. The password may be empty for users that only sign in
	// through an external identity.
	CreateUser(ctx context.Context, name, email, password string) (*User, error)
	GetUser(ctx context.Context, name string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	// DeleteUser removes the user and its memberships and identity
	// links. Permission entries held by the user are the caller's
	// concern.
	DeleteUser(ctx context.Context, name string) error

	CreateGroup(ctx context.Context, name string) (*Group, error)
	GetGroup(ctx context.Context, name string) (*Group, error)
	GetGroupByID(ctx context.Context, id int64) (*Group, error)
	ListGroups(ctx context.Context) ([]*Group, error)
	DeleteGroup(ctx context.Context, name string) error

	AddMember(ctx context.Context, userName, groupName string) error
	RemoveMember(ctx context.Context, userName, groupName string) error
	ListMembers(ctx context.Context, groupName string) ([]*User, error)
	ListGroupsForUser(ctx context.Context, userName string) ([]*Group, error)
	IsInGroup(ctx context.Context, userName, groupName string) (bool, error)

	// ResolvePrincipal expands a user name into the principal set
	// resolution needs, with the anonymous group always included.
	ResolvePrincipal(ctx context.Context, userName string) (*PrincipalSet, error)
	// ResolveAnonymous returns the principal set of unauthenticated
	// requests.
	ResolveAnonymous(ctx context.Context) (*PrincipalSet, error)

	// VerifyPassword returns the user when name and password match
	// and errtypes.InvalidCredentials otherwise.
	VerifyPassword(ctx context.Context, name, password string) (*User, error)
	SetPassword(ctx context.Context, name, password string) error

	LinkIdentity(ctx context.Context, provider, externalID, externalName, userName string) error
	UnlinkIdentity(ctx context.Context, provider, externalID string) error
	GetUserByIdentity(ctx context.Context, provider, externalID string) (*User, error)
	ListIdentities(ctx context.Context, userName string) ([]*ExternalIdentity, error)
}
