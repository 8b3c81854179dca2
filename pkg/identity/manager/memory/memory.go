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

// Package memory keeps users and groups in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/identity"
	"github.com/DACCS-Climate/Magpie/pkg/identity/manager/registry"
	"github.com/DACCS-Climate/Magpie/pkg/sharedconf"
	"github.com/DACCS-Climate/Magpie/pkg/utils/cfg"
	"github.com/alexedwards/argon2id"
)

func init() {
	registry.Register("memory", New)
}

type config struct {
	// Name selects the in process store to attach to. Managers
	// configured with the same name share state.
	Name string `mapstructure:"name"`
}

func (c *config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
}

var (
	storesMu sync.Mutex
	stores   = map[string]*store{}
)

// New returns an identity manager holding its state in memory.
func New(m map[string]interface{}) (identity.Manager, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, err
	}
	storesMu.Lock()
	defer storesMu.Unlock()
	s, ok := stores[c.Name]
	if !ok {
		s = newStore()
		stores[c.Name] = s
	}
	return s, nil
}

// NewStore returns a fresh manager that shares state with nobody.
func NewStore() identity.Manager {
	return newStore()
}

type store struct {
	mu         sync.RWMutex
	nextUserID int64
	nextGrpID  int64
	users      map[string]*identity.User
	groups     map[string]*identity.Group
	passwords  map[int64]string
	members    map[int64]map[int64]struct{} // group id to user ids
	identities map[string]*identity.ExternalIdentity
}

func newStore() *store {
	s := &store{
		nextUserID: 1,
		nextGrpID:  1,
		users:      map[string]*identity.User{},
		groups:     map[string]*identity.Group{},
		passwords:  map[int64]string{},
		members:    map[int64]map[int64]struct{}{},
		identities: map[string]*identity.ExternalIdentity{},
	}
	s.ensureGroup(sharedconf.GetAnonymousGroup())
	s.ensureGroup(sharedconf.GetAdminGroup())
	s.ensureGroup(sharedconf.GetUsersGroup())
	return s
}

func (s *store) ensureGroup(name string) *identity.Group {
	g, ok := s.groups[name]
	if !ok {
		g = &identity.Group{ID: s.nextGrpID, Name: name}
		s.nextGrpID++
		s.groups[name] = g
		s.members[g.ID] = map[int64]struct{}{}
	}
	return g
}

func identityKey(provider, externalID string) string {
	return provider + "\x00" + externalID
}

func (s *store) CreateUser(ctx context.Context, name, email, password string) (*identity.User, error) {
	if err := identity.ValidateName(name); err != nil {
		return nil, err
	}

	var hash string
	if password != "" {
		var err error
		if hash, err = argon2id.CreateHash(password, argon2id.DefaultParams); err != nil {
			return nil, errtypes.InternalError("hashing password: " + err.Error())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[name]; ok {
		return nil, errtypes.AlreadyExists("user " + name)
	}
	u := &identity.User{ID: s.nextUserID, Name: name, Email: email}
	s.nextUserID++
	s.users[name] = u
	if hash != "" {
		s.passwords[u.ID] = hash
	}
	users := s.ensureGroup(sharedconf.GetUsersGroup())
	s.members[users.ID][u.ID] = struct{}{}

	out := *u
	return &out, nil
}

func (s *store) GetUser(ctx context.Context, name string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[name]
	if !ok {
		return nil, errtypes.NotFound("user " + name)
	}
	out := *u
	return &out, nil
}

func (s *store) GetUserByID(ctx context.Context, id int64) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			out := *u
			return &out, nil
		}
	}
	return nil, errtypes.NotFound(fmt.Sprintf("user %d", id))
}

func (s *store) ListUsers(ctx context.Context) ([]*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*identity.User, 0, len(s.users))
	for _, u := range s.users {
		out := *u
		users = append(users, &out)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (s *store) DeleteUser(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[name]
	if !ok {
		return errtypes.NotFound("user " + name)
	}
	for _, m := range s.members {
		delete(m, u.ID)
	}
	for k, link := range s.identities {
		if link.UserID == u.ID {
			delete(s.identities, k)
		}
	}
	delete(s.passwords, u.ID)
	delete(s.users, name)
	return nil
}

func (s *store) CreateGroup(ctx context.Context, name string) (*identity.Group, error) {
	if err := identity.ValidateName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[name]; ok {
		return nil, errtypes.AlreadyExists("group " + name)
	}
	g := s.ensureGroup(name)
	out := *g
	return &out, nil
}

func (s *store) GetGroup(ctx context.Context, name string) (*identity.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[name]
	if !ok {
		return nil, errtypes.NotFound("group " + name)
	}
	out := *g
	return &out, nil
}

func (s *store) GetGroupByID(ctx context.Context, id int64) (*identity.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.ID == id {
			out := *g
			return &out, nil
		}
	}
	return nil, errtypes.NotFound(fmt.Sprintf("group %d", id))
}

func (s *store) ListGroups(ctx context.Context) ([]*identity.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make([]*identity.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out := *g
		groups = append(groups, &out)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (s *store) DeleteGroup(ctx context.Context, name string) error {
	if isProtectedGroup(name) {
		return errtypes.PolicyViolation("group " + name + " cannot be deleted")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[name]
	if !ok {
		return errtypes.NotFound("group " + name)
	}
	delete(s.members, g.ID)
	delete(s.groups, name)
	return nil
}

func (s *store) AddMember(ctx context.Context, userName, groupName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userName]
	if !ok {
		return errtypes.NotFound("user " + userName)
	}
	g, ok := s.groups[groupName]
	if !ok {
		return errtypes.NotFound("group " + groupName)
	}
	if _, ok := s.members[g.ID][u.ID]; ok {
		return errtypes.AlreadyExists("user " + userName + " in group " + groupName)
	}
	s.members[g.ID][u.ID] = struct{}{}
	return nil
}

func (s *store) RemoveMember(ctx context.Context, userName, groupName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userName]
	if !ok {
		return errtypes.NotFound("user " + userName)
	}
	g, ok := s.groups[groupName]
	if !ok {
		return errtypes.NotFound("group " + groupName)
	}
	if _, ok := s.members[g.ID][u.ID]; !ok {
		return errtypes.NotFound("user " + userName + " in group " + groupName)
	}
	delete(s.members[g.ID], u.ID)
	return nil
}

func (s *store) ListMembers(ctx context.Context, groupName string) ([]*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupName]
	if !ok {
		return nil, errtypes.NotFound("group " + groupName)
	}
	var users []*identity.User
	for _, u := range s.users {
		if _, ok := s.members[g.ID][u.ID]; ok {
			out := *u
			users = append(users, &out)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (s *store) ListGroupsForUser(ctx context.Context, userName string) ([]*identity.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userName]
	if !ok {
		return nil, errtypes.NotFound("user " + userName)
	}
	var groups []*identity.Group
	for _, g := range s.groups {
		if _, ok := s.members[g.ID][u.ID]; ok {
			out := *g
			groups = append(groups, &out)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (s *store) IsInGroup(ctx context.Context, userName, groupName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userName]
	if !ok {
		return false, errtypes.NotFound("user " + userName)
	}
	g, ok := s.groups[groupName]
	if !ok {
		return false, errtypes.NotFound("group " + groupName)
	}
	_, in := s.members[g.ID][u.ID]
	return in, nil
}

func (s *store) ResolvePrincipal(ctx context.Context, userName string) (*identity.PrincipalSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userName]
	if !ok {
		return nil, errtypes.NotFound("user " + userName)
	}

	anon := s.groups[sharedconf.GetAnonymousGroup()]
	admin := s.groups[sharedconf.GetAdminGroup()]

	out := *u
	pset := &identity.PrincipalSet{User: &out}
	for _, g := range s.groups {
		if _, ok := s.members[g.ID][u.ID]; ok {
			pset.GroupIDs = append(pset.GroupIDs, g.ID)
			if admin != nil && g.ID == admin.ID {
				pset.Admin = true
			}
		}
	}
	if anon != nil && !pset.HasGroup(anon.ID) {
		pset.GroupIDs = append(pset.GroupIDs, anon.ID)
	}
	sort.Slice(pset.GroupIDs, func(i, j int) bool { return pset.GroupIDs[i] < pset.GroupIDs[j] })
	return pset, nil
}

func (s *store) ResolveAnonymous(ctx context.Context) (*identity.PrincipalSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	anon := s.groups[sharedconf.GetAnonymousGroup()]
	if anon == nil {
		return nil, errtypes.InternalError("anonymous group missing")
	}
	return &identity.PrincipalSet{GroupIDs: []int64{anon.ID}}, nil
}

func (s *store) VerifyPassword(ctx context.Context, name, password string) (*identity.User, error) {
	s.mu.RLock()
	u, ok := s.users[name]
	var hash string
	if ok {
		hash = s.passwords[u.ID]
	}
	s.mu.RUnlock()

	if !ok || hash == "" {
		return nil, errtypes.InvalidCredentials(name)
	}
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return nil, errtypes.InternalError("comparing password: " + err.Error())
	}
	if !match {
		return nil, errtypes.InvalidCredentials(name)
	}
	out := *u
	return &out, nil
}

func (s *store) SetPassword(ctx context.Context, name, password string) error {
	if password == "" {
		return errtypes.BadRequest("empty password")
	}
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return errtypes.InternalError("hashing password: " + err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[name]
	if !ok {
		return errtypes.NotFound("user " + name)
	}
	s.passwords[u.ID] = hash
	return nil
}

func (s *store) LinkIdentity(ctx context.Context, provider, externalID, externalName, userName string) error {
	if provider == "" || externalID == "" {
		return errtypes.BadRequest("empty provider or external id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userName]
	if !ok {
		return errtypes.NotFound("user " + userName)
	}
	k := identityKey(provider, externalID)
	if _, ok := s.identities[k]; ok {
		return errtypes.AlreadyExists("identity " + provider + ":" + externalID)
	}
	s.identities[k] = &identity.ExternalIdentity{
		Provider:     provider,
		ExternalID:   externalID,
		ExternalName: externalName,
		UserID:       u.ID,
	}
	return nil
}

func (s *store) UnlinkIdentity(ctx context.Context, provider, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := identityKey(provider, externalID)
	if _, ok := s.identities[k]; !ok {
		return errtypes.NotFound("identity " + provider + ":" + externalID)
	}
	delete(s.identities, k)
	return nil
}

func (s *store) GetUserByIdentity(ctx context.Context, provider, externalID string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.identities[identityKey(provider, externalID)]
	if !ok {
		return nil, errtypes.NotFound("identity " + provider + ":" + externalID)
	}
	for _, u := range s.users {
		if u.ID == link.UserID {
			out := *u
			return &out, nil
		}
	}
	return nil, errtypes.NotFound(fmt.Sprintf("user %d", link.UserID))
}

func (s *store) ListIdentities(ctx context.Context, userName string) ([]*identity.ExternalIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userName]
	if !ok {
		return nil, errtypes.NotFound("user " + userName)
	}
	var links []*identity.ExternalIdentity
	for _, link := range s.identities {
		if link.UserID == u.ID {
			out := *link
			links = append(links, &out)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Provider != links[j].Provider {
			return links[i].Provider < links[j].Provider
		}
		return links[i].ExternalID < links[j].ExternalID
	})
	return links, nil
}

func isProtectedGroup(name string) bool {
	return name == sharedconf.GetAnonymousGroup() ||
		name == sharedconf.GetAdminGroup() ||
		name == sharedconf.GetUsersGroup()
}
