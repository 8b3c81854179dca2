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

// Package memory keeps permission entries in process memory. It backs
// tests and single node setups that can afford to lose state on
// restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/permission"
	"github.com/DACCS-Climate/Magpie/pkg/permission/manager/registry"
	"github.com/DACCS-Climate/Magpie/pkg/utils/cfg"
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

// New returns a permission manager holding its entries in memory.
func New(m map[string]interface{}) (permission.Manager, error) {
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
func NewStore() permission.Manager {
	return newStore()
}

type store struct {
	mu      sync.RWMutex
	nextID  int64
	entries map[int64]*permission.Entry
}

func newStore() *store {
	return &store{nextID: 1, entries: map[int64]*permission.Entry{}}
}

func validate(e *permission.Entry) error {
	if (e.UserID == 0) == (e.GroupID == 0) {
		return errtypes.BadRequest("entry needs exactly one of user and group")
	}
	if e.ResourceID == 0 {
		return errtypes.BadRequest("entry needs a resource")
	}
	if e.Name == "" {
		return errtypes.BadRequest("entry needs a permission name")
	}
	if !e.Access.Valid() {
		return errtypes.BadRequest("unknown access: " + string(e.Access))
	}
	if !e.Scope.Valid() {
		return errtypes.BadRequest("unknown scope: " + string(e.Scope))
	}
	return nil
}

// samePrincipal reports whether two entries bind the same principal,
// resource and permission name.
func samePrincipal(a, b *permission.Entry) bool {
	return a.UserID == b.UserID && a.GroupID == b.GroupID &&
		a.ResourceID == b.ResourceID && a.Name == b.Name
}

func (s *store) Upsert(ctx context.Context, e *permission.Entry) (*permission.Entry, error) {
	if err := validate(e); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.entries {
		if samePrincipal(cur, e) {
			cur.Access = e.Access
			cur.Scope = e.Scope
			out := *cur
			return &out, nil
		}
	}
	stored := *e
	stored.ID = s.nextID
	s.nextID++
	s.entries[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (s *store) Clear(ctx context.Context, e *permission.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cur := range s.entries {
		if samePrincipal(cur, e) {
			delete(s.entries, id)
			return nil
		}
	}
	return errtypes.NotFound("permission entry not found")
}

func (s *store) ListForUser(ctx context.Context, userID int64) ([]*permission.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(e *permission.Entry) bool { return e.UserID == userID }), nil
}

func (s *store) ListForGroup(ctx context.Context, groupID int64) ([]*permission.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(e *permission.Entry) bool { return e.GroupID == groupID }), nil
}

func (s *store) ListForResource(ctx context.Context, resourceID int64) ([]*permission.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(e *permission.Entry) bool { return e.ResourceID == resourceID }), nil
}

func (s *store) ListOnPath(ctx context.Context, userID int64, groupIDs, resourceIDs []int64, name string) ([]*permission.Entry, error) {
	groups := make(map[int64]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		groups[id] = struct{}{}
	}
	resources := make(map[int64]struct{}, len(resourceIDs))
	for _, id := range resourceIDs {
		resources[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(e *permission.Entry) bool {
		if e.Name != name {
			return false
		}
		if _, ok := resources[e.ResourceID]; !ok {
			return false
		}
		if e.UserID != 0 {
			return userID != 0 && e.UserID == userID
		}
		_, ok := groups[e.GroupID]
		return ok
	}), nil
}

func (s *store) ClearForResources(ctx context.Context, resourceIDs []int64) error {
	resources := make(map[int64]struct{}, len(resourceIDs))
	for _, id := range resourceIDs {
		resources[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if _, ok := resources[e.ResourceID]; ok {
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *store) ClearForUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.UserID == userID {
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *store) ClearForGroup(ctx context.Context, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.GroupID == groupID {
			delete(s.entries, id)
		}
	}
	return nil
}

// collect copies the matching entries sorted by id. Callers hold at
// least the read lock.
func (s *store) collect(match func(*permission.Entry) bool) []*permission.Entry {
	var out []*permission.Entry
	for _, e := range s.entries {
		if match(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
