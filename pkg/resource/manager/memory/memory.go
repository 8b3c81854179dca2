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

// Package memory keeps the resource trees in process memory. It backs
// tests and single node setups that can afford to lose state on
// restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/resource"
	"github.com/DACCS-Climate/Magpie/pkg/resource/manager/registry"
	"github.com/DACCS-Climate/Magpie/pkg/service"
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

// New returns a resource manager holding its trees in memory.
func New(m map[string]interface{}) (resource.Manager, error) {
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
func NewStore() resource.Manager {
	return newStore()
}

type svcData struct {
	serviceType string
	url         string
}

type node struct {
	res  resource.Resource
	kids map[string]int64
	svc  *svcData
}

type store struct {
	mu     sync.RWMutex
	nextID int64
	nodes  map[int64]*node
}

func newStore() *store {
	return &store{nextID: 1, nodes: map[int64]*node{}}
}

func (s *store) CreateService(ctx context.Context, name, serviceType, url string) (*resource.Service, error) {
	if err := resource.ValidateName(name); err != nil {
		return nil, err
	}
	if _, ok := service.Lookup(serviceType); !ok {
		return nil, errtypes.BadRequest("unknown service type: " + serviceType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.nodes {
		if n.svc != nil && n.res.Name == name {
			return nil, errtypes.AlreadyExists("service " + name)
		}
	}

	id := s.nextID
	s.nextID++
	s.nodes[id] = &node{
		res: resource.Resource{
			ID:            id,
			Name:          name,
			Type:          resource.TypeService,
			RootServiceID: id,
		},
		kids: map[string]int64{},
		svc:  &svcData{serviceType: serviceType, url: url},
	}
	return s.serviceOut(s.nodes[id]), nil
}

func (s *store) GetService(ctx context.Context, id int64) (*resource.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok || n.svc == nil {
		return nil, errtypes.NotFound(fmt.Sprintf("service %d", id))
	}
	return s.serviceOut(n), nil
}

func (s *store) GetServiceByName(ctx context.Context, name string) (*resource.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.nodes {
		if n.svc != nil && n.res.Name == name {
			return s.serviceOut(n), nil
		}
	}
	return nil, errtypes.NotFound("service " + name)
}

func (s *store) ListServices(ctx context.Context, serviceType string) ([]*resource.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var svcs []*resource.Service
	for _, n := range s.nodes {
		if n.svc == nil {
			continue
		}
		if serviceType != "" && n.svc.serviceType != serviceType {
			continue
		}
		svcs = append(svcs, s.serviceOut(n))
	}
	sort.Slice(svcs, func(i, j int) bool { return svcs[i].Name < svcs[j].Name })
	return svcs, nil
}

func (s *store) CreateResource(ctx context.Context, parentID int64, name string, t resource.Type) (*resource.Resource, error) {
	if err := resource.ValidateName(name); err != nil {
		return nil, err
	}
	if !t.Valid() || t == resource.TypeService {
		return nil, errtypes.BadRequest("invalid resource type: " + string(t))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[parentID]
	if !ok {
		return nil, errtypes.NotFound(fmt.Sprintf("resource %d", parentID))
	}
	if err := s.checkChildType(parent, t); err != nil {
		return nil, err
	}
	if _, ok := parent.kids[name]; ok {
		return nil, errtypes.AlreadyExists(fmt.Sprintf("resource %s below %d", name, parentID))
	}

	id := s.nextID
	s.nextID++
	s.nodes[id] = &node{
		res: resource.Resource{
			ID:            id,
			Name:          name,
			Type:          t,
			ParentID:      parentID,
			RootServiceID: parent.res.RootServiceID,
		},
		kids: map[string]int64{},
	}
	parent.kids[name] = id
	out := s.nodes[id].res
	return &out, nil
}

func (s *store) GetResource(ctx context.Context, id int64) (*resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, errtypes.NotFound(fmt.Sprintf("resource %d", id))
	}
	out := n.res
	return &out, nil
}

func (s *store) ListChildren(ctx context.Context, id int64) ([]*resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, errtypes.NotFound(fmt.Sprintf("resource %d", id))
	}
	return s.childrenOf(n), nil
}

func (s *store) Subtree(ctx context.Context, id int64) ([]*resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, errtypes.NotFound(fmt.Sprintf("resource %d", id))
	}
	out := n.res
	all := []*resource.Resource{&out}
	queue := s.childrenOf(n)
	for len(queue) > 0 {
		head := queue[0]
		queue = queue[1:]
		all = append(all, head)
		queue = append(queue, s.childrenOf(s.nodes[head.ID])...)
	}
	return all, nil
}

func (s *store) Ancestors(ctx context.Context, id int64) ([]*resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, errtypes.NotFound(fmt.Sprintf("resource %d", id))
	}
	var chain []*resource.Resource
	for {
		out := n.res
		chain = append([]*resource.Resource{&out}, chain...)
		if n.res.ParentID == 0 {
			return chain, nil
		}
		n = s.nodes[n.res.ParentID]
	}
}

func (s *store) LookupPath(ctx context.Context, rootID int64, names []string) ([]*resource.Resource, []string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[rootID]
	if !ok {
		return nil, nil, errtypes.NotFound(fmt.Sprintf("resource %d", rootID))
	}
	out := n.res
	chain := []*resource.Resource{&out}
	for i, name := range names {
		childID, ok := n.kids[name]
		if !ok {
			return chain, names[i:], nil
		}
		n = s.nodes[childID]
		c := n.res
		chain = append(chain, &c)
	}
	return chain, nil, nil
}

func (s *store) Rename(ctx context.Context, id int64, name string) error {
	if err := resource.ValidateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return errtypes.NotFound(fmt.Sprintf("resource %d", id))
	}
	if n.res.Name == name {
		return nil
	}
	if n.res.ParentID == 0 {
		for _, other := range s.nodes {
			if other.svc != nil && other.res.Name == name {
				return errtypes.AlreadyExists("service " + name)
			}
		}
	} else {
		parent := s.nodes[n.res.ParentID]
		if _, ok := parent.kids[name]; ok {
			return errtypes.AlreadyExists(fmt.Sprintf("resource %s below %d", name, n.res.ParentID))
		}
		delete(parent.kids, n.res.Name)
		parent.kids[name] = id
	}
	n.res.Name = name
	return nil
}

func (s *store) Move(ctx context.Context, id, newParentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return errtypes.NotFound(fmt.Sprintf("resource %d", id))
	}
	if n.res.ParentID == 0 {
		return errtypes.BadRequest("cannot move a service root")
	}
	parent, ok := s.nodes[newParentID]
	if !ok {
		return errtypes.NotFound(fmt.Sprintf("resource %d", newParentID))
	}
	if parent.res.RootServiceID != n.res.RootServiceID {
		return errtypes.PolicyViolation("cannot move across services")
	}
	// refuse moving a node below its own subtree
	for p := parent; ; p = s.nodes[p.res.ParentID] {
		if p.res.ID == id {
			return errtypes.PolicyViolation("cannot move below own subtree")
		}
		if p.res.ParentID == 0 {
			break
		}
	}
	if err := s.checkChildType(parent, n.res.Type); err != nil {
		return err
	}
	if _, ok := parent.kids[n.res.Name]; ok {
		return errtypes.AlreadyExists(fmt.Sprintf("resource %s below %d", n.res.Name, newParentID))
	}

	old := s.nodes[n.res.ParentID]
	delete(old.kids, n.res.Name)
	parent.kids[n.res.Name] = id
	n.res.ParentID = newParentID
	return nil
}

func (s *store) DeleteSubtree(ctx context.Context, id int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, errtypes.NotFound(fmt.Sprintf("resource %d", id))
	}

	// collect parents before children, delete in reverse
	order := []int64{id}
	for i := 0; i < len(order); i++ {
		for _, kid := range s.nodes[order[i]].kids {
			order = append(order, kid)
		}
	}
	for i := len(order) - 1; i >= 0; i-- {
		delete(s.nodes, order[i])
	}
	if n.res.ParentID != 0 {
		if parent, ok := s.nodes[n.res.ParentID]; ok {
			delete(parent.kids, n.res.Name)
		}
	}
	return order, nil
}

func (s *store) SetOwner(ctx context.Context, id, ownerUserID, ownerGroupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return errtypes.NotFound(fmt.Sprintf("resource %d", id))
	}
	n.res.OwnerUserID = ownerUserID
	n.res.OwnerGroupID = ownerGroupID
	return nil
}

func (s *store) CountOwnedByUser(ctx context.Context, userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.nodes {
		if n.res.OwnerUserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *store) ReleaseOwnedByUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		if n.res.OwnerUserID == userID {
			n.res.OwnerUserID = 0
		}
	}
	return nil
}

func (s *store) ReleaseOwnedByGroup(ctx context.Context, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		if n.res.OwnerGroupID == groupID {
			n.res.OwnerGroupID = 0
		}
	}
	return nil
}

func (s *store) serviceOut(n *node) *resource.Service {
	return &resource.Service{
		Resource:    n.res,
		ServiceType: n.svc.serviceType,
		URL:         n.svc.url,
	}
}

func (s *store) childrenOf(n *node) []*resource.Resource {
	names := make([]string, 0, len(n.kids))
	for name := range n.kids {
		names = append(names, name)
	}
	sort.Strings(names)
	kids := make([]*resource.Resource, 0, len(names))
	for _, name := range names {
		c := s.nodes[n.kids[name]].res
		kids = append(kids, &c)
	}
	return kids
}

func (s *store) checkChildType(parent *node, t resource.Type) error {
	root, ok := s.nodes[parent.res.RootServiceID]
	if !ok || root.svc == nil {
		return errtypes.InternalError(fmt.Sprintf("resource %d has no root service", parent.res.ID))
	}
	desc, ok := service.Lookup(root.svc.serviceType)
	if !ok {
		return errtypes.InternalError("unknown service type: " + root.svc.serviceType)
	}
	if !desc.ChildAllowed(parent.res.Type, t) {
		return errtypes.PolicyViolation(fmt.Sprintf("service type %s does not allow %s below %s",
			root.svc.serviceType, t, parent.res.Type))
	}
	return nil
}
