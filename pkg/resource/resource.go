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

// Package resource defines the resource trees protected by the
// daemon: one tree per registered service, rooted at the service
// itself.
package resource

import (
	"context"
	"strings"

	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
)

// Type classifies the nodes of a resource tree.
type Type string

const (
	// TypeService is the type of every tree root.
	TypeService Type = "service"
	// TypeDirectory is a THREDDS style directory node.
	TypeDirectory Type = "directory"
	// TypeFile is a THREDDS style file node.
	TypeFile Type = "file"
	// TypeWorkspace is a geoserver workspace node.
	TypeWorkspace Type = "workspace"
	// TypeRoute is a generic API path segment node.
	TypeRoute Type = "route"
	// TypeProcess is a WPS process node.
	TypeProcess Type = "process"
)

// Valid reports whether t is one of the known resource types.
func (t Type) Valid() bool {
	switch t {
	case TypeService, TypeDirectory, TypeFile, TypeWorkspace, TypeRoute, TypeProcess:
		return true
	}
	return false
}

// Resource is a node in a service's resource tree. The zero value of
// ParentID marks a tree root and the zero values of the owner fields
// mark an unowned resource.
type Resource struct {
	ID            int64
	Name          string
	Type          Type
	ParentID      int64
	RootServiceID int64
	OwnerUserID   int64
	OwnerGroupID  int64
}

// IsRoot reports whether the resource is the root of its tree.
func (r *Resource) IsRoot() bool { return r.ParentID == 0 }

// ValidateName checks that a resource or service name is usable as a
// single path segment.
func ValidateName(name string) error {
	if name == "" {
		return errtypes.BadRequest("empty resource name")
	}
	if len(name) > 255 {
		return errtypes.BadRequest("resource name longer than 255 characters")
	}
	if strings.ContainsAny(name, "/?#") {
		return errtypes.BadRequest("resource name contains invalid characters")
	}
	return nil
}

// Service is the root resource of a tree plus the attributes that
// make it a proxied service: the type driving request parsing and the
// URL of the backend it fronts.
type Service struct {
	Resource
	ServiceType string
	URL         string
}

// Manager is the interface resource tree stores implement.
//
// Stores enforce the structural rules of the model: sibling names are
// unique below one parent, children must be of a type the service
// type allows under their parent, and a subtree is deleted leaves
// first so no orphan is observable.
type Manager interface {
	// CreateService registers a new tree root. The name must be
	// unique among services and the service type must be known.
	CreateService(ctx context.Context, name, serviceType, url string) (*Service, error)
	GetService(ctx context.Context, id int64) (*Service, error)
	GetServiceByName(ctx context.Context, name string) (*Service, error)
	// ListServices returns all services, filtered by service type
	// when serviceType is not empty.
	ListServices(ctx context.Context, serviceType string) ([]*Service, error)

	// CreateResource adds a child node below parentID.
	CreateResource(ctx context.Context, parentID int64, name string, t Type) (*Resource, error)
	GetResource(ctx context.Context, id int64) (*Resource, error)
	ListChildren(ctx context.Context, id int64) ([]*Resource, error)
	// Subtree returns the node and all its descendants, parents
	// before children.
	Subtree(ctx context.Context, id int64) ([]*Resource, error)
	// Ancestors returns the chain from the tree root to the node,
	// both included.
	Ancestors(ctx context.Context, id int64) ([]*Resource, error)
	// LookupPath descends from the given root following names one
	// level at a time. It returns the chain of matched nodes
	// starting at the root plus the unmatched tail of names.
	LookupPath(ctx context.Context, rootID int64, names []string) ([]*Resource, []string, error)
	Rename(ctx context.Context, id int64, name string) error
	// Move reparents a node. Moving a root or moving a node below
	// its own subtree is refused.
	Move(ctx context.Context, id, newParentID int64) error
	// DeleteSubtree removes the node and all its descendants and
	// returns the ids of every removed node.
	DeleteSubtree(ctx context.Context, id int64) ([]int64, error)

	// SetOwner assigns ownership. A zero id clears the respective
	// owner.
	SetOwner(ctx context.Context, id, ownerUserID, ownerGroupID int64) error
	CountOwnedByUser(ctx context.Context, userID int64) (int, error)
	// ReleaseOwnedByUser clears user ownership from every resource
	// owned by the given user.
	ReleaseOwnedByUser(ctx context.Context, userID int64) error
	// ReleaseOwnedByGroup clears group ownership from every
	// resource owned by the given group.
	ReleaseOwnedByGroup(ctx context.Context, groupID int64) error
}
