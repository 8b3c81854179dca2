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

// Package admin is the typed face of the administrative operations.
// It coordinates the identity, resource and permission stores and
// enforces the rules that span more than one of them, so the HTTP
// layer stays a thin translation.
package admin

import (
	"context"
	"fmt"

	"github.com/DACCS-Climate/Magpie/pkg/access"
	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/identity"
	"github.com/DACCS-Climate/Magpie/pkg/permission"
	"github.com/DACCS-Climate/Magpie/pkg/resource"
	"github.com/DACCS-Climate/Magpie/pkg/service"
	"github.com/DACCS-Climate/Magpie/pkg/sharedconf"
)

// Admin bundles the stores behind the administrative operations.
type Admin struct {
	identities  identity.Manager
	resources   resource.Manager
	permissions permission.Manager
	resolver    *access.Resolver
}

// New returns an Admin over the given stores.
func New(identities identity.Manager, resources resource.Manager, permissions permission.Manager) *Admin {
	return &Admin{
		identities:  identities,
		resources:   resources,
		permissions: permissions,
		resolver:    access.NewResolver(resources, permissions),
	}
}

// Resolver exposes the access resolver built over the same stores.
func (a *Admin) Resolver() *access.Resolver { return a.resolver }

// CreateService registers a protected backend under a new tree root.
func (a *Admin) CreateService(ctx context.Context, name, serviceType, url string) (*resource.Service, error) {
	return a.resources.CreateService(ctx, name, serviceType, url)
}

// GetService returns the service registered under the given name.
func (a *Admin) GetService(ctx context.Context, name string) (*resource.Service, error) {
	return a.resources.GetServiceByName(ctx, name)
}

// ListServices returns all services, filtered by type when
// serviceType is not empty.
func (a *Admin) ListServices(ctx context.Context, serviceType string) ([]*resource.Service, error) {
	return a.resources.ListServices(ctx, serviceType)
}

// DeleteService removes a service with its whole tree and every
// permission entry on it.
func (a *Admin) DeleteService(ctx context.Context, name string) error {
	svc, err := a.resources.GetServiceByName(ctx, name)
	if err != nil {
		return err
	}
	removed, err := a.resources.DeleteSubtree(ctx, svc.ID)
	if err != nil {
		return err
	}
	return a.permissions.ClearForResources(ctx, removed)
}

// CreateResource adds a node below a parent. The store refuses child
// types the service type does not allow under the parent.
func (a *Admin) CreateResource(ctx context.Context, parentID int64, name string, t resource.Type) (*resource.Resource, error) {
	return a.resources.CreateResource(ctx, parentID, name, t)
}

// GetResource returns one node.
func (a *Admin) GetResource(ctx context.Context, id int64) (*resource.Resource, error) {
	return a.resources.GetResource(ctx, id)
}

// GetResourceTree returns the full tree of a service, parents before
// children.
func (a *Admin) GetResourceTree(ctx context.Context, serviceID int64) ([]*resource.Resource, error) {
	svc, err := a.resources.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return a.resources.Subtree(ctx, svc.ID)
}

// DeleteResource removes a node with its subtree and every permission
// entry on the removed nodes. Deleting a tree root is refused, roots
// go away with their service.
func (a *Admin) DeleteResource(ctx context.Context, id int64) error {
	res, err := a.resources.GetResource(ctx, id)
	if err != nil {
		return err
	}
	if res.IsRoot() {
		return errtypes.PolicyViolation("resource is a service root, delete the service instead")
	}
	removed, err := a.resources.DeleteSubtree(ctx, id)
	if err != nil {
		return err
	}
	return a.permissions.ClearForResources(ctx, removed)
}

// UpdateResource renames and, when parentID is not zero, reparents a
// node.
func (a *Admin) UpdateResource(ctx context.Context, id int64, name string, parentID int64) (*resource.Resource, error) {
	if name != "" {
		if err := a.resources.Rename(ctx, id, name); err != nil {
			return nil, err
		}
	}
	if parentID != 0 {
		if err := a.resources.Move(ctx, id, parentID); err != nil {
			return nil, err
		}
	}
	return a.resources.GetResource(ctx, id)
}

// SetResourceOwner assigns or, with both ids zero, clears ownership
// of a resource.
func (a *Admin) SetResourceOwner(ctx context.Context, id, ownerUserID, ownerGroupID int64) error {
	if ownerUserID != 0 && ownerGroupID != 0 {
		return errtypes.BadRequest("resource owner is a user or a group, not both")
	}
	if ownerUserID != 0 {
		if _, err := a.identities.GetUserByID(ctx, ownerUserID); err != nil {
			return err
		}
	}
	if ownerGroupID != 0 {
		if _, err := a.identities.GetGroupByID(ctx, ownerGroupID); err != nil {
			return err
		}
	}
	return a.resources.SetOwner(ctx, id, ownerUserID, ownerGroupID)
}

// CreateUser adds a user. The user always joins the default users
// group; when group names another group it joins that one too.
func (a *Admin) CreateUser(ctx context.Context, name, email, password, group string) (*identity.User, error) {
	if group != "" && group != sharedconf.GetUsersGroup() {
		if _, err := a.identities.GetGroup(ctx, group); err != nil {
			return nil, err
		}
	}
	u, err := a.identities.CreateUser(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	if group != "" && group != sharedconf.GetUsersGroup() {
		if err := a.identities.AddMember(ctx, name, group); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// GetUser returns one user.
func (a *Admin) GetUser(ctx context.Context, name string) (*identity.User, error) {
	return a.identities.GetUser(ctx, name)
}

// ListUsers returns all users.
func (a *Admin) ListUsers(ctx context.Context) ([]*identity.User, error) {
	return a.identities.ListUsers(ctx)
}

// DeleteUser removes a user with its memberships, identity links and
// permission entries. A user still owning resources is refused unless
// force is set, which releases the ownerships first.
func (a *Admin) DeleteUser(ctx context.Context, name string, force bool) error {
	u, err := a.identities.GetUser(ctx, name)
	if err != nil {
		return err
	}
	owned, err := a.resources.CountOwnedByUser(ctx, u.ID)
	if err != nil {
		return err
	}
	if owned > 0 {
		if !force {
			return errtypes.PolicyViolation(fmt.Sprintf("user %s still owns %d resources", name, owned))
		}
		if err := a.resources.ReleaseOwnedByUser(ctx, u.ID); err != nil {
			return err
		}
	}
	if err := a.permissions.ClearForUser(ctx, u.ID); err != nil {
		return err
	}
	return a.identities.DeleteUser(ctx, name)
}

// CreateGroup adds a group.
func (a *Admin) CreateGroup(ctx context.Context, name string) (*identity.Group, error) {
	return a.identities.CreateGroup(ctx, name)
}

// GetGroup returns one group.
func (a *Admin) GetGroup(ctx context.Context, name string) (*identity.Group, error) {
	return a.identities.GetGroup(ctx, name)
}

// ListGroups returns all groups.
func (a *Admin) ListGroups(ctx context.Context) ([]*identity.Group, error) {
	return a.identities.ListGroups(ctx)
}

// DeleteGroup removes a group with its memberships, its permission
// entries and its resource ownerships. The well-known groups are
// refused by the identity store.
func (a *Admin) DeleteGroup(ctx context.Context, name string) error {
	g, err := a.identities.GetGroup(ctx, name)
	if err != nil {
		return err
	}
	if err := a.identities.DeleteGroup(ctx, name); err != nil {
		return err
	}
	if err := a.permissions.ClearForGroup(ctx, g.ID); err != nil {
		return err
	}
	return a.resources.ReleaseOwnedByGroup(ctx, g.ID)
}

// AddMember joins a user to a group.
func (a *Admin) AddMember(ctx context.Context, userName, groupName string) error {
	return a.identities.AddMember(ctx, userName, groupName)
}

// RemoveMember removes a user from a group.
func (a *Admin) RemoveMember(ctx context.Context, userName, groupName string) error {
	return a.identities.RemoveMember(ctx, userName, groupName)
}

// ListMembers returns the users in a group.
func (a *Admin) ListMembers(ctx context.Context, groupName string) ([]*identity.User, error) {
	return a.identities.ListMembers(ctx, groupName)
}

// ListGroupsForUser returns the groups a user belongs to.
func (a *Admin) ListGroupsForUser(ctx context.Context, userName string) ([]*identity.Group, error) {
	return a.identities.ListGroupsForUser(ctx, userName)
}

// VerifyPassword checks a user's credentials for the sign-in flow.
func (a *Admin) VerifyPassword(ctx context.Context, name, password string) (*identity.User, error) {
	return a.identities.VerifyPassword(ctx, name, password)
}

// SetPassword replaces a user's password.
func (a *Admin) SetPassword(ctx context.Context, name, password string) error {
	return a.identities.SetPassword(ctx, name, password)
}

// LinkIdentity records an external identity link for a user.
func (a *Admin) LinkIdentity(ctx context.Context, provider, externalID, externalName, userName string) error {
	return a.identities.LinkIdentity(ctx, provider, externalID, externalName, userName)
}

// UnlinkIdentity removes an external identity link.
func (a *Admin) UnlinkIdentity(ctx context.Context, provider, externalID string) error {
	return a.identities.UnlinkIdentity(ctx, provider, externalID)
}

// GetUserByIdentity returns the user an external identity is linked
// to.
func (a *Admin) GetUserByIdentity(ctx context.Context, provider, externalID string) (*identity.User, error) {
	return a.identities.GetUserByIdentity(ctx, provider, externalID)
}

// ListIdentities returns the external identities linked to a user.
func (a *Admin) ListIdentities(ctx context.Context, userName string) ([]*identity.ExternalIdentity, error) {
	return a.identities.ListIdentities(ctx, userName)
}

// SetPermission stores a permission entry after checking that the
// principal and the resource exist and that the service type of the
// resource's tree declares the permission name. Setting the same
// entry twice is idempotent.
func (a *Admin) SetPermission(ctx context.Context, e *permission.Entry) (*permission.Entry, error) {
	if err := a.checkEntry(ctx, e); err != nil {
		return nil, err
	}
	return a.permissions.Upsert(ctx, e)
}

// ClearPermission removes the entry matching e's principal, resource
// and name.
func (a *Admin) ClearPermission(ctx context.Context, e *permission.Entry) error {
	return a.permissions.Clear(ctx, e)
}

// ListPermissionsForUser returns the entries held by a user.
func (a *Admin) ListPermissionsForUser(ctx context.Context, userName string) ([]*permission.Entry, error) {
	u, err := a.identities.GetUser(ctx, userName)
	if err != nil {
		return nil, err
	}
	return a.permissions.ListForUser(ctx, u.ID)
}

// ListPermissionsForGroup returns the entries held by a group.
func (a *Admin) ListPermissionsForGroup(ctx context.Context, groupName string) ([]*permission.Entry, error) {
	g, err := a.identities.GetGroup(ctx, groupName)
	if err != nil {
		return nil, err
	}
	return a.permissions.ListForGroup(ctx, g.ID)
}

// ListPermissionsForResource returns the entries attached to a
// resource.
func (a *Admin) ListPermissionsForResource(ctx context.Context, resourceID int64) ([]*permission.Entry, error) {
	if _, err := a.resources.GetResource(ctx, resourceID); err != nil {
		return nil, err
	}
	return a.permissions.ListForResource(ctx, resourceID)
}

// ResolveAccess is the hot path: it decides a parsed or raw request
// for a principal. It never returns an error.
func (a *Admin) ResolveAccess(ctx context.Context, principal *identity.PrincipalSet, serviceName string, req *service.Request) access.Decision {
	return a.resolver.Resolve(ctx, principal, serviceName, req)
}

// ResolvePrincipal expands a user name into a principal set.
func (a *Admin) ResolvePrincipal(ctx context.Context, userName string) (*identity.PrincipalSet, error) {
	return a.identities.ResolvePrincipal(ctx, userName)
}

// ResolveAnonymous returns the principal set of unauthenticated
// requests.
func (a *Admin) ResolveAnonymous(ctx context.Context) (*identity.PrincipalSet, error) {
	return a.identities.ResolveAnonymous(ctx)
}

func (a *Admin) checkEntry(ctx context.Context, e *permission.Entry) error {
	if e.UserID != 0 && e.GroupID != 0 {
		return errtypes.BadRequest("entry needs exactly one of user and group")
	}
	if e.UserID != 0 {
		if _, err := a.identities.GetUserByID(ctx, e.UserID); err != nil {
			return err
		}
	}
	if e.GroupID != 0 {
		if _, err := a.identities.GetGroupByID(ctx, e.GroupID); err != nil {
			return err
		}
	}
	res, err := a.resources.GetResource(ctx, e.ResourceID)
	if err != nil {
		return err
	}
	svc, err := a.resources.GetService(ctx, res.RootServiceID)
	if err != nil {
		return err
	}
	typ, ok := service.Lookup(svc.ServiceType)
	if !ok {
		return errtypes.InternalError("service type " + svc.ServiceType + " not registered")
	}
	if !typ.HasPermission(e.Name) {
		return errtypes.PolicyViolation(fmt.Sprintf("permission %s not declared by service type %s", e.Name, typ.Name))
	}
	return nil
}
