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

// Package access resolves whether a principal may perform a request
// against a protected service. It combines the service type registry,
// the resource tree and the permission store into one decision and it
// never returns an error: whatever goes wrong during resolution comes
// back as a deny with a reason, so the gateway fails closed.
package access

import (
	"context"
	"time"

	"github.com/DACCS-Climate/Magpie/pkg/appctx"
	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/identity"
	"github.com/DACCS-Climate/Magpie/pkg/metrics"
	"github.com/DACCS-Climate/Magpie/pkg/permission"
	"github.com/DACCS-Climate/Magpie/pkg/resource"
	"github.com/DACCS-Climate/Magpie/pkg/service"
)

// Reasons carried by decisions. Allows come from the first three,
// denies from the rest. Reasons are stable: they end up in gateway
// responses, logs and metric labels.
const (
	ReasonAdminBypass       = "admin-bypass"
	ReasonOwner             = "owner"
	ReasonGranted           = "granted"
	ReasonDeniedByEntry     = "denied-by-entry"
	ReasonNoMatchingEntry   = "no-matching-entry"
	ReasonUnknownPermission = "unknown-permission"
	ReasonUnknownService    = "unknown-service"
	ReasonStoreError        = "store-error"
	ReasonDeadline          = "deadline"
)

// Decision is the outcome of one resolution.
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

func allow(reason string) Decision { return Decision{Allow: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allow: false, Reason: reason} }

// Resolver decides access requests against the stores.
type Resolver struct {
	resources   resource.Manager
	permissions permission.Manager
}

// NewResolver returns a resolver reading from the given stores.
func NewResolver(resources resource.Manager, permissions permission.Manager) *Resolver {
	return &Resolver{resources: resources, permissions: permissions}
}

// Resolve parses the request with the parser of the named service's
// type and resolves the outcome.
func (r *Resolver) Resolve(ctx context.Context, principal *identity.PrincipalSet, serviceName string, req *service.Request) Decision {
	start := time.Now()
	d, serviceType := r.resolve(ctx, principal, serviceName, req)
	metrics.RecordDecision(serviceType, d.Allow, d.Reason, time.Since(start))
	return d
}

func (r *Resolver) resolve(ctx context.Context, principal *identity.PrincipalSet, serviceName string, req *service.Request) (Decision, string) {
	if principal.Admin {
		return allow(ReasonAdminBypass), service.NameUnknown
	}

	svc, err := r.resources.GetServiceByName(ctx, serviceName)
	if err != nil {
		if _, ok := err.(errtypes.IsNotFound); ok {
			return deny(ReasonUnknownService), service.NameUnknown
		}
		return r.storeFailure(ctx, err), service.NameUnknown
	}

	typ, ok := service.Lookup(svc.ServiceType)
	if !ok {
		// A service row whose type nobody registered cannot be
		// parsed, let alone granted.
		return deny(ReasonUnknownService), service.NameUnknown
	}

	return r.resolveParsed(ctx, principal, svc, typ, typ.Parser.Parse(req)), typ.Name
}

// ResolveParsed resolves a target that has already been parsed, for
// callers that bypass the request parsers such as the admin API.
func (r *Resolver) ResolveParsed(ctx context.Context, principal *identity.PrincipalSet, svc *resource.Service, target service.Target) Decision {
	start := time.Now()
	var d Decision
	typ, ok := service.Lookup(svc.ServiceType)
	switch {
	case principal.Admin:
		d = allow(ReasonAdminBypass)
	case !ok:
		d = deny(ReasonUnknownService)
	default:
		d = r.resolveParsed(ctx, principal, svc, typ, target)
	}
	metrics.RecordDecision(svc.ServiceType, d.Allow, d.Reason, time.Since(start))
	return d
}

func (r *Resolver) resolveParsed(ctx context.Context, principal *identity.PrincipalSet, svc *resource.Service, typ service.Type, target service.Target) Decision {
	// The unmatched tail of the path is ignored: entries apply to
	// the deepest node the tree knows about.
	chain, _, err := r.resources.LookupPath(ctx, svc.ID, target.Path)
	if err != nil {
		return r.storeFailure(ctx, err)
	}
	if len(chain) == 0 {
		return deny(ReasonUnknownService)
	}

	if !typ.HasPermission(target.Name) {
		return deny(ReasonUnknownPermission)
	}

	node := chain[len(chain)-1]
	if userID := principal.UserID(); userID != 0 && node.OwnerUserID == userID {
		return allow(ReasonOwner)
	}
	if node.OwnerGroupID != 0 && principal.HasGroup(node.OwnerGroupID) {
		return allow(ReasonOwner)
	}

	ids := make([]int64, len(chain))
	for i, res := range chain {
		ids[i] = res.ID
	}
	entries, err := r.permissions.ListOnPath(ctx, principal.UserID(), principal.GroupIDs, ids, target.Name)
	if err != nil {
		return r.storeFailure(ctx, err)
	}

	byNode := make(map[int64][]*permission.Entry, len(entries))
	for _, e := range entries {
		byNode[e.ResourceID] = append(byNode[e.ResourceID], e)
	}

	// Walk the chain from the target towards the root. The first
	// level carrying an applicable entry decides; at one level user
	// entries shadow group entries and within one kind the ranking
	// of the algebra picks the strongest statement.
	for i := len(chain) - 1; i >= 0; i-- {
		atTarget := i == len(chain)-1
		levelEntries := byNode[chain[i].ID]

		var userSets, groupSets []permission.Set
		for _, e := range levelEntries {
			if !atTarget && e.Scope != permission.Recursive {
				continue
			}
			if e.UserID != 0 {
				userSets = append(userSets, e.Set)
			} else {
				groupSets = append(groupSets, e.Set)
			}
		}

		if set, ok := permission.Strongest(userSets); ok {
			return fromSet(set)
		}
		if set, ok := permission.Strongest(groupSets); ok {
			return fromSet(set)
		}
	}
	return deny(ReasonNoMatchingEntry)
}

func fromSet(set permission.Set) Decision {
	if set.Access == permission.Allow {
		return allow(ReasonGranted)
	}
	return deny(ReasonDeniedByEntry)
}

// storeFailure maps a store error to a deny. The error is logged here
// because it is not surfaced any further.
func (r *Resolver) storeFailure(ctx context.Context, err error) Decision {
	appctx.GetLogger(ctx).Error().Err(err).Msg("access: store failure during resolution")
	if ctx.Err() != nil {
		return deny(ReasonDeadline)
	}
	return deny(ReasonStoreError)
}
