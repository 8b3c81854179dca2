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

// Package service defines the service types the daemon understands:
// the permission names each type recognizes, the tree shapes it
// allows and the parser that maps a proxied request onto a resource
// path and a permission name.
package service

import (
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/DACCS-Climate/Magpie/pkg/resource"
)

// NameUnknown is the sentinel permission name parsers return when a
// request does not match the shape they expect. No service type
// declares it, so resolution denies such requests.
const NameUnknown = "unknown"

// Request is a proxied HTTP request as seen by the gateway. Path is
// the full slash separated request path with the service's own name
// as its first segment.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// Param returns the first query value whose key matches name case
// insensitively. OWS clients capitalize parameter keys freely.
func (r *Request) Param(name string) string {
	for k, vs := range r.Query {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

// Segments returns the non-empty path segments of the request.
func (r *Request) Segments() []string {
	parts := strings.Split(r.Path, "/")
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// Target is the outcome of parsing a request: the resource names
// below the service root the request addresses, in order, and the
// permission name it amounts to. An empty Path targets the service
// root itself.
type Target struct {
	Path []string
	Name string
}

// Parser derives the target of a request for one service type.
// Parsers never fail: a request outside the expected shape yields the
// service root and the NameUnknown sentinel.
type Parser interface {
	Parse(r *Request) Target
}

// Type describes one service type.
type Type struct {
	Name        string
	Permissions []string
	// ChildTypes lists the resource types allowed below each parent
	// type. A parent type with no entry accepts no children.
	ChildTypes map[resource.Type][]resource.Type
	Parser     Parser
}

// HasPermission reports whether the type declares the given
// permission name.
func (t Type) HasPermission(name string) bool {
	for _, p := range t.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// ChildAllowed reports whether a child of the given type may be
// created below a parent of the given type.
func (t Type) ChildAllowed(parent, child resource.Type) bool {
	for _, c := range t.ChildTypes[parent] {
		if c == child {
			return true
		}
	}
	return false
}

var (
	mu    sync.RWMutex
	types = map[string]Type{}
)

// Register adds a service type to the registry. It is meant to be
// called from the init function of the package implementing the type.
func Register(t Type) {
	mu.Lock()
	defer mu.Unlock()
	types[t.Name] = t
}

// Lookup returns the service type registered under the given name.
func Lookup(name string) (Type, bool) {
	mu.RLock()
	defer mu.RUnlock()
	t, ok := types[name]
	return t, ok
}

// Types returns the sorted names of all registered service types.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(types))
	for n := range types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NormalizeName maps a raw permission name onto one of the candidate
// names, comparing case insensitively and ignoring underscores and
// dashes, so GetCapabilities and GETCAPABILITIES both normalize to
// get_capabilities. It returns NameUnknown when nothing matches.
func NormalizeName(raw string, candidates []string) string {
	if raw == "" {
		return NameUnknown
	}
	folded := foldName(raw)
	for _, c := range candidates {
		if foldName(c) == folded {
			return c
		}
	}
	return NameUnknown
}

func foldName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}
