// Copyright 2018-2021 CERN
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

// Package errtypes contains definitions for common errors.
// It would have been nice to call this package errors, err or error
// but errors clashes with github.com/pkg/errors, err is used for any error variable
// and error is a reserved word :)
package errtypes

// NotFound is the error to use when a resource is not found.
type NotFound string

func (e NotFound) Error() string { return "error: not found: " + string(e) }

// IsNotFound implements the IsNotFound interface.
func (e NotFound) IsNotFound() {}

// AlreadyExists is the error to use when a unique key already exists.
type AlreadyExists string

func (e AlreadyExists) Error() string { return "error: already exists: " + string(e) }

// IsAlreadyExists implements the IsAlreadyExists interface.
func (e AlreadyExists) IsAlreadyExists() {}

// UserRequired is the error to use when an operation needs an
// authenticated user and none was supplied.
type UserRequired string

func (e UserRequired) Error() string { return "error: user required: " + string(e) }

// IsUserRequired implements the IsUserRequired interface.
func (e UserRequired) IsUserRequired() {}

// InvalidCredentials is the error to use when receiving invalid credentials.
type InvalidCredentials string

func (e InvalidCredentials) Error() string { return "error: invalid credentials: " + string(e) }

// IsInvalidCredentials implements the IsInvalidCredentials interface.
func (e InvalidCredentials) IsInvalidCredentials() {}

// PermissionDenied is the error to use when a principal lacks the rights
// for the attempted operation.
type PermissionDenied string

func (e PermissionDenied) Error() string { return "error: permission denied: " + string(e) }

// IsPermissionDenied implements the IsPermissionDenied interface.
func (e PermissionDenied) IsPermissionDenied() {}

// BadRequest is the error to use when the request is malformed: bad
// identifiers, lengths out of range or values outside their enum.
type BadRequest string

func (e BadRequest) Error() string { return "error: bad request: " + string(e) }

// IsBadRequest implements the IsBadRequest interface.
func (e BadRequest) IsBadRequest() {}

// PolicyViolation is the error to use when a structural rule of the
// resource model would be broken: a child type not allowed under its
// parent or a permission name unknown to the service type.
type PolicyViolation string

func (e PolicyViolation) Error() string { return "error: policy violation: " + string(e) }

// IsPolicyViolation implements the IsPolicyViolation interface.
func (e PolicyViolation) IsPolicyViolation() {}

// Unavailable is the error to use when the backing store cannot be
// reached or hit a transient failure such as a deadlock. Callers may
// retry the operation.
type Unavailable string

func (e Unavailable) Error() string { return "error: unavailable: " + string(e) }

// IsUnavailable implements the IsUnavailable interface.
func (e Unavailable) IsUnavailable() {}

// InternalError is the error to use when an invariant is broken.
type InternalError string

func (e InternalError) Error() string { return "error: internal error: " + string(e) }

// IsInternalError implements the IsInternalError interface.
func (e InternalError) IsInternalError() {}

// NotSupported is the error to use when an action is not supported.
type NotSupported string

func (e NotSupported) Error() string { return "error: not supported: " + string(e) }

// IsNotSupported implements the IsNotSupported interface.
func (e NotSupported) IsNotSupported() {}

// IsNotFound is the interface to implement
// to specify that a resource is not found.
type IsNotFound interface {
	IsNotFound()
}

// IsAlreadyExists is the interface to implement
// to specify that a resource already exists.
type IsAlreadyExists interface {
	IsAlreadyExists()
}

// IsUserRequired is the interface to implement
// to specify that a user is required.
type IsUserRequired interface {
	IsUserRequired()
}

// IsInvalidCredentials is the interface to implement
// to specify that credentials were wrong.
type IsInvalidCredentials interface {
	IsInvalidCredentials()
}

// IsPermissionDenied is the interface to implement
// to specify that an action is denied.
type IsPermissionDenied interface {
	IsPermissionDenied()
}

// IsBadRequest is the interface to implement
// to specify that the request is malformed.
type IsBadRequest interface {
	IsBadRequest()
}

// IsPolicyViolation is the interface to implement
// to specify that a structural rule was broken.
type IsPolicyViolation interface {
	IsPolicyViolation()
}

// IsUnavailable is the interface to implement
// to specify that the backing store is temporarily unreachable.
type IsUnavailable interface {
	IsUnavailable()
}

// IsInternalError is the interface to implement
// to specify that an invariant is broken.
type IsInternalError interface {
	IsInternalError()
}

// IsNotSupported is the interface to implement
// to specify that an action is not supported.
type IsNotSupported interface {
	IsNotSupported()
}
