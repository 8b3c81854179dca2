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

// Package appctx carries the request scoped logger through the call
// chain. The outermost middleware stores a logger enriched with the
// request id, handlers and stores retrieve it to log with context.
package appctx

import (
	"context"

	"github.com/rs/zerolog"
)

// WithLogger returns a context with the given logger attached.
func WithLogger(ctx context.Context, log *zerolog.Logger) context.Context {
	return log.WithContext(ctx)
}

// GetLogger returns the logger stored in the context. When no logger
// was stored it returns a disabled logger, so callers never need a nil
// check.
func GetLogger(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
