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

// Package cors handles cross origin resource sharing for browser
// clients of the APIs.
package cors

import (
	"github.com/rs/cors"

	"github.com/DACCS-Climate/Magpie/pkg/rhttp/global"
	"github.com/DACCS-Climate/Magpie/pkg/token"
	"github.com/DACCS-Climate/Magpie/pkg/utils/cfg"
)

const defaultPriority = 200

func init() {
	global.RegisterMiddleware("cors", New)
}

type config struct {
	Priority         int      `mapstructure:"priority"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	MaxAge           int      `mapstructure:"max_age"`
	Debug            bool     `mapstructure:"debug"`
}

func (c *config) ApplyDefaults() {
	if c.Priority == 0 {
		c.Priority = defaultPriority
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{"Authorization", "Content-Type", token.TokenHeader}
	}
}

// New returns a new CORS middleware.
func New(m map[string]interface{}) (global.Middleware, int, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, 0, err
	}

	cc := cors.New(cors.Options{
		AllowCredentials: c.AllowCredentials,
		AllowedHeaders:   c.AllowedHeaders,
		AllowedMethods:   c.AllowedMethods,
		AllowedOrigins:   c.AllowedOrigins,
		ExposedHeaders:   c.ExposedHeaders,
		MaxAge:           c.MaxAge,
		Debug:            c.Debug,
	})

	return cc.Handler, c.Priority, nil
}
