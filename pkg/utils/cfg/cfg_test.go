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

package cfg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DACCS-Climate/Magpie/pkg/utils/cfg"
)

// storeConf is shaped like the store configs the drivers decode.
type storeConf struct {
	Name   string `mapstructure:"name"`
	Driver string `mapstructure:"driver" validate:"required"`
}

func (c *storeConf) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
}

type plainConf struct {
	Prefix  string `mapstructure:"prefix"`
	Expires int    `mapstructure:"expires"`
}

func TestDecodeAppliesDefaults(t *testing.T) {
	var c storeConf
	require.NoError(t, cfg.Decode(map[string]interface{}{"driver": "memory"}, &c))
	assert.Equal(t, storeConf{Name: "default", Driver: "memory"}, c)

	c = storeConf{}
	require.NoError(t, cfg.Decode(map[string]interface{}{"name": "shared", "driver": "sql"}, &c))
	assert.Equal(t, storeConf{Name: "shared", Driver: "sql"}, c)
}

func TestDecodeValidatesRequiredFields(t *testing.T) {
	var c storeConf
	err := cfg.Decode(map[string]interface{}{"name": "shared"}, &c)
	require.Error(t, err, "a missing driver must not decode")
}

func TestDecodeWithoutSetter(t *testing.T) {
	var c plainConf
	require.NoError(t, cfg.Decode(map[string]interface{}{"prefix": "authapi", "expires": 3600}, &c))
	assert.Equal(t, plainConf{Prefix: "authapi", Expires: 3600}, c)
}

func TestDecodeRejectsMismatchedTypes(t *testing.T) {
	var c plainConf
	err := cfg.Decode(map[string]interface{}{"expires": "tomorrow"}, &c)
	require.Error(t, err)
}
