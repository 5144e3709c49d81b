// Copyright 2025 bidrec Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/auctionlab/bidrec/model"
)

func TestUnmarshal(t *testing.T) {
	data, err := os.ReadFile("../config.toml.template")
	assert.NoError(t, err)
	text := string(data)
	text = strings.Replace(text, "data_store = \"\"", "data_store = \"sqlite://bidrec.db\"", -1)
	text = strings.Replace(text, "api_key = \"\"", "api_key = \"19260817\"", -1)
	viper.SetConfigType("toml")
	err = viper.ReadConfig(strings.NewReader(text))
	assert.NoError(t, err)
	var config Config
	err = viper.Unmarshal(&config)
	assert.NoError(t, err)

	// [database]
	assert.Equal(t, "sqlite://bidrec.db", config.Database.DataStore)
	assert.Equal(t, "", config.Database.TablePrefix)
	// [recommend]
	assert.Equal(t, ModeOnline, config.Recommend.Mode)
	assert.Equal(t, float32(1.0), config.Recommend.BidWeight)
	assert.Equal(t, float32(0.3), config.Recommend.ViewWeight)
	// [recommend.cf]
	assert.Equal(t, 20, config.Recommend.CF.NFactors)
	assert.Equal(t, 30, config.Recommend.CF.NEpochs)
	assert.Equal(t, float32(0.02), config.Recommend.CF.Lr)
	assert.Equal(t, float32(0.02), config.Recommend.CF.Reg)
	assert.Equal(t, float32(0.1), config.Recommend.CF.InitStdDev)
	assert.Equal(t, int64(0), config.Recommend.CF.RandomState)
	assert.Equal(t, 10, config.Recommend.CF.Verbose)
	// [server]
	assert.Equal(t, "0.0.0.0", config.Server.HttpHost)
	assert.Equal(t, 8087, config.Server.HttpPort)
	assert.Equal(t, "19260817", config.Server.APIKey)
	assert.Equal(t, 5, config.Server.DefaultN)
	assert.Equal(t, 50, config.Server.MaxN)
}

func TestSetDefault(t *testing.T) {
	viper.Reset()
	setDefault()
	viper.SetConfigType("toml")
	err := viper.ReadConfig(strings.NewReader(""))
	assert.NoError(t, err)
	var config Config
	err = viper.Unmarshal(&config)
	assert.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), &config)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	text := "[database]\ndata_store = \"sqlite://bidrec.db\"\n"
	assert.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	config, err := LoadConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, "sqlite://bidrec.db", config.Database.DataStore)
	assert.Equal(t, 20, config.Recommend.CF.NFactors)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("BIDREC_DATA_STORE", "sqlite://env.db")
	t.Setenv("BIDREC_RECOMMEND_MODE", "online")
	path := filepath.Join(t.TempDir(), "config.toml")
	assert.NoError(t, os.WriteFile(path, []byte(""), 0o644))
	config, err := LoadConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, "sqlite://env.db", config.Database.DataStore)
}

func TestValidate(t *testing.T) {
	config := GetDefaultConfig()
	config.Database.DataStore = "sqlite://bidrec.db"
	assert.NoError(t, config.Validate())

	invalid := GetDefaultConfig()
	invalid.Database.DataStore = "unknown://bidrec.db"
	assert.Error(t, invalid.Validate())

	invalid = GetDefaultConfig()
	invalid.Database.DataStore = "sqlite://bidrec.db"
	invalid.Recommend.Mode = "batch"
	assert.Error(t, invalid.Validate())

	invalid = GetDefaultConfig()
	invalid.Database.DataStore = "sqlite://bidrec.db"
	invalid.Recommend.Mode = ModeOffline
	assert.Error(t, invalid.Validate())
	invalid.Recommend.ModelPath = "/var/lib/bidrec/model"
	assert.NoError(t, invalid.Validate())
}

func TestMFParams(t *testing.T) {
	config := GetDefaultConfig()
	params := config.MFParams()
	assert.Equal(t, 20, params.GetInt(model.NFactors, 0))
	assert.Equal(t, 30, params.GetInt(model.NEpochs, 0))
	assert.Equal(t, float32(0.02), params.GetFloat32(model.Lr, 0))
	assert.Equal(t, int64(0), params.GetInt64(model.RandomState, -1))
}
