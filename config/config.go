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
	"strings"

	"github.com/go-playground/validator/v10"
	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/juju/errors"
	"github.com/spf13/viper"

	"github.com/auctionlab/bidrec/model"
	"github.com/auctionlab/bidrec/storage"
)

const (
	// ModeOnline retrains the model from live data on every request.
	ModeOnline = "online"
	// ModeOffline serves recommendations from a pretrained model.
	ModeOffline = "offline"
)

// Config is the configuration for the recommendation engine.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Server    ServerConfig    `mapstructure:"server"`
}

// DatabaseConfig is the configuration for the auction database.
type DatabaseConfig struct {
	DataStore   string `mapstructure:"data_store" validate:"required,data_store"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// RecommendConfig is the configuration of recommendation behaviors.
type RecommendConfig struct {
	Mode       string   `mapstructure:"mode" validate:"oneof=online offline"`
	ModelPath  string   `mapstructure:"model_path"`
	BidWeight  float32  `mapstructure:"bid_weight" validate:"gte=0"`
	ViewWeight float32  `mapstructure:"view_weight" validate:"gte=0"`
	CF         CFConfig `mapstructure:"cf"`
}

// CFConfig is the configuration of the collaborative filtering model.
type CFConfig struct {
	NFactors    int     `mapstructure:"n_factors" validate:"gt=0"`
	NEpochs     int     `mapstructure:"n_epochs" validate:"gt=0"`
	Lr          float32 `mapstructure:"lr" validate:"gt=0"`
	Reg         float32 `mapstructure:"reg" validate:"gte=0"`
	InitMean    float32 `mapstructure:"init_mean"`
	InitStdDev  float32 `mapstructure:"init_std_dev" validate:"gt=0"`
	RandomState int64   `mapstructure:"random_state"`
	Verbose     int     `mapstructure:"verbose" validate:"gte=0"`
}

// ServerConfig is the configuration for the REST server.
type ServerConfig struct {
	HttpHost string `mapstructure:"http_host"`
	HttpPort int    `mapstructure:"http_port" validate:"gte=0"`
	APIKey   string `mapstructure:"api_key"`
	DefaultN int    `mapstructure:"default_n" validate:"gt=0"`
	MaxN     int    `mapstructure:"max_n" validate:"gt=0"`
}

// GetDefaultConfig returns a default configuration.
func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			TablePrefix: "",
		},
		Recommend: RecommendConfig{
			Mode:       ModeOnline,
			BidWeight:  1.0,
			ViewWeight: 0.3,
			CF: CFConfig{
				NFactors:    20,
				NEpochs:     30,
				Lr:          0.02,
				Reg:         0.02,
				InitMean:    0,
				InitStdDev:  0.1,
				RandomState: 0,
				Verbose:     10,
			},
		},
		Server: ServerConfig{
			HttpHost: "0.0.0.0",
			HttpPort: 8087,
			DefaultN: 5,
			MaxN:     50,
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [database]
	viper.SetDefault("database.data_store", defaultConfig.Database.DataStore)
	viper.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	// [recommend]
	viper.SetDefault("recommend.mode", defaultConfig.Recommend.Mode)
	viper.SetDefault("recommend.model_path", defaultConfig.Recommend.ModelPath)
	viper.SetDefault("recommend.bid_weight", defaultConfig.Recommend.BidWeight)
	viper.SetDefault("recommend.view_weight", defaultConfig.Recommend.ViewWeight)
	// [recommend.cf]
	viper.SetDefault("recommend.cf.n_factors", defaultConfig.Recommend.CF.NFactors)
	viper.SetDefault("recommend.cf.n_epochs", defaultConfig.Recommend.CF.NEpochs)
	viper.SetDefault("recommend.cf.lr", defaultConfig.Recommend.CF.Lr)
	viper.SetDefault("recommend.cf.reg", defaultConfig.Recommend.CF.Reg)
	viper.SetDefault("recommend.cf.init_mean", defaultConfig.Recommend.CF.InitMean)
	viper.SetDefault("recommend.cf.init_std_dev", defaultConfig.Recommend.CF.InitStdDev)
	viper.SetDefault("recommend.cf.random_state", defaultConfig.Recommend.CF.RandomState)
	viper.SetDefault("recommend.cf.verbose", defaultConfig.Recommend.CF.Verbose)
	// [server]
	viper.SetDefault("server.http_host", defaultConfig.Server.HttpHost)
	viper.SetDefault("server.http_port", defaultConfig.Server.HttpPort)
	viper.SetDefault("server.api_key", defaultConfig.Server.APIKey)
	viper.SetDefault("server.default_n", defaultConfig.Server.DefaultN)
	viper.SetDefault("server.max_n", defaultConfig.Server.MaxN)
}

type configBinding struct {
	key string
	env string
}

// LoadConfig loads the configuration from a toml file. Keys can be
// overridden by BIDREC_* environment variables.
func LoadConfig(path string) (*Config, error) {
	// set default config
	setDefault()

	// bind environment variables
	bindings := []configBinding{
		{"database.data_store", "BIDREC_DATA_STORE"},
		{"database.table_prefix", "BIDREC_TABLE_PREFIX"},
		{"recommend.mode", "BIDREC_RECOMMEND_MODE"},
		{"recommend.model_path", "BIDREC_MODEL_PATH"},
		{"server.http_host", "BIDREC_SERVER_HTTP_HOST"},
		{"server.http_port", "BIDREC_SERVER_HTTP_PORT"},
		{"server.api_key", "BIDREC_SERVER_API_KEY"},
	}
	for _, binding := range bindings {
		err := viper.BindEnv(binding.key, binding.env)
		if err != nil {
			return nil, errors.Trace(err)
		}
	}

	// load config file
	viper.SetConfigType("toml")
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, errors.Trace(err)
	}

	// unmarshal config file
	var conf Config
	if err := viper.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate the configuration.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("data_store", func(fl validator.FieldLevel) bool {
		prefixes := []string{
			storage.MySQLPrefix,
			storage.PostgresPrefix,
			storage.PostgreSQLPrefix,
			storage.SQLitePrefix,
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(fl.Field().String(), prefix) {
				return true
			}
		}
		return false
	}); err != nil {
		return errors.Trace(err)
	}
	if config.Recommend.Mode == ModeOffline && config.Recommend.ModelPath == "" {
		return errors.New("model_path is required in offline mode")
	}
	return errors.Trace(validate.Struct(config))
}

// MFParams converts the collaborative filtering configuration into
// model hyper-parameters.
func (config *Config) MFParams() model.Params {
	return model.Params{
		model.NFactors:    config.Recommend.CF.NFactors,
		model.NEpochs:     config.Recommend.CF.NEpochs,
		model.Lr:          config.Recommend.CF.Lr,
		model.Reg:         config.Recommend.CF.Reg,
		model.InitMean:    config.Recommend.CF.InitMean,
		model.InitStdDev:  config.Recommend.CF.InitStdDev,
		model.RandomState: config.Recommend.CF.RandomState,
	}
}
