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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/emicklei/go-restful/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/auctionlab/bidrec/base/log"
	"github.com/auctionlab/bidrec/cmd/version"
	"github.com/auctionlab/bidrec/config"
	"github.com/auctionlab/bidrec/logics"
	"github.com/auctionlab/bidrec/server"
	"github.com/auctionlab/bidrec/storage/blob"
	"github.com/auctionlab/bidrec/storage/data"
)

var rootCommand = &cobra.Command{
	Use:   "bidrec",
	Short: "Recommendation engine for auction sites.",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}
		_ = cmd.Help()
	},
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Serve recommendations over the RESTful API.",
	Run: func(cmd *cobra.Command, args []string) {
		conf, database := setup(cmd)
		engine := logics.NewEngine(conf, database)
		if conf.Recommend.Mode == config.ModeOffline {
			store := blob.NewPOSIX(conf.Recommend.ModelPath)
			if err := engine.LoadModel(store); err != nil {
				log.Logger().Fatal("failed to load model",
					zap.String("model_path", conf.Recommend.ModelPath), zap.Error(err))
			}
		}
		s := &server.RestServer{
			Config:     conf,
			DataClient: database,
			Engine:     engine,
			HttpHost:   conf.Server.HttpHost,
			HttpPort:   conf.Server.HttpPort,
			WebService: new(restful.WebService),
		}
		s.StartHttpServer()
	},
}

var trainCommand = &cobra.Command{
	Use:   "train",
	Short: "Fit a model from the database and save it to the model path.",
	Run: func(cmd *cobra.Command, args []string) {
		conf, database := setup(cmd)
		defer database.Close()
		engine := logics.NewEngine(conf, database)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		store := blob.NewPOSIX(conf.Recommend.ModelPath)
		score, err := engine.TrainAndSave(ctx, store)
		if err != nil {
			log.Logger().Fatal("failed to train model", zap.Error(err))
		}
		log.Logger().Info("training complete",
			zap.String("model_path", conf.Recommend.ModelPath),
			zap.Float32("rmse", score.RMSE))
	},
}

// setup loads the configuration and opens the data store.
func setup(cmd *cobra.Command) (*config.Config, data.Database) {
	debug, _ := cmd.Flags().GetBool("debug")
	log.SetLogger(cmd.Flags(), debug)

	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err))
	}

	database, err := data.Open(conf.Database.DataStore, conf.Database.TablePrefix)
	if err != nil {
		log.Logger().Fatal("failed to connect data store",
			zap.String("data_store", log.RedactDBURL(conf.Database.DataStore)), zap.Error(err))
	}
	if err = database.Init(); err != nil {
		log.Logger().Fatal("failed to init data store", zap.Error(err))
	}
	return conf, database
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.PersistentFlags().BoolP("version", "v", false, "bidrec version")
	rootCommand.AddCommand(serveCommand)
	rootCommand.AddCommand(trainCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
