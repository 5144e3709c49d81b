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

package mf

import (
	"context"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/chewxy/math32"
	"go.uber.org/zap"

	"github.com/auctionlab/bidrec/base/log"
	"github.com/auctionlab/bidrec/common/floats"
	"github.com/auctionlab/bidrec/dataset"
	"github.com/auctionlab/bidrec/model"
)

// Score is the training quality of a fitted model.
type Score struct {
	RMSE float32
}

type FitConfig struct {
	Verbose int
}

func NewFitConfig() *FitConfig {
	return &FitConfig{Verbose: 10}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

// MF is a matrix factorization model for implicit feedback, fitted by
// stochastic gradient descent. The preference of user u for item i is
// predicted as q_i^T p_u.
//
// Latent factors are stored in flat row-major buffers so a fitted model
// is two contiguous allocations regardless of size.
type MF struct {
	model.BaseModel
	UserDict        *dataset.Dict
	ItemDict        *dataset.Dict
	UserPredictable *bitset.BitSet
	ItemPredictable *bitset.BitSet
	// Model parameters
	UserFactor []float32 // p_u
	ItemFactor []float32 // q_i
	// Hyper parameters
	nFactors   int
	nEpochs    int
	lr         float32
	reg        float32
	initMean   float32
	initStdDev float32
}

// NewMF creates a matrix factorization model. Params:
//
//	NFactors   - The number of latent factors. Default is 20.
//	NEpochs    - The number of SGD iterations. Default is 30.
//	Lr         - The learning rate of SGD. Default is 0.02.
//	Reg        - The regularization strength. Default is 0.02.
//	InitMean   - The mean of initial random latent factors. Default is 0.
//	InitStdDev - The standard deviation of initial random latent factors. Default is 0.1.
func NewMF(params model.Params) *MF {
	mf := new(MF)
	mf.SetParams(params)
	return mf
}

func (mf *MF) SetParams(params model.Params) {
	mf.BaseModel.SetParams(params)
	mf.nFactors = mf.Params.GetInt(model.NFactors, 20)
	mf.nEpochs = mf.Params.GetInt(model.NEpochs, 30)
	mf.lr = mf.Params.GetFloat32(model.Lr, 0.02)
	mf.reg = mf.Params.GetFloat32(model.Reg, 0.02)
	mf.initMean = mf.Params.GetFloat32(model.InitMean, 0)
	mf.initStdDev = mf.Params.GetFloat32(model.InitStdDev, 0.1)
}

// NumFactors returns the number of latent factors.
func (mf *MF) NumFactors() int {
	return mf.nFactors
}

// Clear model weights.
func (mf *MF) Clear() {
	mf.UserDict = nil
	mf.ItemDict = nil
	mf.UserPredictable = nil
	mf.ItemPredictable = nil
	mf.UserFactor = nil
	mf.ItemFactor = nil
}

// Invalid reports whether the model has not been fitted.
func (mf *MF) Invalid() bool {
	return mf == nil || mf.UserDict == nil || mf.ItemDict == nil ||
		mf.UserFactor == nil || mf.ItemFactor == nil
}

// Init indices and trained flags from a train set. The model keeps its
// own copy of the id dictionaries so it stays usable after the snapshot
// is replaced.
func (mf *MF) Init(trainSet *dataset.Dataset) {
	mf.UserDict = dataset.NewDictFrom(trainSet.UserDict().Values())
	mf.ItemDict = dataset.NewDictFrom(trainSet.ItemDict().Values())
	// set user trained flags
	mf.UserPredictable = bitset.New(uint(trainSet.CountUsers()))
	for userIndex, feedback := range trainSet.GetUserFeedback() {
		if len(feedback) > 0 {
			mf.UserPredictable.Set(uint(userIndex))
		}
	}
	// set item trained flags
	mf.ItemPredictable = bitset.New(uint(trainSet.CountItems()))
	for itemIndex, feedback := range trainSet.GetItemFeedback() {
		if len(feedback) > 0 {
			mf.ItemPredictable.Set(uint(itemIndex))
		}
	}
}

// IsUserPredictable returns false if the user had no interactions and its embedding vector was never trained.
func (mf *MF) IsUserPredictable(userIndex int32) bool {
	if userIndex < 0 || int(userIndex) >= mf.UserDict.Count() {
		return false
	}
	return mf.UserPredictable.Test(uint(userIndex))
}

// IsItemPredictable returns false if the item had no interactions and its embedding vector was never trained.
func (mf *MF) IsItemPredictable(itemIndex int32) bool {
	if itemIndex < 0 || int(itemIndex) >= mf.ItemDict.Count() {
		return false
	}
	return mf.ItemPredictable.Test(uint(itemIndex))
}

// GetUserFactor returns the latent factor of a user.
func (mf *MF) GetUserFactor(userIndex int32) []float32 {
	return mf.UserFactor[int(userIndex)*mf.nFactors : (int(userIndex)+1)*mf.nFactors]
}

// GetItemFactor returns the latent factor of an item.
func (mf *MF) GetItemFactor(itemIndex int32) []float32 {
	return mf.ItemFactor[int(itemIndex)*mf.nFactors : (int(itemIndex)+1)*mf.nFactors]
}

// Predict the preference of a user (userId) for an item (itemId).
func (mf *MF) Predict(userId, itemId int64) float32 {
	userIndex := mf.UserDict.Index(userId)
	itemIndex := mf.ItemDict.Index(itemId)
	if userIndex < 0 {
		log.Logger().Warn("unknown user", zap.Int64("user_id", userId))
	}
	if itemIndex < 0 {
		log.Logger().Warn("unknown item", zap.Int64("item_id", itemId))
	}
	return mf.internalPredict(userIndex, itemIndex)
}

func (mf *MF) internalPredict(userIndex, itemIndex int32) float32 {
	if userIndex < 0 || itemIndex < 0 {
		return 0
	}
	return floats.Dot(mf.GetUserFactor(userIndex), mf.GetItemFactor(itemIndex))
}

// Fit the model with a train set. Interactions are visited in a
// shuffled order each epoch. The returned score carries the RMSE of the
// last epoch.
func (mf *MF) Fit(ctx context.Context, trainSet *dataset.Dataset, config *FitConfig) Score {
	if config == nil {
		config = NewFitConfig()
	}
	log.Logger().Info("fit mf",
		zap.Int("n_users", trainSet.CountUsers()),
		zap.Int("n_items", trainSet.CountItems()),
		zap.Int("n_interactions", trainSet.CountInteractions()),
		zap.Any("params", mf.GetParams()))
	mf.Init(trainSet)
	// initialize parameters
	rng := mf.GetRandomGenerator()
	mf.UserFactor = rng.NormalVector(trainSet.CountUsers()*mf.nFactors, mf.initMean, mf.initStdDev)
	mf.ItemFactor = rng.NormalVector(trainSet.CountItems()*mf.nFactors, mf.initMean, mf.initStdDev)
	interactions := trainSet.GetInteractions()
	if len(interactions) == 0 {
		log.Logger().Warn("no interactions to fit")
		return Score{}
	}
	// create buffers
	snapshot := make([]float32, mf.nFactors)
	grad := make([]float32, mf.nFactors)
	// optimize
	var score Score
	start := time.Now()
	for epoch := 1; epoch <= mf.nEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			log.Logger().Warn("fit mf interrupted", zap.Int("epoch", epoch), zap.Error(err))
			break
		}
		var cost float32
		for _, i := range rng.Perm(len(interactions)) {
			interaction := interactions[i]
			pu := mf.GetUserFactor(interaction.UserIndex)
			qi := mf.GetItemFactor(interaction.ItemIndex)
			// compute error: e_{ui} = r - \hat{r}
			upGrad := interaction.Value - floats.Dot(pu, qi)
			cost += upGrad * upGrad
			// update user latent factor: p_u <- p_u + \gamma (e_{ui} q_i - \lambda p_u)
			copy(snapshot, pu)
			floats.MulConstTo(qi, upGrad, grad)
			floats.MulConstAdd(snapshot, -mf.reg, grad)
			floats.MulConstAdd(grad, mf.lr, pu)
			// update item latent factor: q_i <- q_i + \gamma (e_{ui} p_u - \lambda q_i)
			// using the user factor from before this step
			floats.MulConstTo(snapshot, upGrad, grad)
			floats.MulConstAdd(qi, -mf.reg, grad)
			floats.MulConstAdd(grad, mf.lr, qi)
		}
		score.RMSE = math32.Sqrt(cost / float32(len(interactions)))
		if config.Verbose > 0 && (epoch%config.Verbose == 0 || epoch == mf.nEpochs) {
			log.Logger().Debug("fit mf",
				zap.Int("epoch", epoch),
				zap.Int("n_epochs", mf.nEpochs),
				zap.Float32("rmse", score.RMSE))
		}
	}
	log.Logger().Info("fit mf complete",
		zap.Float32("rmse", score.RMSE),
		zap.String("fit_time", time.Since(start).String()))
	return score
}
