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

package logics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/auctionlab/bidrec/base/log"
	"github.com/auctionlab/bidrec/config"
	"github.com/auctionlab/bidrec/dataset"
	"github.com/auctionlab/bidrec/model/mf"
	"github.com/auctionlab/bidrec/storage/blob"
	"github.com/auctionlab/bidrec/storage/data"
)

// Engine produces recommendations from the auction database. In online
// mode a model is fitted from live data on every request. In offline
// mode a pretrained model is served while live data still drives
// auction windows and seen item exclusion.
type Engine struct {
	cfg      *config.Config
	database data.Database
	model    atomic.Pointer[mf.MF]
	clock    func() time.Time
}

func NewEngine(cfg *config.Config, database data.Database) *Engine {
	return &Engine{
		cfg:      cfg,
		database: database,
		clock:    time.Now,
	}
}

// Model returns the current pretrained model, or nil.
func (e *Engine) Model() *mf.MF {
	return e.model.Load()
}

// SetModel atomically replaces the served model.
func (e *Engine) SetModel(m *mf.MF) {
	e.model.Store(m)
}

type snapshot struct {
	set   *dataset.Dataset
	items []data.Item
	bids  []data.AggregatedCount
	views []data.AggregatedCount
}

func (e *Engine) loadSnapshot(ctx context.Context, now time.Time) (*snapshot, error) {
	users, err := e.database.GetUsers(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	items, err := e.database.GetItems(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	bids, err := e.database.GetBidCounts(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	views, err := e.database.GetViewCounts(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &snapshot{
		set:   dataset.New(now, users, items, bids, views, e.cfg.Recommend.BidWeight, e.cfg.Recommend.ViewWeight),
		items: items,
		bids:  bids,
		views: views,
	}, nil
}

// GetRecommendations returns the top n items for a user. The mode field
// of the result tells which strategy produced the list: "personalized"
// when the user's latent factors ranked at least one item, "cold-start"
// when the user carries no training signal, "fallback-popular" when the
// user is trained but exclusions left nothing to personalize. The
// popularity ranking served by the last two is global and does not
// exclude seen items.
func (e *Engine) GetRecommendations(ctx context.Context, userId int64, n int) (Recommendation, error) {
	now := e.clock()
	snap, err := e.loadSnapshot(ctx, now)
	if err != nil {
		return Recommendation{}, errors.Trace(err)
	}
	var m *mf.MF
	switch e.cfg.Recommend.Mode {
	case config.ModeOnline:
		// users without interactions gain nothing from a fit, skip it
		userIndex := snap.set.UserDict().Index(userId)
		if userIndex < 0 || len(snap.set.GetUserFeedback()[userIndex]) == 0 {
			return Recommendation{
				Mode:  ModeColdStart,
				Items: e.popularItems(snap, now, n),
			}, nil
		}
		m = mf.NewMF(e.cfg.MFParams())
		m.Fit(ctx, snap.set, mf.NewFitConfig().SetVerbose(e.cfg.Recommend.CF.Verbose))
	case config.ModeOffline:
		m = e.model.Load()
	}
	if m != nil && !m.Invalid() && m.IsUserPredictable(m.UserDict.Index(userId)) {
		items := RankItems(m, snap.items, snap.set.SeenItems(userId), userId, now, n)
		if len(items) > 0 {
			return Recommendation{Mode: ModePersonalized, Items: items}, nil
		}
		return Recommendation{
			Mode:  ModeFallbackPopular,
			Items: e.popularItems(snap, now, n),
		}, nil
	}
	return Recommendation{
		Mode:  ModeColdStart,
		Items: e.popularItems(snap, now, n),
	}, nil
}

func (e *Engine) popularItems(snap *snapshot, now time.Time, n int) []int64 {
	totalBids := make(map[int64]int)
	for _, count := range snap.bids {
		totalBids[count.ItemId] += count.Count
	}
	totalViews := make(map[int64]int)
	for _, count := range snap.views {
		totalViews[count.ItemId] += count.Count
	}
	popular := NewPopular(e.cfg.Recommend.ViewWeight, n, now)
	for _, item := range snap.items {
		popular.Push(item, totalBids[item.ItemId], totalViews[item.ItemId])
	}
	return popular.PopAll()
}

// TrainAndSave fits a model from the current database snapshot, writes
// it into the blob store and serves it from now on.
func (e *Engine) TrainAndSave(ctx context.Context, store blob.Store) (mf.Score, error) {
	now := e.clock()
	start := time.Now()
	snap, err := e.loadSnapshot(ctx, now)
	if err != nil {
		return mf.Score{}, errors.Trace(err)
	}
	m := mf.NewMF(e.cfg.MFParams())
	score := m.Fit(ctx, snap.set, mf.NewFitConfig().SetVerbose(e.cfg.Recommend.CF.Verbose))
	if err := ctx.Err(); err != nil {
		return score, errors.Trace(err)
	}
	if err := mf.SaveModel(m, store); err != nil {
		return score, errors.Trace(err)
	}
	e.SetModel(m)
	TrainSeconds.Observe(time.Since(start).Seconds())
	log.Logger().Info("trained model saved",
		zap.Int("n_users", snap.set.CountUsers()),
		zap.Int("n_items", snap.set.CountItems()),
		zap.Float32("rmse", score.RMSE))
	return score, nil
}

// LoadModel reads a pretrained model from the blob store and serves it.
func (e *Engine) LoadModel(store blob.Store) error {
	m, err := mf.LoadModel(store)
	if err != nil {
		return errors.Trace(err)
	}
	e.SetModel(m)
	log.Logger().Info("model loaded",
		zap.Int("n_users", m.UserDict.Count()),
		zap.Int("n_items", m.ItemDict.Count()),
		zap.Int("n_factors", m.NumFactors()))
	return nil
}

// LogView appends a page view to the view history.
func (e *Engine) LogView(ctx context.Context, userId, itemId int64) error {
	return errors.Trace(e.database.InsertView(ctx, data.View{
		UserId:   userId,
		ItemId:   itemId,
		ViewedAt: e.clock(),
	}))
}
