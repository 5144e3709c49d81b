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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auctionlab/bidrec/config"
	"github.com/auctionlab/bidrec/storage/blob"
	"github.com/auctionlab/bidrec/storage/data"
)

// mockData is an in-memory data.Database for tests.
type mockData struct {
	data.NoDatabase
	users []data.User
	items []data.Item
	bids  []data.Bid
	views []data.View
}

func (m *mockData) GetUsers(_ context.Context) ([]data.User, error) {
	return m.users, nil
}

func (m *mockData) GetItems(_ context.Context) ([]data.Item, error) {
	return m.items, nil
}

func (m *mockData) GetBidCounts(_ context.Context) ([]data.AggregatedCount, error) {
	counts := make(map[data.AggregatedCount]int)
	for _, bid := range m.bids {
		counts[data.AggregatedCount{UserId: bid.BidderId, ItemId: bid.ItemId}]++
	}
	result := make([]data.AggregatedCount, 0, len(counts))
	for key, count := range counts {
		key.Count = count
		result = append(result, key)
	}
	return result, nil
}

func (m *mockData) GetViewCounts(_ context.Context) ([]data.AggregatedCount, error) {
	counts := make(map[data.AggregatedCount]int)
	for _, view := range m.views {
		counts[data.AggregatedCount{UserId: view.UserId, ItemId: view.ItemId}]++
	}
	result := make([]data.AggregatedCount, 0, len(counts))
	for key, count := range counts {
		key.Count = count
		result = append(result, key)
	}
	return result, nil
}

func (m *mockData) InsertView(_ context.Context, view data.View) error {
	m.views = append(m.views, view)
	return nil
}

func newMockData(now time.Time) *mockData {
	return &mockData{
		users: []data.User{{UserId: 1}, {UserId: 2}, {UserId: 3}, {UserId: 4}},
		items: []data.Item{
			{ItemId: 10, StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)},
			{ItemId: 20, StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)},
			{ItemId: 30, StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour)},
		},
		bids: []data.Bid{
			{BidderId: 1, ItemId: 10},
			{BidderId: 1, ItemId: 10},
			{BidderId: 2, ItemId: 10},
			{BidderId: 2, ItemId: 20},
		},
		views: []data.View{
			{UserId: 3, ItemId: 20},
			{UserId: 3, ItemId: 20},
			{UserId: 3, ItemId: 20},
		},
	}
}

// histogramSampleCount reads the observation count of a histogram from
// the default prometheus registry.
func histogramSampleCount(t *testing.T, name string) uint64 {
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func newTestConfig(mode string) *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Database.DataStore = "sqlite://bidrec.db"
	cfg.Recommend.Mode = mode
	cfg.Recommend.CF.Verbose = 0
	return cfg
}

func TestEngineOnline(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	engine := NewEngine(newTestConfig(config.ModeOnline), newMockData(now))
	engine.clock = func() time.Time { return now }

	// user 1 bid on item 10, so item 20 is the only candidate left
	result, err := engine.GetRecommendations(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, ModePersonalized, result.Mode)
	assert.Equal(t, []int64{20}, result.Items)

	// unknown user falls back to popularity
	result, err = engine.GetRecommendations(ctx, 99, 5)
	require.NoError(t, err)
	assert.Equal(t, ModeColdStart, result.Mode)
	assert.Equal(t, []int64{10, 20}, result.Items)

	// user 4 exists but never bid or viewed anything
	result, err = engine.GetRecommendations(ctx, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, ModeColdStart, result.Mode)
	assert.Equal(t, []int64{10, 20}, result.Items)
}

func TestEngineFallbackPopular(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	database := newMockData(now)
	// user 1 has engaged with every open auction
	database.views = append(database.views, data.View{UserId: 1, ItemId: 20, ViewedAt: now})
	engine := NewEngine(newTestConfig(config.ModeOnline), database)
	engine.clock = func() time.Time { return now }

	// nothing is left to personalize, serve the popularity ranking
	result, err := engine.GetRecommendations(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, ModeFallbackPopular, result.Mode)
	assert.Equal(t, []int64{10, 20}, result.Items)
}

func TestEngineOffline(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	engine := NewEngine(newTestConfig(config.ModeOffline), newMockData(now))
	engine.clock = func() time.Time { return now }

	// no model yet, nothing to personalize with
	result, err := engine.GetRecommendations(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, ModeColdStart, result.Mode)
	assert.Equal(t, []int64{10, 20}, result.Items)

	// train and save a model
	trained := histogramSampleCount(t, "bidrec_engine_train_seconds")
	store := blob.NewPOSIX(t.TempDir())
	score, err := engine.TrainAndSave(ctx, store)
	require.NoError(t, err)
	assert.Greater(t, score.RMSE, float32(0))
	assert.Equal(t, trained+1, histogramSampleCount(t, "bidrec_engine_train_seconds"))

	result, err = engine.GetRecommendations(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, ModePersonalized, result.Mode)
	assert.Equal(t, []int64{20}, result.Items)

	// a fresh engine loads the persisted model
	restarted := NewEngine(newTestConfig(config.ModeOffline), newMockData(now))
	restarted.clock = func() time.Time { return now }
	require.NoError(t, restarted.LoadModel(store))
	result, err = restarted.GetRecommendations(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, ModePersonalized, result.Mode)
	assert.Equal(t, []int64{20}, result.Items)
}

func TestEngineLoadModelMissing(t *testing.T) {
	engine := NewEngine(newTestConfig(config.ModeOffline), newMockData(time.Now()))
	assert.Error(t, engine.LoadModel(blob.NewPOSIX(t.TempDir())))
	assert.Nil(t, engine.Model())
}

func TestEngineLogView(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	database := newMockData(now)
	engine := NewEngine(newTestConfig(config.ModeOnline), database)
	engine.clock = func() time.Time { return now }

	require.NoError(t, engine.LogView(ctx, 1, 20))
	assert.Equal(t, data.View{UserId: 1, ItemId: 20, ViewedAt: now}, database.views[len(database.views)-1])

	// the logged view excludes the last open item from personalization
	result, err := engine.GetRecommendations(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, ModeFallbackPopular, result.Mode)
	assert.Equal(t, []int64{10, 20}, result.Items)
}
