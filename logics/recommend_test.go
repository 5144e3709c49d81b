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
	"testing"
	"time"

	"github.com/bits-and-blooms/bitset"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"

	"github.com/auctionlab/bidrec/dataset"
	"github.com/auctionlab/bidrec/model"
	"github.com/auctionlab/bidrec/model/mf"
	"github.com/auctionlab/bidrec/storage/data"
)

// newTestModel builds a single-factor model by hand so scores are
// user factor times item factor.
func newTestModel(userFactors, itemFactors []float32, userIds, itemIds []int64) *mf.MF {
	m := mf.NewMF(model.Params{model.NFactors: 1})
	m.UserDict = dataset.NewDictFrom(userIds)
	m.ItemDict = dataset.NewDictFrom(itemIds)
	m.UserPredictable = bitset.New(uint(len(userIds)))
	for i := range userIds {
		m.UserPredictable.Set(uint(i))
	}
	m.ItemPredictable = bitset.New(uint(len(itemIds)))
	for i := range itemIds {
		m.ItemPredictable.Set(uint(i))
	}
	m.UserFactor = userFactors
	m.ItemFactor = itemFactors
	return m
}

func activeItems(now time.Time, ids ...int64) []data.Item {
	items := make([]data.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, data.Item{
			ItemId:    id,
			StartTime: now.Add(-time.Hour),
			EndTime:   now.Add(time.Hour),
		})
	}
	return items
}

func TestRankItems(t *testing.T) {
	now := time.Now()
	m := newTestModel([]float32{1}, []float32{3, 2, 1}, []int64{1}, []int64{10, 20, 30})
	items := activeItems(now, 10, 20, 30)

	ids := RankItems(m, items, mapset.NewSet[int64](), 1, now, 5)
	assert.Equal(t, []int64{10, 20, 30}, ids)

	// top n cuts the tail
	ids = RankItems(m, items, mapset.NewSet[int64](), 1, now, 2)
	assert.Equal(t, []int64{10, 20}, ids)

	// seen items are excluded
	ids = RankItems(m, items, mapset.NewSet[int64](10), 1, now, 5)
	assert.Equal(t, []int64{20, 30}, ids)

	// items outside their auction window are excluded
	closed := items
	closed[1].EndTime = now.Add(-time.Minute)
	ids = RankItems(m, closed, mapset.NewSet[int64](), 1, now, 5)
	assert.Equal(t, []int64{10, 30}, ids)

	// unknown user yields nothing
	assert.Empty(t, RankItems(m, items, mapset.NewSet[int64](), 99, now, 5))
}

func TestRankItemsTieBreak(t *testing.T) {
	now := time.Now()
	m := newTestModel([]float32{1}, []float32{2, 2, 2}, []int64{1}, []int64{30, 10, 20})
	items := activeItems(now, 30, 10, 20)
	ids := RankItems(m, items, mapset.NewSet[int64](), 1, now, 2)
	assert.Equal(t, []int64{10, 20}, ids)
}

func TestRankItemsUnknownItem(t *testing.T) {
	now := time.Now()
	m := newTestModel([]float32{1}, []float32{3, 2}, []int64{1}, []int64{10, 20})
	// item 40 is unknown to the model
	items := activeItems(now, 10, 20, 40)
	ids := RankItems(m, items, mapset.NewSet[int64](), 1, now, 5)
	assert.Equal(t, []int64{10, 20}, ids)
}
