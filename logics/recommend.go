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
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/auctionlab/bidrec/common/floats"
	"github.com/auctionlab/bidrec/common/heap"
	"github.com/auctionlab/bidrec/model/mf"
	"github.com/auctionlab/bidrec/storage/data"
)

const (
	// ModePersonalized means items were ranked by the latent factors of
	// the requested user.
	ModePersonalized = "personalized"
	// ModeColdStart means the user was unknown or had no interactions,
	// so the popularity ranking was served instead.
	ModeColdStart = "cold-start"
	// ModeFallbackPopular means the user was trained but no eligible
	// unseen item remained, so the popularity ranking was served.
	ModeFallbackPopular = "fallback-popular"
)

// Recommendation is a ranked list of item ids and the strategy that
// produced it.
type Recommendation struct {
	Mode  string  `json:"mode"`
	Items []int64 `json:"items"`
}

// RankItems scores candidate items for a user with a fitted model and
// returns the ids of the top n. Items outside their auction window,
// already seen by the user or unknown to the model are skipped. Equal
// scores are broken by ascending item id.
func RankItems(m *mf.MF, items []data.Item, seen mapset.Set[int64], userId int64, now time.Time, n int) []int64 {
	userIndex := m.UserDict.Index(userId)
	if !m.IsUserPredictable(userIndex) {
		return nil
	}
	userFactor := m.GetUserFactor(userIndex)
	filter := heap.NewTopKFilter[int64, float32](n)
	for i := range items {
		item := &items[i]
		if !item.IsActiveAt(now) || seen.Contains(item.ItemId) {
			continue
		}
		itemIndex := m.ItemDict.Index(item.ItemId)
		if !m.IsItemPredictable(itemIndex) {
			continue
		}
		filter.Push(item.ItemId, floats.Dot(userFactor, m.GetItemFactor(itemIndex)))
	}
	ids, _ := filter.PopAll()
	return ids
}
