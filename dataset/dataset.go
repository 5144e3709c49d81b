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

package dataset

import (
	"sort"
	"time"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/auctionlab/bidrec/base/log"
	"github.com/auctionlab/bidrec/storage/data"
)

// Interaction is one aggregated (user, item) training example. The
// value is the implicit preference strength of the user for the item.
type Interaction struct {
	UserIndex int32
	ItemIndex int32
	Value     float32
}

// Dataset is an immutable snapshot of users, items and their aggregated
// interactions, indexed by dense ids.
type Dataset struct {
	timestamp    time.Time
	users        []data.User
	items        []data.Item
	userDict     *Dict
	itemDict     *Dict
	interactions []Interaction
	userFeedback [][]int32
	itemFeedback [][]int32
}

type interactionKey struct {
	userIndex int32
	itemIndex int32
}

// New builds a dataset from users, items and aggregated counts of bids
// and views. The strength of each (user, item) pair is
//
//	bidWeight*log(1+bids) + viewWeight*log(1+views)
//
// Counts referring to unknown users or items are dropped.
func New(timestamp time.Time, users []data.User, items []data.Item,
	bids, views []data.AggregatedCount, bidWeight, viewWeight float32) *Dataset {
	d := &Dataset{
		timestamp:    timestamp,
		users:        users,
		items:        items,
		userDict:     NewDict(),
		itemDict:     NewDict(),
		userFeedback: make([][]int32, len(users)),
		itemFeedback: make([][]int32, len(items)),
	}
	for _, user := range users {
		d.userDict.Add(user.UserId)
	}
	for _, item := range items {
		d.itemDict.Add(item.ItemId)
	}
	strengths := make(map[interactionKey]float32)
	d.accumulate(strengths, bids, bidWeight)
	d.accumulate(strengths, views, viewWeight)
	d.interactions = make([]Interaction, 0, len(strengths))
	for key, value := range strengths {
		d.interactions = append(d.interactions, Interaction{
			UserIndex: key.userIndex,
			ItemIndex: key.itemIndex,
			Value:     value,
		})
	}
	sort.Slice(d.interactions, func(i, j int) bool {
		if d.interactions[i].UserIndex != d.interactions[j].UserIndex {
			return d.interactions[i].UserIndex < d.interactions[j].UserIndex
		}
		return d.interactions[i].ItemIndex < d.interactions[j].ItemIndex
	})
	for _, interaction := range d.interactions {
		d.userFeedback[interaction.UserIndex] = append(d.userFeedback[interaction.UserIndex], interaction.ItemIndex)
		d.itemFeedback[interaction.ItemIndex] = append(d.itemFeedback[interaction.ItemIndex], interaction.UserIndex)
	}
	return d
}

func (d *Dataset) accumulate(strengths map[interactionKey]float32, counts []data.AggregatedCount, weight float32) {
	for _, count := range counts {
		userIndex := d.userDict.Index(count.UserId)
		itemIndex := d.itemDict.Index(count.ItemId)
		if userIndex < 0 || itemIndex < 0 {
			log.Logger().Debug("drop interaction with unknown id",
				zap.Int64("user_id", count.UserId),
				zap.Int64("item_id", count.ItemId))
			continue
		}
		key := interactionKey{userIndex: userIndex, itemIndex: itemIndex}
		strengths[key] += weight * math32.Log1p(float32(count.Count))
	}
}

func (d *Dataset) GetTimestamp() time.Time {
	return d.timestamp
}

func (d *Dataset) GetUsers() []data.User {
	return d.users
}

func (d *Dataset) CountUsers() int {
	return len(d.users)
}

func (d *Dataset) GetItems() []data.Item {
	return d.items
}

func (d *Dataset) CountItems() int {
	return len(d.items)
}

func (d *Dataset) GetInteractions() []Interaction {
	return d.interactions
}

func (d *Dataset) CountInteractions() int {
	return len(d.interactions)
}

func (d *Dataset) UserDict() *Dict {
	return d.userDict
}

func (d *Dataset) ItemDict() *Dict {
	return d.itemDict
}

// GetUserFeedback returns the item indices each user interacted with.
func (d *Dataset) GetUserFeedback() [][]int32 {
	return d.userFeedback
}

// GetItemFeedback returns the user indices each item was touched by.
func (d *Dataset) GetItemFeedback() [][]int32 {
	return d.itemFeedback
}

// SeenItems returns the ids of items the user has bid on or viewed. An
// unknown user yields an empty set.
func (d *Dataset) SeenItems(userId int64) mapset.Set[int64] {
	seen := mapset.NewSet[int64]()
	userIndex := d.userDict.Index(userId)
	if userIndex < 0 {
		return seen
	}
	for _, itemIndex := range d.userFeedback[userIndex] {
		seen.Add(d.itemDict.Value(itemIndex))
	}
	return seen
}
