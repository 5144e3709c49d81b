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

	"github.com/auctionlab/bidrec/common/heap"
	"github.com/auctionlab/bidrec/storage/data"
)

// Popular ranks auction items by overall interaction volume:
//
//	popularity = bids + viewWeight*views
//
// Items outside their auction window at the given timestamp are
// skipped. Equal scores are broken by ascending item id.
type Popular struct {
	timestamp  time.Time
	viewWeight float32
	filter     *heap.TopKFilter[int64, float32]
}

func NewPopular(viewWeight float32, n int, timestamp time.Time) *Popular {
	return &Popular{
		timestamp:  timestamp,
		viewWeight: viewWeight,
		filter:     heap.NewTopKFilter[int64, float32](n),
	}
}

// Push an item with its total bid and view counts.
func (l *Popular) Push(item data.Item, bids, views int) {
	if !item.IsActiveAt(l.timestamp) {
		return
	}
	l.filter.Push(item.ItemId, float32(bids)+l.viewWeight*float32(views))
}

// PopAll returns the ids of the most popular items in decreasing order
// of popularity.
func (l *Popular) PopAll() []int64 {
	ids, _ := l.filter.PopAll()
	return ids
}

func (l *Popular) Timestamp() time.Time {
	return l.timestamp
}
