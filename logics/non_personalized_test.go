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

	"github.com/stretchr/testify/assert"

	"github.com/auctionlab/bidrec/storage/data"
)

func TestPopular(t *testing.T) {
	now := time.Now()
	items := activeItems(now, 10, 20, 30)
	popular := NewPopular(0.3, 5, now)
	popular.Push(items[0], 3, 0)  // 3
	popular.Push(items[1], 1, 3)  // 1.9
	popular.Push(items[2], 0, 10) // 3
	assert.Equal(t, []int64{10, 30, 20}, popular.PopAll())
}

func TestPopularSkipsClosedAuctions(t *testing.T) {
	now := time.Now()
	popular := NewPopular(0.3, 5, now)
	popular.Push(data.Item{
		ItemId:    10,
		StartTime: now.Add(-2 * time.Hour),
		EndTime:   now.Add(-time.Hour),
	}, 100, 100)
	popular.Push(data.Item{
		ItemId:    20,
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(2 * time.Hour),
	}, 100, 100)
	popular.Push(activeItems(now, 30)[0], 0, 0)
	assert.Equal(t, []int64{30}, popular.PopAll())
}

func TestPopularTopN(t *testing.T) {
	now := time.Now()
	items := activeItems(now, 10, 20, 30, 40)
	popular := NewPopular(0.3, 2, now)
	popular.Push(items[0], 1, 0)
	popular.Push(items[1], 4, 0)
	popular.Push(items[2], 3, 0)
	popular.Push(items[3], 2, 0)
	assert.Equal(t, []int64{20, 30}, popular.PopAll())
}
