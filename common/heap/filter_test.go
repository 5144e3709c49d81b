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
package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopKFilter(t *testing.T) {
	a := NewTopKFilter[int64, float32](3)
	a.Push(10, 2)
	a.Push(20, 8)
	a.Push(30, 1)
	items, weights := a.PopAll()
	assert.Equal(t, []int64{20, 10, 30}, items)
	assert.Equal(t, []float32{8, 2, 1}, weights)

	a = NewTopKFilter[int64, float32](3)
	a.Push(10, 2)
	a.Push(20, 8)
	a.Push(30, 1)
	a.Push(40, 2)
	a.Push(50, 5)
	a.Push(12, 10)
	a.Push(67, 7)
	a.Push(32, 9)
	items, weights = a.PopAll()
	assert.Equal(t, []int64{12, 32, 20}, items)
	assert.Equal(t, []float32{10, 9, 8}, weights)
}

func TestTopKFilterTies(t *testing.T) {
	// equal weights keep the smaller value
	a := NewTopKFilter[int64, float32](2)
	a.Push(30, 5)
	a.Push(10, 5)
	a.Push(20, 5)
	items, weights := a.PopAll()
	assert.Equal(t, []int64{10, 20}, items)
	assert.Equal(t, []float32{5, 5}, weights)
}

func TestTopKStringFilter(t *testing.T) {
	a := NewTopKFilter[string, float64](2)
	a.Push("10", 2)
	a.Push("20", 8)
	a.Push("30", 1)
	items, weights := a.PopAll()
	assert.Equal(t, []string{"20", "10"}, items)
	assert.Equal(t, []float64{8, 2}, weights)
}
