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

// Dict maps external 64-bit ids to dense 32-bit indices.
type Dict struct {
	index  map[int64]int32
	values []int64
}

func NewDict() *Dict {
	return &Dict{index: make(map[int64]int32)}
}

// NewDictFrom builds a dict from an ordered list of ids.
func NewDictFrom(values []int64) *Dict {
	d := &Dict{
		index:  make(map[int64]int32, len(values)),
		values: make([]int64, len(values)),
	}
	copy(d.values, values)
	for i, v := range values {
		d.index[v] = int32(i)
	}
	return d
}

func (d *Dict) Count() int {
	return len(d.values)
}

// Add inserts an id and returns its index. Duplicate ids keep their
// original index.
func (d *Dict) Add(v int64) int32 {
	if i, ok := d.index[v]; ok {
		return i
	}
	i := int32(len(d.values))
	d.index[v] = i
	d.values = append(d.values, v)
	return i
}

// Index returns the dense index of an id, or a negative value if the id
// is unknown.
func (d *Dict) Index(v int64) int32 {
	if i, ok := d.index[v]; ok {
		return i
	}
	return -1
}

// Value returns the id at a dense index.
func (d *Dict) Value(i int32) int64 {
	return d.values[i]
}

// Values returns all ids in index order. The returned slice must not be
// modified.
func (d *Dict) Values() []int64 {
	return d.values
}
