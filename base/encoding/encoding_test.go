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

package encoding

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteReadFloats(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	expected := []float32{1.5, -2.25, 0, 3.75}
	assert.NoError(t, WriteFloats(buf, expected))
	actual := make([]float32, len(expected))
	assert.NoError(t, ReadFloats(buf, actual))
	assert.Equal(t, expected, actual)
}

func TestReadFloatsTruncated(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteFloats(buf, []float32{1, 2}))
	actual := make([]float32, 4)
	assert.Error(t, ReadFloats(buf, actual))
}

func TestWriteReadBytes(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteBytes(buf, []byte("hello")))
	data, err := ReadBytes(buf)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestWriteReadGob(t *testing.T) {
	type meta struct {
		Name  string
		Users []int64
	}
	buf := bytes.NewBuffer(nil)
	expected := meta{Name: "mf", Users: []int64{1, 2, 3}}
	assert.NoError(t, WriteGob(buf, expected))
	var actual meta
	assert.NoError(t, ReadGob(buf, &actual))
	assert.Equal(t, expected, actual)
}
