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

package mf

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auctionlab/bidrec/storage/blob"
)

func TestSaveLoadModel(t *testing.T) {
	dir := t.TempDir()
	store := blob.NewPOSIX(dir)
	m := NewMF(nil)
	m.Fit(context.Background(), newTrainSet(), NewFitConfig().SetVerbose(0))
	require.NoError(t, SaveModel(m, store))

	loaded, err := LoadModel(store)
	require.NoError(t, err)
	assert.Equal(t, m.nFactors, loaded.nFactors)
	assert.Equal(t, m.UserDict.Values(), loaded.UserDict.Values())
	assert.Equal(t, m.ItemDict.Values(), loaded.ItemDict.Values())
	assert.Equal(t, m.UserFactor, loaded.UserFactor)
	assert.Equal(t, m.ItemFactor, loaded.ItemFactor)
	assert.Equal(t, m.Predict(1, 10), loaded.Predict(1, 10))
	assert.Equal(t, m.IsUserPredictable(0), loaded.IsUserPredictable(0))
	assert.False(t, loaded.Invalid())
}

func TestSaveModelInvalid(t *testing.T) {
	store := blob.NewPOSIX(t.TempDir())
	assert.Error(t, SaveModel(NewMF(nil), store))
}

func TestLoadModelMissing(t *testing.T) {
	store := blob.NewPOSIX(t.TempDir())
	_, err := LoadModel(store)
	assert.Error(t, err)
}

func TestLoadModelCorrupted(t *testing.T) {
	dir := t.TempDir()
	store := blob.NewPOSIX(dir)
	m := NewMF(nil)
	m.Fit(context.Background(), newTrainSet(), NewFitConfig().SetVerbose(0))
	require.NoError(t, SaveModel(m, store))

	// truncated factor blob
	path := filepath.Join(dir, userFactorFile)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, content[:len(content)/2], 0o644))
	_, err = LoadModel(store)
	assert.Error(t, err)

	// trailing bytes in factor blob
	require.NoError(t, os.WriteFile(path, append(content, 0, 0, 0, 0), 0o644))
	_, err = LoadModel(store)
	assert.Error(t, err)

	// restored blob loads again
	require.NoError(t, os.WriteFile(path, content, 0o644))
	_, err = LoadModel(store)
	assert.NoError(t, err)
}
