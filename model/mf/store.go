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
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/juju/errors"

	"github.com/auctionlab/bidrec/base/encoding"
	"github.com/auctionlab/bidrec/dataset"
	"github.com/auctionlab/bidrec/model"
	"github.com/auctionlab/bidrec/storage/blob"
)

const (
	metaFile       = "meta.bin"
	userFactorFile = "user_factor.bin"
	itemFactorFile = "item_factor.bin"
)

// modelMeta is the persisted header of a fitted model. Factor buffers
// are stored separately as raw little-endian float32.
type modelMeta struct {
	NFactors        int
	NEpochs         int
	Lr              float32
	Reg             float32
	InitMean        float32
	InitStdDev      float32
	RandomState     int64
	Users           []int64
	Items           []int64
	UserPredictable []byte
	ItemPredictable []byte
}

// SaveModel writes a fitted model into a blob store as three blobs:
// the meta header and the two factor buffers.
func SaveModel(m *MF, store blob.Store) error {
	if m.Invalid() {
		return errors.New("attempt to save an invalid model")
	}
	userPredictable, err := m.UserPredictable.MarshalBinary()
	if err != nil {
		return errors.Trace(err)
	}
	itemPredictable, err := m.ItemPredictable.MarshalBinary()
	if err != nil {
		return errors.Trace(err)
	}
	meta := modelMeta{
		NFactors:        m.nFactors,
		NEpochs:         m.nEpochs,
		Lr:              m.lr,
		Reg:             m.reg,
		InitMean:        m.initMean,
		InitStdDev:      m.initStdDev,
		RandomState:     m.Params.GetInt64(model.RandomState, 0),
		Users:           m.UserDict.Values(),
		Items:           m.ItemDict.Values(),
		UserPredictable: userPredictable,
		ItemPredictable: itemPredictable,
	}
	if err := writeBlob(store, metaFile, func(w io.Writer) error {
		return encoding.WriteGob(w, meta)
	}); err != nil {
		return errors.Trace(err)
	}
	if err := writeBlob(store, userFactorFile, func(w io.Writer) error {
		return encoding.WriteFloats(w, m.UserFactor)
	}); err != nil {
		return errors.Trace(err)
	}
	if err := writeBlob(store, itemFactorFile, func(w io.Writer) error {
		return encoding.WriteFloats(w, m.ItemFactor)
	}); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// LoadModel reads a model saved by SaveModel. Truncated or oversized
// factor blobs are reported as errors instead of yielding a partially
// loaded model.
func LoadModel(store blob.Store) (*MF, error) {
	var meta modelMeta
	if err := readBlob(store, metaFile, func(r io.Reader) error {
		return encoding.ReadGob(r, &meta)
	}); err != nil {
		return nil, errors.Trace(err)
	}
	m := NewMF(model.Params{
		model.NFactors:    meta.NFactors,
		model.NEpochs:     meta.NEpochs,
		model.Lr:          meta.Lr,
		model.Reg:         meta.Reg,
		model.InitMean:    meta.InitMean,
		model.InitStdDev:  meta.InitStdDev,
		model.RandomState: meta.RandomState,
	})
	m.UserDict = dataset.NewDictFrom(meta.Users)
	m.ItemDict = dataset.NewDictFrom(meta.Items)
	m.UserPredictable = bitset.New(uint(len(meta.Users)))
	if err := m.UserPredictable.UnmarshalBinary(meta.UserPredictable); err != nil {
		return nil, errors.Trace(err)
	}
	m.ItemPredictable = bitset.New(uint(len(meta.Items)))
	if err := m.ItemPredictable.UnmarshalBinary(meta.ItemPredictable); err != nil {
		return nil, errors.Trace(err)
	}
	m.UserFactor = make([]float32, len(meta.Users)*meta.NFactors)
	if err := readBlob(store, userFactorFile, func(r io.Reader) error {
		return encoding.ReadFloats(r, m.UserFactor)
	}); err != nil {
		return nil, errors.Trace(err)
	}
	m.ItemFactor = make([]float32, len(meta.Items)*meta.NFactors)
	if err := readBlob(store, itemFactorFile, func(r io.Reader) error {
		return encoding.ReadFloats(r, m.ItemFactor)
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return m, nil
}

func writeBlob(store blob.Store, name string, write func(w io.Writer) error) error {
	w, done, err := store.Create(name)
	if err != nil {
		return errors.Trace(err)
	}
	if err := write(w); err != nil {
		_ = w.Close()
		return errors.Trace(err)
	}
	if err := w.Close(); err != nil {
		return errors.Trace(err)
	}
	<-done
	return nil
}

func readBlob(store blob.Store, name string, read func(r io.Reader) error) error {
	r, err := store.Open(name)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		_ = r.Close()
	}()
	if err := read(r); err != nil {
		return errors.Annotatef(err, "corrupted blob %s", name)
	}
	var trailing [1]byte
	if _, err := r.Read(trailing[:]); err != io.EOF {
		return errors.Errorf("unexpected trailing bytes in blob %s", name)
	}
	return nil
}
