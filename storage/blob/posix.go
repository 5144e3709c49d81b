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

package blob

import (
	"io"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/auctionlab/bidrec/base/log"
)

// POSIX keeps model artifacts as plain files under a local directory,
// one file per artifact.
type POSIX struct {
	dir string
}

// NewPOSIX creates a POSIX store rooted at dir. The directory is
// created on the first Create.
func NewPOSIX(dir string) *POSIX {
	return &POSIX{dir: dir}
}

// Open an artifact for reading.
func (p *POSIX) Open(name string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(p.dir, name))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return file, nil
}

// Create an artifact for writing. Bytes written to the returned writer
// are pumped into the file by a background goroutine; the done channel
// closes once everything reached the file.
func (p *POSIX) Create(name string) (io.WriteCloser, chan struct{}, error) {
	fullPath := filepath.Join(p.dir, name)
	if err := os.MkdirAll(filepath.Dir(fullPath), os.ModePerm); err != nil {
		return nil, nil, errors.Trace(err)
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	done := make(chan struct{})
	pr, pw := io.Pipe()
	go func() {
		defer func() {
			_ = file.Close()
			close(done)
		}()
		if _, err := io.Copy(file, pr); err != nil {
			log.Logger().Error("failed to write artifact",
				zap.String("file", fullPath), zap.Error(err))
		}
	}()
	return pw, done, nil
}
