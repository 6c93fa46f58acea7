// Copyright © Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"sync"

	"github.com/pkg/errors"
)

// ExclusiveStringMap detects when two files planned within the same job would land on
// the same destination path, the way a concurrent directory planner otherwise wouldn't
// notice until two copy-engine writers raced each other onto one inode.
type ExclusiveStringMap struct {
	lock *sync.Mutex
	m    map[string]struct{}
}

// NewExclusiveStringMap always treats keys case-sensitively: copyd only ever writes to
// POSIX filesystems, which are case-sensitive by convention even when the underlying
// mount happens not to be.
func NewExclusiveStringMap() *ExclusiveStringMap {
	return &ExclusiveStringMap{
		lock: &sync.Mutex{},
		m:    make(map[string]struct{}),
	}
}

var exclusiveStringMapCollisionError = errors.New("cannot simultaneously send two files to same destination name")

// Add succeeds if and only if key is not currently in the map.
func (e *ExclusiveStringMap) Add(key string) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if _, alreadyThere := e.m[key]; alreadyThere {
		return exclusiveStringMapCollisionError
	}
	e.m[key] = struct{}{}
	return nil
}

func (e *ExclusiveStringMap) Remove(key string) {
	e.lock.Lock()
	defer e.lock.Unlock()

	delete(e.m, key)
}
