// Copyright © 2024-2025 Ren Oyama <plan7go@gmail.com>
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

package search

import "github.com/zeebo/wyhash"

const keyHashSeed = 0x9E3779B97F4A7C15

// KeyHash is a set of target names keyed by their wyhash digests. The
// iterative search driver records the included hits of a round here and
// compares the next round's inclusion against it.
type KeyHash struct {
	keys map[uint64]struct{}
}

// NewKeyHash returns an empty key set.
func NewKeyHash() *KeyHash {
	return &KeyHash{keys: make(map[uint64]struct{}, 64)}
}

// Add inserts a name. Returns true if the name was new.
func (kh *KeyHash) Add(name string) bool {
	h := wyhash.HashString(name, keyHashSeed)
	if _, ok := kh.keys[h]; ok {
		return false
	}
	kh.keys[h] = struct{}{}
	return true
}

// Contains reports whether a name was added.
func (kh *KeyHash) Contains(name string) bool {
	_, ok := kh.keys[wyhash.HashString(name, keyHashSeed)]
	return ok
}

// Len returns the number of distinct names.
func (kh *KeyHash) Len() int { return len(kh.keys) }

// Clear drops all names, keeping the allocation.
func (kh *KeyHash) Clear() {
	clear(kh.keys)
}
