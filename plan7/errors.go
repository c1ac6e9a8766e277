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

package plan7

import "errors"

// ErrAlphabetMismatch means a sequence, MSA or model uses a different
// alphabet than its collaborator.
var ErrAlphabetMismatch = errors.New("plan7: alphabet mismatch")

// ErrInvalidParameter means a threshold or tuning value is outside its
// permitted range, or an enum tag is unknown.
var ErrInvalidParameter = errors.New("plan7: invalid parameter")

// ErrMissingCutoffs means bit score cutoffs were requested but the model
// does not carry the selected pair.
var ErrMissingCutoffs = errors.New("plan7: model has no such bit score cutoffs")

// ErrUnconfigured means a profile was used before Configure.
var ErrUnconfigured = errors.New("plan7: profile not configured")

// ErrModelSizeMismatch means two entities with different numbers of match
// nodes were combined where equality is required.
var ErrModelSizeMismatch = errors.New("plan7: model size mismatch")

// ErrEmptyModel means an input produced zero match columns.
var ErrEmptyModel = errors.New("plan7: alignment produced no match columns")

// ErrInvalidSymbol means a residue is not part of the alphabet.
var ErrInvalidSymbol = errors.New("plan7: invalid residue symbol")
