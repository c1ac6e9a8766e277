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

// Package hmmfile reads and writes profile HMMs: the line-oriented
// text format and the four-file pressed binary database.
package hmmfile

import (
	"encoding/binary"
	"errors"
)

var be = binary.BigEndian

// FormatTag is the version tag of the text format.
const FormatTag = "HMMER3/f"

// Magic numbers of the pressed database files. The byte order of the
// magic doubles as an endianness check: a reader on the other
// byte order sees the reversed value.
var (
	MagicModel   = [4]byte{'p', '7', 'm', 'f'} // .h3m
	MagicFilter  = [4]byte{'p', '7', 'f', 'f'} // .h3f
	MagicIndex   = [4]byte{'p', '7', 'i', 'f'} // .h3i
	MagicProfile = [4]byte{'p', '7', 'p', 'f'} // .h3p
)

// File extensions of a pressed database.
const (
	ExtModel   = ".h3m"
	ExtFilter  = ".h3f"
	ExtIndex   = ".h3i"
	ExtProfile = ".h3p"
)

// MainVersion is used for checking compatibility.
var MainVersion uint8 = 1

// MinorVersion is less important.
var MinorVersion uint8 = 0

// ErrInvalidFormat means malformed model file content or an unknown
// format tag.
var ErrInvalidFormat = errors.New("hmmfile: invalid format")

// ErrCorruptFile means a binary file failed its structural checks.
var ErrCorruptFile = errors.New("hmmfile: corrupt file")

// ErrUnsupportedVersion means the file was written by an incompatible
// version.
var ErrUnsupportedVersion = errors.New("hmmfile: unsupported version")

// ErrEndianMismatch means the file was written on a platform with the
// other byte order.
var ErrEndianMismatch = errors.New("hmmfile: endianness mismatch")

// ErrClosed means the file was used after Close.
var ErrClosed = errors.New("hmmfile: file already closed")

func reversed(m [4]byte) [4]byte {
	return [4]byte{m[3], m[2], m[1], m[0]}
}

func checkMagic(got, want [4]byte) error {
	if got == want {
		return nil
	}
	if got == reversed(want) {
		return ErrEndianMismatch
	}
	return ErrCorruptFile
}
