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

// Package msa holds multiple sequence alignments in text and digital
// form. Parsing goes through the fastx reader; only the aligned-FASTA
// carrier is handled here, richer formats are external collaborators.
package msa

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"

	"github.com/plan7go/plan7/plan7"
)

// TextMSA is an alignment of text rows of equal length.
type TextMSA struct {
	Name       string
	Names      []string
	Rows       [][]byte
	Reference  []byte    // optional per-column reference annotation (x = match column)
	Weights    []float64 // optional per-sequence weights
	alen       int
}

// NewTextMSA builds an alignment after checking the row lengths agree.
func NewTextMSA(name string, names []string, rows [][]byte) (*TextMSA, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: alignment has no sequences", plan7.ErrInvalidParameter)
	}
	alen := len(rows[0])
	for i, r := range rows {
		if len(r) != alen {
			return nil, fmt.Errorf("%w: row %s has length %d, alignment is %d columns",
				plan7.ErrInvalidParameter, names[i], len(r), alen)
		}
	}
	return &TextMSA{Name: name, Names: names, Rows: rows, alen: alen}, nil
}

// Alen returns the number of alignment columns.
func (m *TextMSA) Alen() int { return m.alen }

// Nseq returns the number of aligned sequences.
func (m *TextMSA) Nseq() int { return len(m.Rows) }

// Digitize converts the alignment into digital coding.
func (m *TextMSA) Digitize(a *plan7.Alphabet) (*DigitalMSA, error) {
	d := &DigitalMSA{
		Name:      m.Name,
		Alphabet:  a,
		Names:     append([]string(nil), m.Names...),
		Reference: append([]byte(nil), m.Reference...),
		alen:      m.alen,
	}
	if m.Weights != nil {
		d.Weights = append([]float64(nil), m.Weights...)
	}
	d.Rows = make([][]int8, len(m.Rows))
	for i, row := range m.Rows {
		codes, err := a.Encode(row)
		if err != nil {
			return nil, fmt.Errorf("sequence %s: %w", m.Names[i], err)
		}
		d.Rows[i] = codes
	}
	return d, nil
}

// DigitalMSA is an alignment in digital coding.
type DigitalMSA struct {
	Name      string
	Alphabet  *plan7.Alphabet
	Names     []string
	Rows      [][]int8
	Reference []byte
	Weights   []float64
	alen      int
}

// Alen returns the number of alignment columns.
func (m *DigitalMSA) Alen() int { return m.alen }

// Nseq returns the number of aligned sequences.
func (m *DigitalMSA) Nseq() int { return len(m.Rows) }

// NewDigitalMSA builds a digital alignment after checking row lengths.
func NewDigitalMSA(a *plan7.Alphabet, name string, names []string, rows [][]int8) (*DigitalMSA, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: alignment has no sequences", plan7.ErrInvalidParameter)
	}
	alen := len(rows[0])
	for i, r := range rows {
		if len(r) != alen {
			return nil, fmt.Errorf("%w: row %s has length %d, alignment is %d columns",
				plan7.ErrInvalidParameter, names[i], len(r), alen)
		}
	}
	return &DigitalMSA{Name: name, Alphabet: a, Names: names, Rows: rows, alen: alen}, nil
}

// Textize renders a digital alignment back to symbols.
func (m *DigitalMSA) Textize() *TextMSA {
	t := &TextMSA{
		Name:      m.Name,
		Names:     append([]string(nil), m.Names...),
		Reference: append([]byte(nil), m.Reference...),
		alen:      m.alen,
	}
	if m.Weights != nil {
		t.Weights = append([]float64(nil), m.Weights...)
	}
	t.Rows = make([][]byte, len(m.Rows))
	for i, row := range m.Rows {
		t.Rows[i] = m.Alphabet.Decode(row)
	}
	return t
}

// Sequence extracts row i with gaps removed, as a digital sequence.
func (m *DigitalMSA) Sequence(i int) *plan7.DigitalSequence {
	res := make([]int8, 0, m.alen)
	for _, c := range m.Rows[i] {
		if m.Alphabet.IsResidue(int(c)) {
			res = append(res, c)
		}
	}
	return &plan7.DigitalSequence{
		Name:     m.Names[i],
		Alphabet: m.Alphabet,
		Residues: res,
	}
}

// ReadFasta reads an aligned FASTA file into a text alignment. All
// records must have the same length.
func ReadFasta(file string) (*TextMSA, error) {
	reader, err := fastx.NewDefaultReader(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	var names []string
	var rows [][]byte
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, file)
		}
		s := make([]byte, len(record.Seq.Seq))
		copy(s, record.Seq.Seq)
		names = append(names, string(record.ID))
		rows = append(rows, s)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no sequences in %s", plan7.ErrInvalidParameter, file)
	}
	return NewTextMSA(file, names, rows)
}

// WriteFasta writes the alignment as aligned FASTA. The writer goes
// through xopen, so a .gz suffix compresses transparently.
func (m *TextMSA) WriteFasta(file string) error {
	fh, err := xopen.Wopen(file)
	if err != nil {
		return errors.Wrap(err, file)
	}
	for i, row := range m.Rows {
		fmt.Fprintf(fh, ">%s\n%s\n", m.Names[i], row)
	}
	return fh.Close()
}
