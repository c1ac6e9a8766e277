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

import "fmt"

// DigitalSequence is a sequence in digital coding, 0-based.
type DigitalSequence struct {
	Name        string
	Accession   string
	Description string

	Alphabet *Alphabet
	Residues []int8
}

// NewDigitalSequence digitizes a text sequence.
func NewDigitalSequence(a *Alphabet, name string, text []byte) (*DigitalSequence, error) {
	codes, err := a.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("sequence %s: %w", name, err)
	}
	return &DigitalSequence{Name: name, Alphabet: a, Residues: codes}, nil
}

// Len returns the number of residues.
func (s *DigitalSequence) Len() int { return len(s.Residues) }

// At returns the digital code at position i (0-based).
func (s *DigitalSequence) At(i int) int { return int(s.Residues[i]) }

// Text renders the sequence back to symbols.
func (s *DigitalSequence) Text() []byte { return s.Alphabet.Decode(s.Residues) }

// Copy returns a deep copy.
func (s *DigitalSequence) Copy() *DigitalSequence {
	c := *s
	c.Residues = make([]int8, len(s.Residues))
	copy(c.Residues, s.Residues)
	return &c
}

// Subsequence extracts residues [from, to) as a new sequence.
func (s *DigitalSequence) Subsequence(from, to int) *DigitalSequence {
	if from < 0 {
		from = 0
	}
	if to > len(s.Residues) {
		to = len(s.Residues)
	}
	sub := &DigitalSequence{
		Name:     s.Name,
		Alphabet: s.Alphabet,
		Residues: make([]int8, to-from),
	}
	copy(sub.Residues, s.Residues[from:to])
	return sub
}

// complementCode complements one nucleotide code, leaving gap and missing
// data codes alone. Degenerate codes map to the complement of their set.
func complementCode(a *Alphabet, c int8) int8 {
	sym := a.Symbol(int(c))
	comp, ok := nucComplement[sym]
	if !ok {
		return c
	}
	if a.typ == AlphabetRNA {
		if comp == 'T' {
			comp = 'U'
		}
	}
	return int8(a.code[comp])
}

var nucComplement = map[byte]byte{
	'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A', 'U': 'A',
	'R': 'Y', 'Y': 'R', 'M': 'K', 'K': 'M', 'S': 'S', 'W': 'W',
	'H': 'D', 'B': 'V', 'V': 'B', 'D': 'H', 'N': 'N',
}

// ReverseComplement returns the reverse complement as a new sequence.
// Only meaningful for nucleotide alphabets.
func (s *DigitalSequence) ReverseComplement() (*DigitalSequence, error) {
	if !s.Alphabet.IsNucleotide() {
		return nil, fmt.Errorf("%w: reverse complement of a %s sequence", ErrInvalidParameter, s.Alphabet.Type())
	}
	c := s.Copy()
	c.reverseComplement()
	return c, nil
}

// ReverseComplementInPlace reverse-complements the sequence in place.
func (s *DigitalSequence) ReverseComplementInPlace() error {
	if !s.Alphabet.IsNucleotide() {
		return fmt.Errorf("%w: reverse complement of a %s sequence", ErrInvalidParameter, s.Alphabet.Type())
	}
	s.reverseComplement()
	return nil
}

func (s *DigitalSequence) reverseComplement() {
	r := s.Residues
	for i := range r {
		r[i] = complementCode(s.Alphabet, r[i])
	}
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
}

// Composition counts canonical residue frequencies, distributing fully
// degenerate residues uniformly.
func (s *DigitalSequence) Composition() []float32 {
	k := s.Alphabet.K()
	f := make([]float32, k)
	var n float32
	for _, c := range s.Residues {
		code := int(c)
		if s.Alphabet.IsCanonical(code) {
			f[code]++
			n++
		} else if s.Alphabet.IsResidue(code) {
			set := s.Alphabet.DegenerateResidues(code)
			w := 1 / float32(len(set))
			for _, x := range set {
				f[x] += w
			}
			n++
		}
	}
	if n > 0 {
		for i := range f {
			f[i] /= n
		}
	}
	return f
}

// DigitalSequenceBlock is an ordered list of sequences sharing one alphabet.
type DigitalSequenceBlock struct {
	Alphabet  *Alphabet
	Sequences []*DigitalSequence
}

// NewDigitalSequenceBlock checks that all sequences share the alphabet.
func NewDigitalSequenceBlock(a *Alphabet, seqs ...*DigitalSequence) (*DigitalSequenceBlock, error) {
	for _, s := range seqs {
		if s.Alphabet != a {
			return nil, fmt.Errorf("%w: sequence %s is %s, block is %s",
				ErrAlphabetMismatch, s.Name, s.Alphabet.Type(), a.Type())
		}
	}
	return &DigitalSequenceBlock{Alphabet: a, Sequences: seqs}, nil
}

// Len returns the number of sequences in the block.
func (b *DigitalSequenceBlock) Len() int { return len(b.Sequences) }

// Append adds a sequence, checking the alphabet.
func (b *DigitalSequenceBlock) Append(s *DigitalSequence) error {
	if s.Alphabet != b.Alphabet {
		return fmt.Errorf("%w: sequence %s is %s, block is %s",
			ErrAlphabetMismatch, s.Name, s.Alphabet.Type(), b.Alphabet.Type())
	}
	b.Sequences = append(b.Sequences, s)
	return nil
}
