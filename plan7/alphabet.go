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

import (
	"fmt"

	"github.com/shenwei356/bio/seq"
)

// AlphabetType enumerates the supported biological alphabets.
type AlphabetType uint8

const (
	AlphabetAmino AlphabetType = iota + 1
	AlphabetDNA
	AlphabetRNA
)

func (t AlphabetType) String() string {
	switch t {
	case AlphabetAmino:
		return "amino"
	case AlphabetDNA:
		return "dna"
	case AlphabetRNA:
		return "rna"
	}
	return "unknown"
}

// ParseAlphabetType parses an alphabet tag as it appears on the ALPH line
// of a model file.
func ParseAlphabetType(s string) (AlphabetType, error) {
	switch s {
	case "amino", "Amino", "AMINO":
		return AlphabetAmino, nil
	case "dna", "DNA":
		return AlphabetDNA, nil
	case "rna", "RNA":
		return AlphabetRNA, nil
	}
	return 0, fmt.Errorf("%w: unknown alphabet: %s", ErrInvalidParameter, s)
}

// Symbol layout: K canonical residues, then the gap symbol, degenerate
// residues, the any symbol, the not-a-residue symbol and the missing data
// symbol. Kp counts them all.
const (
	aminoSymbols = "ACDEFGHIKLMNPQRSTVWY-BJZOUX*~"
	dnaSymbols   = "ACGT-RYMKSWHBVDN*~"
	rnaSymbols   = "ACGU-RYMKSWHBVDN*~"
)

// Alphabet maps residue symbols to digital codes 0..Kp-1.
// Codes 0..K-1 are the canonical residues. Alphabets are immutable and
// freely shareable between goroutines.
type Alphabet struct {
	typ     AlphabetType
	symbols string
	k       int
	code    [256]int16 // symbol -> digital code, -1 for invalid

	base *seq.Alphabet // the underlying bio alphabet, for sequence validation
}

var (
	// Amino is the 20-letter protein alphabet.
	Amino = newAlphabet(AlphabetAmino, aminoSymbols, 20, seq.Protein)
	// DNA is the 4-letter DNA alphabet.
	DNA = newAlphabet(AlphabetDNA, dnaSymbols, 4, seq.DNAredundant)
	// RNA is the 4-letter RNA alphabet.
	RNA = newAlphabet(AlphabetRNA, rnaSymbols, 4, seq.RNAredundant)
)

func newAlphabet(typ AlphabetType, symbols string, k int, base *seq.Alphabet) *Alphabet {
	a := &Alphabet{typ: typ, symbols: symbols, k: k, base: base}
	for i := range a.code {
		a.code[i] = -1
	}
	for i := 0; i < len(symbols); i++ {
		c := symbols[i]
		a.code[c] = int16(i)
		if c >= 'A' && c <= 'Z' {
			a.code[c+'a'-'A'] = int16(i)
		}
	}
	switch typ {
	case AlphabetDNA:
		a.code['U'], a.code['u'] = a.code['T'], a.code['T']
		a.code['.'] = a.code['-']
		a.code['_'] = a.code['-']
	case AlphabetRNA:
		a.code['T'], a.code['t'] = a.code['U'], a.code['U']
		a.code['.'] = a.code['-']
		a.code['_'] = a.code['-']
	default:
		a.code['.'] = a.code['-']
		a.code['_'] = a.code['-']
	}
	return a
}

// AlphabetFor returns the alphabet singleton for a type tag.
func AlphabetFor(typ AlphabetType) (*Alphabet, error) {
	switch typ {
	case AlphabetAmino:
		return Amino, nil
	case AlphabetDNA:
		return DNA, nil
	case AlphabetRNA:
		return RNA, nil
	}
	return nil, fmt.Errorf("%w: unknown alphabet type: %d", ErrInvalidParameter, typ)
}

// Type returns the alphabet kind.
func (a *Alphabet) Type() AlphabetType { return a.typ }

// K is the number of canonical residues.
func (a *Alphabet) K() int { return a.k }

// Kp is the total number of symbols including gap, degeneracies,
// any, not-a-residue and missing data.
func (a *Alphabet) Kp() int { return len(a.symbols) }

// GapCode returns the digital code of the gap symbol.
func (a *Alphabet) GapCode() int { return a.k }

// AnyCode returns the digital code of the fully degenerate symbol (X or N).
func (a *Alphabet) AnyCode() int { return len(a.symbols) - 3 }

// Symbol returns the text symbol for a digital code.
func (a *Alphabet) Symbol(code int) byte {
	if code < 0 || code >= len(a.symbols) {
		return '?'
	}
	return a.symbols[code]
}

// Code returns the digital code for a symbol, or -1 if the symbol is not
// part of the alphabet.
func (a *Alphabet) Code(sym byte) int { return int(a.code[sym]) }

// IsCanonical reports whether a digital code is one of the K canonical
// residues.
func (a *Alphabet) IsCanonical(code int) bool { return code >= 0 && code < a.k }

// IsResidue reports whether a digital code stands for a residue,
// canonical or degenerate.
func (a *Alphabet) IsResidue(code int) bool {
	return a.IsCanonical(code) || (code > a.k && code <= a.AnyCode())
}

// IsNucleotide reports whether the alphabet is DNA or RNA.
func (a *Alphabet) IsNucleotide() bool {
	return a.typ == AlphabetDNA || a.typ == AlphabetRNA
}

// Encode digitizes a text sequence.
func (a *Alphabet) Encode(text []byte) ([]int8, error) {
	out := make([]int8, len(text))
	for i, c := range text {
		code := a.code[c]
		if code < 0 {
			return nil, fmt.Errorf("%w: %q at position %d", ErrInvalidSymbol, c, i+1)
		}
		out[i] = int8(code)
	}
	return out, nil
}

// Decode converts digital codes back to text symbols.
func (a *Alphabet) Decode(codes []int8) []byte {
	out := make([]byte, len(codes))
	for i, c := range codes {
		out[i] = a.Symbol(int(c))
	}
	return out
}

// DegenerateResidues returns the canonical residues a degenerate code
// stands for. Canonical codes map to themselves; the any code maps to all
// K residues.
func (a *Alphabet) DegenerateResidues(code int) []int {
	if a.IsCanonical(code) {
		return []int{code}
	}
	if !a.IsResidue(code) {
		return nil
	}
	if code == a.AnyCode() {
		all := make([]int, a.k)
		for i := range all {
			all[i] = i
		}
		return all
	}
	var m map[byte]string
	if a.typ == AlphabetAmino {
		m = aminoDegen
	} else {
		m = nucDegen
	}
	set, ok := m[a.symbols[code]]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(set))
	for i := 0; i < len(set); i++ {
		c := set[i]
		if a.typ == AlphabetRNA && c == 'T' {
			c = 'U'
		}
		out = append(out, int(a.code[c]))
	}
	return out
}

var aminoDegen = map[byte]string{
	'B': "DN",
	'J': "IL",
	'Z': "EQ",
	'O': "K", // pyrrolysine, scored as lysine
	'U': "C", // selenocysteine, scored as cysteine
}

var nucDegen = map[byte]string{
	'R': "AG",
	'Y': "CT",
	'M': "AC",
	'K': "GT",
	'S': "CG",
	'W': "AT",
	'H': "ACT",
	'B': "CGT",
	'V': "ACG",
	'D': "AGT",
}
