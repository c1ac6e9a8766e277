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

import "math"

// Background is the null model: residue frequencies plus a single
// self-transition forming a geometric length distribution.
type Background struct {
	Alphabet *Alphabet

	// Frequencies of the K canonical residues, summing to 1.
	Frequencies []float32

	// P1 is the probability of emitting one more residue.
	P1 float32

	// L is the length the null model is configured for.
	L int

	// Omega is the prior of the alternative composition-bias null model.
	Omega float32
}

// Robinson & Robinson background frequencies for the 20 amino acids,
// in alphabet order ACDEFGHIKLMNPQRSTVWY.
var aminoFrequencies = []float32{
	0.0787945, 0.0151600, 0.0535222, 0.0668298, 0.0397062,
	0.0695071, 0.0229198, 0.0590092, 0.0594422, 0.0963728,
	0.0237718, 0.0414386, 0.0482904, 0.0395639, 0.0540978,
	0.0683364, 0.0540687, 0.0673417, 0.0114135, 0.0304133,
}

// NewBackground creates a null model for an alphabet, configured at the
// default length of 400.
func NewBackground(a *Alphabet) *Background {
	bg := &Background{
		Alphabet:    a,
		Frequencies: make([]float32, a.K()),
		Omega:       1.0 / 256,
	}
	if a.Type() == AlphabetAmino {
		copy(bg.Frequencies, aminoFrequencies)
	} else {
		for i := range bg.Frequencies {
			bg.Frequencies[i] = 1 / float32(a.K())
		}
	}
	bg.SetLength(400)
	return bg
}

// NewUniformBackground creates a null model with uniform residue
// frequencies.
func NewUniformBackground(a *Alphabet) *Background {
	bg := NewBackground(a)
	for i := range bg.Frequencies {
		bg.Frequencies[i] = 1 / float32(a.K())
	}
	return bg
}

// SetLength reconfigures the geometric length distribution for a target
// of L residues.
func (bg *Background) SetLength(L int) {
	bg.L = L
	bg.P1 = float32(L) / float32(L+1)
}

// NullScore returns the null model log probability of a sequence of
// length L, in nats, excluding the residue emission terms which cancel
// in log-odds scores.
func (bg *Background) NullScore(L int) float32 {
	return float32(float64(L)*math.Log(float64(bg.P1)) + math.Log(1-float64(bg.P1)))
}

// ResidueScore returns log f[x] for a digital code, marginalizing
// degenerate codes over their residue sets. Non-residues score -Inf.
func (bg *Background) ResidueScore(code int) float32 {
	a := bg.Alphabet
	if a.IsCanonical(code) {
		return float32(math.Log(float64(bg.Frequencies[code])))
	}
	if !a.IsResidue(code) {
		return float32(math.Inf(-1))
	}
	var p float64
	for _, x := range a.DegenerateResidues(code) {
		p += float64(bg.Frequencies[x])
	}
	return float32(math.Log(p))
}

// Copy returns a deep copy. Background carries per-target state (L, P1)
// and must be cloned per worker.
func (bg *Background) Copy() *Background {
	c := *bg
	c.Frequencies = make([]float32, len(bg.Frequencies))
	copy(c.Frequencies, bg.Frequencies)
	return &c
}
