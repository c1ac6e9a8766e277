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

package builder

import (
	"fmt"

	"github.com/plan7go/plan7/msa"
	"github.com/plan7go/plan7/plan7"
)

// sequenceWeights computes relative sequence weights by the configured
// scheme, normalized to sum to nseq.
func (b *Builder) sequenceWeights(m *msa.DigitalMSA) ([]float64, error) {
	n := m.Nseq()
	switch b.Options.Weighting {
	case WeightNone:
		w := make([]float64, n)
		for i := range w {
			w[i] = 1
		}
		return w, nil
	case WeightGiven:
		if m.Weights == nil {
			return nil, fmt.Errorf("%w: weighting \"given\" but the alignment carries no weights", plan7.ErrInvalidParameter)
		}
		return normalizeWeights(append([]float64(nil), m.Weights...)), nil
	case WeightPB:
		return positionBasedWeights(m), nil
	case WeightGSC:
		return gscWeights(m), nil
	case WeightBlosum:
		return blosumWeights(m, b.Options.Wid), nil
	}
	return nil, fmt.Errorf("%w: unknown weighting scheme %d", plan7.ErrInvalidParameter, b.Options.Weighting)
}

func normalizeWeights(w []float64) []float64 {
	total := sum(w)
	if total == 0 {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	f := float64(len(w)) / total
	for i := range w {
		w[i] *= f
	}
	return w
}

// positionBasedWeights implements Henikoff & Henikoff position-based
// weights: each column distributes one unit of weight over its
// residues, inversely to residue multiplicity.
func positionBasedWeights(m *msa.DigitalMSA) []float64 {
	n := m.Nseq()
	alen := m.Alen()
	k := m.Alphabet.K()
	w := make([]float64, n)
	counts := make([]int, k)

	for c := 0; c < alen; c++ {
		for x := range counts {
			counts[x] = 0
		}
		distinct := 0
		for _, row := range m.Rows {
			code := int(row[c])
			if m.Alphabet.IsCanonical(code) {
				if counts[code] == 0 {
					distinct++
				}
				counts[code]++
			}
		}
		if distinct == 0 {
			continue
		}
		for i, row := range m.Rows {
			code := int(row[c])
			if m.Alphabet.IsCanonical(code) {
				w[i] += 1 / float64(distinct*counts[code])
			}
		}
	}
	return normalizeWeights(w)
}

// pairIdentity computes the fractional identity of two aligned rows
// over columns where both have residues.
func pairIdentity(m *msa.DigitalMSA, i, j int) float64 {
	var ident, aligned int
	ri, rj := m.Rows[i], m.Rows[j]
	for c := 0; c < m.Alen(); c++ {
		ci, cj := int(ri[c]), int(rj[c])
		if m.Alphabet.IsResidue(ci) && m.Alphabet.IsResidue(cj) {
			aligned++
			if ci == cj {
				ident++
			}
		}
	}
	if aligned == 0 {
		return 0
	}
	return float64(ident) / float64(aligned)
}

// gscWeights approximates Gerstein/Sonnhammer/Chothia tree weights by
// the average-distance form: a sequence far from the rest carries
// more weight.
func gscWeights(m *msa.DigitalMSA) []float64 {
	n := m.Nseq()
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := 0; i < n; i++ {
		var dist float64
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			dist += 1 - pairIdentity(m, i, j)
		}
		w[i] = dist / float64(n-1)
	}
	return normalizeWeights(w)
}

// blosumWeights clusters sequences by single linkage at identity wid;
// each cluster shares one unit of weight.
func blosumWeights(m *msa.DigitalMSA, wid float64) []float64 {
	n := m.Nseq()
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if pairIdentity(m, i, j) >= wid {
				ri, rj := find(i), find(j)
				if ri != rj {
					parent[ri] = rj
				}
			}
		}
	}
	size := make(map[int]int, n)
	for i := 0; i < n; i++ {
		size[find(i)]++
	}
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 1 / float64(size[find(i)])
	}
	return normalizeWeights(w)
}

// singleLinkageClusters counts the clusters at an identity threshold.
func singleLinkageClusters(m *msa.DigitalMSA, threshold float64) int {
	n := m.Nseq()
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if pairIdentity(m, i, j) >= threshold {
				ri, rj := find(i), find(j)
				if ri != rj {
					parent[ri] = rj
				}
			}
		}
	}
	roots := make(map[int]struct{}, n)
	for i := 0; i < n; i++ {
		roots[find(i)] = struct{}{}
	}
	return len(roots)
}
