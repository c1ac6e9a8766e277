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
	"hash/crc32"
	"math"
	"time"
)

// Transition kinds of a node, in storage order.
const (
	TMM = iota // match -> match
	TMI        // match -> insert
	TMD        // match -> delete
	TIM        // insert -> match
	TII        // insert -> insert
	TDM        // delete -> match
	TDD        // delete -> delete
	NTransitions
)

// HMM is the core probabilistic model with M match nodes.
//
// Node 0 is the begin node: Match[0] is a convention row
// (Match[0][0] = 1), Trans[0] holds the B state transitions.
// Nodes 1..M are the match nodes.
type HMM struct {
	Alphabet *Alphabet
	M        int

	// Match and insert emission distributions, [M+1][K], rows sum to 1.
	Match  [][]float32
	Insert [][]float32

	// Transition distributions, [M+1][7].
	// {MM, MI, MD} sum to 1, {IM, II} sum to 1, {DM, DD} sum to 1.
	Trans [][]float32

	Name        string
	Accession   string
	Description string
	CommandLine string
	Date        time.Time

	Nseq          int
	NseqEffective float32

	// Optional calibration data.
	Composition []float32 // average emission composition over K, nil if unset
	Consensus   string    // consensus residue line, "" if unset
	ConsensusStructure     string
	ConsensusAccessibility string
	MapAnnotation          []int // alignment column index per node, nil if unset

	checksum    uint32
	hasChecksum bool

	EvalueParameters EvalueParameters
	Cutoffs          Cutoffs
}

// NewHMM allocates a zeroed model with M match nodes.
func NewHMM(a *Alphabet, m int) (*HMM, error) {
	if m < 1 {
		return nil, fmt.Errorf("%w: model length %d, must be >= 1", ErrInvalidParameter, m)
	}
	h := &HMM{
		Alphabet: a,
		M:        m,
		Match:    make([][]float32, m+1),
		Insert:   make([][]float32, m+1),
		Trans:    make([][]float32, m+1),
	}
	k := a.K()
	for i := 0; i <= m; i++ {
		h.Match[i] = make([]float32, k)
		h.Insert[i] = make([]float32, k)
		h.Trans[i] = make([]float32, NTransitions)
	}
	h.Match[0][0] = 1
	return h, nil
}

// Zero clears all probability parameters, keeping metadata.
func (h *HMM) Zero() {
	for i := 0; i <= h.M; i++ {
		for x := range h.Match[i] {
			h.Match[i][x] = 0
			h.Insert[i][x] = 0
		}
		for t := range h.Trans[i] {
			h.Trans[i][t] = 0
		}
	}
	h.Match[0][0] = 1
}

// Scale multiplies all probability parameters by f. Used when absorbing
// weighted counts.
func (h *HMM) Scale(f float32) {
	for i := 0; i <= h.M; i++ {
		for x := range h.Match[i] {
			h.Match[i][x] *= f
			h.Insert[i][x] *= f
		}
		for t := range h.Trans[i] {
			h.Trans[i][t] *= f
		}
	}
}

func renorm(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x
	}
	if sum == 0 {
		return
	}
	for i := range v {
		v[i] /= sum
	}
}

// Renormalize rescales every emission and transition distribution to
// sum to 1. Distributions that are all zero are left alone.
func (h *HMM) Renormalize() {
	for i := 1; i <= h.M; i++ {
		renorm(h.Match[i])
		renorm(h.Insert[i])
	}
	renorm(h.Insert[0])
	for i := 0; i <= h.M; i++ {
		renorm(h.Trans[i][TMM : TMD+1])
		renorm(h.Trans[i][TIM : TII+1])
		renorm(h.Trans[i][TDM : TDD+1])
	}
}

// SetComposition computes the average match emission composition,
// weighted by the expected match state occupancy.
func (h *HMM) SetComposition() {
	k := h.Alphabet.K()
	comp := make([]float32, k)
	var n float32
	for i := 1; i <= h.M; i++ {
		for x := 0; x < k; x++ {
			comp[x] += h.Match[i][x]
		}
		n++
	}
	for x := range comp {
		comp[x] /= n
	}
	h.Composition = comp
}

// SetConsensus derives the consensus residue line from the match
// emissions: the maximum-probability residue per node, upper case when
// its probability exceeds 1/2 (amino) or 0.9 (nucleotide).
func (h *HMM) SetConsensus() {
	threshold := 0.5
	if h.Alphabet.IsNucleotide() {
		threshold = 0.9
	}
	buf := make([]byte, h.M)
	for i := 1; i <= h.M; i++ {
		best, bp := 0, float32(-1)
		for x, p := range h.Match[i] {
			if p > bp {
				best, bp = x, p
			}
		}
		c := h.Alphabet.Symbol(best)
		if float64(bp) < threshold {
			c += 'a' - 'A'
		}
		buf[i-1] = c
	}
	h.Consensus = string(buf)
}

// SetChecksum computes and stores a CRC32 over the consensus residue
// line, used to tie traces and alignments back to the model.
func (h *HMM) SetChecksum() {
	if h.Consensus == "" {
		h.SetConsensus()
	}
	h.checksum = crc32.ChecksumIEEE([]byte(h.Consensus))
	h.hasChecksum = true
}

// Checksum returns the stored checksum if present.
func (h *HMM) Checksum() (uint32, bool) { return h.checksum, h.hasChecksum }

// SetRawChecksum stores a checksum read from a model file.
func (h *HMM) SetRawChecksum(sum uint32) {
	h.checksum = sum
	h.hasChecksum = true
}

// Validate checks the structural invariants: M >= 1 and all emission and
// transition distributions summing to 1 within eps.
func (h *HMM) Validate(eps float32) error {
	if h.M < 1 {
		return fmt.Errorf("%w: M = %d", ErrInvalidParameter, h.M)
	}
	if h.Name == "" {
		return fmt.Errorf("%w: model has no name", ErrInvalidParameter)
	}
	check := func(v []float32, what string, node int) error {
		var sum float32
		for _, x := range v {
			if x < 0 || x > 1+eps {
				return fmt.Errorf("%w: %s probability %g out of range at node %d", ErrInvalidParameter, what, x, node)
			}
			sum += x
		}
		if sum < 1-eps || sum > 1+eps {
			return fmt.Errorf("%w: %s distribution sums to %g at node %d", ErrInvalidParameter, what, sum, node)
		}
		return nil
	}
	for i := 1; i <= h.M; i++ {
		if err := check(h.Match[i], "match emission", i); err != nil {
			return err
		}
		if err := check(h.Insert[i], "insert emission", i); err != nil {
			return err
		}
	}
	for i := 0; i <= h.M; i++ {
		if err := check(h.Trans[i][TMM:TMD+1], "match transition", i); err != nil {
			return err
		}
		if err := check(h.Trans[i][TIM:TII+1], "insert transition", i); err != nil {
			return err
		}
		if i > 0 {
			if err := check(h.Trans[i][TDM:TDD+1], "delete transition", i); err != nil {
				return err
			}
		}
	}
	return nil
}

// Copy returns a deep copy of the model.
func (h *HMM) Copy() *HMM {
	c := *h
	c.Match = make([][]float32, h.M+1)
	c.Insert = make([][]float32, h.M+1)
	c.Trans = make([][]float32, h.M+1)
	for i := 0; i <= h.M; i++ {
		c.Match[i] = append([]float32(nil), h.Match[i]...)
		c.Insert[i] = append([]float32(nil), h.Insert[i]...)
		c.Trans[i] = append([]float32(nil), h.Trans[i]...)
	}
	if h.Composition != nil {
		c.Composition = append([]float32(nil), h.Composition...)
	}
	if h.MapAnnotation != nil {
		c.MapAnnotation = append([]int(nil), h.MapAnnotation...)
	}
	return &c
}

// MeanMatchRelativeEntropy returns the average relative entropy of the
// match emissions against a background, in bits per position.
func (h *HMM) MeanMatchRelativeEntropy(bg *Background) float64 {
	var total float64
	for i := 1; i <= h.M; i++ {
		var re float64
		for x, p := range h.Match[i] {
			if p > 0 {
				re += float64(p) * math.Log2(float64(p)/float64(bg.Frequencies[x]))
			}
		}
		total += re
	}
	return total / float64(h.M)
}
