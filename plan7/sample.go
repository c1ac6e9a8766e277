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
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Randomness is a seedable random source. Seed 0 draws a
// nondeterministic seed. There is no process-wide RNG state.
type Randomness struct {
	*rand.Rand
}

// NewRandomness creates a random source from a seed.
func NewRandomness(seed uint64) *Randomness {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Randomness{rand.New(rand.NewSource(seed))}
}

// sampleDirichletUniform draws a probability vector of dimension k from
// a symmetric Dirichlet with unit concentration.
func sampleDirichletUniform(rng *Randomness, k int) []float32 {
	gamma := distuv.Gamma{Alpha: 1, Beta: 1, Src: rng.Rand}
	v := make([]float32, k)
	var sum float64
	draws := make([]float64, k)
	for i := range draws {
		draws[i] = gamma.Rand()
		sum += draws[i]
	}
	for i := range v {
		v[i] = float32(draws[i] / sum)
	}
	return v
}

// SampleHMM generates a random model of length m, with emissions drawn
// from a uniform Dirichlet and modest random transitions. Sampled models
// validate and are usable as test queries.
func SampleHMM(a *Alphabet, m int, rng *Randomness) (*HMM, error) {
	h, err := NewHMM(a, m)
	if err != nil {
		return nil, err
	}
	k := a.K()
	for i := 1; i <= m; i++ {
		copy(h.Match[i], sampleDirichletUniform(rng, k))
		copy(h.Insert[i], sampleDirichletUniform(rng, k))
	}
	for x := 0; x < k; x++ {
		h.Insert[0][x] = 1 / float32(k)
	}
	for i := 0; i <= m; i++ {
		t := h.Trans[i]
		tmm := 0.7 + 0.25*rng.Float64()
		rest := 1 - tmm
		t[TMM] = float32(tmm)
		t[TMI] = float32(rest * 0.5)
		t[TMD] = float32(rest * 0.5)
		tim := 0.6 + 0.3*rng.Float64()
		t[TIM] = float32(tim)
		t[TII] = float32(1 - tim)
		tdm := 0.6 + 0.3*rng.Float64()
		t[TDM] = float32(tdm)
		t[TDD] = float32(1 - tdm)
	}
	// the last node always exits
	h.Trans[m][TMM] = 1 - h.Trans[m][TMI]
	h.Trans[m][TMD] = 0
	h.Trans[m][TDM] = 1
	h.Trans[m][TDD] = 0
	h.Name = fmt.Sprintf("sampled-M%d", m)
	h.Nseq = 1
	h.NseqEffective = 1
	h.SetConsensus()
	h.SetComposition()
	h.SetChecksum()
	return h, nil
}

// SampleUngappedHMM is like SampleHMM but with all gap transitions set to
// zero, so every path visits every match node.
func SampleUngappedHMM(a *Alphabet, m int, rng *Randomness) (*HMM, error) {
	h, err := SampleHMM(a, m, rng)
	if err != nil {
		return nil, err
	}
	for i := 0; i <= m; i++ {
		t := h.Trans[i]
		t[TMM], t[TMI], t[TMD] = 1, 0, 0
		t[TIM], t[TII] = 1, 0
		t[TDM], t[TDD] = 1, 0
	}
	return h, nil
}

// Emit generates a sequence from the model's consensus path: one
// residue drawn per match emission row. Deterministic in the rng.
func (h *HMM) Emit(rng *Randomness) *DigitalSequence {
	res := make([]int8, 0, h.M)
	for i := 1; i <= h.M; i++ {
		res = append(res, int8(sampleCategory(rng, h.Match[i])))
	}
	return &DigitalSequence{
		Name:     h.Name + "-consensus-sample",
		Alphabet: h.Alphabet,
		Residues: res,
	}
}

func sampleCategory(rng *Randomness, p []float32) int {
	r := float32(rng.Float64())
	var cum float32
	for i, x := range p {
		cum += x
		if r < cum {
			return i
		}
	}
	return len(p) - 1
}

// SampleSequence draws L residues i.i.d. from a background.
func SampleSequence(bg *Background, L int, rng *Randomness) *DigitalSequence {
	res := make([]int8, L)
	for i := range res {
		res[i] = int8(sampleCategory(rng, bg.Frequencies))
	}
	return &DigitalSequence{
		Name:     "random",
		Alphabet: bg.Alphabet,
		Residues: res,
	}
}
