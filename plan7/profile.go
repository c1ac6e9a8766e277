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
	"math"
)

// Special state indexes into Profile.Xsc.
const (
	XTN = iota // N: 5' flanking residues
	XTE        // E: exit
	XTC        // C: 3' flanking residues
	XTJ        // J: joining segment between hits
	NXStates
)

// Transition kinds of a special state.
const (
	XLoop = iota // emit one more residue and stay
	XMove        // move on
)

var minusInfinity = float32(math.Inf(-1))

// Profile is the log-odds score form of an HMM, configured against a
// Background for an expected target length L. Scores are in nats.
//
// A profile carries per-target state (L and the length-dependent special
// state scores); workers must hold their own copy.
type Profile struct {
	M int
	L int

	Alphabet *Alphabet
	Local    bool
	Multihit bool

	// Msc[x][k]: match emission score of digital code x at node k.
	// All Kp codes are scored; degeneracies are marginalized over the
	// background, gap and not-a-residue codes score -Inf.
	Msc [][]float32

	// Tsc[k][t]: transition scores, indexed like HMM.Trans.
	Tsc [][]float32

	// Xsc[state][move]: N/E/C/J special state transition scores.
	Xsc [NXStates][2]float32

	// Bsc[k]: B -> Mk entry scores. Esc[k]: Mk -> E exit scores.
	Bsc []float32
	Esc []float32

	Name        string
	Accession   string
	Description string
	Consensus   string

	EvalueParameters EvalueParameters
	Cutoffs          Cutoffs

	// nj is the expected number of J segments: 1 for multihit, 0 for
	// unihit configuration.
	nj float64

	configured bool
}

// NewProfile allocates an unconfigured profile for a model size and
// alphabet.
func NewProfile(a *Alphabet, m int) *Profile {
	p := &Profile{
		M:        m,
		Alphabet: a,
		Msc:      make([][]float32, a.Kp()),
		Tsc:      make([][]float32, m+1),
		Bsc:      make([]float32, m+1),
		Esc:      make([]float32, m+1),
	}
	for x := range p.Msc {
		p.Msc[x] = make([]float32, m+1)
	}
	for k := range p.Tsc {
		p.Tsc[k] = make([]float32, NTransitions)
	}
	return p
}

// Configured reports whether Configure has been called.
func (p *Profile) Configured() bool { return p.configured }

func logf32(x float64) float32 {
	if x <= 0 {
		return minusInfinity
	}
	return float32(math.Log(x))
}

// Configure fills the profile from an HMM and a Background for an
// expected target length L. multihit selects whether more than one
// domain may be found per target; local selects local over glocal
// alignment to the model.
func (p *Profile) Configure(hmm *HMM, bg *Background, L int, multihit, local bool) error {
	if hmm.Alphabet != p.Alphabet {
		return ErrAlphabetMismatch
	}
	if hmm.M != p.M {
		return ErrModelSizeMismatch
	}

	a := p.Alphabet
	k := a.K()

	// Match emission log odds, then degeneracy marginalization.
	for x := 0; x < k; x++ {
		for node := 1; node <= p.M; node++ {
			p.Msc[x][node] = logf32(float64(hmm.Match[node][x]) / float64(bg.Frequencies[x]))
		}
		p.Msc[x][0] = minusInfinity
	}
	for x := k; x < a.Kp(); x++ {
		set := a.DegenerateResidues(x)
		for node := 0; node <= p.M; node++ {
			if len(set) == 0 || node == 0 {
				p.Msc[x][node] = minusInfinity
				continue
			}
			// marginal odds of the residue set
			var num, den float64
			for _, r := range set {
				num += float64(hmm.Match[node][r])
				den += float64(bg.Frequencies[r])
			}
			p.Msc[x][node] = logf32(num / den)
		}
	}

	// Transitions.
	for node := 0; node <= p.M; node++ {
		for t := 0; t < NTransitions; t++ {
			p.Tsc[node][t] = logf32(float64(hmm.Trans[node][t]))
		}
	}

	// Entry and exit distributions.
	if local {
		// Uniform fragment entry: P(B -> Mk) proportional to (M-k+1).
		z := float64(p.M) * float64(p.M+1) / 2
		for node := 1; node <= p.M; node++ {
			p.Bsc[node] = logf32(float64(p.M-node+1) / z)
			p.Esc[node] = 0
		}
	} else {
		// Glocal: enter through node 1, leave through node M.
		for node := 1; node <= p.M; node++ {
			p.Bsc[node] = minusInfinity
			p.Esc[node] = minusInfinity
		}
		p.Bsc[1] = logf32(float64(hmm.Trans[0][TMM]))
		p.Esc[p.M] = 0
	}
	p.Bsc[0] = minusInfinity
	p.Esc[0] = minusInfinity

	// Multihit vs unihit: E state either re-enters through J or must
	// move on to C.
	if multihit {
		p.Xsc[XTE][XLoop] = logf32(0.5)
		p.Xsc[XTE][XMove] = logf32(0.5)
		p.nj = 1
	} else {
		p.Xsc[XTE][XLoop] = minusInfinity
		p.Xsc[XTE][XMove] = 0
		p.nj = 0
	}

	p.Local = local
	p.Multihit = multihit

	p.Name = hmm.Name
	p.Accession = hmm.Accession
	p.Description = hmm.Description
	p.Consensus = hmm.Consensus
	p.EvalueParameters = hmm.EvalueParameters
	p.Cutoffs = hmm.Cutoffs

	p.configured = true
	p.ReconfigureLength(L)
	return nil
}

// ReconfigureLength rescales the N/C/J state transitions for a target of
// L residues. Cheap; called once per target.
func (p *Profile) ReconfigureLength(L int) {
	if L < 0 {
		L = 0
	}
	pmove := (2 + p.nj) / (float64(L) + 2 + p.nj)
	ploop := 1 - pmove
	loop := logf32(ploop)
	move := logf32(pmove)
	p.Xsc[XTN][XLoop] = loop
	p.Xsc[XTN][XMove] = move
	p.Xsc[XTC][XLoop] = loop
	p.Xsc[XTC][XMove] = move
	p.Xsc[XTJ][XLoop] = loop
	p.Xsc[XTJ][XMove] = move
	p.L = L
}

// MatchScore returns the emission score of digital code x at node k.
func (p *Profile) MatchScore(x, k int) float32 { return p.Msc[x][k] }

// Copy returns a deep copy, for per-worker cloning.
func (p *Profile) Copy() *Profile {
	c := *p
	c.Msc = make([][]float32, len(p.Msc))
	for x := range p.Msc {
		c.Msc[x] = append([]float32(nil), p.Msc[x]...)
	}
	c.Tsc = make([][]float32, len(p.Tsc))
	for k := range p.Tsc {
		c.Tsc[k] = append([]float32(nil), p.Tsc[k]...)
	}
	c.Bsc = append([]float32(nil), p.Bsc...)
	c.Esc = append([]float32(nil), p.Esc...)
	return &c
}
