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

// TraceState enumerates the states a path can visit.
type TraceState uint8

const (
	TraceS TraceState = iota // start
	TraceN                   // 5' flank
	TraceB                   // begin
	TraceM                   // match
	TraceD                   // delete
	TraceI                   // insert
	TraceE                   // end
	TraceC                   // 3' flank
	TraceT                   // terminal
	TraceJ                   // joining segment
)

func (s TraceState) String() string {
	switch s {
	case TraceS:
		return "S"
	case TraceN:
		return "N"
	case TraceB:
		return "B"
	case TraceM:
		return "M"
	case TraceD:
		return "D"
	case TraceI:
		return "I"
	case TraceE:
		return "E"
	case TraceC:
		return "C"
	case TraceT:
		return "T"
	case TraceJ:
		return "J"
	}
	return "?"
}

// Trace is a state path through a model for one sequence.
//
// State[z] is the state at step z; Node[z] the model node (0 when the
// state has none); Pos[z] the 1-based emitted sequence position (0 when
// the state emits nothing at this step). Posterior, when non-nil, holds
// the per-step posterior probability of the emission.
type Trace struct {
	M int // match node count of the parent model
	L int // length of the traced sequence

	State     []TraceState
	Node      []int
	Pos       []int
	Posterior []float32
}

// NewTrace returns an empty trace for a model of size m and a sequence
// of length l.
func NewTrace(m, l int) *Trace {
	return &Trace{M: m, L: l}
}

// Len returns the path length, the number of states visited.
func (tr *Trace) Len() int { return len(tr.State) }

// Append adds one step to the path.
func (tr *Trace) Append(s TraceState, node, pos int) {
	tr.State = append(tr.State, s)
	tr.Node = append(tr.Node, node)
	tr.Pos = append(tr.Pos, pos)
}

// Reverse flips the path in place; traceback builds paths tail first.
func (tr *Trace) Reverse() {
	for i, j := 0, len(tr.State)-1; i < j; i, j = i+1, j-1 {
		tr.State[i], tr.State[j] = tr.State[j], tr.State[i]
		tr.Node[i], tr.Node[j] = tr.Node[j], tr.Node[i]
		tr.Pos[i], tr.Pos[j] = tr.Pos[j], tr.Pos[i]
	}
	if tr.Posterior != nil {
		for i, j := 0, len(tr.Posterior)-1; i < j; i, j = i+1, j-1 {
			tr.Posterior[i], tr.Posterior[j] = tr.Posterior[j], tr.Posterior[i]
		}
	}
}

// ExpectedAccuracy is the sum of posterior probabilities over emitting
// match/insert steps, divided by the residue count. Zero when the trace
// carries no posteriors.
func (tr *Trace) ExpectedAccuracy() float64 {
	if tr.Posterior == nil {
		return 0
	}
	var sum float64
	var n int
	for z, s := range tr.State {
		if (s == TraceM || s == TraceI) && tr.Pos[z] > 0 {
			sum += float64(tr.Posterior[z])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Validate checks structural sanity of the path against a model and a
// sequence: monotonically nondecreasing positions, nodes within 1..M,
// and every residue accounted for exactly once.
func (tr *Trace) Validate(hmm *HMM, s *DigitalSequence) error {
	if tr.M != hmm.M {
		return ErrModelSizeMismatch
	}
	if tr.L != s.Len() {
		return fmt.Errorf("%w: trace is for a length-%d sequence, got %d", ErrInvalidParameter, tr.L, s.Len())
	}
	pos := 0
	for z, st := range tr.State {
		if tr.Node[z] < 0 || tr.Node[z] > tr.M {
			return fmt.Errorf("%w: node %d out of range at step %d", ErrInvalidParameter, tr.Node[z], z)
		}
		if tr.Pos[z] != 0 {
			if tr.Pos[z] != pos+1 {
				return fmt.Errorf("%w: position %d out of order at step %d", ErrInvalidParameter, tr.Pos[z], z)
			}
			pos = tr.Pos[z]
			switch st {
			case TraceM, TraceI, TraceN, TraceC, TraceJ:
			default:
				return fmt.Errorf("%w: state %s emits at step %d", ErrInvalidParameter, st, z)
			}
		}
	}
	if pos != tr.L {
		return fmt.Errorf("%w: trace emits %d of %d residues", ErrInvalidParameter, pos, tr.L)
	}
	return nil
}

// Score recomputes the log-odds score of this path under a configured
// profile, in nats.
func (tr *Trace) Score(p *Profile, s *DigitalSequence) (float32, error) {
	if !p.Configured() {
		return 0, ErrUnconfigured
	}
	if tr.M != p.M {
		return 0, ErrModelSizeMismatch
	}
	var sc float32
	for z := 0; z < len(tr.State); z++ {
		st := tr.State[z]
		if st == TraceM && tr.Pos[z] > 0 {
			sc += p.Msc[s.At(tr.Pos[z]-1)][tr.Node[z]]
		}
		if z == 0 {
			continue
		}
		sc += transitionScore(p, tr.State[z-1], tr.Node[z-1], st, tr.Node[z])
	}
	return sc, nil
}

func transitionScore(p *Profile, s1 TraceState, k1 int, s2 TraceState, k2 int) float32 {
	switch {
	case s1 == TraceS && s2 == TraceN:
		return 0
	case s1 == TraceN && s2 == TraceN:
		return p.Xsc[XTN][XLoop]
	case s1 == TraceN && s2 == TraceB:
		return p.Xsc[XTN][XMove]
	case s1 == TraceB && s2 == TraceM:
		return p.Bsc[k2]
	case s1 == TraceM && s2 == TraceM:
		return p.Tsc[k1][TMM]
	case s1 == TraceM && s2 == TraceI:
		return p.Tsc[k1][TMI]
	case s1 == TraceM && s2 == TraceD:
		return p.Tsc[k1][TMD]
	case s1 == TraceI && s2 == TraceM:
		return p.Tsc[k1][TIM]
	case s1 == TraceI && s2 == TraceI:
		return p.Tsc[k1][TII]
	case s1 == TraceD && s2 == TraceM:
		return p.Tsc[k1][TDM]
	case s1 == TraceD && s2 == TraceD:
		return p.Tsc[k1][TDD]
	case s1 == TraceM && s2 == TraceE:
		return p.Esc[k1]
	case s1 == TraceD && s2 == TraceE:
		return p.Esc[k1]
	case s1 == TraceE && s2 == TraceC:
		return p.Xsc[XTE][XMove]
	case s1 == TraceE && s2 == TraceJ:
		return p.Xsc[XTE][XLoop]
	case s1 == TraceJ && s2 == TraceJ:
		return p.Xsc[XTJ][XLoop]
	case s1 == TraceJ && s2 == TraceB:
		return p.Xsc[XTJ][XMove]
	case s1 == TraceC && s2 == TraceC:
		return p.Xsc[XTC][XLoop]
	case s1 == TraceC && s2 == TraceT:
		return p.Xsc[XTC][XMove]
	}
	return minusInfinity
}

// Traces is an ordered list of traces, one per aligned sequence.
type Traces []*Trace
