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

package search

import (
	"math"

	"github.com/plan7go/plan7/plan7"
)

// defineDomains decomposes a multihit Viterbi trace into one Domain per
// B..E passage through the model. Posterior probabilities pp (indexed
// 1..L) annotate the emitting steps; null2 composition bias is applied
// per envelope when enabled.
func defineDomains(p *plan7.Profile, bg *plan7.Background, s *plan7.DigitalSequence,
	tr *plan7.Trace, pp []float64, null2 bool) []*Domain {

	var domains []*Domain
	n := tr.Len()
	for z := 0; z < n; z++ {
		if tr.State[z] != plan7.TraceB {
			continue
		}
		// find the matching E
		end := -1
		for w := z + 1; w < n; w++ {
			if tr.State[w] == plan7.TraceE {
				end = w
				break
			}
		}
		if end < 0 {
			break
		}
		d := buildDomain(p, bg, s, tr, pp, z, end, null2)
		if d != nil {
			domains = append(domains, d)
		}
		z = end
	}
	return domains
}

// buildDomain scores the trace segment tr[from..to] (from at B, to at
// E) and assembles the domain with its alignment.
func buildDomain(p *plan7.Profile, bg *plan7.Background, s *plan7.DigitalSequence,
	tr *plan7.Trace, pp []float64, from, to int, null2 bool) *Domain {

	envFrom, envTo := 0, 0
	hmmFrom, hmmTo := 0, 0
	var natsc float64

	for z := from; z <= to; z++ {
		st := tr.State[z]
		if tr.Pos[z] > 0 {
			if envFrom == 0 {
				envFrom = tr.Pos[z]
			}
			envTo = tr.Pos[z]
		}
		if st == plan7.TraceM {
			if hmmFrom == 0 {
				hmmFrom = tr.Node[z]
			}
			hmmTo = tr.Node[z]
			natsc += float64(p.Msc[s.At(tr.Pos[z]-1)][tr.Node[z]])
		}
		if z > from {
			natsc += float64(traceTransition(p, tr, z))
		}
	}
	if envFrom == 0 || hmmFrom == 0 {
		return nil
	}

	// Flanking residues contribute their loop costs; the entry/exit
	// moves close the score off against the null length model.
	L := s.Len()
	loop := float64(p.Xsc[plan7.XTN][plan7.XLoop])
	move := float64(p.Xsc[plan7.XTN][plan7.XMove])
	flank := L - (envTo - envFrom + 1)
	natsc += float64(flank)*loop + 2*move + float64(p.Xsc[plan7.XTE][plan7.XMove])

	null := float64(bg.NullScore(L))
	preBits := (natsc - null) / math.Ln2

	var biasBits float64
	if null2 {
		env := s.Subsequence(envFrom-1, envTo)
		biasBits = CompositionBias(bg, env) / math.Ln2
	}

	score := preBits - biasBits

	d := &Domain{
		EnvFrom:       envFrom,
		EnvTo:         envTo,
		Score:         float32(score),
		Bias:          float32(biasBits),
		EnvelopeScore: float32(preBits),
	}

	// keep the domain's own sub-path, with posteriors when available
	sub := plan7.NewTrace(tr.M, s.Len())
	for z := from; z <= to; z++ {
		sub.Append(tr.State[z], tr.Node[z], tr.Pos[z])
		if pp != nil {
			v := float32(0)
			if tr.Pos[z] > 0 {
				v = float32(pp[tr.Pos[z]])
			}
			sub.Posterior = append(sub.Posterior, v)
		}
	}
	d.Trace = sub
	d.Alignment = buildAlignment(p, s, sub, hmmFrom, hmmTo)
	return d
}

func traceTransition(p *plan7.Profile, tr *plan7.Trace, z int) float32 {
	return traceTransitionScore(p, tr.State[z-1], tr.Node[z-1], tr.State[z], tr.Node[z])
}

func traceTransitionScore(p *plan7.Profile, s1 plan7.TraceState, k1 int, s2 plan7.TraceState, k2 int) float32 {
	switch {
	case s1 == plan7.TraceB && s2 == plan7.TraceM:
		return p.Bsc[k2]
	case s1 == plan7.TraceM && s2 == plan7.TraceM:
		return p.Tsc[k1][plan7.TMM]
	case s1 == plan7.TraceM && s2 == plan7.TraceI:
		return p.Tsc[k1][plan7.TMI]
	case s1 == plan7.TraceM && s2 == plan7.TraceD:
		return p.Tsc[k1][plan7.TMD]
	case s1 == plan7.TraceI && s2 == plan7.TraceM:
		return p.Tsc[k1][plan7.TIM]
	case s1 == plan7.TraceI && s2 == plan7.TraceI:
		return p.Tsc[k1][plan7.TII]
	case s1 == plan7.TraceD && s2 == plan7.TraceM:
		return p.Tsc[k1][plan7.TDM]
	case s1 == plan7.TraceD && s2 == plan7.TraceD:
		return p.Tsc[k1][plan7.TDD]
	case s1 == plan7.TraceM && s2 == plan7.TraceE:
		return p.Esc[k1]
	case s1 == plan7.TraceD && s2 == plan7.TraceE:
		return p.Esc[k1]
	}
	return 0
}

// buildAlignment renders the display strings of a domain sub-path.
func buildAlignment(p *plan7.Profile, s *plan7.DigitalSequence, sub *plan7.Trace, hmmFrom, hmmTo int) Alignment {
	var hmmLine, midLine, seqLine []byte
	targetFrom, targetTo := 0, 0

	consensusAt := func(k int) byte {
		if p.Consensus != "" && k-1 < len(p.Consensus) {
			return p.Consensus[k-1]
		}
		return 'x'
	}

	for z := 0; z < sub.Len(); z++ {
		switch sub.State[z] {
		case plan7.TraceM:
			k, pos := sub.Node[z], sub.Pos[z]
			hc := consensusAt(k)
			tc := s.Alphabet.Symbol(s.At(pos - 1))
			hmmLine = append(hmmLine, hc)
			seqLine = append(seqLine, tc)
			switch {
			case hc == tc || hc == tc+'a'-'A' || hc+'a'-'A' == tc:
				midLine = append(midLine, tc)
			case p.Msc[s.At(pos-1)][k] > 0:
				midLine = append(midLine, '+')
			default:
				midLine = append(midLine, ' ')
			}
			if targetFrom == 0 {
				targetFrom = pos
			}
			targetTo = pos
		case plan7.TraceI:
			pos := sub.Pos[z]
			hmmLine = append(hmmLine, '.')
			midLine = append(midLine, ' ')
			seqLine = append(seqLine, s.Alphabet.Symbol(s.At(pos-1))+'a'-'A')
			if targetFrom == 0 {
				targetFrom = pos
			}
			targetTo = pos
		case plan7.TraceD:
			hmmLine = append(hmmLine, consensusAt(sub.Node[z]))
			midLine = append(midLine, ' ')
			seqLine = append(seqLine, '-')
		}
	}

	return Alignment{
		HmmFrom:        hmmFrom,
		HmmTo:          hmmTo,
		TargetFrom:     targetFrom,
		TargetTo:       targetTo,
		HmmName:        p.Name,
		HmmAccession:   p.Accession,
		TargetName:     s.Name,
		HmmSequence:    string(hmmLine),
		Identity:       string(midLine),
		TargetSequence: string(seqLine),
	}
}
