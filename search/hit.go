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
	"github.com/plan7go/plan7/plan7"
)

// Alignment is one aligned region of a domain: model and target
// coordinates plus the three display strings.
//
// The owning edge runs Hit -> Domain -> Alignment; the back-reference
// is an index pair, never a pointer to the parent.
type Alignment struct {
	HmmFrom int // first aligned model node, 1-based
	HmmTo   int
	TargetFrom int // first aligned target residue, 1-based
	TargetTo   int

	HmmName      string
	HmmAccession string
	TargetName   string

	// Display strings of equal length: aligned model consensus,
	// identity mid line and aligned target.
	HmmSequence    string
	Identity       string
	TargetSequence string

	Score float32

	// Back-reference into the owning TopHits arena.
	HitIndex    int
	DomainIndex int
}

// Domain is a posterior-decoded envelope of a target with its scores
// and significance estimates.
type Domain struct {
	EnvFrom int // envelope start, 1-based
	EnvTo   int

	Score         float32 // raw bit score
	Bias          float32 // null2 correction, bits, >= 0
	EnvelopeScore float32

	CEvalue float64 // conditional E-value within this target
	IEvalue float64 // independent E-value over the full search space
	Pvalue  float64

	Included bool
	Reported bool

	Alignment Alignment
	Trace     *plan7.Trace

	// Strand of the envelope for long nucleotide targets; true when on
	// the reverse complement strand.
	ReverseStrand bool
}

// Domains is the ordered domain list of a hit.
type Domains []*Domain

// Reported returns the view of domains flagged as reported.
func (ds Domains) Reported() Domains {
	out := make(Domains, 0, len(ds))
	for _, d := range ds {
		if d.Reported {
			out = append(out, d)
		}
	}
	return out
}

// Included returns the view of domains flagged as included.
func (ds Domains) Included() Domains {
	out := make(Domains, 0, len(ds))
	for _, d := range ds {
		if d.Included {
			out = append(out, d)
		}
	}
	return out
}

// Hit is the per-target scoring summary.
type Hit struct {
	Name        string
	Accession   string
	Description string

	Score    float32 // final bit score, bias-corrected
	PreScore float32 // bit score before null2 correction
	SumScore float32 // sum over all envelopes
	Bias     float32

	Evalue float64
	Pvalue float64

	Domains Domains

	// SeqIdx is the ordinal of the target in its original input order,
	// preserved across merges.
	SeqIdx int

	Included  bool
	Reported  bool
	New       bool
	Dropped   bool
	Duplicate bool
}

// BestDomain returns the highest-scoring domain, or nil for a hit
// without domains.
func (h *Hit) BestDomain() *Domain {
	var best *Domain
	for _, d := range h.Domains {
		if best == nil || d.Score > best.Score {
			best = d
		}
	}
	return best
}
