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
	"github.com/plan7go/plan7/search"
)

func init() {
	search.RegisterDefaultBuilder(func(a *plan7.Alphabet) (search.SequenceBuilder, error) {
		return NewBuilder(a, nil)
	})
}

// IterationResult is what one round of the iterative search yields.
type IterationResult struct {
	HMM       *plan7.HMM
	Hits      *search.TopHits
	MSA       *msa.DigitalMSA
	Converged bool
	Iteration int
}

// IterativeSearch drives jackhmmer-style profile refinement: search,
// realign the included hits, rebuild the model, repeat until the
// inclusion ranking stops changing.
type IterativeSearch struct {
	pipeline *search.Pipeline
	builder  *Builder
	targets  *plan7.DigitalSequenceBlock

	// SelectHits, when non-nil, lets the caller adjust inclusion flags
	// between rounds.
	SelectHits func(*search.TopHits)

	hmm       *plan7.HMM
	ranking   *search.KeyHash
	iteration int
	converged bool
	stop      bool
}

// NewIterativeSearch starts from a seed sequence.
func NewIterativeSearch(pl *search.Pipeline, b *Builder, q *plan7.DigitalSequence,
	targets *plan7.DigitalSequenceBlock) (*IterativeSearch, error) {
	bg := plan7.NewBackground(b.Alphabet)
	hmm, _, _, err := b.Build(q, bg)
	if err != nil {
		return nil, err
	}
	return NewIterativeSearchHMM(pl, b, hmm, targets)
}

// NewIterativeSearchHMM starts from a model.
func NewIterativeSearchHMM(pl *search.Pipeline, b *Builder, hmm *plan7.HMM,
	targets *plan7.DigitalSequenceBlock) (*IterativeSearch, error) {
	if hmm.Alphabet != b.Alphabet {
		return nil, plan7.ErrAlphabetMismatch
	}
	return &IterativeSearch{
		pipeline: pl,
		builder:  b,
		targets:  targets,
		hmm:      hmm,
		ranking:  search.NewKeyHash(),
	}, nil
}

// Converged reports whether the ranking has stabilized.
func (it *IterativeSearch) Converged() bool { return it.converged }

// Iteration returns the number of completed rounds.
func (it *IterativeSearch) Iteration() int { return it.iteration }

// Next runs one round. It returns nil after convergence has been
// reported once.
func (it *IterativeSearch) Next() (*IterationResult, error) {
	if it.stop {
		return nil, nil
	}
	it.iteration++

	hits, err := it.pipeline.SearchHMM(it.hmm, it.targets)
	if err != nil {
		return nil, err
	}
	if it.SelectHits != nil {
		it.SelectHits(hits)
	}

	// convergence: no new included names, no drops
	prevN := it.ranking.Len()
	for _, h := range hits.Hits {
		if h.Included && !it.ranking.Contains(h.Name) {
			h.New = true
		}
	}
	added := hits.CompareRanking(it.ranking)
	included := len(hits.Included())
	if it.iteration > 1 && added == 0 && included == prevN {
		it.converged = true
	}

	result := &IterationResult{
		HMM:       it.hmm,
		Hits:      hits,
		Converged: it.converged,
		Iteration: it.iteration,
	}

	if it.converged {
		// stop on the next call
		it.stop = true
		return result, nil
	}

	// realign the included hits and rebuild the model
	aligned, err := it.realign(hits)
	if err != nil {
		return nil, err
	}
	if aligned == nil {
		// nothing included; the next round would repeat this one
		it.converged = true
		it.stop = true
		result.Converged = true
		return result, nil
	}
	result.MSA = aligned

	newHMM, _, _, err := it.builder.BuildMSA(aligned, plan7.NewBackground(it.builder.Alphabet))
	if err != nil {
		return nil, err
	}
	newHMM.Name = it.hmm.Name
	newHMM.Accession = it.hmm.Accession
	newHMM.Description = it.hmm.Description
	it.hmm = newHMM
	return result, nil
}

// realign aligns the included hit regions against the current model.
func (it *IterativeSearch) realign(hits *search.TopHits) (*msa.DigitalMSA, error) {
	var seqs []*plan7.DigitalSequence
	byName := make(map[string]*plan7.DigitalSequence, it.targets.Len())
	for _, s := range it.targets.Sequences {
		byName[s.Name] = s
	}
	for _, h := range hits.Included() {
		s, ok := byName[h.Name]
		if !ok {
			return nil, fmt.Errorf("%w: no target sequence for hit %s", plan7.ErrInvalidParameter, h.Name)
		}
		for _, d := range h.Domains {
			if !d.Included {
				continue
			}
			sub := s.Subsequence(d.EnvFrom-1, d.EnvTo)
			sub.Name = fmt.Sprintf("%s/%d-%d", h.Name, d.EnvFrom, d.EnvTo)
			seqs = append(seqs, sub)
		}
	}
	if len(seqs) == 0 {
		return nil, nil
	}

	ta := search.NewTraceAligner()
	traces, err := ta.ComputeTraces(it.hmm, seqs)
	if err != nil {
		return nil, err
	}
	_, digital, err := ta.AlignTraces(it.hmm, seqs, traces, &search.AlignTracesOptions{
		Digitize:         true,
		AllConsensusCols: true,
	})
	if err != nil {
		return nil, err
	}
	digital.Name = it.hmm.Name
	return digital, nil
}
