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
	"fmt"

	"github.com/plan7go/plan7/msa"
	"github.com/plan7go/plan7/plan7"
)

// TraceAligner computes state paths for sequences against a model and
// stacks them into an alignment. No search thresholds are applied.
type TraceAligner struct {
	mx *dpMatrix
}

// NewTraceAligner returns an aligner with its own scratch matrix.
func NewTraceAligner() *TraceAligner {
	return &TraceAligner{mx: newDPMatrix()}
}

// AlignTracesOptions control the stacking of traces into an MSA.
type AlignTracesOptions struct {
	// Trim removes the flanking insert columns outside the first and
	// last consensus column.
	Trim bool
	// Digitize returns a DigitalMSA instead of a TextMSA.
	Digitize bool
	// AllConsensusCols forces every model match column to appear even
	// when no trace passes through it.
	AllConsensusCols bool
}

// ComputeTraces aligns each sequence to the model with the Viterbi
// algorithm and returns the optimal paths.
func (ta *TraceAligner) ComputeTraces(hmm *plan7.HMM, seqs []*plan7.DigitalSequence) (plan7.Traces, error) {
	bg := plan7.NewBackground(hmm.Alphabet)
	p := plan7.NewProfile(hmm.Alphabet, hmm.M)

	traces := make(plan7.Traces, 0, len(seqs))
	for _, s := range seqs {
		if s.Alphabet != hmm.Alphabet {
			return nil, fmt.Errorf("sequence %s: %w", s.Name, plan7.ErrAlphabetMismatch)
		}
		bg.SetLength(s.Len())
		if err := p.Configure(hmm, bg, s.Len(), false, true); err != nil {
			return nil, err
		}
		if _, err := Viterbi(p, s, ta.mx); err != nil {
			return nil, err
		}
		tr, err := ViterbiTrace(p, s, ta.mx)
		if err != nil {
			return nil, fmt.Errorf("sequence %s: %w", s.Name, err)
		}
		traces = append(traces, tr)
	}
	return traces, nil
}

// AlignTraces stacks traces into a multiple alignment, expanding
// insert states into their own columns.
func (ta *TraceAligner) AlignTraces(hmm *plan7.HMM, seqs []*plan7.DigitalSequence,
	traces plan7.Traces, opt *AlignTracesOptions) (*msa.TextMSA, *msa.DigitalMSA, error) {
	if opt == nil {
		opt = &AlignTracesOptions{}
	}
	if len(seqs) != len(traces) {
		return nil, nil, fmt.Errorf("%w: %d sequences but %d traces", plan7.ErrInvalidParameter, len(seqs), len(traces))
	}
	names := make([]string, len(seqs))
	for i, s := range seqs {
		names[i] = s.Name
	}
	text, err := stackTraces(hmm.Alphabet, hmm.M, seqs, traces, names, opt)
	if err != nil {
		return nil, nil, err
	}
	if !opt.Digitize {
		return text, nil, nil
	}
	digital, err := text.Digitize(hmm.Alphabet)
	if err != nil {
		return nil, nil, err
	}
	return nil, digital, nil
}

// stackTraces lays traces out over the model's consensus columns.
// Match emissions go upper case into consensus columns, insert
// emissions lower case into expansion columns, deletions show as '-'
// and unused insert cells as '.'.
func stackTraces(a *plan7.Alphabet, M int, seqs []*plan7.DigitalSequence,
	traces plan7.Traces, names []string, opt *AlignTracesOptions) (*msa.TextMSA, error) {

	// per-node maximum insert run length across all traces, and which
	// consensus columns are used at all
	maxIns := make([]int, M+1)
	matUse := make([]bool, M+1)
	for _, tr := range traces {
		if tr.M != M {
			return nil, plan7.ErrModelSizeMismatch
		}
		node := 0
		run := 0
		for z := 0; z < tr.Len(); z++ {
			switch tr.State[z] {
			case plan7.TraceM, plan7.TraceD:
				if run > maxIns[node] {
					maxIns[node] = run
				}
				run = 0
				node = tr.Node[z]
				matUse[node] = true
			case plan7.TraceI:
				node = tr.Node[z]
				run++
			case plan7.TraceE:
				if run > maxIns[node] {
					maxIns[node] = run
				}
				run = 0
				node = 0
			}
		}
	}
	if opt.AllConsensusCols {
		for k := 1; k <= M; k++ {
			matUse[k] = true
		}
	}

	// column layout: inserts after node k, then match column k+1
	colOfMatch := make([]int, M+1)
	colOfInsert := make([]int, M+1) // first insert column after node k
	ncol := 0
	if !opt.Trim {
		colOfInsert[0] = ncol
		ncol += maxIns[0]
	}
	for k := 1; k <= M; k++ {
		if matUse[k] {
			colOfMatch[k] = ncol
			ncol++
		} else {
			colOfMatch[k] = -1
		}
		if k < M || !opt.Trim {
			colOfInsert[k] = ncol
			ncol += maxIns[k]
		}
	}
	if ncol == 0 {
		return nil, plan7.ErrEmptyModel
	}

	rows := make([][]byte, len(traces))
	for i := range rows {
		row := make([]byte, ncol)
		for j := range row {
			row[j] = '.'
		}
		for k := 1; k <= M; k++ {
			if colOfMatch[k] >= 0 {
				row[colOfMatch[k]] = '-'
			}
		}
		rows[i] = row
	}

	for i, tr := range traces {
		s := seqs[i]
		node := 0
		ins := 0
		for z := 0; z < tr.Len(); z++ {
			switch tr.State[z] {
			case plan7.TraceM:
				node = tr.Node[z]
				ins = 0
				if colOfMatch[node] >= 0 {
					rows[i][colOfMatch[node]] = a.Symbol(s.At(tr.Pos[z] - 1))
				}
			case plan7.TraceD:
				node = tr.Node[z]
				ins = 0
			case plan7.TraceI:
				node = tr.Node[z]
				if node == M && opt.Trim {
					continue
				}
				if node == 0 && opt.Trim {
					continue
				}
				if ins < maxIns[node] {
					c := a.Symbol(s.At(tr.Pos[z] - 1))
					rows[i][colOfInsert[node]+ins] = c + 'a' - 'A'
					ins++
				}
			case plan7.TraceB:
				node = 0
				ins = 0
			}
		}
	}

	out, err := msa.NewTextMSA("", names, rows)
	if err != nil {
		return nil, err
	}
	// reference annotation marks the consensus columns
	ref := make([]byte, ncol)
	for j := range ref {
		ref[j] = '.'
	}
	for k := 1; k <= M; k++ {
		if colOfMatch[k] >= 0 {
			ref[colOfMatch[k]] = 'x'
		}
	}
	out.Reference = ref
	return out, nil
}

// ToMSA reconstructs an alignment of the included hits by walking each
// included domain's trace. Target sequences are matched to hits by
// name. Rows are named name/env_from-env_to.
func (th *TopHits) ToMSA(a *plan7.Alphabet, seqs []*plan7.DigitalSequence,
	M int, opt *AlignTracesOptions) (*msa.TextMSA, *msa.DigitalMSA, error) {
	if opt == nil {
		opt = &AlignTracesOptions{}
	}
	byName := make(map[string]*plan7.DigitalSequence, len(seqs))
	for _, s := range seqs {
		byName[s.Name] = s
	}

	var rows []*plan7.DigitalSequence
	var traces plan7.Traces
	var names []string
	for _, h := range th.Hits {
		if !h.Included {
			continue
		}
		s, ok := byName[h.Name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: no sequence for hit %s", plan7.ErrInvalidParameter, h.Name)
		}
		for _, d := range h.Domains {
			if !d.Included || d.Trace == nil {
				continue
			}
			rows = append(rows, s)
			traces = append(traces, d.Trace)
			names = append(names, fmt.Sprintf("%s/%d-%d", h.Name, d.EnvFrom, d.EnvTo))
		}
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: no included hits", plan7.ErrInvalidParameter)
	}

	text, err := stackTraces(a, M, rows, traces, names, opt)
	if err != nil {
		return nil, nil, err
	}
	text.Name = th.QueryName
	if !opt.Digitize {
		return text, nil, nil
	}
	digital, err := text.Digitize(a)
	if err != nil {
		return nil, nil, err
	}
	return nil, digital, nil
}
