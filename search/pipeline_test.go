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
	"errors"
	"math"
	"testing"

	"github.com/plan7go/plan7/plan7"
)

// peakedHMM builds a model whose consensus emissions are strongly
// peaked, so its own consensus sequence scores far above background.
func peakedHMM(t *testing.T, a *plan7.Alphabet, m int, seed uint64) *plan7.HMM {
	t.Helper()
	rng := plan7.NewRandomness(seed)
	h, err := plan7.NewHMM(a, m)
	if err != nil {
		t.Fatal(err)
	}
	k := a.K()
	for i := 1; i <= m; i++ {
		best := rng.Intn(k)
		for x := 0; x < k; x++ {
			if x == best {
				h.Match[i][x] = 0.91
			} else {
				h.Match[i][x] = 0.09 / float32(k-1)
			}
		}
		for x := 0; x < k; x++ {
			h.Insert[i][x] = 1 / float32(k)
		}
	}
	for x := 0; x < k; x++ {
		h.Insert[0][x] = 1 / float32(k)
	}
	for i := 0; i <= m; i++ {
		tr := h.Trans[i]
		tr[plan7.TMM], tr[plan7.TMI], tr[plan7.TMD] = 0.96, 0.02, 0.02
		tr[plan7.TIM], tr[plan7.TII] = 0.8, 0.2
		tr[plan7.TDM], tr[plan7.TDD] = 0.8, 0.2
	}
	h.Trans[m][plan7.TMM], h.Trans[m][plan7.TMI], h.Trans[m][plan7.TMD] = 0.98, 0.02, 0
	h.Trans[m][plan7.TDM], h.Trans[m][plan7.TDD] = 1, 0
	h.Name = "peaked"
	h.SetConsensus()
	h.SetComposition()
	h.SetChecksum()
	return h
}

func consensusSequence(t *testing.T, h *plan7.HMM, name string) *plan7.DigitalSequence {
	t.Helper()
	res := make([]int8, h.M)
	for i := 1; i <= h.M; i++ {
		best, bp := 0, float32(-1)
		for x, p := range h.Match[i] {
			if p > bp {
				best, bp = x, p
			}
		}
		res[i-1] = int8(best)
	}
	return &plan7.DigitalSequence{Name: name, Alphabet: h.Alphabet, Residues: res}
}

// TestSearchSampledSelfHit: a sampled model must find its own emitted
// sequence as exactly one reported hit with a positive best domain.
func TestSearchSampledSelfHit(t *testing.T) {
	rng := plan7.NewRandomness(42)
	hmm, err := plan7.SampleHMM(plan7.Amino, 40, rng)
	if err != nil {
		t.Fatal(err)
	}
	target := hmm.Emit(plan7.NewRandomness(42))
	target.Name = "sample"

	block, err := plan7.NewDigitalSequenceBlock(plan7.Amino, target)
	if err != nil {
		t.Fatal(err)
	}

	pl, err := NewPipeline(plan7.Amino, nil)
	if err != nil {
		t.Fatal(err)
	}
	hits, err := pl.SearchHMM(hmm, block)
	if err != nil {
		t.Fatal(err)
	}

	reported := hits.Reported()
	if len(reported) != 1 {
		t.Fatalf("%d reported hits, want exactly 1", len(reported))
	}
	best := reported[0].BestDomain()
	if best == nil || best.Score <= 0 {
		t.Fatalf("best domain score not positive: %+v", best)
	}
	if reported[0].Bias < 0 {
		t.Errorf("hit bias = %f, want >= 0", reported[0].Bias)
	}
	t.Logf("self hit: score %.1f bits, E-value %.2g", reported[0].Score, reported[0].Evalue)
}

// TestSearchIdenticalTargets: two identical sequences get equal scores
// and seqidx order is recovered by sorting.
func TestSearchIdenticalTargets(t *testing.T) {
	hmm := peakedHMM(t, plan7.Amino, 30, 5)
	s1 := consensusSequence(t, hmm, "copy1")
	s2 := consensusSequence(t, hmm, "copy2")

	block, err := plan7.NewDigitalSequenceBlock(plan7.Amino, s1, s2)
	if err != nil {
		t.Fatal(err)
	}
	pl, err := NewPipeline(plan7.Amino, nil)
	if err != nil {
		t.Fatal(err)
	}
	hits, err := pl.SearchHMM(hmm, block)
	if err != nil {
		t.Fatal(err)
	}
	if hits.Len() != 2 {
		t.Fatalf("%d hits, want 2", hits.Len())
	}
	if hits.Hits[0].Score != hits.Hits[1].Score {
		t.Fatalf("identical targets scored differently: %f vs %f",
			hits.Hits[0].Score, hits.Hits[1].Score)
	}
	if err := hits.Sort(SortBySeqIdx); err != nil {
		t.Fatal(err)
	}
	if hits.Hits[0].SeqIdx != 0 || hits.Hits[1].SeqIdx != 1 {
		t.Fatalf("seqidx order = [%d %d], want [0 1]", hits.Hits[0].SeqIdx, hits.Hits[1].SeqIdx)
	}
}

// TestMissingCutoffs: selecting gathering cutoffs on a model without
// them fails up front.
func TestMissingCutoffs(t *testing.T) {
	hmm := peakedHMM(t, plan7.Amino, 12, 6)
	target := consensusSequence(t, hmm, "t")
	block, _ := plan7.NewDigitalSequenceBlock(plan7.Amino, target)

	opt := DefaultPipelineOptions
	opt.Thresholds.BitCutoffs = plan7.CutoffGathering
	pl, err := NewPipeline(plan7.Amino, &opt)
	if err != nil {
		t.Fatal(err)
	}
	_, err = pl.SearchHMM(hmm, block)
	if !errors.Is(err, plan7.ErrMissingCutoffs) {
		t.Fatalf("got %v, want ErrMissingCutoffs", err)
	}

	// with the pair present the search goes through
	hmm.Cutoffs.SetGathering(10, 10)
	pl2, _ := NewPipeline(plan7.Amino, &opt)
	if _, err := pl2.SearchHMM(hmm, block); err != nil {
		t.Fatalf("search with cutoffs present failed: %s", err)
	}
}

// TestBestDomainBound: for every reported hit the best domain cannot
// outscore the whole sequence by more than rounding.
func TestBestDomainBound(t *testing.T) {
	hmm := peakedHMM(t, plan7.Amino, 25, 7)
	targets := []*plan7.DigitalSequence{
		consensusSequence(t, hmm, "exact"),
	}
	block, _ := plan7.NewDigitalSequenceBlock(plan7.Amino, targets...)
	pl, _ := NewPipeline(plan7.Amino, nil)
	hits, err := pl.SearchHMM(hmm, block)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits.Reported() {
		best := h.BestDomain()
		if best == nil {
			t.Fatal("reported hit without domains")
		}
		if float64(best.Score) > float64(h.Score)+1.0 {
			t.Errorf("best domain %.2f far above hit score %.2f", best.Score, h.Score)
		}
		if h.Bias < 0 {
			t.Errorf("negative hit bias %f", h.Bias)
		}
	}
}

// TestForwardDominatesViterbi: the Forward score sums over all paths
// and can never fall below the optimal path, up to floating-point
// rounding.
func TestForwardDominatesViterbi(t *testing.T) {
	hmm := peakedHMM(t, plan7.Amino, 20, 8)
	bg := plan7.NewBackground(plan7.Amino)
	p := plan7.NewProfile(plan7.Amino, hmm.M)
	s := consensusSequence(t, hmm, "c")
	bg.SetLength(s.Len())
	if err := p.Configure(hmm, bg, s.Len(), true, true); err != nil {
		t.Fatal(err)
	}

	mx := newDPMatrix()
	vit, err := Viterbi(p, s, mx)
	if err != nil {
		t.Fatal(err)
	}
	fwd, err := Forward(p, s, newDPMatrix())
	if err != nil {
		t.Fatal(err)
	}
	if fwd < vit-1e-3 {
		t.Fatalf("Forward %.4f < Viterbi %.4f", fwd, vit)
	}

	bck, err := Backward(p, s, newDPMatrix())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(bck-fwd) > 1e-3*math.Abs(fwd)+1e-2 {
		t.Fatalf("Backward %.4f does not match Forward %.4f", bck, fwd)
	}
}

// TestSearchScanAgree: searching a model against one sequence and
// scanning the sequence against that one model give the same hit.
func TestSearchScanAgree(t *testing.T) {
	hmm := peakedHMM(t, plan7.Amino, 28, 9)
	target := consensusSequence(t, hmm, "t1")
	block, _ := plan7.NewDigitalSequenceBlock(plan7.Amino, target)

	pl, _ := NewPipeline(plan7.Amino, nil)
	searchHits, err := pl.SearchHMM(hmm, block)
	if err != nil {
		t.Fatal(err)
	}
	if searchHits.Len() != 1 {
		t.Fatalf("search found %d hits, want 1", searchHits.Len())
	}

	// derive the optimized profile the way the search arm does
	bg := plan7.NewBackground(plan7.Amino)
	p := plan7.NewProfile(plan7.Amino, hmm.M)
	if err := p.Configure(hmm, bg, LHint, true, true); err != nil {
		t.Fatal(err)
	}
	// the scan arm calibrates the uncalibrated model with the same
	// seed, so the fitted parameters match the search arm's
	om, err := plan7.ConvertProfile(p)
	if err != nil {
		t.Fatal(err)
	}

	pl2, _ := NewPipeline(plan7.Amino, nil)
	scanHits, err := pl2.ScanSeq(target, &sliceModels{models: []*plan7.OptimizedProfile{om}})
	if err != nil {
		t.Fatal(err)
	}
	if scanHits.Len() != 1 {
		t.Fatalf("scan found %d hits, want 1", scanHits.Len())
	}
	if scanHits.Mode != ModeScan || searchHits.Mode != ModeSearch {
		t.Error("modes not set correctly")
	}
	if scanHits.Hits[0].Name != hmm.Name {
		t.Errorf("scan hit named %q, want the model name %q", scanHits.Hits[0].Name, hmm.Name)
	}
	ds := searchHits.Hits[0].Score
	dv := scanHits.Hits[0].Score
	if math.Abs(float64(ds-dv)) > 1.5 {
		t.Errorf("search score %.2f and scan score %.2f differ beyond quantization", ds, dv)
	}
}

// sliceModels adapts a model slice to the scan iterator.
type sliceModels struct {
	models []*plan7.OptimizedProfile
	cursor int
}

func (sm *sliceModels) Next() (*plan7.OptimizedProfile, error) {
	if sm.cursor >= len(sm.models) {
		return nil, nil
	}
	om := sm.models[sm.cursor]
	sm.cursor++
	return om, nil
}

// TestPipelineStop: the stop predicate ends the run between targets.
func TestPipelineStop(t *testing.T) {
	hmm := peakedHMM(t, plan7.Amino, 10, 11)
	var targets []*plan7.DigitalSequence
	for i := 0; i < 5; i++ {
		targets = append(targets, consensusSequence(t, hmm, "t"))
	}
	block, _ := plan7.NewDigitalSequenceBlock(plan7.Amino, targets...)

	pl, _ := NewPipeline(plan7.Amino, nil)
	n := 0
	pl.Stop = func() bool {
		n++
		return n > 2
	}
	hits, err := pl.SearchHMM(hmm, block)
	if err != nil {
		t.Fatal(err)
	}
	if hits.SearchedSequences >= 5 {
		t.Errorf("searched %d sequences, expected the stop predicate to cut the run short", hits.SearchedSequences)
	}
}

func TestCompositionBiasNonNegative(t *testing.T) {
	bg := plan7.NewBackground(plan7.Amino)
	// a maximally biased sequence: all one residue
	res := make([]int8, 50)
	s := &plan7.DigitalSequence{Name: "lowcomp", Alphabet: plan7.Amino, Residues: res}
	bias := CompositionBias(bg, s)
	if bias <= 0 {
		t.Errorf("bias of a homopolymer = %f, want > 0", bias)
	}

	random := plan7.SampleSequence(bg, 200, plan7.NewRandomness(3))
	if b := CompositionBias(bg, random); b < 0 {
		t.Errorf("bias = %f, want >= 0", b)
	}
}
