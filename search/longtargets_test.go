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
	"testing"

	"github.com/plan7go/plan7/plan7"
)

// plantedTarget builds a long random DNA sequence with the model's
// consensus planted at position at (0-based), reverse complemented
// when reverse is set.
func plantedTarget(t *testing.T, hmm *plan7.HMM, length, at int, reverse bool) *plan7.DigitalSequence {
	t.Helper()
	bg := plan7.NewBackground(plan7.DNA)
	s := plan7.SampleSequence(bg, length, plan7.NewRandomness(99))
	s.Name = "chr1"

	motif := consensusSequence(t, hmm, "motif")
	if reverse {
		if err := motif.ReverseComplementInPlace(); err != nil {
			t.Fatal(err)
		}
	}
	copy(s.Residues[at:], motif.Residues)
	return s
}

func TestLongTargetsRejectsAmino(t *testing.T) {
	if _, err := NewLongTargetsPipeline(plan7.Amino, nil); !errors.Is(err, plan7.ErrInvalidParameter) {
		t.Fatalf("got %v, want ErrInvalidParameter", err)
	}
}

func TestLongTargetsForwardStrand(t *testing.T) {
	hmm := peakedHMM(t, plan7.DNA, 40, 21)
	target := plantedTarget(t, hmm, 600000, 123456, false)
	block, _ := plan7.NewDigitalSequenceBlock(plan7.DNA, target)

	opt := DefaultLongTargetsOptions
	opt.Strand = StrandWatson
	opt.BlockLength = 32768 // keep the Forward matrices of hit windows small
	lp, err := NewLongTargetsPipeline(plan7.DNA, &opt)
	if err != nil {
		t.Fatal(err)
	}
	hits, err := lp.SearchHMM(hmm, block)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits.Reported()) != 1 {
		t.Fatalf("%d reported hits, want 1", len(hits.Reported()))
	}
	h := hits.Reported()[0]
	best := h.BestDomain()
	if best == nil {
		t.Fatal("hit has no domains")
	}
	if best.EnvFrom > best.EnvTo {
		t.Fatalf("forward strand envelope reversed: %d..%d", best.EnvFrom, best.EnvTo)
	}
	// envelope coordinates are on the full target, not the window
	if best.EnvFrom < 123456-100 || best.EnvTo > 123456+40+100 {
		t.Fatalf("envelope %d..%d far from the planted motif at 123457", best.EnvFrom, best.EnvTo)
	}
	if !hits.LongTargets {
		t.Error("LongTargets flag not set")
	}
}

// TestLongTargetsReverseStrand: a hit on the crick strand comes back
// with descending forward coordinates.
func TestLongTargetsReverseStrand(t *testing.T) {
	hmm := peakedHMM(t, plan7.DNA, 40, 22)
	target := plantedTarget(t, hmm, 600000, 400000, true)
	block, _ := plan7.NewDigitalSequenceBlock(plan7.DNA, target)

	opt := DefaultLongTargetsOptions
	opt.Strand = StrandBoth
	opt.BlockLength = 32768
	lp, err := NewLongTargetsPipeline(plan7.DNA, &opt)
	if err != nil {
		t.Fatal(err)
	}
	hits, err := lp.SearchHMM(hmm, block)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits.Reported()) == 0 {
		t.Fatal("the reverse strand hit was not found")
	}
	h := hits.Reported()[0]
	var revDomain *Domain
	for _, d := range h.Domains {
		if d.ReverseStrand {
			revDomain = d
			break
		}
	}
	if revDomain == nil {
		t.Fatal("no reverse strand domain in the hit")
	}
	if revDomain.EnvFrom <= revDomain.EnvTo {
		t.Fatalf("reverse strand envelope %d..%d, want descending coordinates", revDomain.EnvFrom, revDomain.EnvTo)
	}
	lo, hi := revDomain.EnvTo, revDomain.EnvFrom
	if lo < 400000-100 || hi > 400000+40+100 {
		t.Fatalf("envelope %d..%d far from the planted motif at 400001", lo, hi)
	}
	if hits.Strand != StrandBoth {
		t.Error("strand not recorded on the results")
	}
}

// TestLongTargetsWindowSeam: a motif planted across a window boundary
// is reported once, thanks to the overlap and the envelope dedup.
func TestLongTargetsWindowSeam(t *testing.T) {
	hmm := peakedHMM(t, plan7.DNA, 40, 23)
	opt := DefaultLongTargetsOptions
	opt.BlockLength = 4096
	// plant right across the first window boundary
	target := plantedTarget(t, hmm, 20000, 4080, false)
	block, _ := plan7.NewDigitalSequenceBlock(plan7.DNA, target)

	opt.Strand = StrandWatson
	lp, err := NewLongTargetsPipeline(plan7.DNA, &opt)
	if err != nil {
		t.Fatal(err)
	}
	hits, err := lp.SearchHMM(hmm, block)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits.Reported()) != 1 {
		t.Fatalf("%d reported hits, want 1", len(hits.Reported()))
	}
	var n int
	for _, d := range hits.Reported()[0].Domains {
		if d.EnvFrom >= 4080-200 && d.EnvTo <= 4080+40+200 {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("motif across the seam reported %d times, want once", n)
	}
}
