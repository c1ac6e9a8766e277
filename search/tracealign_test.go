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
	"strings"
	"testing"

	"github.com/plan7go/plan7/plan7"
)

func TestComputeTraces(t *testing.T) {
	hmm := peakedHMM(t, plan7.Amino, 15, 31)
	s1 := consensusSequence(t, hmm, "s1")
	s2 := consensusSequence(t, hmm, "s2")

	ta := NewTraceAligner()
	traces, err := ta.ComputeTraces(hmm, []*plan7.DigitalSequence{s1, s2})
	if err != nil {
		t.Fatal(err)
	}
	if len(traces) != 2 {
		t.Fatalf("%d traces, want 2", len(traces))
	}
	for i, tr := range traces {
		if err := tr.Validate(hmm, s1); err != nil {
			t.Errorf("trace %d: %s", i, err)
		}
	}
}

func TestComputeTracesAlphabetMismatch(t *testing.T) {
	hmm := peakedHMM(t, plan7.Amino, 6, 32)
	s, _ := plan7.NewDigitalSequence(plan7.DNA, "dna", []byte("ACGTACGT"))
	ta := NewTraceAligner()
	if _, err := ta.ComputeTraces(hmm, []*plan7.DigitalSequence{s}); err == nil {
		t.Fatal("expected an alphabet mismatch error")
	}
}

func TestAlignTracesStacksConsensus(t *testing.T) {
	hmm := peakedHMM(t, plan7.Amino, 12, 33)
	seqs := []*plan7.DigitalSequence{
		consensusSequence(t, hmm, "a"),
		consensusSequence(t, hmm, "b"),
	}
	ta := NewTraceAligner()
	traces, err := ta.ComputeTraces(hmm, seqs)
	if err != nil {
		t.Fatal(err)
	}

	text, _, err := ta.AlignTraces(hmm, seqs, traces, &AlignTracesOptions{AllConsensusCols: true})
	if err != nil {
		t.Fatal(err)
	}
	if text.Nseq() != 2 {
		t.Fatalf("alignment has %d rows, want 2", text.Nseq())
	}
	if text.Alen() < hmm.M {
		t.Fatalf("alignment has %d columns, want >= M=%d", text.Alen(), hmm.M)
	}
	// identical consensus sequences stack into identical rows
	if string(text.Rows[0]) != string(text.Rows[1]) {
		t.Fatalf("rows differ:\n%s\n%s", text.Rows[0], text.Rows[1])
	}
	// the reference line marks M consensus columns
	if n := strings.Count(string(text.Reference), "x"); n != hmm.M {
		t.Fatalf("%d consensus columns annotated, want %d", n, hmm.M)
	}

	_, digital, err := ta.AlignTraces(hmm, seqs, traces, &AlignTracesOptions{Digitize: true, AllConsensusCols: true})
	if err != nil {
		t.Fatal(err)
	}
	if digital == nil || digital.Nseq() != 2 {
		t.Fatal("digitized alignment missing or wrong size")
	}
}

func TestToMSAFromHits(t *testing.T) {
	hmm := peakedHMM(t, plan7.Amino, 18, 34)
	target := consensusSequence(t, hmm, "t1")
	block, _ := plan7.NewDigitalSequenceBlock(plan7.Amino, target)

	pl, _ := NewPipeline(plan7.Amino, nil)
	hits, err := pl.SearchHMM(hmm, block)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits.Included()) == 0 {
		t.Fatal("self hit not included")
	}

	text, _, err := hits.ToMSA(plan7.Amino, block.Sequences, hmm.M, nil)
	if err != nil {
		t.Fatal(err)
	}
	if text.Nseq() < 1 {
		t.Fatal("reconstructed alignment is empty")
	}
	if !strings.HasPrefix(text.Names[0], "t1/") {
		t.Errorf("row name %q, want t1/from-to", text.Names[0])
	}
}
