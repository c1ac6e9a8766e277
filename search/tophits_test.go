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
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func makeHit(name string, seqidx int, pvalue float64, score float32) *Hit {
	return &Hit{
		Name:   name,
		SeqIdx: seqidx,
		Pvalue: pvalue,
		Score:  score,
		Domains: Domains{
			{Score: score - 1, Pvalue: pvalue},
		},
	}
}

func newFilledTopHits(n int) *TopHits {
	th := NewTopHits()
	th.Z = float64(n)
	th.DomZ = 1
	for i := 0; i < n; i++ {
		th.Append(makeHit(fmt.Sprintf("seq%03d", i), i, float64(i+1)*1e-6, float32(50-i)))
	}
	return th
}

func TestSortStability(t *testing.T) {
	th := newFilledTopHits(50)
	th.Threshold(nil)

	if err := th.Sort(SortByKey); err != nil {
		t.Fatal(err)
	}
	order1 := make([]string, 0, th.Len())
	for _, h := range th.Hits {
		order1 = append(order1, h.Name)
	}
	if !th.IsSorted(SortByKey) {
		t.Fatal("IsSorted is false right after Sort")
	}

	if err := th.Sort(SortByKey); err != nil {
		t.Fatal(err)
	}
	for i, h := range th.Hits {
		if h.Name != order1[i] {
			t.Fatalf("repeated sort changed the order at %d: %s vs %s", i, h.Name, order1[i])
		}
	}

	if err := th.Sort(SortBySeqIdx); err != nil {
		t.Fatal(err)
	}
	for i, h := range th.Hits {
		if h.SeqIdx != i {
			t.Fatalf("seqidx sort broken at %d: got %d", i, h.SeqIdx)
		}
	}
}

func TestSortTieBreakByName(t *testing.T) {
	th := NewTopHits()
	th.Z = 3
	th.DomZ = 1
	th.Append(makeHit("bbb", 0, 1e-6, 30))
	th.Append(makeHit("aaa", 1, 1e-6, 30))
	th.Append(makeHit("ccc", 2, 1e-6, 30))
	th.Threshold(nil)
	th.Sort(SortByKey)
	got := []string{th.Hits[0].Name, th.Hits[1].Name, th.Hits[2].Name}
	if strings.Join(got, ",") != "aaa,bbb,ccc" {
		t.Fatalf("tie break order = %v, want aaa,bbb,ccc", got)
	}
}

func TestThresholdFlags(t *testing.T) {
	th := NewTopHits()
	th.Z = 1
	th.DomZ = 1
	th.Append(makeHit("good", 0, 1e-9, 80))
	th.Append(makeHit("borderline", 1, 1, 5))
	if err := th.Threshold(nil); err != nil {
		t.Fatal(err)
	}

	if !th.Hits[0].Reported || !th.Hits[0].Included {
		t.Error("strong hit not reported/included")
	}
	if th.Hits[1].Included {
		t.Error("weak hit included")
	}

	// inv: every included domain is also reported
	for _, h := range th.Hits {
		for _, d := range h.Domains {
			if d.Included && !d.Reported {
				t.Error("included domain not reported")
			}
		}
	}

	if n := len(th.Reported()); n != 2 {
		t.Errorf("reported view has %d hits, want 2", n)
	}
	if n := len(th.Included()); n != 1 {
		t.Errorf("included view has %d hits, want 1", n)
	}
}

func TestMergeIdentity(t *testing.T) {
	a := newFilledTopHits(10)
	a.Threshold(nil)
	empty := NewTopHits()

	merged, err := empty.Merge(a)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Len() != a.Len() {
		t.Fatalf("identity merge has %d hits, want %d", merged.Len(), a.Len())
	}
	if merged.Z != a.Z {
		t.Fatalf("identity merge Z = %g, want %g", merged.Z, a.Z)
	}
}

func TestMergeCommutesAfterSort(t *testing.T) {
	a := newFilledTopHits(7)
	b := NewTopHits()
	b.Z = 5
	b.DomZ = 1
	for i := 0; i < 5; i++ {
		b.Append(makeHit(fmt.Sprintf("other%03d", i), i, float64(i+1)*1e-5, float32(30-i)))
	}

	ab, err := a.Merge(b)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := b.Merge(a)
	if err != nil {
		t.Fatal(err)
	}
	ab.Sort(SortByKey)
	ba.Sort(SortByKey)

	if ab.Len() != ba.Len() {
		t.Fatalf("merge lengths differ: %d vs %d", ab.Len(), ba.Len())
	}
	for i := range ab.Hits {
		if ab.Hits[i].Name != ba.Hits[i].Name {
			t.Fatalf("merge order differs at %d: %s vs %s", i, ab.Hits[i].Name, ba.Hits[i].Name)
		}
		if ab.Hits[i].Evalue != ba.Hits[i].Evalue {
			t.Fatalf("merged E-values differ at %d", i)
		}
	}
	if ab.Z != 12 {
		t.Fatalf("merged Z = %g, want 12", ab.Z)
	}
}

func TestMergeMarksDuplicates(t *testing.T) {
	a := NewTopHits()
	a.Z = 1
	a.DomZ = 1
	a.Append(makeHit("same", 3, 1e-8, 44))
	b := NewTopHits()
	b.Z = 1
	b.DomZ = 1
	b.Append(makeHit("same", 3, 1e-8, 44))

	merged, err := a.Merge(b)
	if err != nil {
		t.Fatal(err)
	}
	var dups int
	for _, h := range merged.Hits {
		if h.Duplicate {
			dups++
			if h.Reported || h.Included {
				t.Error("duplicate hit still flagged reported/included")
			}
		}
	}
	if dups != 1 {
		t.Fatalf("%d duplicates marked, want 1", dups)
	}
}

// TestMergeDropsReclassifiedHits: a hit included against its shard's
// search space but failing the merged one is flagged dropped, not
// silently excluded.
func TestMergeDropsReclassifiedHits(t *testing.T) {
	a := NewTopHits()
	a.Z = 1
	a.DomZ = 1
	a.Append(makeHit("marginal", 0, 0.005, 12))
	if err := a.Threshold(nil); err != nil {
		t.Fatal(err)
	}
	if !a.Hits[0].Included {
		t.Fatal("marginal hit not included against the shard search space")
	}

	b := newFilledTopHits(9)
	merged, err := a.Merge(b)
	if err != nil {
		t.Fatal(err)
	}
	var h *Hit
	for _, hh := range merged.Hits {
		if hh.Name == "marginal" {
			h = hh
		}
	}
	if h == nil {
		t.Fatal("marginal hit lost in the merge")
	}
	// E-value is now 0.005 * 10 = 0.05, above the inclusion threshold
	if h.Included {
		t.Fatal("marginal hit still included against the merged search space")
	}
	if !h.Dropped {
		t.Fatal("reclassified hit not flagged as dropped")
	}
}

func TestMergeHonorsPinnedZ(t *testing.T) {
	a := newFilledTopHits(4)
	b := newFilledTopHits(4)
	b.Z = 1000
	b.ZSet = true

	merged, err := a.Merge(b)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Z != 1000 {
		t.Fatalf("merged Z = %g, want the pinned 1000", merged.Z)
	}
}

func TestKeyHash(t *testing.T) {
	kh := NewKeyHash()
	if !kh.Add("one") || !kh.Add("two") {
		t.Fatal("fresh names reported as known")
	}
	if kh.Add("one") {
		t.Fatal("repeated name reported as new")
	}
	if !kh.Contains("two") || kh.Contains("three") {
		t.Fatal("membership check broken")
	}
	if kh.Len() != 2 {
		t.Fatalf("len = %d, want 2", kh.Len())
	}
	kh.Clear()
	if kh.Len() != 0 {
		t.Fatal("Clear left entries behind")
	}
}

func TestCompareRanking(t *testing.T) {
	th := newFilledTopHits(5)
	th.Thresholds.IncE = 1
	th.Threshold(nil)

	kh := NewKeyHash()
	added := th.CompareRanking(kh)
	if added != 5 {
		t.Fatalf("first comparison added %d, want 5", added)
	}
	if th.CompareRanking(kh) != 0 {
		t.Fatal("second comparison found new names")
	}
}

func TestWriteFormats(t *testing.T) {
	th := newFilledTopHits(3)
	th.QueryName = "query1"
	th.Threshold(nil)
	th.Sort(SortByKey)

	for _, format := range []OutputFormat{FormatTargets, FormatDomains, FormatPfam} {
		var buf bytes.Buffer
		if err := th.Write(&buf, format, true); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		if !strings.Contains(out, "seq000") {
			t.Errorf("format %d output misses the top hit:\n%s", format, out)
		}
		if !strings.HasPrefix(out, "#") {
			t.Errorf("format %d output misses the header:\n%s", format, out)
		}
	}
}

func TestGumbelSurvival(t *testing.T) {
	// at x = mu the Gumbel survival is 1 - exp(-1) ~ 0.632
	p := GumbelSurvival(0, 0, 0.693)
	if p < 0.62 || p > 0.65 {
		t.Errorf("P(X >= mu) = %f, want ~0.632", p)
	}
	// the far tail decays like exp(-lambda x)
	if p := GumbelSurvival(100, 0, 0.693); p > 1e-25 {
		t.Errorf("far tail P = %g, want tiny", p)
	}
	if p := ExpSurvival(-5, 0, 0.693); p != 1 {
		t.Errorf("below tau P = %f, want 1", p)
	}
}
