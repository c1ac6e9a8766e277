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
	"sort"

	"github.com/twotwotwo/sorts"

	"github.com/plan7go/plan7/plan7"
)

// Mode distinguishes one-query-many-targets search from
// one-sequence-many-models scan.
type Mode uint8

const (
	ModeSearch Mode = iota
	ModeScan
)

func (m Mode) String() string {
	if m == ModeScan {
		return "scan"
	}
	return "search"
}

// Strand selects which strand(s) of a nucleotide target to search.
type Strand uint8

const (
	StrandBoth Strand = iota
	StrandWatson
	StrandCrick
)

func (s Strand) String() string {
	switch s {
	case StrandWatson:
		return "watson"
	case StrandCrick:
		return "crick"
	}
	return "both"
}

// ParseStrand parses a strand tag.
func ParseStrand(s string) (Strand, bool) {
	switch s {
	case "", "both":
		return StrandBoth, true
	case "watson", "+", "forward":
		return StrandWatson, true
	case "crick", "-", "reverse":
		return StrandCrick, true
	}
	return StrandBoth, false
}

// Thresholds are the reporting and inclusion thresholds of a search.
// Score thresholds (T variants) take effect only when their Use flag is
// set; a selected bit cutoff pair overrides everything.
type Thresholds struct {
	E    float64
	T    float64
	UseT bool

	DomE    float64
	DomT    float64
	UseDomT bool

	IncE    float64
	IncT    float64
	UseIncT bool

	IncDomE    float64
	IncDomT    float64
	UseIncDomT bool

	BitCutoffs plan7.BitCutoffChoice
}

// DefaultThresholds mirror the conventional report/include defaults.
var DefaultThresholds = Thresholds{
	E:       10.0,
	DomE:    10.0,
	IncE:    0.01,
	IncDomE: 0.01,
}

// SortKey selects a hit ordering.
type SortKey uint8

const (
	SortNone   SortKey = iota
	SortByKey          // E-value ascending, name, seqidx
	SortBySeqIdx
)

// TopHits accumulates hits during a search and post-processes them into
// a sorted, thresholded result set. Not safe for concurrent mutation;
// run one per worker and merge.
type TopHits struct {
	QueryName      string
	QueryAccession string

	Hits []*Hit

	// Z and DomZ are the search space sizes for sequence and domain
	// E-values. When unset they default to the searched counts.
	Z       float64
	DomZ    float64
	ZSet    bool
	DomZSet bool

	Thresholds Thresholds

	SearchedModels    int64
	SearchedNodes     int64
	SearchedSequences int64
	SearchedResidues  int64

	Mode        Mode
	LongTargets bool
	Strand      Strand
	BlockLength int

	sortedBy SortKey
}

// NewTopHits returns an empty accumulator with default thresholds.
func NewTopHits() *TopHits {
	return &TopHits{Thresholds: DefaultThresholds}
}

// Len returns the number of hits.
func (th *TopHits) Len() int { return len(th.Hits) }

// Append adds a fully formed hit. Atomic with respect to one target;
// append order defines SeqIdx unless the hit carries one already.
func (th *TopHits) Append(h *Hit) {
	if h.SeqIdx == 0 && len(th.Hits) > 0 {
		h.SeqIdx = th.Hits[len(th.Hits)-1].SeqIdx + 1
	}
	th.Hits = append(th.Hits, h)
	th.sortedBy = SortNone
}

// Reported returns the hits flagged as reported.
func (th *TopHits) Reported() []*Hit {
	out := make([]*Hit, 0, len(th.Hits))
	for _, h := range th.Hits {
		if h.Reported {
			out = append(out, h)
		}
	}
	return out
}

// Included returns the hits flagged as included.
func (th *TopHits) Included() []*Hit {
	out := make([]*Hit, 0, len(th.Hits))
	for _, h := range th.Hits {
		if h.Included {
			out = append(out, h)
		}
	}
	return out
}

type byKey []*Hit

func (s byKey) Len() int { return len(s) }
func (s byKey) Less(i, j int) bool {
	a, b := s[i], s[j]
	if a.Evalue != b.Evalue {
		return a.Evalue < b.Evalue
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.SeqIdx < b.SeqIdx
}
func (s byKey) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

type bySeqIdx []*Hit

func (s bySeqIdx) Len() int           { return len(s) }
func (s bySeqIdx) Less(i, j int) bool { return s[i].SeqIdx < s[j].SeqIdx }
func (s bySeqIdx) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Sort orders the hits. The key ordering (E-value, name, seqidx) is a
// total order, so repeated sorts are byte identical.
func (th *TopHits) Sort(by SortKey) error {
	switch by {
	case SortByKey:
		sorts.Quicksort(byKey(th.Hits))
	case SortBySeqIdx:
		sorts.Quicksort(bySeqIdx(th.Hits))
	default:
		return fmt.Errorf("%w: unknown sort key %d", plan7.ErrInvalidParameter, by)
	}
	th.sortedBy = by
	return nil
}

// IsSorted reports whether the hits are currently ordered by the key.
func (th *TopHits) IsSorted(by SortKey) bool {
	switch by {
	case SortByKey:
		return sort.IsSorted(byKey(th.Hits))
	case SortBySeqIdx:
		return sort.IsSorted(bySeqIdx(th.Hits))
	}
	return false
}

// computeEvalues rescales the stored P-values into E-values against the
// current Z/domZ.
func (th *TopHits) computeEvalues() {
	for _, h := range th.Hits {
		h.Evalue = h.Pvalue * th.Z
		for _, d := range h.Domains {
			d.CEvalue = d.Pvalue * th.DomZ
			d.IEvalue = d.Pvalue * th.Z
		}
	}
}

// Threshold recomputes E-values from the stored P-values against the
// current Z/domZ and sets the reported/included flags in place. The
// collection length is unchanged. cutoffs supplies the model-embedded
// pairs when a bit cutoff selector is active.
func (th *TopHits) Threshold(cutoffs *plan7.Cutoffs) error {
	t := &th.Thresholds

	var seqCut, domCut float32
	useBitCutoffs := t.BitCutoffs != plan7.CutoffNone
	if useBitCutoffs {
		if cutoffs == nil {
			return plan7.ErrMissingCutoffs
		}
		pair, ok := cutoffs.Get(t.BitCutoffs)
		if !ok {
			return fmt.Errorf("%w: %s", plan7.ErrMissingCutoffs, t.BitCutoffs)
		}
		seqCut, domCut = pair[0], pair[1]
	}

	th.computeEvalues()
	for _, h := range th.Hits {
		wasIncluded := h.Included
		if useBitCutoffs {
			h.Reported = h.Score >= seqCut
			h.Included = h.Reported
		} else {
			h.Reported = h.Evalue <= t.E
			if t.UseT {
				h.Reported = float64(h.Score) >= t.T
			}
			h.Included = h.Evalue <= t.IncE
			if t.UseIncT {
				h.Included = float64(h.Score) >= t.IncT
			}
		}
		// a hit that was included but fails the recomputed threshold,
		// e.g. against a merged search space, is dropped
		if wasIncluded && !h.Included && !h.Duplicate {
			h.Dropped = true
		}
		if h.Dropped || h.Duplicate {
			h.Reported = false
			h.Included = false
		}

		for _, d := range h.Domains {
			if !h.Reported {
				d.Reported = false
				d.Included = false
				continue
			}
			if useBitCutoffs {
				d.Reported = d.Score >= domCut
				d.Included = d.Reported && h.Included
			} else {
				d.Reported = d.IEvalue <= t.DomE
				if t.UseDomT {
					d.Reported = float64(d.Score) >= t.DomT
				}
				d.Included = h.Included && d.IEvalue <= t.IncDomE
				if t.UseIncDomT {
					d.Included = h.Included && float64(d.Score) >= t.IncDomT
				}
			}
			// an included domain is always reported
			if d.Included && !d.Reported {
				d.Reported = true
			}
		}
	}
	return nil
}

// Merge combines this accumulator with others, e.g. per-worker shards,
// into a new TopHits. SeqIdx tagging is preserved; E-values are
// recomputed against the summed Z/domZ unless a caller pinned them
// before merging. Merge before sorting.
func (th *TopHits) Merge(others ...*TopHits) (*TopHits, error) {
	out := NewTopHits()
	out.QueryName = th.QueryName
	out.QueryAccession = th.QueryAccession
	out.Thresholds = th.Thresholds
	out.Mode = th.Mode
	out.LongTargets = th.LongTargets
	out.Strand = th.Strand
	out.BlockLength = th.BlockLength

	all := append([]*TopHits{th}, others...)
	var z, domZ float64
	zPinned, domZPinned := false, false
	for _, t := range all {
		if t.Mode != th.Mode {
			return nil, fmt.Errorf("%w: merging %s results into %s results", plan7.ErrInvalidParameter, t.Mode, th.Mode)
		}
		out.SearchedModels += t.SearchedModels
		out.SearchedNodes += t.SearchedNodes
		out.SearchedSequences += t.SearchedSequences
		out.SearchedResidues += t.SearchedResidues
		z += t.Z
		domZ += t.DomZ
		if t.ZSet {
			out.Z = t.Z
			zPinned = true
		}
		if t.DomZSet {
			out.DomZ = t.DomZ
			domZPinned = true
		}
		out.Hits = append(out.Hits, t.Hits...)
	}
	if !zPinned {
		out.Z = z
	} else {
		out.ZSet = true
	}
	if !domZPinned {
		out.DomZ = domZ
	} else {
		out.DomZSet = true
	}

	// mark duplicates from overlapping shards: same name, same seqidx
	seen := make(map[string]struct{}, len(out.Hits))
	for _, h := range out.Hits {
		key := fmt.Sprintf("%s\x00%d", h.Name, h.SeqIdx)
		if _, ok := seen[key]; ok {
			h.Duplicate = true
			h.Reported = false
			h.Included = false
		} else {
			seen[key] = struct{}{}
		}
	}

	// re-apply E-value thresholds against the merged search space; bit
	// cutoff flags were already resolved per shard and are kept as is.
	if th.Thresholds.BitCutoffs == plan7.CutoffNone {
		if err := out.Threshold(nil); err != nil {
			return nil, err
		}
	} else {
		out.computeEvalues()
	}
	return out, nil
}

// CompareRanking returns the number of included hits whose names are
// not present in the key set, adding them as a side effect. Zero means
// the inclusion ranking is unchanged since the set was built.
func (th *TopHits) CompareRanking(kh *KeyHash) int {
	var added int
	for _, h := range th.Hits {
		if !h.Included {
			continue
		}
		if kh.Add(h.Name) {
			added++
		}
	}
	return added
}
