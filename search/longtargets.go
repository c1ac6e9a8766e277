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

	"github.com/rdleal/intervalst/interval"

	"github.com/plan7go/plan7/plan7"
)

// LongTargetsOptions configure the windowed nucleotide cascade.
type LongTargetsOptions struct {
	// BlockLength is the window size a long target is scanned in.
	BlockLength int

	// B1, B2, B3 are the expected hit window lengths used to rescale
	// the null model at the three filter stages.
	B1, B2, B3 int

	Strand Strand

	Pipeline PipelineOptions
}

// DefaultLongTargetsOptions are the conventional windowing parameters.
var DefaultLongTargetsOptions = LongTargetsOptions{
	BlockLength: 262144,
	B1:          100,
	B2:          240,
	B3:          1000,
	Strand:      StrandBoth,
	Pipeline:    DefaultPipelineOptions,
}

// CheckLongTargetsOptions validates the windowing parameters.
func CheckLongTargetsOptions(opt *LongTargetsOptions) error {
	if opt.BlockLength < 1024 {
		return fmt.Errorf("%w: block length %d, should be >= 1024", plan7.ErrInvalidParameter, opt.BlockLength)
	}
	if opt.B1 < 1 || opt.B2 < 1 || opt.B3 < 1 {
		return fmt.Errorf("%w: filter window lengths must be positive", plan7.ErrInvalidParameter)
	}
	return CheckPipelineOptions(&opt.Pipeline)
}

// LongTargetsPipeline is the strand-aware windowed cascade for
// nucleotide targets that may be gigabases long. Envelope coordinates
// in the results refer to the original full-length target; hits on the
// reverse strand report env_from > env_to.
type LongTargetsPipeline struct {
	Alphabet *plan7.Alphabet
	Options  LongTargetsOptions

	inner *Pipeline
}

// NewLongTargetsPipeline creates a windowed pipeline over a nucleotide
// alphabet.
func NewLongTargetsPipeline(a *plan7.Alphabet, opt *LongTargetsOptions) (*LongTargetsPipeline, error) {
	if !a.IsNucleotide() {
		return nil, fmt.Errorf("%w: long target search needs a nucleotide alphabet, got %s",
			plan7.ErrInvalidParameter, a.Type())
	}
	if opt == nil {
		o := DefaultLongTargetsOptions
		opt = &o
	}
	if err := CheckLongTargetsOptions(opt); err != nil {
		return nil, err
	}
	inner, err := NewPipeline(a, &opt.Pipeline)
	if err != nil {
		return nil, err
	}
	return &LongTargetsPipeline{Alphabet: a, Options: *opt, inner: inner}, nil
}

// windowCanScore reports whether any residue of the window has a
// positive match score against some model node.
func windowCanScore(sd *plan7.ScoreData, win *plan7.DigitalSequence) bool {
	for _, c := range win.Residues {
		if sd.MaxMatchScore[c] > 0 {
			return true
		}
	}
	return false
}

// envelopeRecord tracks the best-scoring version of an envelope seen
// across overlapping windows.
type envelopeRecord struct {
	domain  *Domain
	from    int // forward-coordinate lower bound
	to      int
	reverse bool
}

// SearchHMM searches a query model against long targets, window by
// window and strand by strand.
func (lp *LongTargetsPipeline) SearchHMM(q interface{}, targets *plan7.DigitalSequenceBlock) (*TopHits, error) {
	qq, err := lp.inner.resolveQuery(q)
	if err != nil {
		return nil, err
	}
	if err := lp.inner.prepareQuery(qq); err != nil {
		return nil, err
	}
	sd, err := plan7.NewScoreData(qq.p, qq.om)
	if err != nil {
		return nil, err
	}

	th := NewTopHits()
	th.Mode = ModeSearch
	th.QueryName = qq.om.Name
	th.QueryAccession = qq.om.Accession
	th.Thresholds = lp.Options.Pipeline.Thresholds
	th.LongTargets = true
	th.Strand = lp.Options.Strand
	th.BlockLength = lp.Options.BlockLength

	lp.inner.nPastFwd = 0
	for idx, s := range targets.Sequences {
		if lp.inner.Stop != nil && lp.inner.Stop() {
			break
		}
		hit, err := lp.searchLongTarget(qq, sd, s)
		th.SearchedSequences++
		th.SearchedResidues += int64(s.Len())
		if err != nil {
			if err == plan7.ErrAlphabetMismatch {
				return nil, err
			}
			continue
		}
		if hit != nil {
			hit.SeqIdx = idx
			th.Append(hit)
		}
	}
	th.SearchedModels = 1
	th.SearchedNodes = int64(qq.om.M)

	if err := lp.inner.finishTopHits(th, float64(targets.Len()), &qq.om.Cutoffs); err != nil {
		return nil, err
	}
	return th, nil
}

// searchLongTarget scans one target in overlapping windows on the
// selected strands, translating envelope coordinates back to the full
// target and deduplicating window-overlap artefacts with an interval
// tree.
func (lp *LongTargetsPipeline) searchLongTarget(q *query, sd *plan7.ScoreData, s *plan7.DigitalSequence) (*Hit, error) {
	if s.Alphabet != lp.Alphabet {
		return nil, plan7.ErrAlphabetMismatch
	}
	L := s.Len()
	block := lp.Options.BlockLength
	// the overlap must hold the largest plausible hit without seam
	// artefacts
	overlap := 2 * q.om.M
	if overlap < lp.Options.B2 {
		overlap = lp.Options.B2
	}
	if overlap >= block {
		overlap = block / 2
	}

	cmp := func(a, b int) int { return a - b }
	fwdTree := interval.NewSearchTree[*envelopeRecord](cmp)
	revTree := interval.NewSearchTree[*envelopeRecord](cmp)
	var records []*envelopeRecord

	doStrand := func(reverse bool) error {
		tree := fwdTree
		if reverse {
			tree = revTree
		}
		for start := 0; start < L; start += block - overlap {
			end := start + block
			if end > L {
				end = L
			}
			// a trailing sliver already covered by the previous
			// window's overlap cannot hold a new hit
			if start > 0 && end-start < lp.Options.B1 {
				break
			}
			win := s.Subsequence(start, end)
			win.Name = s.Name
			if reverse {
				if err := win.ReverseComplementInPlace(); err != nil {
					return err
				}
			}
			// cheap upper bound from the per-residue score maxima:
			// a window with no positive-scoring residue cannot hold
			// an ungapped segment that clears the MSV filter
			if !windowCanScore(sd, win) {
				if end == L {
					break
				}
				continue
			}
			hit, err := lp.inner.searchTarget(q, win)
			if err != nil {
				return err
			}
			if hit != nil {
				winLen := win.Len()
				for _, d := range hit.Domains {
					if d.EnvTo-d.EnvFrom+1 > lp.Options.B3 {
						continue
					}
					var fwdFrom, fwdTo int
					if reverse {
						// reverse strand hits report descending
						// forward coordinates
						fwdFrom = start + (winLen - d.EnvFrom) + 1
						fwdTo = start + (winLen - d.EnvTo) + 1
						d.ReverseStrand = true
					} else {
						fwdFrom = start + d.EnvFrom
						fwdTo = start + d.EnvTo
					}
					d.EnvFrom = fwdFrom
					d.EnvTo = fwdTo

					lo, hi := fwdFrom, fwdTo
					if lo > hi {
						lo, hi = hi, lo
					}
					if prev, ok := tree.AnyIntersection(lo, hi+1); ok {
						if d.Score > prev.domain.Score {
							prev.domain = d
							prev.from, prev.to = lo, hi
						}
						continue
					}
					rec := &envelopeRecord{domain: d, from: lo, to: hi, reverse: reverse}
					if err := tree.Insert(lo, hi+1, rec); err != nil {
						return err
					}
					records = append(records, rec)
				}
			}
			if end == L {
				break
			}
		}
		return nil
	}

	strand := lp.Options.Strand
	if strand == StrandBoth || strand == StrandWatson {
		if err := doStrand(false); err != nil {
			return nil, err
		}
	}
	if strand == StrandBoth || strand == StrandCrick {
		if err := doStrand(true); err != nil {
			return nil, err
		}
	}

	if len(records) == 0 {
		return nil, nil
	}

	hit := &Hit{
		Name:        s.Name,
		Accession:   s.Accession,
		Description: s.Description,
	}
	var best *Domain
	var sum float64
	var bias float64
	for _, rec := range records {
		hit.Domains = append(hit.Domains, rec.domain)
		sum += float64(rec.domain.Score)
		bias += float64(rec.domain.Bias)
		if best == nil || rec.domain.Score > best.Score {
			best = rec.domain
		}
	}
	hit.Score = best.Score
	hit.PreScore = best.EnvelopeScore
	hit.SumScore = float32(sum)
	hit.Bias = float32(bias)
	hit.Pvalue = best.Pvalue
	return hit, nil
}
