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
	"math"

	"github.com/plan7go/plan7/msa"
	"github.com/plan7go/plan7/plan7"
)

// Model size and length hints used when a raw HMM query is configured
// before the first target fixes the real length.
const (
	MHint = 100
	LHint = 100
)

// PipelineOptions configure the scoring cascade.
type PipelineOptions struct {
	// Filter P-value thresholds of the MSV, Viterbi and Forward
	// stages.
	F1 float64
	F2 float64
	F3 float64

	// BiasFilter enables the composition bias filter after MSV;
	// Null2 enables the per-domain composition bias correction.
	BiasFilter bool
	Null2      bool

	// Reporting and inclusion thresholds.
	Thresholds Thresholds

	// Z and DomZ override the search space sizes when set.
	Z       float64
	ZSet    bool
	DomZ    float64
	DomZSet bool

	// Calibration parameters for models without fitted E-value
	// parameters.
	Calibration CalibrationOptions

	Multihit bool
	Local    bool
}

// DefaultPipelineOptions are the conventional cascade thresholds.
var DefaultPipelineOptions = PipelineOptions{
	F1:          0.02,
	F2:          1e-3,
	F3:          1e-5,
	BiasFilter:  true,
	Null2:       true,
	Thresholds:  DefaultThresholds,
	Calibration: DefaultCalibrationOptions,
	Multihit:    true,
	Local:       true,
}

// CheckPipelineOptions validates the cascade thresholds.
func CheckPipelineOptions(opt *PipelineOptions) error {
	if opt.F1 < 0 || opt.F1 > 1 {
		return fmt.Errorf("%w: F1 = %g, should be in [0, 1]", plan7.ErrInvalidParameter, opt.F1)
	}
	if opt.F2 < 0 || opt.F2 > 1 {
		return fmt.Errorf("%w: F2 = %g, should be in [0, 1]", plan7.ErrInvalidParameter, opt.F2)
	}
	if opt.F3 < 0 || opt.F3 > 1 {
		return fmt.Errorf("%w: F3 = %g, should be in [0, 1]", plan7.ErrInvalidParameter, opt.F3)
	}
	if opt.Thresholds.E < 0 || opt.Thresholds.IncE < 0 {
		return fmt.Errorf("%w: negative E-value threshold", plan7.ErrInvalidParameter)
	}
	if opt.ZSet && opt.Z <= 0 {
		return fmt.Errorf("%w: Z = %g, should be > 0", plan7.ErrInvalidParameter, opt.Z)
	}
	return nil
}

// SequenceBuilder turns a query sequence or alignment into the three
// model forms. Satisfied by the builder package; declared here so the
// pipeline can accept one without a dependency cycle.
type SequenceBuilder interface {
	Build(s *plan7.DigitalSequence, bg *plan7.Background) (*plan7.HMM, *plan7.Profile, *plan7.OptimizedProfile, error)
	BuildMSA(m *msa.DigitalMSA, bg *plan7.Background) (*plan7.HMM, *plan7.Profile, *plan7.OptimizedProfile, error)
}

// defaultBuilderFactory is registered by the builder package so that
// SearchSeq and SearchMSA work without an explicit builder.
var defaultBuilderFactory func(a *plan7.Alphabet) (SequenceBuilder, error)

// RegisterDefaultBuilder installs the fallback builder constructor.
func RegisterDefaultBuilder(f func(a *plan7.Alphabet) (SequenceBuilder, error)) {
	defaultBuilderFactory = f
}

// ModelIterator streams optimized profiles, e.g. from a pressed
// database, for scan mode.
type ModelIterator interface {
	Next() (*plan7.OptimizedProfile, error) // nil, nil at the end
}

// Pipeline is the staged scoring cascade. One pipeline per worker;
// not safe for concurrent use.
type Pipeline struct {
	Alphabet *plan7.Alphabet
	Options  PipelineOptions

	bg *plan7.Background

	// Stop, when non-nil, is consulted between targets; returning true
	// ends the run cleanly with the hits accumulated so far.
	Stop func() bool

	fm  *filterMatrix
	vit *dpMatrix
	fwd *dpMatrix
	bck *dpMatrix

	nPastFwd int64
}

// NewPipeline creates a pipeline over an alphabet.
func NewPipeline(a *plan7.Alphabet, opt *PipelineOptions) (*Pipeline, error) {
	if opt == nil {
		o := DefaultPipelineOptions
		opt = &o
	}
	if err := CheckPipelineOptions(opt); err != nil {
		return nil, err
	}
	return &Pipeline{
		Alphabet: a,
		Options:  *opt,
		bg:       plan7.NewBackground(a),
		fm:       newFilterMatrix(),
		vit:      newDPMatrix(),
		fwd:      newDPMatrix(),
		bck:      newDPMatrix(),
	}, nil
}

// Clear resets accumulated per-run state. Thresholds, filter settings
// and search space overrides survive.
func (pl *Pipeline) Clear() {
	pl.nPastFwd = 0
}

// query bundles the three forms of the model being searched.
type query struct {
	hmm *plan7.HMM
	p   *plan7.Profile
	om  *plan7.OptimizedProfile
}

// resolveQuery builds the missing forms of the query variant.
func (pl *Pipeline) resolveQuery(q interface{}) (*query, error) {
	switch v := q.(type) {
	case *plan7.HMM:
		if v.Alphabet != pl.Alphabet {
			return nil, plan7.ErrAlphabetMismatch
		}
		p := plan7.NewProfile(v.Alphabet, v.M)
		if err := p.Configure(v, pl.bg, LHint, pl.Options.Multihit, pl.Options.Local); err != nil {
			return nil, err
		}
		om, err := plan7.ConvertProfile(p)
		if err != nil {
			return nil, err
		}
		return &query{hmm: v, p: p, om: om}, nil
	case *plan7.Profile:
		if v.Alphabet != pl.Alphabet {
			return nil, plan7.ErrAlphabetMismatch
		}
		if !v.Configured() {
			return nil, plan7.ErrUnconfigured
		}
		p := v.Copy()
		om, err := plan7.ConvertProfile(p)
		if err != nil {
			return nil, err
		}
		return &query{p: p, om: om}, nil
	case *plan7.OptimizedProfile:
		if v.Alphabet != pl.Alphabet {
			return nil, plan7.ErrAlphabetMismatch
		}
		om := v.Copy()
		return &query{p: om.ToProfile(), om: om}, nil
	}
	return nil, fmt.Errorf("%w: unsupported query type %T", plan7.ErrInvalidParameter, q)
}

// prepareQuery makes sure the query is calibrated and that the bit
// cutoff selection is satisfiable.
func (pl *Pipeline) prepareQuery(q *query) error {
	if pl.Options.Thresholds.BitCutoffs != plan7.CutoffNone {
		if _, ok := q.om.Cutoffs.Get(pl.Options.Thresholds.BitCutoffs); !ok {
			return fmt.Errorf("%w: %s", plan7.ErrMissingCutoffs, pl.Options.Thresholds.BitCutoffs)
		}
	}
	if !q.om.EvalueParameters.Calibrated() {
		if err := Calibrate(q.hmm, q.p, q.om, pl.bg, &pl.Options.Calibration); err != nil {
			return err
		}
	}
	return nil
}

// searchTarget runs one target through the cascade. A nil hit means
// the target was filtered out.
func (pl *Pipeline) searchTarget(q *query, s *plan7.DigitalSequence) (*Hit, error) {
	if s.Alphabet != pl.Alphabet {
		return nil, plan7.ErrAlphabetMismatch
	}
	L := s.Len()
	if L == 0 {
		return nil, nil
	}

	// Stage 0: length reconfiguration.
	pl.bg.SetLength(L)
	q.p.ReconfigureLength(L)
	q.om.SetLength(L)
	null := float64(pl.bg.NullScore(L))
	ep := &q.om.EvalueParameters

	// Stage 1: MSV filter.
	msvNats := MSVFilter(q.om, s, pl.fm)
	msvBits := (msvNats - null) / math.Ln2
	pMsv := GumbelSurvival(msvBits, float64(ep.MsvMu), float64(ep.MsvLambda))
	if pMsv > pl.Options.F1 {
		return nil, nil
	}

	// Stage 2: bias filter.
	biasNats := 0.0
	if pl.Options.BiasFilter {
		biasNats = CompositionBias(pl.bg, s)
		biasedBits := (msvNats - biasNats - null) / math.Ln2
		pBias := GumbelSurvival(biasedBits, float64(ep.MsvMu), float64(ep.MsvLambda))
		if pBias > pl.Options.F1 {
			return nil, nil
		}
	}

	// Stage 3: Viterbi filter.
	vitNats := ViterbiFilter(q.om, s, pl.fm)
	vitBits := (vitNats - null) / math.Ln2
	pVit := GumbelSurvival(vitBits, float64(ep.ViterbiMu), float64(ep.ViterbiLambda))
	if pVit > pl.Options.F2 {
		return nil, nil
	}

	// Stage 4: Forward, then Backward and posterior decoding.
	fwdNats, err := Forward(q.p, s, pl.fwd)
	if err != nil {
		return nil, err
	}
	fwdBits := (fwdNats - null) / math.Ln2
	pFwd := ExpSurvival(fwdBits, float64(ep.ForwardTau), float64(ep.ForwardLambda))
	if pFwd > pl.Options.F3 {
		return nil, nil
	}
	if _, err = Backward(q.p, s, pl.bck); err != nil {
		return nil, err
	}
	pp := PosteriorHomology(pl.fwd, pl.bck, fwdNats)
	pl.nPastFwd++

	// Stage 5: domain definition from the optimal path.
	if _, err = Viterbi(q.p, s, pl.vit); err != nil {
		return nil, err
	}
	tr, err := ViterbiTrace(q.p, s, pl.vit)
	if err != nil {
		// a degenerate target yields no hit but does not abort the run
		return nil, nil
	}
	domains := defineDomains(q.p, pl.bg, s, tr, pp, pl.Options.Null2)
	if len(domains) == 0 {
		return nil, nil
	}

	var sumScore float64
	var totalBias float64
	for _, d := range domains {
		sumScore += float64(d.Score)
		totalBias += float64(d.Bias)
		d.Pvalue = ExpSurvival(float64(d.Score), float64(ep.ForwardTau), float64(ep.ForwardLambda))
	}

	score := fwdBits - totalBias
	hit := &Hit{
		Name:        s.Name,
		Accession:   s.Accession,
		Description: s.Description,
		Score:       float32(score),
		PreScore:    float32(fwdBits),
		SumScore:    float32(sumScore),
		Bias:        float32(totalBias),
		Pvalue:      ExpSurvival(score, float64(ep.ForwardTau), float64(ep.ForwardLambda)),
		Domains:     domains,
	}
	return hit, nil
}

// SearchHMM searches a query model against a block of target
// sequences. The query may be an *HMM, a configured *Profile or an
// *OptimizedProfile; missing forms are derived.
func (pl *Pipeline) SearchHMM(q interface{}, targets *plan7.DigitalSequenceBlock) (*TopHits, error) {
	qq, err := pl.resolveQuery(q)
	if err != nil {
		return nil, err
	}
	if err := pl.prepareQuery(qq); err != nil {
		return nil, err
	}

	th := NewTopHits()
	th.Mode = ModeSearch
	th.QueryName = qq.om.Name
	th.QueryAccession = qq.om.Accession
	th.Thresholds = pl.Options.Thresholds

	pl.nPastFwd = 0
	for idx, s := range targets.Sequences {
		if pl.Stop != nil && pl.Stop() {
			break
		}
		hit, err := pl.searchTarget(qq, s)
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
			for di := range hit.Domains {
				hit.Domains[di].Alignment.HitIndex = len(th.Hits)
				hit.Domains[di].Alignment.DomainIndex = di
			}
			th.Append(hit)
		}
	}
	th.SearchedModels = 1
	th.SearchedNodes = int64(qq.om.M)

	if err := pl.finishTopHits(th, float64(targets.Len()), &qq.om.Cutoffs); err != nil {
		return nil, err
	}
	return th, nil
}

// finishTopHits applies search space defaults, thresholds and the
// final ordering. cutoffs is nil in scan mode, where the bit cutoff
// pairs differ per model and flags were resolved at append time.
func (pl *Pipeline) finishTopHits(th *TopHits, zDefault float64, cutoffs *plan7.Cutoffs) error {
	if pl.Options.ZSet {
		th.Z = pl.Options.Z
		th.ZSet = true
	} else {
		th.Z = zDefault
	}
	if pl.Options.DomZSet {
		th.DomZ = pl.Options.DomZ
		th.DomZSet = true
	} else {
		th.DomZ = float64(pl.nPastFwd)
		if th.DomZ == 0 {
			th.DomZ = 1
		}
	}
	if cutoffs == nil && th.Thresholds.BitCutoffs != plan7.CutoffNone {
		th.computeEvalues()
	} else if err := th.Threshold(cutoffs); err != nil {
		return err
	}
	return th.Sort(SortByKey)
}

// SearchSeq builds a single-sequence query model with a builder, then
// searches. A nil builder uses the registered default.
func (pl *Pipeline) SearchSeq(q *plan7.DigitalSequence, targets *plan7.DigitalSequenceBlock, b SequenceBuilder) (*TopHits, error) {
	if b == nil {
		if defaultBuilderFactory == nil {
			return nil, fmt.Errorf("%w: no builder given and no default registered", plan7.ErrInvalidParameter)
		}
		var err error
		b, err = defaultBuilderFactory(pl.Alphabet)
		if err != nil {
			return nil, err
		}
	}
	hmm, _, _, err := b.Build(q, pl.bg)
	if err != nil {
		return nil, err
	}
	return pl.SearchHMM(hmm, targets)
}

// SearchMSA builds a query model from an alignment, then searches.
func (pl *Pipeline) SearchMSA(q *msa.DigitalMSA, targets *plan7.DigitalSequenceBlock, b SequenceBuilder) (*TopHits, error) {
	if b == nil {
		if defaultBuilderFactory == nil {
			return nil, fmt.Errorf("%w: no builder given and no default registered", plan7.ErrInvalidParameter)
		}
		var err error
		b, err = defaultBuilderFactory(pl.Alphabet)
		if err != nil {
			return nil, err
		}
	}
	hmm, _, _, err := b.BuildMSA(q, pl.bg)
	if err != nil {
		return nil, err
	}
	return pl.SearchHMM(hmm, targets)
}

// ScanSeq inverts the search loop: one target sequence is scored
// against a stream of models. Hits are named after the models.
func (pl *Pipeline) ScanSeq(s *plan7.DigitalSequence, models ModelIterator) (*TopHits, error) {
	if s.Alphabet != pl.Alphabet {
		return nil, plan7.ErrAlphabetMismatch
	}

	th := NewTopHits()
	th.Mode = ModeScan
	th.QueryName = s.Name
	th.QueryAccession = s.Accession
	th.Thresholds = pl.Options.Thresholds

	pl.nPastFwd = 0
	var nModels int
	for {
		if pl.Stop != nil && pl.Stop() {
			break
		}
		om, err := models.Next()
		if err != nil {
			return nil, err
		}
		if om == nil {
			break
		}
		qq := &query{p: om.ToProfile(), om: om.Copy()}
		if err := pl.prepareQuery(qq); err != nil {
			if err == plan7.ErrMissingCutoffs {
				return nil, err
			}
			continue
		}
		hit, err := pl.searchTarget(qq, s)
		nModels++
		th.SearchedModels++
		th.SearchedNodes += int64(om.M)
		if err != nil {
			continue
		}
		if hit != nil {
			// in scan mode the hit is the model, not the target
			hit.Name = om.Name
			hit.Accession = om.Accession
			hit.Description = om.Description
			hit.SeqIdx = nModels - 1
			for di := range hit.Domains {
				hit.Domains[di].Alignment.HitIndex = len(th.Hits)
				hit.Domains[di].Alignment.DomainIndex = di
			}
			if choice := pl.Options.Thresholds.BitCutoffs; choice != plan7.CutoffNone {
				// bit cutoff pairs are per model; resolve now
				pair, _ := om.Cutoffs.Get(choice)
				hit.Reported = hit.Score >= pair[0]
				hit.Included = hit.Reported
				for _, d := range hit.Domains {
					d.Reported = hit.Reported && d.Score >= pair[1]
					d.Included = d.Reported && hit.Included
				}
			}
			th.Append(hit)
		}
	}
	th.SearchedSequences = 1
	th.SearchedResidues = int64(s.Len())

	if err := pl.finishTopHits(th, float64(nModels), nil); err != nil {
		return nil, err
	}
	return th, nil
}
