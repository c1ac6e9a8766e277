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

// Package builder constructs profile HMMs from single seed sequences
// or multiple alignments, and drives the iterative search loop.
package builder

import (
	"fmt"
	"math"
	"time"

	"github.com/plan7go/plan7/msa"
	"github.com/plan7go/plan7/plan7"
	"github.com/plan7go/plan7/search"
)

func expf(x float64) float64 { return math.Exp(x) }

// Architecture selects the match column strategy of the MSA builder.
type Architecture uint8

const (
	ArchFast Architecture = iota // automatic, by residue fraction
	ArchHand                     // honor the reference annotation
)

// ParseArchitecture parses an architecture tag.
func ParseArchitecture(s string) (Architecture, bool) {
	switch s {
	case "", "fast":
		return ArchFast, true
	case "hand":
		return ArchHand, true
	}
	return ArchFast, false
}

// Weighting selects the relative sequence weighting scheme.
type Weighting uint8

const (
	WeightPB     Weighting = iota // position based
	WeightGSC                     // Gerstein/Sonnhammer/Chothia tree weights
	WeightBlosum                  // single-linkage clustering at identity wid
	WeightNone
	WeightGiven // use the weights carried by the MSA
)

// ParseWeighting parses a weighting tag.
func ParseWeighting(s string) (Weighting, bool) {
	switch s {
	case "", "pb":
		return WeightPB, true
	case "gsc":
		return WeightGSC, true
	case "blosum":
		return WeightBlosum, true
	case "none":
		return WeightNone, true
	case "given":
		return WeightGiven, true
	}
	return WeightPB, false
}

// EffNKind selects how the effective sequence number is computed.
type EffNKind uint8

const (
	EffNEntropy EffNKind = iota // entropy target weighting
	EffNExp
	EffNClust // identity clustering at eid
	EffNNone
	EffNCustom // explicit value
)

// EffectiveNumber is the effective sequence number method plus an
// optional explicit value.
type EffectiveNumber struct {
	Kind  EffNKind
	Value float64
}

// ParseEffectiveNumber parses an effective number tag.
func ParseEffectiveNumber(s string) (EffectiveNumber, bool) {
	switch s {
	case "", "entropy":
		return EffectiveNumber{Kind: EffNEntropy}, true
	case "exp":
		return EffectiveNumber{Kind: EffNExp}, true
	case "clust":
		return EffectiveNumber{Kind: EffNClust}, true
	case "none":
		return EffectiveNumber{Kind: EffNNone}, true
	}
	return EffectiveNumber{}, false
}

// PriorScheme selects the pseudocount prior.
type PriorScheme uint8

const (
	PriorLaplace PriorScheme = iota
	PriorAlphabet
	PriorNone
)

// ParsePriorScheme parses a prior scheme tag.
func ParsePriorScheme(s string) (PriorScheme, bool) {
	switch s {
	case "", "laplace":
		return PriorLaplace, true
	case "alphabet":
		return PriorAlphabet, true
	case "none":
		return PriorNone, true
	}
	return PriorLaplace, false
}

// Options configure a Builder. Zero values for Ere, POpen and PExtend
// select the alphabet-dependent defaults.
type Options struct {
	Architecture Architecture
	Weighting    Weighting
	EffN         EffectiveNumber
	Prior        PriorScheme

	Symfrac    float64
	Fragthresh float64

	Wid    float64 // blosum weighting identity threshold
	ESigma float64 // entropy weighting sigma
	EID    float64 // effn clustering identity threshold

	Ere     float64 // target mean relative entropy per match position
	POpen   float64
	PExtend float64

	ScoreMatrix string

	WindowLength int
	WindowBeta   float64

	Calibration search.CalibrationOptions

	// Seed for calibration; 0 means nondeterministic.
	Seed uint64
}

// DefaultOptions are the conventional builder settings.
var DefaultOptions = Options{
	Architecture: ArchFast,
	Weighting:    WeightPB,
	EffN:         EffectiveNumber{Kind: EffNEntropy},
	Prior:        PriorAlphabet,
	Symfrac:      0.5,
	Fragthresh:   0.5,
	Wid:          0.62,
	ESigma:       45.0,
	EID:          0.62,
	ScoreMatrix:  "BLOSUM62",
	WindowBeta:   1e-7,
	Calibration:  search.DefaultCalibrationOptions,
	Seed:         42,
}

// CheckOptions validates builder settings.
func CheckOptions(opt *Options) error {
	if opt.Symfrac < 0 || opt.Symfrac > 1 {
		return fmt.Errorf("%w: symfrac = %g, should be in [0, 1]", plan7.ErrInvalidParameter, opt.Symfrac)
	}
	if opt.Fragthresh < 0 || opt.Fragthresh > 1 {
		return fmt.Errorf("%w: fragthresh = %g, should be in [0, 1]", plan7.ErrInvalidParameter, opt.Fragthresh)
	}
	if opt.POpen < 0 || opt.POpen >= 0.5 {
		return fmt.Errorf("%w: popen = %g, should be in [0, 0.5)", plan7.ErrInvalidParameter, opt.POpen)
	}
	if opt.PExtend < 0 || opt.PExtend >= 1 {
		return fmt.Errorf("%w: pextend = %g, should be in [0, 1)", plan7.ErrInvalidParameter, opt.PExtend)
	}
	if opt.Wid < 0 || opt.Wid > 1 {
		return fmt.Errorf("%w: wid = %g, should be in [0, 1]", plan7.ErrInvalidParameter, opt.Wid)
	}
	return nil
}

// Builder constructs HMMs over one alphabet.
type Builder struct {
	Alphabet *plan7.Alphabet
	Options  Options

	matrix *scoreMatrix
}

// NewBuilder creates a builder, resolving the score matrix for amino
// alphabets and the gap penalty defaults.
func NewBuilder(a *plan7.Alphabet, opt *Options) (*Builder, error) {
	if opt == nil {
		o := DefaultOptions
		opt = &o
	}
	o := *opt
	if o.POpen == 0 {
		if a.Type() == plan7.AlphabetAmino {
			o.POpen = 0.02
		} else {
			o.POpen = 0.03125
		}
	}
	if o.PExtend == 0 {
		if a.Type() == plan7.AlphabetAmino {
			o.PExtend = 0.4
		} else {
			o.PExtend = 0.75
		}
	}
	if o.Ere == 0 {
		if a.Type() == plan7.AlphabetAmino {
			o.Ere = 0.59
		} else {
			o.Ere = 0.45
		}
	}
	if err := CheckOptions(&o); err != nil {
		return nil, err
	}
	b := &Builder{Alphabet: a, Options: o}
	if a.Type() == plan7.AlphabetAmino {
		sm, err := loadScoreMatrix(o.ScoreMatrix, a)
		if err != nil {
			return nil, err
		}
		b.matrix = sm
	}
	b.Options.Calibration.Seed = o.Seed
	return b, nil
}

// finish configures, calibrates and converts a freshly parameterized
// model, returning the consistent triple. An explicit window length
// overrides the query-derived configuration length.
func (b *Builder) finish(hmm *plan7.HMM, bg *plan7.Background, L int) (*plan7.HMM, *plan7.Profile, *plan7.OptimizedProfile, error) {
	if b.Options.WindowLength > 0 {
		L = b.Options.WindowLength
	}
	hmm.Renormalize()
	hmm.SetConsensus()
	hmm.SetComposition()
	hmm.SetChecksum()
	hmm.Date = time.Now()
	if err := hmm.Validate(1e-4); err != nil {
		return nil, nil, nil, err
	}

	p := plan7.NewProfile(b.Alphabet, hmm.M)
	if err := p.Configure(hmm, bg, L, true, true); err != nil {
		return nil, nil, nil, err
	}
	om, err := plan7.ConvertProfile(p)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := search.Calibrate(hmm, p, om, bg, &b.Options.Calibration); err != nil {
		return nil, nil, nil, err
	}
	return hmm, p, om, nil
}

// Build constructs a single-sequence query model, phmmer style: match
// emissions are the score matrix conditionals of each seed residue,
// gap transitions come from the gap open/extend penalties.
func (b *Builder) Build(s *plan7.DigitalSequence, bg *plan7.Background) (*plan7.HMM, *plan7.Profile, *plan7.OptimizedProfile, error) {
	if s.Alphabet != b.Alphabet {
		return nil, nil, nil, plan7.ErrAlphabetMismatch
	}
	if s.Len() == 0 {
		return nil, nil, nil, plan7.ErrEmptyModel
	}

	M := s.Len()
	hmm, err := plan7.NewHMM(b.Alphabet, M)
	if err != nil {
		return nil, nil, nil, err
	}
	k := b.Alphabet.K()

	// conditional emission rows; nucleotide queries use a fixed
	// match/mismatch ratio instead of a matrix
	var cond [][]float64
	if b.matrix != nil {
		cond = b.matrix.conditionals(bg, math.Ln2/2)
	}

	any := b.Alphabet.AnyCode()
	for i := 1; i <= M; i++ {
		a := s.At(i - 1)
		if !b.Alphabet.IsCanonical(a) {
			a = any
		}
		switch {
		case b.Alphabet.IsCanonical(a) && cond != nil:
			for x := 0; x < k; x++ {
				hmm.Match[i][x] = float32(cond[a][x])
			}
		case b.Alphabet.IsCanonical(a):
			for x := 0; x < k; x++ {
				if x == a {
					hmm.Match[i][x] = 0.85
				} else {
					hmm.Match[i][x] = 0.15 / float32(k-1)
				}
			}
		default:
			copy(hmm.Match[i], bg.Frequencies)
		}
		copy(hmm.Insert[i], bg.Frequencies)
	}
	copy(hmm.Insert[0], bg.Frequencies)

	popen, pextend := b.Options.POpen, b.Options.PExtend
	for i := 0; i <= M; i++ {
		t := hmm.Trans[i]
		t[plan7.TMM] = float32(1 - 2*popen)
		t[plan7.TMI] = float32(popen)
		t[plan7.TMD] = float32(popen)
		t[plan7.TIM] = float32(1 - pextend)
		t[plan7.TII] = float32(pextend)
		t[plan7.TDM] = float32(1 - pextend)
		t[plan7.TDD] = float32(pextend)
	}
	hmm.Trans[M][plan7.TMM] = float32(1 - popen)
	hmm.Trans[M][plan7.TMI] = float32(popen)
	hmm.Trans[M][plan7.TMD] = 0
	hmm.Trans[M][plan7.TDM] = 1
	hmm.Trans[M][plan7.TDD] = 0

	hmm.Name = s.Name
	hmm.Accession = s.Accession
	hmm.Description = s.Description
	hmm.Nseq = 1
	hmm.NseqEffective = 1

	return b.finish(hmm, bg, s.Len())
}

// BuildMSA constructs a model from aligned columns.
func (b *Builder) BuildMSA(m *msa.DigitalMSA, bg *plan7.Background) (*plan7.HMM, *plan7.Profile, *plan7.OptimizedProfile, error) {
	if m.Alphabet != b.Alphabet {
		return nil, nil, nil, plan7.ErrAlphabetMismatch
	}
	if m.Nseq() == 0 {
		return nil, nil, nil, plan7.ErrEmptyModel
	}

	weights, err := b.sequenceWeights(m)
	if err != nil {
		return nil, nil, nil, err
	}

	matchCols, err := b.selectMatchColumns(m, weights)
	if err != nil {
		return nil, nil, nil, err
	}
	M := len(matchCols)
	if M == 0 {
		return nil, nil, nil, plan7.ErrEmptyModel
	}

	effN := b.effectiveNumber(m, weights)
	scale := effN / sum(weights)
	counts := make([]float64, len(weights))
	for i, w := range weights {
		counts[i] = w * scale
	}

	hmm, err := b.countMSA(m, matchCols, counts)
	if err != nil {
		return nil, nil, nil, err
	}
	if b.Options.EffN.Kind == EffNEntropy {
		f := b.entropyScale(hmm, bg)
		hmm.Scale(float32(f))
		effN *= f
	}
	b.applyPrior(hmm, bg)

	hmm.Name = m.Name
	if hmm.Name == "" {
		hmm.Name = fmt.Sprintf("aligned-%d", m.Nseq())
	}
	hmm.Nseq = m.Nseq()
	hmm.NseqEffective = float32(effN)

	return b.finish(hmm, bg, m.Alen())
}

// selectMatchColumns picks the alignment columns that become match
// nodes: annotated columns in hand architecture, columns with enough
// weighted residues otherwise.
func (b *Builder) selectMatchColumns(m *msa.DigitalMSA, weights []float64) ([]int, error) {
	alen := m.Alen()
	var cols []int
	if b.Options.Architecture == ArchHand {
		if len(m.Reference) != alen {
			return nil, fmt.Errorf("%w: hand architecture needs reference annotation", plan7.ErrInvalidParameter)
		}
		for c := 0; c < alen; c++ {
			if m.Reference[c] != '.' && m.Reference[c] != '-' && m.Reference[c] != ' ' {
				cols = append(cols, c)
			}
		}
		return cols, nil
	}

	total := sum(weights)
	for c := 0; c < alen; c++ {
		var occupied float64
		for i, row := range m.Rows {
			if m.Alphabet.IsResidue(int(row[c])) {
				occupied += weights[i]
			}
		}
		if occupied/total >= b.Options.Symfrac {
			cols = append(cols, c)
		}
	}
	return cols, nil
}

// countMSA accumulates weighted emission and transition counts over
// the selected match columns.
func (b *Builder) countMSA(m *msa.DigitalMSA, matchCols []int, weights []float64) (*plan7.HMM, error) {
	M := len(matchCols)
	hmm, err := plan7.NewHMM(b.Alphabet, M)
	if err != nil {
		return nil, err
	}

	isMatch := make([]bool, m.Alen())
	nodeOf := make([]int, m.Alen())
	for node, c := range matchCols {
		isMatch[c] = true
		nodeOf[c] = node + 1
	}

	alen := m.Alen()
	frag := b.fragmentFlags(m)

	for i, row := range m.Rows {
		w := weights[i]

		// first/last residue columns bound a fragment's span
		first, last := -1, -1
		for c := 0; c < alen; c++ {
			if m.Alphabet.IsResidue(int(row[c])) {
				if first < 0 {
					first = c
				}
				last = c
			}
		}
		if first < 0 {
			continue
		}
		from, to := 0, alen-1
		if frag[i] {
			from, to = first, last
		}

		prev := 0 // 0 = begin/M, encoded as node; state tracked separately
		prevState := plan7.TraceM
		for c := from; c <= to; c++ {
			code := int(row[c])
			res := m.Alphabet.IsResidue(code)
			if isMatch[c] {
				node := nodeOf[c]
				var state plan7.TraceState
				if res {
					state = plan7.TraceM
					if m.Alphabet.IsCanonical(code) {
						hmm.Match[node][code] += float32(w)
					} else {
						set := m.Alphabet.DegenerateResidues(code)
						for _, x := range set {
							hmm.Match[node][x] += float32(w / float64(len(set)))
						}
					}
				} else {
					state = plan7.TraceD
				}
				b.countTransition(hmm, prev, prevState, node, state, w)
				prev, prevState = node, state
			} else if res {
				// insert residue assigned to the preceding node
				if m.Alphabet.IsCanonical(code) {
					hmm.Insert[prev][code] += float32(w)
				}
				b.countTransition(hmm, prev, prevState, prev, plan7.TraceI, w)
				prevState = plan7.TraceI
			}
		}
		// closing transition into the implicit end node
		b.countTransition(hmm, prev, prevState, M+1, plan7.TraceM, w)
	}
	return hmm, nil
}

// countTransition adds weight w to the transition between two
// consecutive states of a counted path.
func (b *Builder) countTransition(hmm *plan7.HMM, k1 int, s1 plan7.TraceState, k2 int, s2 plan7.TraceState, w float64) {
	// transitions out of the last node fold into node M's exit
	if k2 > hmm.M {
		k2 = hmm.M
		s2 = plan7.TraceM
		if k1 == hmm.M {
			// the final match/delete exits implicitly
			return
		}
	}
	f := float32(w)
	switch {
	case s1 == plan7.TraceM && s2 == plan7.TraceM:
		hmm.Trans[k1][plan7.TMM] += f
	case s1 == plan7.TraceM && s2 == plan7.TraceI:
		hmm.Trans[k1][plan7.TMI] += f
	case s1 == plan7.TraceM && s2 == plan7.TraceD:
		hmm.Trans[k1][plan7.TMD] += f
	case s1 == plan7.TraceI && s2 == plan7.TraceM:
		hmm.Trans[k1][plan7.TIM] += f
	case s1 == plan7.TraceI && s2 == plan7.TraceI:
		hmm.Trans[k1][plan7.TII] += f
	case s1 == plan7.TraceI && s2 == plan7.TraceD:
		// I->D is not a plan7 transition; count as I->M->D
		hmm.Trans[k1][plan7.TIM] += f
	case s1 == plan7.TraceD && s2 == plan7.TraceM:
		hmm.Trans[k1][plan7.TDM] += f
	case s1 == plan7.TraceD && s2 == plan7.TraceD:
		hmm.Trans[k1][plan7.TDD] += f
	case s1 == plan7.TraceD && s2 == plan7.TraceI:
		hmm.Trans[k1][plan7.TDM] += f
	}
}

// fragmentFlags marks sequences spanning less than fragthresh of the
// alignment; their external gaps are treated as missing data.
func (b *Builder) fragmentFlags(m *msa.DigitalMSA) []bool {
	alen := m.Alen()
	out := make([]bool, m.Nseq())
	for i, row := range m.Rows {
		first, last := -1, -1
		for c := 0; c < alen; c++ {
			if m.Alphabet.IsResidue(int(row[c])) {
				if first < 0 {
					first = c
				}
				last = c
			}
		}
		if first < 0 {
			out[i] = true
			continue
		}
		span := float64(last-first+1) / float64(alen)
		out[i] = span < b.Options.Fragthresh
	}
	return out
}

// applyPrior adds pseudocounts to all count distributions.
func (b *Builder) applyPrior(hmm *plan7.HMM, bg *plan7.Background) {
	k := b.Alphabet.K()
	switch b.Options.Prior {
	case PriorNone:
	case PriorLaplace:
		for i := 1; i <= hmm.M; i++ {
			for x := 0; x < k; x++ {
				hmm.Match[i][x]++
				hmm.Insert[i][x]++
			}
		}
		for i := 0; i <= hmm.M; i++ {
			for t := 0; t < plan7.NTransitions; t++ {
				hmm.Trans[i][t]++
			}
		}
	case PriorAlphabet:
		// background-proportional emission pseudocounts and mildly
		// match-favoring transition pseudocounts
		for i := 1; i <= hmm.M; i++ {
			for x := 0; x < k; x++ {
				hmm.Match[i][x] += bg.Frequencies[x] * float32(k) * 0.1
				hmm.Insert[i][x] += bg.Frequencies[x] * float32(k)
			}
		}
		for i := 0; i <= hmm.M; i++ {
			t := hmm.Trans[i]
			t[plan7.TMM] += 0.7
			t[plan7.TMI] += 0.1
			t[plan7.TMD] += 0.1
			t[plan7.TIM] += 0.5
			t[plan7.TII] += 0.3
			t[plan7.TDM] += 0.5
			t[plan7.TDD] += 0.3
		}
	}
	// insert emissions follow the background in the final model
	for i := 0; i <= hmm.M; i++ {
		copy(hmm.Insert[i], bg.Frequencies)
	}
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}
