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
	"errors"
	"testing"

	"github.com/plan7go/plan7/msa"
	"github.com/plan7go/plan7/plan7"
)

func fastCalibration() Options {
	opt := DefaultOptions
	opt.Calibration.EmN = 50
	opt.Calibration.EvN = 50
	opt.Calibration.EfN = 50
	return opt
}

func TestBuildSingleSequence(t *testing.T) {
	opt := fastCalibration()
	b, err := NewBuilder(plan7.Amino, &opt)
	if err != nil {
		t.Fatal(err)
	}
	bg := plan7.NewBackground(plan7.Amino)
	s, err := plan7.NewDigitalSequence(plan7.Amino, "seed", []byte("MKVLAARTWE"))
	if err != nil {
		t.Fatal(err)
	}

	hmm, p, om, err := b.Build(s, bg)
	if err != nil {
		t.Fatal(err)
	}
	if hmm.M != s.Len() {
		t.Fatalf("M = %d, want %d", hmm.M, s.Len())
	}
	if err := hmm.Validate(1e-4); err != nil {
		t.Error(err)
	}
	if !p.Configured() || p.L != s.Len() {
		t.Errorf("profile configured at L = %d, want %d", p.L, s.Len())
	}
	if om.M != hmm.M {
		t.Errorf("optimized M = %d, want %d", om.M, hmm.M)
	}
	if !hmm.EvalueParameters.Calibrated() {
		t.Error("built model not calibrated")
	}
	if hmm.Name != "seed" {
		t.Errorf("model name %q, want seed", hmm.Name)
	}

	// the seed residue should have the highest match log-odds score per
	// node
	freq := plan7.NewBackground(plan7.Amino).Frequencies
	for i := 1; i <= hmm.M; i++ {
		seed := s.At(i - 1)
		for x := 0; x < plan7.Amino.K(); x++ {
			if x != seed && hmm.Match[i][x]/freq[x] > hmm.Match[i][seed]/freq[seed] {
				t.Fatalf("node %d: residue %d scores above the seed residue %d", i, x, seed)
			}
		}
	}
}

func TestBuildAlphabetMismatch(t *testing.T) {
	b, _ := NewBuilder(plan7.Amino, nil)
	bg := plan7.NewBackground(plan7.Amino)
	s, _ := plan7.NewDigitalSequence(plan7.DNA, "dna", []byte("ACGT"))
	if _, _, _, err := b.Build(s, bg); !errors.Is(err, plan7.ErrAlphabetMismatch) {
		t.Fatalf("got %v, want ErrAlphabetMismatch", err)
	}
}

func TestCheckOptions(t *testing.T) {
	opt := DefaultOptions
	opt.Symfrac = 1.5
	if _, err := NewBuilder(plan7.Amino, &opt); !errors.Is(err, plan7.ErrInvalidParameter) {
		t.Fatalf("got %v, want ErrInvalidParameter for symfrac out of range", err)
	}
	opt = DefaultOptions
	opt.POpen = -0.1
	if _, err := NewBuilder(plan7.Amino, &opt); !errors.Is(err, plan7.ErrInvalidParameter) {
		t.Fatalf("got %v, want ErrInvalidParameter for negative popen", err)
	}
}

func msaFromRows(t *testing.T, a *plan7.Alphabet, rows ...string) *msa.DigitalMSA {
	t.Helper()
	names := make([]string, len(rows))
	byteRows := make([][]byte, len(rows))
	for i, r := range rows {
		names[i] = string(rune('a' + i))
		byteRows[i] = []byte(r)
	}
	text, err := msa.NewTextMSA("test", names, byteRows)
	if err != nil {
		t.Fatal(err)
	}
	d, err := text.Digitize(a)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestBuildMSA(t *testing.T) {
	opt := fastCalibration()
	b, err := NewBuilder(plan7.Amino, &opt)
	if err != nil {
		t.Fatal(err)
	}
	bg := plan7.NewBackground(plan7.Amino)

	m := msaFromRows(t, plan7.Amino,
		"MKVL-ARTWE",
		"MKVLA-RTWE",
		"MKVLAART-E",
		"MRVLAARTWE",
	)
	hmm, p, om, err := b.BuildMSA(m, bg)
	if err != nil {
		t.Fatal(err)
	}
	if hmm.M < 8 || hmm.M > 10 {
		t.Fatalf("M = %d, expected close to the 10 aligned columns", hmm.M)
	}
	if err := hmm.Validate(1e-4); err != nil {
		t.Error(err)
	}
	if hmm.Nseq != 4 {
		t.Errorf("NSEQ = %d, want 4", hmm.Nseq)
	}
	if hmm.NseqEffective <= 0 || hmm.NseqEffective > 4 {
		t.Errorf("EFFN = %f, want in (0, 4]", hmm.NseqEffective)
	}
	if p.M != hmm.M || om.M != hmm.M {
		t.Error("triple is inconsistent")
	}
}

// TestBuildMSAEmptyModel: with symfrac 0.5 an alignment of mostly-gap
// columns yields no match columns.
func TestBuildMSAEmptyModel(t *testing.T) {
	opt := fastCalibration()
	opt.Symfrac = 0.5
	b, err := NewBuilder(plan7.Amino, &opt)
	if err != nil {
		t.Fatal(err)
	}
	bg := plan7.NewBackground(plan7.Amino)

	m := msaFromRows(t, plan7.Amino,
		"M---",
		"-K--",
		"--V-",
		"---L",
	)
	_, _, _, err = b.BuildMSA(m, bg)
	if !errors.Is(err, plan7.ErrEmptyModel) {
		t.Fatalf("got %v, want ErrEmptyModel", err)
	}
}

func TestBuildMSAHandArchitecture(t *testing.T) {
	opt := fastCalibration()
	opt.Architecture = ArchHand
	b, err := NewBuilder(plan7.Amino, &opt)
	if err != nil {
		t.Fatal(err)
	}
	bg := plan7.NewBackground(plan7.Amino)

	m := msaFromRows(t, plan7.Amino,
		"MKVLA",
		"MKVLA",
	)
	m.Reference = []byte("xx.xx")
	hmm, _, _, err := b.BuildMSA(m, bg)
	if err != nil {
		t.Fatal(err)
	}
	if hmm.M != 4 {
		t.Fatalf("hand architecture M = %d, want the 4 annotated columns", hmm.M)
	}
}

func TestWeightingSchemes(t *testing.T) {
	m := msaFromRows(t, plan7.Amino,
		"MKVLA",
		"MKVLA",
		"MRVLA",
		"WWWWW",
	)
	for _, scheme := range []Weighting{WeightPB, WeightGSC, WeightBlosum, WeightNone} {
		opt := fastCalibration()
		opt.Weighting = scheme
		b, err := NewBuilder(plan7.Amino, &opt)
		if err != nil {
			t.Fatal(err)
		}
		w, err := b.sequenceWeights(m)
		if err != nil {
			t.Fatalf("scheme %d: %s", scheme, err)
		}
		if len(w) != 4 {
			t.Fatalf("scheme %d: %d weights, want 4", scheme, len(w))
		}
		var total float64
		for _, x := range w {
			if x < 0 {
				t.Fatalf("scheme %d: negative weight %f", scheme, x)
			}
			total += x
		}
		if total < 3.99 || total > 4.01 {
			t.Fatalf("scheme %d: weights sum to %f, want 4", scheme, total)
		}
		// the outlier row should never carry less weight than an
		// identical pair member under the distance-aware schemes
		if scheme == WeightGSC || scheme == WeightBlosum {
			if w[3] < w[0] {
				t.Errorf("scheme %d: outlier weight %f below duplicate weight %f", scheme, w[3], w[0])
			}
		}
	}
}

func TestEffectiveNumberClust(t *testing.T) {
	m := msaFromRows(t, plan7.Amino,
		"MKVLA",
		"MKVLA",
		"WWWWW",
	)
	opt := fastCalibration()
	opt.EffN = EffectiveNumber{Kind: EffNClust}
	b, err := NewBuilder(plan7.Amino, &opt)
	if err != nil {
		t.Fatal(err)
	}
	n := b.effectiveNumber(m, []float64{1, 1, 1})
	if n != 2 {
		t.Fatalf("clustered effective number = %f, want 2", n)
	}
}
