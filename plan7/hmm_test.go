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

package plan7

import (
	"math"
	"testing"
)

func TestSampleHMMValidates(t *testing.T) {
	rng := NewRandomness(42)
	for _, m := range []int{1, 7, 40} {
		h, err := SampleHMM(Amino, m, rng)
		if err != nil {
			t.Fatal(err)
		}
		if err := h.Validate(1e-5); err != nil {
			t.Errorf("M=%d: %s", m, err)
		}
	}
}

func TestNewHMMRejectsZeroLength(t *testing.T) {
	if _, err := NewHMM(Amino, 0); err == nil {
		t.Error("expected an error for M=0")
	}
}

func TestRenormalize(t *testing.T) {
	rng := NewRandomness(1)
	h, err := SampleHMM(DNA, 5, rng)
	if err != nil {
		t.Fatal(err)
	}
	h.Scale(3.7)
	h.Renormalize()
	if err := h.Validate(1e-5); err != nil {
		t.Error(err)
	}
}

func TestZeroKeepsConvention(t *testing.T) {
	rng := NewRandomness(2)
	h, _ := SampleHMM(Amino, 3, rng)
	h.Zero()
	if h.Match[0][0] != 1 {
		t.Errorf("Match[0][0] = %f after Zero, want 1", h.Match[0][0])
	}
	for x, p := range h.Match[1] {
		if p != 0 {
			t.Errorf("Match[1][%d] = %f after Zero, want 0", x, p)
		}
	}
}

func TestCopyIsDeep(t *testing.T) {
	rng := NewRandomness(3)
	h, _ := SampleHMM(Amino, 4, rng)
	c := h.Copy()
	c.Match[1][0] = 0.999
	if h.Match[1][0] == c.Match[1][0] {
		t.Error("copy shares emission storage with the original")
	}
}

func TestChecksumStable(t *testing.T) {
	rng := NewRandomness(4)
	h, _ := SampleHMM(Amino, 10, rng)
	s1, ok := h.Checksum()
	if !ok {
		t.Fatal("sampled model has no checksum")
	}
	h.SetChecksum()
	s2, _ := h.Checksum()
	if s1 != s2 {
		t.Errorf("checksum changed: %d != %d", s1, s2)
	}
}

func TestMeanMatchRelativeEntropy(t *testing.T) {
	h, _ := NewHMM(DNA, 2)
	// perfectly peaked emissions against a uniform background
	for i := 1; i <= 2; i++ {
		h.Match[i][0] = 1
		copy(h.Insert[i], []float32{0.25, 0.25, 0.25, 0.25})
		h.Trans[i][TMM], h.Trans[i][TIM], h.Trans[i][TDM] = 1, 1, 1
	}
	h.Trans[0][TMM], h.Trans[0][TIM], h.Trans[0][TDM] = 1, 1, 1
	h.Name = "peaked"

	bg := NewUniformBackground(DNA)
	re := h.MeanMatchRelativeEntropy(bg)
	if math.Abs(re-2) > 1e-6 {
		t.Errorf("relative entropy = %f bits, want 2", re)
	}
}

func TestAlphabetCoding(t *testing.T) {
	if Amino.K() != 20 || Amino.Kp() != 29 {
		t.Errorf("amino K/Kp = %d/%d, want 20/29", Amino.K(), Amino.Kp())
	}
	if DNA.K() != 4 || DNA.Kp() != 18 {
		t.Errorf("dna K/Kp = %d/%d, want 4/18", DNA.K(), DNA.Kp())
	}
	codes, err := Amino.Encode([]byte("ACDw"))
	if err != nil {
		t.Fatal(err)
	}
	if string(Amino.Decode(codes)) != "ACDW" {
		t.Errorf("decode = %s, want ACDW", Amino.Decode(codes))
	}
	if _, err := DNA.Encode([]byte("ACGZ")); err == nil {
		t.Error("expected an error for an invalid DNA symbol")
	}
}

func TestReverseComplement(t *testing.T) {
	s, err := NewDigitalSequence(DNA, "t", []byte("AACGTT"))
	if err != nil {
		t.Fatal(err)
	}
	rc, err := s.ReverseComplement()
	if err != nil {
		t.Fatal(err)
	}
	if string(rc.Text()) != "AACGTT" {
		t.Errorf("palindromic RC = %s, want AACGTT", rc.Text())
	}
	if string(s.Text()) != "AACGTT" {
		t.Error("ReverseComplement mutated the receiver")
	}

	s2, _ := NewDigitalSequence(DNA, "t2", []byte("AAAC"))
	if err := s2.ReverseComplementInPlace(); err != nil {
		t.Fatal(err)
	}
	if string(s2.Text()) != "GTTT" {
		t.Errorf("in-place RC = %s, want GTTT", s2.Text())
	}

	p, _ := NewDigitalSequence(Amino, "p", []byte("ACD"))
	if _, err := p.ReverseComplement(); err == nil {
		t.Error("expected an error for protein reverse complement")
	}
}

func TestProfileConfigure(t *testing.T) {
	rng := NewRandomness(42)
	for _, L := range []int{10, 100, 400, 1000} {
		h, _ := SampleHMM(Amino, 25, rng)
		bg := NewBackground(Amino)
		p := NewProfile(Amino, h.M)
		if err := p.Configure(h, bg, L, true, true); err != nil {
			t.Fatal(err)
		}
		if p.M != h.M {
			t.Errorf("L=%d: profile M = %d, want %d", L, p.M, h.M)
		}
		if !p.Configured() || !p.Local || !p.Multihit {
			t.Errorf("L=%d: configuration flags wrong", L)
		}
		if p.L != L {
			t.Errorf("profile L = %d, want %d", p.L, L)
		}
	}
}

func TestProfileUseBeforeConfigure(t *testing.T) {
	p := NewProfile(Amino, 5)
	if _, err := ConvertProfile(p); err != ErrUnconfigured {
		t.Errorf("got %v, want ErrUnconfigured", err)
	}
}

func TestOptimizedProfileRoundTrip(t *testing.T) {
	rng := NewRandomness(7)
	h, _ := SampleHMM(Amino, 33, rng)
	bg := NewBackground(Amino)
	p := NewProfile(Amino, h.M)
	if err := p.Configure(h, bg, 400, true, true); err != nil {
		t.Fatal(err)
	}
	om, err := ConvertProfile(p)
	if err != nil {
		t.Fatal(err)
	}
	if om.M != h.M {
		t.Fatalf("optimized M = %d, want %d", om.M, h.M)
	}

	// quantization error bounds: 1.5/Scale8 nats for bytes, 1.5/Scale16
	// for shorts
	for x := 0; x < Amino.K(); x++ {
		for k := 1; k <= h.M; k++ {
			want := p.Msc[x][k]
			got8 := om.MatchScore8(x, k)
			if !math.IsInf(float64(want), -1) && math.Abs(float64(got8-want)) > 1.5/Scale8 {
				t.Fatalf("8-bit score (%d,%d): got %f, want %f", x, k, got8, want)
			}
			got16 := om.MatchScore16(x, k)
			if !math.IsInf(float64(want), -1) && math.Abs(float64(got16-want)) > 1.5/Scale16 {
				t.Fatalf("16-bit score (%d,%d): got %f, want %f", x, k, got16, want)
			}
		}
	}

	// striping: each node must land in its own slot
	seen := make(map[int]bool)
	for k := 1; k <= h.M; k++ {
		pos := stripedIndex(k, om.Q8, VecWidth8)
		if seen[pos] {
			t.Fatalf("striped position %d reused", pos)
		}
		seen[pos] = true
	}
}

func TestOptimizedProfileCopyIndependent(t *testing.T) {
	rng := NewRandomness(8)
	h, _ := SampleHMM(DNA, 9, rng)
	bg := NewBackground(DNA)
	p := NewProfile(DNA, h.M)
	if err := p.Configure(h, bg, 400, true, true); err != nil {
		t.Fatal(err)
	}
	om, _ := ConvertProfile(p)
	c := om.Copy()
	c.SetLength(10)
	if om.L == c.L {
		t.Error("SetLength on the copy changed the original")
	}
}

func TestTraceValidateAndScore(t *testing.T) {
	rng := NewRandomness(9)
	h, _ := SampleUngappedHMM(Amino, 3, rng)
	bg := NewBackground(Amino)
	p := NewProfile(Amino, 3)
	if err := p.Configure(h, bg, 3, false, true); err != nil {
		t.Fatal(err)
	}
	s := h.Emit(NewRandomness(10))

	tr := NewTrace(3, 3)
	tr.Append(TraceS, 0, 0)
	tr.Append(TraceN, 0, 0)
	tr.Append(TraceB, 0, 0)
	tr.Append(TraceM, 1, 1)
	tr.Append(TraceM, 2, 2)
	tr.Append(TraceM, 3, 3)
	tr.Append(TraceE, 0, 0)
	tr.Append(TraceC, 0, 0)
	tr.Append(TraceT, 0, 0)

	if err := tr.Validate(h, s); err != nil {
		t.Fatal(err)
	}
	sc, err := tr.Score(p, s)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("trace score: %f nats", sc)
	if math.IsInf(float64(sc), 0) || math.IsNaN(float64(sc)) {
		t.Errorf("trace score is not finite: %f", sc)
	}

	tr.Posterior = []float32{0, 0, 0, 0.9, 0.8, 0.7, 0, 0, 0}
	acc := tr.ExpectedAccuracy()
	if math.Abs(acc-0.8) > 1e-6 {
		t.Errorf("expected accuracy = %f, want 0.8", acc)
	}
}
