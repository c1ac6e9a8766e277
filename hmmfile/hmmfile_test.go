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

package hmmfile

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/plan7go/plan7/plan7"
)

func sampleModel(t *testing.T, seed uint64, m int) *plan7.HMM {
	t.Helper()
	h, err := plan7.SampleHMM(plan7.Amino, m, plan7.NewRandomness(seed))
	if err != nil {
		t.Fatal(err)
	}
	h.Accession = "PF99999.1"
	h.Description = "a sampled test model"
	h.Date = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	h.Cutoffs.SetGathering(25, 25)
	h.Cutoffs.SetNoise(10.5, 10.5)
	ep := plan7.EvalueParameters{
		MsvMu: -8.5, MsvLambda: 0.69,
		ViterbiMu: -9.1, ViterbiLambda: 0.70,
		ForwardTau: -3.2, ForwardLambda: 0.69,
	}
	ep.SetCalibrated()
	h.EvalueParameters = ep
	return h
}

func closeEnough(a, b float32) bool {
	return math.Abs(float64(a-b)) <= 1e-4
}

func compareModels(t *testing.T, a, b *plan7.HMM) {
	t.Helper()
	if a.Name != b.Name || a.Accession != b.Accession || a.Description != b.Description {
		t.Fatalf("metadata differs: %q/%q/%q vs %q/%q/%q",
			a.Name, a.Accession, a.Description, b.Name, b.Accession, b.Description)
	}
	if a.M != b.M {
		t.Fatalf("M differs: %d vs %d", a.M, b.M)
	}
	if a.Nseq != b.Nseq {
		t.Fatalf("NSEQ differs: %d vs %d", a.Nseq, b.Nseq)
	}
	sa, oka := a.Checksum()
	sb, okb := b.Checksum()
	if oka != okb || sa != sb {
		t.Fatalf("checksum differs: %d/%v vs %d/%v", sa, oka, sb, okb)
	}
	ga, oka := a.Cutoffs.Gathering()
	gb, okb := b.Cutoffs.Gathering()
	if oka != okb || ga != gb {
		t.Fatalf("GA differs: %v/%v vs %v/%v", ga, oka, gb, okb)
	}
	if _, ok := b.Cutoffs.Trusted(); ok {
		t.Fatal("TC appeared out of nowhere")
	}
	if a.EvalueParameters.Calibrated() != b.EvalueParameters.Calibrated() {
		t.Fatal("calibration flag differs")
	}
	if a.Consensus != b.Consensus {
		t.Fatalf("consensus differs: %q vs %q", a.Consensus, b.Consensus)
	}
	for i := 0; i <= a.M; i++ {
		for x := range a.Match[i] {
			if i > 0 && !closeEnough(a.Match[i][x], b.Match[i][x]) {
				t.Fatalf("match[%d][%d] differs: %f vs %f", i, x, a.Match[i][x], b.Match[i][x])
			}
			if !closeEnough(a.Insert[i][x], b.Insert[i][x]) {
				t.Fatalf("insert[%d][%d] differs: %f vs %f", i, x, a.Insert[i][x], b.Insert[i][x])
			}
		}
		for tt := range a.Trans[i] {
			if !closeEnough(a.Trans[i][tt], b.Trans[i][tt]) {
				t.Fatalf("trans[%d][%d] differs: %f vs %f", i, tt, a.Trans[i][tt], b.Trans[i][tt])
			}
		}
	}
}

func TestTextRoundTrip(t *testing.T) {
	h := sampleModel(t, 42, 17)

	dir := t.TempDir()
	file := filepath.Join(dir, "test.hmm")
	fh, err := os.Create(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteHMM(fh, h); err != nil {
		t.Fatal(err)
	}
	fh.Close()

	f, err := Open(file)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := f.Read()
	if err != nil {
		t.Fatal(err)
	}
	compareModels(t, h, got)

	if _, err = f.Read(); err != io.EOF {
		t.Fatalf("expected EOF after the last model, got %v", err)
	}
}

func TestTextMultipleModelsAndRewind(t *testing.T) {
	h1 := sampleModel(t, 1, 5)
	h2 := sampleModel(t, 2, 9)
	h2.Name = "second"

	dir := t.TempDir()
	file := filepath.Join(dir, "two.hmm")
	fh, err := os.Create(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteHMMs(fh, []*plan7.HMM{h1, h2}); err != nil {
		t.Fatal(err)
	}
	fh.Close()

	f, err := Open(file)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var names []string
	for {
		h, err := f.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, h.Name)
	}
	if len(names) != 2 || names[1] != "second" {
		t.Fatalf("read %v, want two models ending with %q", names, "second")
	}

	if err := f.Rewind(); err != nil {
		t.Fatal(err)
	}
	h, err := f.Read()
	if err != nil {
		t.Fatal(err)
	}
	if h.Name != h1.Name {
		t.Fatalf("after rewind got %q, want %q", h.Name, h1.Name)
	}

	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal("Close is not idempotent:", err)
	}
	if !f.Closed() {
		t.Fatal("Closed() is false after Close")
	}
}

func TestInvalidFormatTag(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.hmm")
	if err := os.WriteFile(file, []byte("NOT A MODEL\n"), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := Open(file)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err = f.Read(); err == nil {
		t.Fatal("expected a format error")
	}
}

func TestPressAndScanRoundTrip(t *testing.T) {
	h1 := sampleModel(t, 11, 8)
	h1.Name = "model-a"
	h2 := sampleModel(t, 12, 21)
	h2.Name = "model-b"

	dir := t.TempDir()
	stem := filepath.Join(dir, "db")
	offsets, err := Press([]*plan7.HMM{h1, h2}, stem)
	if err != nil {
		t.Fatal(err)
	}
	if len(offsets) != 2 {
		t.Fatalf("got %d offset records, want 2", len(offsets))
	}
	if offsets[0].Model >= offsets[1].Model {
		t.Fatalf("model offsets not increasing: %v", offsets)
	}

	for _, ext := range []string{ExtModel, ExtFilter, ExtIndex, ExtProfile} {
		if _, err := os.Stat(stem + ext); err != nil {
			t.Fatalf("missing pressed file %s: %s", ext, err)
		}
	}

	pf, err := OpenPressed(stem)
	if err != nil {
		t.Fatal(err)
	}
	defer pf.Close()
	if pf.Len() != 2 {
		t.Fatalf("pressed database has %d models, want 2", pf.Len())
	}

	var names []string
	for {
		om, err := pf.Next()
		if err != nil {
			t.Fatal(err)
		}
		if om == nil {
			break
		}
		names = append(names, om.Name)
		if om.Offsets.Model < 0 || om.Offsets.Filter < 0 || om.Offsets.Profile < 0 {
			t.Fatalf("model %s carries unset offsets: %+v", om.Name, om.Offsets)
		}
	}
	if len(names) != 2 || names[0] != "model-a" || names[1] != "model-b" {
		t.Fatalf("scanned %v, want [model-a model-b]", names)
	}

	if err := pf.Rewind(); err != nil {
		t.Fatal(err)
	}
	om, err := pf.Next()
	if err != nil {
		t.Fatal(err)
	}
	if om.Name != "model-a" {
		t.Fatalf("after rewind got %q, want model-a", om.Name)
	}

	got, err := pf.ReadHMM(1)
	if err != nil {
		t.Fatal(err)
	}
	compareModels(t, h2, got)

	if err := pf.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pf.Close(); err != nil {
		t.Fatal("Close is not idempotent:", err)
	}
}

func TestPressedMagicChecks(t *testing.T) {
	dir := t.TempDir()
	stem := filepath.Join(dir, "bad")

	// wrong magic
	if err := os.WriteFile(stem+ExtIndex, []byte("XXXXYYYYZZZZ"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenPressed(stem); err == nil {
		t.Fatal("expected an error for a corrupt index")
	}

	// reversed magic reads as an endianness mismatch
	rev := []byte{MagicIndex[3], MagicIndex[2], MagicIndex[1], MagicIndex[0], MainVersion, MinorVersion, 0, 0}
	if err := os.WriteFile(stem+ExtIndex, append(rev, make([]byte, 8)...), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := OpenPressed(stem)
	if err == nil {
		t.Fatal("expected an endianness error")
	}
}

func TestIsPressedDetection(t *testing.T) {
	h := sampleModel(t, 20, 6)
	dir := t.TempDir()

	file := filepath.Join(dir, "solo.hmm")
	fh, _ := os.Create(file)
	if err := WriteHMM(fh, h); err != nil {
		t.Fatal(err)
	}
	fh.Close()

	f, err := Open(file)
	if err != nil {
		t.Fatal(err)
	}
	if f.IsPressed() {
		t.Error("unpressed file reports pressed")
	}
	f.Close()

	stem := filepath.Join(dir, "solo")
	if _, err := Press([]*plan7.HMM{h}, stem); err != nil {
		t.Fatal(err)
	}
	f, err = Open(file)
	if err != nil {
		t.Fatal(err)
	}
	if !f.IsPressed() {
		t.Error("pressed companions not detected")
	}
	f.Close()
}
