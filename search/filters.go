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
	"math"

	"github.com/plan7go/plan7/plan7"
)

// filterMatrix holds the rolling rows of the integer filter stages.
// One per worker, reused across targets.
type filterMatrix struct {
	m    []float64
	mNew []float64

	vm, vi, vd     []float64
	vmNew, viNew, vdNew []float64
}

func newFilterMatrix() *filterMatrix { return &filterMatrix{} }

func (fm *filterMatrix) resize(M int) {
	need := M + 1
	grow := func(p *[]float64) {
		if cap(*p) < need {
			*p = make([]float64, need)
		}
		*p = (*p)[:need]
	}
	grow(&fm.m)
	grow(&fm.mNew)
	grow(&fm.vm)
	grow(&fm.vi)
	grow(&fm.vd)
	grow(&fm.vmNew)
	grow(&fm.viNew)
	grow(&fm.vdNew)
}

// MSVFilter scores the best multiple ungapped segment arrangement of a
// target against the 8-bit quantized striped match scores, returning
// the score in nats. The model is treated as one ungapped block with
// uniform entry 2/(M(M+1)) and exit probability 1/2.
func MSVFilter(om *plan7.OptimizedProfile, s *plan7.DigitalSequence, fm *filterMatrix) float64 {
	L, M := s.Len(), om.M
	fm.resize(M)

	tbm := -float64(om.TBM) / plan7.Scale8
	tec := -float64(om.TEC) / plan7.Scale8
	loop := float64(om.NCJLoop())
	move := float64(om.NCJMove())

	for k := 0; k <= M; k++ {
		fm.m[k] = negInf
	}
	xN := 0.0
	xB := xN + move
	xJ := negInf
	xC := negInf

	for i := 1; i <= L; i++ {
		x := s.At(i - 1)
		cur, prv := fm.mNew, fm.m
		cur[0] = negInf
		xE := negInf
		for k := 1; k <= M; k++ {
			msc := float64(om.MatchScore8(x, k))
			best := prv[k-1]
			if e := xB + tbm; e > best {
				best = e
			}
			cur[k] = best + msc
			if cur[k] > xE {
				xE = cur[k]
			}
		}
		xJ = math.Max(xJ+loop, xE+tec)
		xC = math.Max(xC+loop, xE+tec)
		xN += loop
		xB = math.Max(xN+move, xJ+move)
		fm.m, fm.mNew = cur, prv
	}

	return xC + move
}

// ViterbiFilter computes the optimal-path score against the 16-bit
// quantized striped scores, in nats. Precision is bounded by the
// 1/500-nat quantization.
func ViterbiFilter(om *plan7.OptimizedProfile, s *plan7.DigitalSequence, fm *filterMatrix) float64 {
	L, M := s.Len(), om.M
	fm.resize(M)

	// Local uniform entry, matching the profile configuration.
	z := float64(M) * float64(M+1) / 2
	bsc := make([]float64, M+1)
	bsc[0] = negInf
	for k := 1; k <= M; k++ {
		bsc[k] = math.Log(float64(M-k+1) / z)
	}
	eLoop := negInf
	eMove := 0.0
	if om.Multihit {
		eLoop = math.Log(0.5)
		eMove = math.Log(0.5)
	}
	loop := float64(om.NCJLoop())
	move := float64(om.NCJMove())

	for k := 0; k <= M; k++ {
		fm.vm[k] = negInf
		fm.vi[k] = negInf
		fm.vd[k] = negInf
	}
	xN := 0.0
	xB := xN + move
	xJ := negInf
	xC := negInf

	for i := 1; i <= L; i++ {
		x := s.At(i - 1)
		m, mPrv := fm.vmNew, fm.vm
		iv, iPrv := fm.viNew, fm.vi
		d, dPrv := fm.vdNew, fm.vd
		m[0], iv[0], d[0] = negInf, negInf, negInf

		xE := negInf
		for k := 1; k <= M; k++ {
			msc := float64(om.MatchScore16(x, k))
			best := max3(
				mPrv[k-1]+float64(om.TransScore16(k-1, plan7.TMM)),
				iPrv[k-1]+float64(om.TransScore16(k-1, plan7.TIM)),
				dPrv[k-1]+float64(om.TransScore16(k-1, plan7.TDM)),
			)
			if e := xB + bsc[k]; e > best {
				best = e
			}
			m[k] = best + msc

			ivv := mPrv[k] + float64(om.TransScore16(k, plan7.TMI))
			if v := iPrv[k] + float64(om.TransScore16(k, plan7.TII)); v > ivv {
				ivv = v
			}
			iv[k] = ivv

			dv := m[k-1] + float64(om.TransScore16(k-1, plan7.TMD))
			if v := d[k-1] + float64(om.TransScore16(k-1, plan7.TDD)); v > dv {
				dv = v
			}
			d[k] = dv

			if m[k] > xE {
				xE = m[k]
			}
			if d[k] > xE {
				xE = d[k]
			}
		}
		xJ = math.Max(xJ+loop, xE+eLoop)
		xC = math.Max(xC+loop, xE+eMove)
		xN += loop
		xB = math.Max(xN+move, xJ+move)

		fm.vm, fm.vmNew = m, mPrv
		fm.vi, fm.viNew = iv, iPrv
		fm.vd, fm.vdNew = d, dPrv
	}

	return xC + move
}

// CompositionBias estimates the two-state null model correction for a
// target: the log odds of the target under a mixture of the background
// and the target's own composition, weighted by omega. Non-negative,
// in nats.
func CompositionBias(bg *plan7.Background, s *plan7.DigitalSequence) float64 {
	comp := s.Composition()
	omega := float64(bg.Omega)
	var bias float64
	for _, c := range s.Residues {
		code := int(c)
		if !bg.Alphabet.IsCanonical(code) {
			continue
		}
		odds := float64(comp[code]) / float64(bg.Frequencies[code])
		bias += math.Log((1-omega) + omega*odds)
	}
	if bias < 0 {
		bias = 0
	}
	return bias
}
