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

var negInf = math.Inf(-1)

// logSum returns log(exp(a) + exp(b)) without overflow.
func logSum(a, b float64) float64 {
	if a == negInf {
		return b
	}
	if b == negInf {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// dpMatrix holds the three main-state planes and the special-state
// columns of one dynamic programming pass. Reused across targets; the
// pipeline keeps one per worker.
type dpMatrix struct {
	L, M int

	mx [][]float64 // match, (L+1) x (M+1)
	ix [][]float64 // insert
	dx [][]float64 // delete

	xN []float64
	xB []float64
	xE []float64
	xJ []float64
	xC []float64
}

func newDPMatrix() *dpMatrix { return &dpMatrix{} }

func (m *dpMatrix) resize(L, M int) {
	m.L, m.M = L, M
	need := L + 1
	grow := func(p *[][]float64) {
		for len(*p) < need {
			*p = append(*p, nil)
		}
		for i := 0; i < need; i++ {
			if cap((*p)[i]) < M+1 {
				(*p)[i] = make([]float64, M+1)
			}
			(*p)[i] = (*p)[i][:M+1]
		}
	}
	grow(&m.mx)
	grow(&m.ix)
	grow(&m.dx)
	growX := func(p *[]float64) {
		if cap(*p) < need {
			*p = make([]float64, need)
		}
		*p = (*p)[:need]
	}
	growX(&m.xN)
	growX(&m.xB)
	growX(&m.xE)
	growX(&m.xJ)
	growX(&m.xC)
}

func max3(a, b, c float64) float64 {
	if b > a {
		a = b
	}
	if c > a {
		a = c
	}
	return a
}

// Viterbi computes the optimal-path score of a sequence against a
// configured profile, in nats, filling the matrix for traceback.
func Viterbi(p *plan7.Profile, s *plan7.DigitalSequence, mx *dpMatrix) (float64, error) {
	if !p.Configured() {
		return 0, plan7.ErrUnconfigured
	}
	L, M := s.Len(), p.M
	mx.resize(L, M)

	for k := 0; k <= M; k++ {
		mx.mx[0][k] = negInf
		mx.ix[0][k] = negInf
		mx.dx[0][k] = negInf
	}
	mx.xN[0] = 0
	mx.xB[0] = float64(p.Xsc[plan7.XTN][plan7.XMove])
	mx.xE[0], mx.xJ[0], mx.xC[0] = negInf, negInf, negInf

	for i := 1; i <= L; i++ {
		x := s.At(i - 1)
		cur, prv := mx.mx[i], mx.mx[i-1]
		icur, iprv := mx.ix[i], mx.ix[i-1]
		dcur := mx.dx[i]
		dprv := mx.dx[i-1]
		cur[0], icur[0], dcur[0] = negInf, negInf, negInf

		xE := negInf
		for k := 1; k <= M; k++ {
			msc := float64(p.Msc[x][k])
			mv := max3(
				prv[k-1]+float64(p.Tsc[k-1][plan7.TMM]),
				iprv[k-1]+float64(p.Tsc[k-1][plan7.TIM]),
				dprv[k-1]+float64(p.Tsc[k-1][plan7.TDM]),
			)
			if e := mx.xB[i-1] + float64(p.Bsc[k]); e > mv {
				mv = e
			}
			cur[k] = msc + mv

			// insert states emit at background odds, score 0
			iv := prv[k] + float64(p.Tsc[k][plan7.TMI])
			if v := iprv[k] + float64(p.Tsc[k][plan7.TII]); v > iv {
				iv = v
			}
			icur[k] = iv

			dv := cur[k-1] + float64(p.Tsc[k-1][plan7.TMD])
			if v := dcur[k-1] + float64(p.Tsc[k-1][plan7.TDD]); v > dv {
				dv = v
			}
			dcur[k] = dv

			if v := cur[k] + float64(p.Esc[k]); v > xE {
				xE = v
			}
			if v := dcur[k] + float64(p.Esc[k]); v > xE {
				xE = v
			}
		}
		mx.xE[i] = xE
		mx.xJ[i] = math.Max(
			mx.xJ[i-1]+float64(p.Xsc[plan7.XTJ][plan7.XLoop]),
			xE+float64(p.Xsc[plan7.XTE][plan7.XLoop]))
		mx.xC[i] = math.Max(
			mx.xC[i-1]+float64(p.Xsc[plan7.XTC][plan7.XLoop]),
			xE+float64(p.Xsc[plan7.XTE][plan7.XMove]))
		mx.xN[i] = mx.xN[i-1] + float64(p.Xsc[plan7.XTN][plan7.XLoop])
		mx.xB[i] = math.Max(
			mx.xN[i]+float64(p.Xsc[plan7.XTN][plan7.XMove]),
			mx.xJ[i]+float64(p.Xsc[plan7.XTJ][plan7.XMove]))
	}

	return mx.xC[L] + float64(p.Xsc[plan7.XTC][plan7.XMove]), nil
}

// ViterbiTrace recovers the optimal state path from a filled Viterbi
// matrix.
func ViterbiTrace(p *plan7.Profile, s *plan7.DigitalSequence, mx *dpMatrix) (*plan7.Trace, error) {
	L, M := s.Len(), p.M
	tr := plan7.NewTrace(M, L)
	const eps = 1e-6
	near := func(a, b float64) bool {
		if a == negInf && b == negInf {
			return true
		}
		return math.Abs(a-b) <= eps*(1+math.Abs(a))
	}

	tr.Append(plan7.TraceT, 0, 0)
	tr.Append(plan7.TraceC, 0, 0)

	state := plan7.TraceC
	i := L
	k := 0
	for state != plan7.TraceS {
		switch state {
		case plan7.TraceC:
			if i > 0 && near(mx.xC[i], mx.xC[i-1]+float64(p.Xsc[plan7.XTC][plan7.XLoop])) {
				tr.Append(plan7.TraceC, 0, i)
				i--
			} else {
				state = plan7.TraceE
			}
		case plan7.TraceE:
			tr.Append(plan7.TraceE, 0, 0)
			// find the exit cell
			found := false
			for kk := M; kk >= 1; kk-- {
				if near(mx.xE[i], mx.mx[i][kk]+float64(p.Esc[kk])) {
					k = kk
					state = plan7.TraceM
					found = true
					break
				}
				if near(mx.xE[i], mx.dx[i][kk]+float64(p.Esc[kk])) {
					k = kk
					state = plan7.TraceD
					found = true
					break
				}
			}
			if !found {
				return nil, plan7.ErrInvalidParameter
			}
		case plan7.TraceM:
			tr.Append(plan7.TraceM, k, i)
			x := s.At(i - 1)
			rest := mx.mx[i][k] - float64(p.Msc[x][k])
			switch {
			case near(rest, mx.xB[i-1]+float64(p.Bsc[k])):
				state = plan7.TraceB
			case k > 1 && near(rest, mx.mx[i-1][k-1]+float64(p.Tsc[k-1][plan7.TMM])):
				state = plan7.TraceM
				k--
			case k > 1 && near(rest, mx.ix[i-1][k-1]+float64(p.Tsc[k-1][plan7.TIM])):
				state = plan7.TraceI
				k--
			case k > 1 && near(rest, mx.dx[i-1][k-1]+float64(p.Tsc[k-1][plan7.TDM])):
				state = plan7.TraceD
				k--
			default:
				state = plan7.TraceB
			}
			i--
		case plan7.TraceI:
			tr.Append(plan7.TraceI, k, i)
			if near(mx.ix[i][k], mx.mx[i-1][k]+float64(p.Tsc[k][plan7.TMI])) {
				state = plan7.TraceM
			} else {
				state = plan7.TraceI
			}
			i--
		case plan7.TraceD:
			tr.Append(plan7.TraceD, k, 0)
			if k > 1 && near(mx.dx[i][k], mx.mx[i][k-1]+float64(p.Tsc[k-1][plan7.TMD])) {
				state = plan7.TraceM
				k--
			} else if k > 1 {
				state = plan7.TraceD
				k--
			} else {
				state = plan7.TraceB
			}
		case plan7.TraceB:
			tr.Append(plan7.TraceB, 0, 0)
			if near(mx.xB[i], mx.xN[i]+float64(p.Xsc[plan7.XTN][plan7.XMove])) {
				state = plan7.TraceN
			} else {
				state = plan7.TraceJ
			}
		case plan7.TraceJ:
			if i > 0 && near(mx.xJ[i], mx.xJ[i-1]+float64(p.Xsc[plan7.XTJ][plan7.XLoop])) {
				tr.Append(plan7.TraceJ, 0, i)
				i--
			} else {
				state = plan7.TraceE
			}
		case plan7.TraceN:
			if i > 0 {
				tr.Append(plan7.TraceN, 0, i)
				i--
			} else {
				tr.Append(plan7.TraceN, 0, 0)
				tr.Append(plan7.TraceS, 0, 0)
				state = plan7.TraceS
			}
		}
	}
	tr.Reverse()
	return tr, nil
}

// Forward computes the full Forward score of a sequence against a
// configured profile, in nats, filling the matrix for decoding.
func Forward(p *plan7.Profile, s *plan7.DigitalSequence, mx *dpMatrix) (float64, error) {
	if !p.Configured() {
		return 0, plan7.ErrUnconfigured
	}
	L, M := s.Len(), p.M
	mx.resize(L, M)

	for k := 0; k <= M; k++ {
		mx.mx[0][k] = negInf
		mx.ix[0][k] = negInf
		mx.dx[0][k] = negInf
	}
	mx.xN[0] = 0
	mx.xB[0] = float64(p.Xsc[plan7.XTN][plan7.XMove])
	mx.xE[0], mx.xJ[0], mx.xC[0] = negInf, negInf, negInf

	for i := 1; i <= L; i++ {
		x := s.At(i - 1)
		cur, prv := mx.mx[i], mx.mx[i-1]
		icur, iprv := mx.ix[i], mx.ix[i-1]
		dcur, dprv := mx.dx[i], mx.dx[i-1]
		cur[0], icur[0], dcur[0] = negInf, negInf, negInf

		xE := negInf
		for k := 1; k <= M; k++ {
			msc := float64(p.Msc[x][k])
			mv := logSum(
				logSum(
					prv[k-1]+float64(p.Tsc[k-1][plan7.TMM]),
					iprv[k-1]+float64(p.Tsc[k-1][plan7.TIM])),
				logSum(
					dprv[k-1]+float64(p.Tsc[k-1][plan7.TDM]),
					mx.xB[i-1]+float64(p.Bsc[k])))
			cur[k] = msc + mv

			icur[k] = logSum(
				prv[k]+float64(p.Tsc[k][plan7.TMI]),
				iprv[k]+float64(p.Tsc[k][plan7.TII]))

			dcur[k] = logSum(
				cur[k-1]+float64(p.Tsc[k-1][plan7.TMD]),
				dcur[k-1]+float64(p.Tsc[k-1][plan7.TDD]))

			xE = logSum(xE, logSum(
				cur[k]+float64(p.Esc[k]),
				dcur[k]+float64(p.Esc[k])))
		}
		mx.xE[i] = xE
		mx.xJ[i] = logSum(
			mx.xJ[i-1]+float64(p.Xsc[plan7.XTJ][plan7.XLoop]),
			xE+float64(p.Xsc[plan7.XTE][plan7.XLoop]))
		mx.xC[i] = logSum(
			mx.xC[i-1]+float64(p.Xsc[plan7.XTC][plan7.XLoop]),
			xE+float64(p.Xsc[plan7.XTE][plan7.XMove]))
		mx.xN[i] = mx.xN[i-1] + float64(p.Xsc[plan7.XTN][plan7.XLoop])
		mx.xB[i] = logSum(
			mx.xN[i]+float64(p.Xsc[plan7.XTN][plan7.XMove]),
			mx.xJ[i]+float64(p.Xsc[plan7.XTJ][plan7.XMove]))
	}

	return mx.xC[L] + float64(p.Xsc[plan7.XTC][plan7.XMove]), nil
}

// Backward fills the Backward matrix and returns the Backward score,
// which matches the Forward score up to rounding.
func Backward(p *plan7.Profile, s *plan7.DigitalSequence, mx *dpMatrix) (float64, error) {
	if !p.Configured() {
		return 0, plan7.ErrUnconfigured
	}
	L, M := s.Len(), p.M
	mx.resize(L, M)

	mx.xC[L] = float64(p.Xsc[plan7.XTC][plan7.XMove])
	mx.xJ[L] = negInf
	mx.xN[L] = negInf
	mx.xB[L] = negInf
	mx.xE[L] = logSum(
		mx.xC[L]+float64(p.Xsc[plan7.XTE][plan7.XMove]),
		negInf)
	for k := M; k >= 1; k-- {
		mx.mx[L][k] = mx.xE[L] + float64(p.Esc[k])
		mx.dx[L][k] = mx.xE[L] + float64(p.Esc[k])
		mx.ix[L][k] = negInf
	}
	for k := M - 1; k >= 1; k-- {
		mx.dx[L][k] = logSum(mx.dx[L][k], mx.dx[L][k+1]+float64(p.Tsc[k][plan7.TDD]))
		mx.mx[L][k] = logSum(mx.mx[L][k], mx.dx[L][k+1]+float64(p.Tsc[k][plan7.TMD]))
	}
	mx.mx[L][0], mx.ix[L][0], mx.dx[L][0] = negInf, negInf, negInf

	for i := L - 1; i >= 0; i-- {
		x := s.At(i) // residue i+1, consumed on transitions out of row i
		mx.xC[i] = mx.xC[i+1] + float64(p.Xsc[plan7.XTC][plan7.XLoop])
		mx.xJ[i] = negInf
		mx.xB[i] = negInf

		// B -> Mk entries consume residue i+1
		for k := 1; k <= M; k++ {
			v := mx.mx[i+1][k] + float64(p.Bsc[k]) + float64(p.Msc[x][k])
			mx.xB[i] = logSum(mx.xB[i], v)
		}
		mx.xJ[i] = logSum(
			mx.xJ[i+1]+float64(p.Xsc[plan7.XTJ][plan7.XLoop]),
			mx.xB[i]+float64(p.Xsc[plan7.XTJ][plan7.XMove]))
		mx.xE[i] = logSum(
			mx.xC[i]+float64(p.Xsc[plan7.XTE][plan7.XMove]),
			mx.xJ[i]+float64(p.Xsc[plan7.XTE][plan7.XLoop]))
		mx.xN[i] = logSum(
			mx.xN[i+1]+float64(p.Xsc[plan7.XTN][plan7.XLoop]),
			mx.xB[i]+float64(p.Xsc[plan7.XTN][plan7.XMove]))

		for k := M; k >= 1; k-- {
			mv := mx.xE[i] + float64(p.Esc[k])
			if k < M {
				mv = logSum(mv, mx.mx[i+1][k+1]+float64(p.Tsc[k][plan7.TMM])+float64(p.Msc[x][k+1]))
				mv = logSum(mv, mx.dx[i][k+1]+float64(p.Tsc[k][plan7.TMD]))
			}
			mv = logSum(mv, mx.ix[i+1][k]+float64(p.Tsc[k][plan7.TMI]))
			mx.mx[i][k] = mv

			iv := mx.ix[i+1][k] + float64(p.Tsc[k][plan7.TII])
			if k < M {
				iv = logSum(iv, mx.mx[i+1][k+1]+float64(p.Tsc[k][plan7.TIM])+float64(p.Msc[x][k+1]))
			}
			mx.ix[i][k] = iv

			dv := mx.xE[i] + float64(p.Esc[k])
			if k < M {
				dv = logSum(dv, mx.mx[i+1][k+1]+float64(p.Tsc[k][plan7.TDM])+float64(p.Msc[x][k+1]))
				dv = logSum(dv, mx.dx[i][k+1]+float64(p.Tsc[k][plan7.TDD]))
			}
			mx.dx[i][k] = dv
		}
		mx.mx[i][0], mx.ix[i][0], mx.dx[i][0] = negInf, negInf, negInf
	}

	return mx.xN[0], nil
}

// PosteriorHomology computes, for every target position i (1-based),
// the posterior probability that the residue was emitted by a model
// match or insert state, from filled Forward and Backward matrices and
// the total Forward score.
func PosteriorHomology(fwd, bck *dpMatrix, total float64) []float64 {
	L, M := fwd.L, fwd.M
	pp := make([]float64, L+1)
	for i := 1; i <= L; i++ {
		acc := negInf
		for k := 1; k <= M; k++ {
			acc = logSum(acc, fwd.mx[i][k]+bck.mx[i][k])
			acc = logSum(acc, fwd.ix[i][k]+bck.ix[i][k])
		}
		v := math.Exp(acc - total)
		if v > 1 {
			v = 1
		}
		pp[i] = v
	}
	return pp
}
