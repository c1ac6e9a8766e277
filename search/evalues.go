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
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/plan7go/plan7/plan7"
)

// GumbelSurvival returns P(X >= x) of a Gumbel distribution, computed
// stably for small tails.
func GumbelSurvival(x, mu, lambda float64) float64 {
	y := lambda * (x - mu)
	if y > 50 {
		// in the far tail 1 - exp(-exp(-y)) ~ exp(-y)
		return math.Exp(-y)
	}
	return -math.Expm1(-math.Exp(-y))
}

// ExpSurvival returns the exponential tail probability P(X >= x) with
// offset tau and rate lambda, clamped to [0, 1].
func ExpSurvival(x, tau, lambda float64) float64 {
	if x < tau {
		return 1
	}
	return math.Exp(-lambda * (x - tau))
}

// CalibrationOptions parameterize the three score distribution
// simulations: lengths and sample counts for MSV and Viterbi Gumbel
// fits and for the Forward exponential tail fit.
type CalibrationOptions struct {
	EmL, EmN int
	EvL, EvN int
	EfL, EfN int
	Eft      float64

	Seed uint64
}

// DefaultCalibrationOptions are the conventional simulation sizes.
var DefaultCalibrationOptions = CalibrationOptions{
	EmL: 200, EmN: 200,
	EvL: 200, EvN: 200,
	EfL: 100, EfN: 200,
	Eft:  0.04,
	Seed: 42,
}

// fitGumbel estimates (mu, lambda) from a score sample by the method
// of moments.
func fitGumbel(scores []float64) (mu, lambda float64) {
	mean := stat.Mean(scores, nil)
	sd := math.Sqrt(stat.Variance(scores, nil))
	if sd == 0 {
		return mean, 0.693
	}
	lambda = math.Pi / (sd * math.Sqrt(6))
	mu = mean - 0.5772156649/lambda
	return mu, lambda
}

// Calibrate fits the E-value parameters of a model by scoring random
// background sequences through the MSV, Viterbi and Forward kernels.
// The fitted parameters are stored on the model, the profile and the
// optimized profile.
func Calibrate(hmm *plan7.HMM, p *plan7.Profile, om *plan7.OptimizedProfile,
	bg *plan7.Background, opt *CalibrationOptions) error {
	if opt == nil {
		o := DefaultCalibrationOptions
		opt = &o
	}
	rng := plan7.NewRandomness(opt.Seed)
	fm := newFilterMatrix()
	mx := newDPMatrix()

	wbg := bg.Copy()
	wom := om.Copy()
	wp := p.Copy()

	msv := make([]float64, opt.EmN)
	wbg.SetLength(opt.EmL)
	wom.SetLength(opt.EmL)
	for n := 0; n < opt.EmN; n++ {
		s := plan7.SampleSequence(wbg, opt.EmL, rng)
		nats := MSVFilter(wom, s, fm)
		msv[n] = (nats - float64(wbg.NullScore(opt.EmL))) / math.Ln2
	}
	mmu, mlambda := fitGumbel(msv)

	vit := make([]float64, opt.EvN)
	wbg.SetLength(opt.EvL)
	wom.SetLength(opt.EvL)
	for n := 0; n < opt.EvN; n++ {
		s := plan7.SampleSequence(wbg, opt.EvL, rng)
		nats := ViterbiFilter(wom, s, fm)
		vit[n] = (nats - float64(wbg.NullScore(opt.EvL))) / math.Ln2
	}
	vmu, vlambda := fitGumbel(vit)

	fwd := make([]float64, opt.EfN)
	wbg.SetLength(opt.EfL)
	wp.ReconfigureLength(opt.EfL)
	for n := 0; n < opt.EfN; n++ {
		s := plan7.SampleSequence(wbg, opt.EfL, rng)
		nats, err := Forward(wp, s, mx)
		if err != nil {
			return err
		}
		fwd[n] = (nats - float64(wbg.NullScore(opt.EfL))) / math.Ln2
	}
	// exponential tail: anchor tau at the (1 - Eft) quantile and use
	// the canonical lambda = log 2
	sort.Float64s(fwd)
	qi := int(float64(len(fwd)) * (1 - opt.Eft))
	if qi >= len(fwd) {
		qi = len(fwd) - 1
	}
	ftau := fwd[qi]
	const flambda = math.Ln2

	ep := plan7.EvalueParameters{
		MsvMu:         float32(mmu),
		MsvLambda:     float32(mlambda),
		ViterbiMu:     float32(vmu),
		ViterbiLambda: float32(vlambda),
		ForwardTau:    float32(ftau),
		ForwardLambda: float32(flambda),
	}
	ep.SetCalibrated()
	if hmm != nil {
		hmm.EvalueParameters = ep
	}
	p.EvalueParameters = ep
	om.EvalueParameters = ep
	return nil
}
