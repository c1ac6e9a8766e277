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
	"math"

	"github.com/plan7go/plan7/msa"
	"github.com/plan7go/plan7/plan7"
)

// effectiveNumber computes the effective sequence count before
// relative-entropy adjustment.
func (b *Builder) effectiveNumber(m *msa.DigitalMSA, weights []float64) float64 {
	n := float64(m.Nseq())
	switch b.Options.EffN.Kind {
	case EffNCustom:
		return b.Options.EffN.Value
	case EffNNone:
		return n
	case EffNClust:
		return float64(singleLinkageClusters(m, b.Options.EID))
	case EffNExp:
		// exponential damping of redundancy, bounded by nseq
		e := math.Pow(n, 1/(1+n/b.Options.ESigma))
		if e > n {
			e = n
		}
		if e < 1 {
			e = 1
		}
		return e
	default: // entropy weighting starts from nseq, adjusted later
		return n
	}
}

// entropyScale binary-searches the count scale factor that brings the
// mean match relative entropy down to the target ere. Returns 1 when
// the counts are already at or below the target.
func (b *Builder) entropyScale(counts *plan7.HMM, bg *plan7.Background) float64 {
	re := b.entropyAt(counts, bg, 1)
	if re <= b.Options.Ere {
		return 1
	}
	lo, hi := 0.0, 1.0
	for iter := 0; iter < 32; iter++ {
		mid := (lo + hi) / 2
		if b.entropyAt(counts, bg, mid) > b.Options.Ere {
			hi = mid
		} else {
			lo = mid
		}
	}
	return (lo + hi) / 2
}

// entropyAt evaluates the mean relative entropy of the normalized
// model after scaling the counts by f and applying the prior.
func (b *Builder) entropyAt(counts *plan7.HMM, bg *plan7.Background, f float64) float64 {
	trial := counts.Copy()
	trial.Scale(float32(f))
	b.applyPrior(trial, bg)
	trial.Renormalize()
	return trial.MeanMatchRelativeEntropy(bg)
}
