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

// ScoreData carries auxiliary per-residue score tables derived from a
// (Profile, OptimizedProfile) pair, used by the composition bias
// correction and the long-target window scorer.
type ScoreData struct {
	Kp int

	// MaxMatchScore[x]: the best match emission score of code x over
	// all nodes, in nats.
	MaxMatchScore []float32

	// AvgMatchScore[x]: the average match emission score of code x
	// over all nodes, in nats. -Inf entries are skipped.
	AvgMatchScore []float32
}

// NewScoreData derives the score tables from a configured profile and
// its optimized form.
func NewScoreData(p *Profile, om *OptimizedProfile) (*ScoreData, error) {
	if !p.Configured() {
		return nil, ErrUnconfigured
	}
	if p.M != om.M {
		return nil, ErrModelSizeMismatch
	}
	kp := p.Alphabet.Kp()
	sd := &ScoreData{
		Kp:            kp,
		MaxMatchScore: make([]float32, kp),
		AvgMatchScore: make([]float32, kp),
	}
	for x := 0; x < kp; x++ {
		max := minusInfinity
		var sum float64
		var n int
		for k := 1; k <= p.M; k++ {
			sc := p.Msc[x][k]
			if sc == minusInfinity {
				continue
			}
			if sc > max {
				max = sc
			}
			sum += float64(sc)
			n++
		}
		sd.MaxMatchScore[x] = max
		if n > 0 {
			sd.AvgMatchScore[x] = float32(sum / float64(n))
		} else {
			sd.AvgMatchScore[x] = minusInfinity
		}
	}
	return sd, nil
}

// Copy returns a deep copy for per-worker use.
func (sd *ScoreData) Copy() *ScoreData {
	c := *sd
	c.MaxMatchScore = append([]float32(nil), sd.MaxMatchScore...)
	c.AvgMatchScore = append([]float32(nil), sd.AvgMatchScore...)
	return &c
}
