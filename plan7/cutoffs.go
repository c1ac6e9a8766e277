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

// BitCutoffChoice selects one of the model-embedded bit score cutoff
// pairs for thresholding.
type BitCutoffChoice uint8

const (
	CutoffNone BitCutoffChoice = iota
	CutoffGathering
	CutoffTrusted
	CutoffNoise
)

func (c BitCutoffChoice) String() string {
	switch c {
	case CutoffNone:
		return "none"
	case CutoffGathering:
		return "gathering"
	case CutoffTrusted:
		return "trusted"
	case CutoffNoise:
		return "noise"
	}
	return "unknown"
}

// ParseBitCutoffChoice parses a cutoff selector tag.
func ParseBitCutoffChoice(s string) (BitCutoffChoice, bool) {
	switch s {
	case "", "none":
		return CutoffNone, true
	case "gathering", "GA":
		return CutoffGathering, true
	case "trusted", "TC":
		return CutoffTrusted, true
	case "noise", "NC":
		return CutoffNoise, true
	}
	return CutoffNone, false
}

// Cutoffs carries the three optional Pfam-style bit score cutoff pairs.
// Each pair is (sequence cutoff, domain cutoff).
type Cutoffs struct {
	gathering [2]float32
	trusted   [2]float32
	noise     [2]float32

	hasGathering bool
	hasTrusted   bool
	hasNoise     bool
}

// Gathering returns the GA pair if present.
func (c *Cutoffs) Gathering() ([2]float32, bool) { return c.gathering, c.hasGathering }

// Trusted returns the TC pair if present.
func (c *Cutoffs) Trusted() ([2]float32, bool) { return c.trusted, c.hasTrusted }

// Noise returns the NC pair if present.
func (c *Cutoffs) Noise() ([2]float32, bool) { return c.noise, c.hasNoise }

// SetGathering sets the GA pair.
func (c *Cutoffs) SetGathering(seq, dom float32) {
	c.gathering = [2]float32{seq, dom}
	c.hasGathering = true
}

// SetTrusted sets the TC pair.
func (c *Cutoffs) SetTrusted(seq, dom float32) {
	c.trusted = [2]float32{seq, dom}
	c.hasTrusted = true
}

// SetNoise sets the NC pair.
func (c *Cutoffs) SetNoise(seq, dom float32) {
	c.noise = [2]float32{seq, dom}
	c.hasNoise = true
}

// Get returns the pair for a selector if present.
func (c *Cutoffs) Get(choice BitCutoffChoice) ([2]float32, bool) {
	switch choice {
	case CutoffGathering:
		return c.Gathering()
	case CutoffTrusted:
		return c.Trusted()
	case CutoffNoise:
		return c.Noise()
	}
	return [2]float32{}, false
}

// EvalueParameters hold the fitted score distribution parameters of a
// calibrated model: Gumbel (mu, lambda) for the MSV and Viterbi filters
// and an exponential tail (tau, lambda) for Forward scores.
type EvalueParameters struct {
	MsvMu         float32
	MsvLambda     float32
	ViterbiMu     float32
	ViterbiLambda float32
	ForwardTau    float32
	ForwardLambda float32

	calibrated bool
}

// Calibrated reports whether the parameters were fitted rather than left
// at their zero value.
func (p *EvalueParameters) Calibrated() bool { return p.calibrated }

// SetCalibrated marks the parameters as fitted.
func (p *EvalueParameters) SetCalibrated() { p.calibrated = true }

// Offsets are the byte positions of a model within the three companion
// files of a pressed database. -1 means unset.
type Offsets struct {
	Model   int64 // offset in the .h3m file
	Filter  int64 // offset in the .h3f file
	Profile int64 // offset in the .h3p file
}

// NewOffsets returns unset offsets.
func NewOffsets() Offsets {
	return Offsets{Model: -1, Filter: -1, Profile: -1}
}
