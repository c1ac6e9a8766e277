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
)

// Vector lane widths of the striped layouts. 16 byte lanes for the 8-bit
// filters, 8 short lanes for the 16-bit filter.
const (
	VecWidth8  = 16
	VecWidth16 = 8
)

// Quantization constants. 8-bit scores are stored in 1/3-bit units
// above the running-score base, 16-bit scores in 1/500-nat units.
const (
	Scale8  = 3.0 / math.Ln2
	Scale16 = 500.0
	Base8   = 190
)

// OptimizedProfile is the striped, integer-quantized form of a Profile,
// consumed by the vectorized filter stages.
//
// The match score matrices are striped: the score for node k lives in
// segment (k-1) mod Q, lane (k-1) / Q, so that parallel lanes each hold
// a different model position modulo the vector width.
type OptimizedProfile struct {
	M int
	L int

	Alphabet *Alphabet
	Local    bool
	Multihit bool

	// Q8 and Q16 are the segment counts of the two striped layouts.
	Q8  int
	Q16 int

	// Rbv[x]: striped byte-quantized match costs for the MSV filter,
	// Q8*16 bytes per residue code. Sbv[x] is the SSV variant written
	// into the .h3f file of a pressed database.
	Rbv [][]uint8
	Sbv [][]uint8

	// Rwv[x]: striped 16-bit match scores for the Viterbi filter.
	// Twv: 16-bit transition scores, [M+1][7].
	Rwv [][]int16
	Twv [][]int16

	// Scalars rescaling 8-bit filter scores back to nats.
	TBM  uint8 // B->M entry cost
	TEC  uint8 // E->C move cost
	TJB  uint8 // length-dependent J/N/B cost
	Base uint8
	Bias uint8

	// ncj holds the N/C/J move score for the current L, in nats.
	ncjMove float32
	ncjLoop float32

	Name        string
	Accession   string
	Description string
	Consensus   string

	Offsets          Offsets
	EvalueParameters EvalueParameters
	Cutoffs          Cutoffs

	nj float64
}

// stripedIndex returns the position of node k (1-based) in a striped
// row of Q segments and w lanes.
func stripedIndex(k, q, w int) int {
	return ((k - 1) % q * w) + (k-1)/q
}

// NewOptimizedProfile allocates an empty optimized profile.
func NewOptimizedProfile(a *Alphabet, m int) *OptimizedProfile {
	om := &OptimizedProfile{
		M:        m,
		Alphabet: a,
		Q8:       (m + VecWidth8 - 1) / VecWidth8,
		Q16:      (m + VecWidth16 - 1) / VecWidth16,
		Offsets:  NewOffsets(),
	}
	kp := a.Kp()
	om.Rbv = make([][]uint8, kp)
	om.Sbv = make([][]uint8, kp)
	om.Rwv = make([][]int16, kp)
	for x := 0; x < kp; x++ {
		om.Rbv[x] = make([]uint8, om.Q8*VecWidth8)
		om.Sbv[x] = make([]uint8, om.Q8*VecWidth8)
		om.Rwv[x] = make([]int16, om.Q16*VecWidth16)
	}
	om.Twv = make([][]int16, m+1)
	for k := range om.Twv {
		om.Twv[k] = make([]int16, NTransitions)
	}
	return om
}

func clampU8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func quant16(sc float32) int16 {
	if math.IsInf(float64(sc), -1) {
		return math.MinInt16 / 2
	}
	v := math.Round(float64(sc) * Scale16)
	if v < math.MinInt16/2 {
		v = math.MinInt16 / 2
	}
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	return int16(v)
}

// ConvertProfile builds the optimized form of a configured profile.
// The conversion is deterministic.
func ConvertProfile(p *Profile) (*OptimizedProfile, error) {
	if !p.Configured() {
		return nil, ErrUnconfigured
	}
	om := NewOptimizedProfile(p.Alphabet, p.M)
	om.Local = p.Local
	om.Multihit = p.Multihit
	om.Name = p.Name
	om.Accession = p.Accession
	om.Description = p.Description
	om.Consensus = p.Consensus
	om.EvalueParameters = p.EvalueParameters
	om.Cutoffs = p.Cutoffs
	om.nj = p.nj

	// The byte bias is the magnitude of the most negative match score,
	// so that stored costs stay non-negative.
	var worst float64
	for x := 0; x < p.Alphabet.Kp(); x++ {
		for k := 1; k <= p.M; k++ {
			sc := float64(p.Msc[x][k])
			if math.IsInf(sc, -1) {
				continue
			}
			if -sc > worst {
				worst = -sc
			}
		}
	}
	om.Bias = clampU8(Scale8 * worst)
	om.Base = Base8

	kp := p.Alphabet.Kp()
	for x := 0; x < kp; x++ {
		for k := 1; k <= p.M; k++ {
			pos8 := stripedIndex(k, om.Q8, VecWidth8)
			sc := float64(p.Msc[x][k])
			if math.IsInf(sc, -1) {
				om.Rbv[x][pos8] = 255
			} else {
				// stored cost: bias minus quantized score
				om.Rbv[x][pos8] = clampU8(float64(om.Bias) - Scale8*sc)
			}
			om.Sbv[x][pos8] = om.Rbv[x][pos8]

			pos16 := stripedIndex(k, om.Q16, VecWidth16)
			om.Rwv[x][pos16] = quant16(p.Msc[x][k])
		}
	}

	for k := 0; k <= p.M; k++ {
		for t := 0; t < NTransitions; t++ {
			om.Twv[k][t] = quant16(p.Tsc[k][t])
		}
	}

	// MSV filter treats the model as a single ungapped block: entry
	// cost log 2/(M(M+1)), exit cost log 1/2.
	om.TBM = clampU8(Scale8 * -math.Log(2.0/(float64(p.M)*float64(p.M+1))))
	om.TEC = clampU8(Scale8 * -math.Log(0.5))
	om.SetLength(p.L)
	return om, nil
}

// SetLength recomputes the length-dependent scalars for a target of L
// residues. Workers holding a shared optimized profile must copy it
// first; SetLength mutates.
func (om *OptimizedProfile) SetLength(L int) {
	om.L = L
	pmove := (2 + om.nj) / (float64(L) + 2 + om.nj)
	ploop := 1 - pmove
	om.ncjMove = logf32(pmove)
	om.ncjLoop = logf32(ploop)
	om.TJB = clampU8(Scale8 * -math.Log(pmove))
}

// NCJMove returns the N/C/J move score for the configured length, nats.
func (om *OptimizedProfile) NCJMove() float32 { return om.ncjMove }

// NCJLoop returns the N/C/J loop score for the configured length, nats.
func (om *OptimizedProfile) NCJLoop() float32 { return om.ncjLoop }

// MatchCost8 returns the stored 8-bit cost of code x at node k.
func (om *OptimizedProfile) MatchCost8(x, k int) uint8 {
	return om.Rbv[x][stripedIndex(k, om.Q8, VecWidth8)]
}

// MatchScore8 reconstructs the nat-valued match score of code x at
// node k from the 8-bit representation.
func (om *OptimizedProfile) MatchScore8(x, k int) float32 {
	c := om.Rbv[x][stripedIndex(k, om.Q8, VecWidth8)]
	if c == 255 {
		return minusInfinity
	}
	return float32((float64(om.Bias) - float64(c)) / Scale8)
}

// MatchScore16 reconstructs the nat-valued match score of code x at
// node k from the 16-bit representation.
func (om *OptimizedProfile) MatchScore16(x, k int) float32 {
	return float32(om.Rwv[x][stripedIndex(k, om.Q16, VecWidth16)]) / Scale16
}

// TransScore16 reconstructs the nat-valued transition score t at node k.
func (om *OptimizedProfile) TransScore16(k, t int) float32 {
	v := om.Twv[k][t]
	if v <= math.MinInt16/2 {
		return minusInfinity
	}
	return float32(v) / Scale16
}

// ToProfile reconstructs a generic profile from the 16-bit quantized
// scores, within the documented quantization error. Used when scanning
// a pressed database where only the optimized form was loaded.
func (om *OptimizedProfile) ToProfile() *Profile {
	p := NewProfile(om.Alphabet, om.M)
	for x := 0; x < om.Alphabet.Kp(); x++ {
		p.Msc[x][0] = minusInfinity
		for k := 1; k <= om.M; k++ {
			p.Msc[x][k] = om.MatchScore16(x, k)
		}
	}
	for k := 0; k <= om.M; k++ {
		for t := 0; t < NTransitions; t++ {
			p.Tsc[k][t] = om.TransScore16(k, t)
		}
	}
	if om.Local {
		z := float64(om.M) * float64(om.M+1) / 2
		for k := 1; k <= om.M; k++ {
			p.Bsc[k] = logf32(float64(om.M-k+1) / z)
			p.Esc[k] = 0
		}
	} else {
		for k := 1; k <= om.M; k++ {
			p.Bsc[k] = minusInfinity
			p.Esc[k] = minusInfinity
		}
		p.Bsc[1] = 0
		p.Esc[om.M] = 0
	}
	p.Bsc[0] = minusInfinity
	p.Esc[0] = minusInfinity
	if om.Multihit {
		p.Xsc[XTE][XLoop] = logf32(0.5)
		p.Xsc[XTE][XMove] = logf32(0.5)
		p.nj = 1
	} else {
		p.Xsc[XTE][XLoop] = minusInfinity
		p.Xsc[XTE][XMove] = 0
		p.nj = 0
	}
	p.Local = om.Local
	p.Multihit = om.Multihit
	p.Name = om.Name
	p.Accession = om.Accession
	p.Description = om.Description
	p.Consensus = om.Consensus
	p.EvalueParameters = om.EvalueParameters
	p.Cutoffs = om.Cutoffs
	p.configured = true
	p.ReconfigureLength(om.L)
	return p
}

// Copy returns a deep copy; the Pipeline caches length-dependent state
// on the optimized profile, so each worker holds its own copy.
func (om *OptimizedProfile) Copy() *OptimizedProfile {
	c := *om
	c.Rbv = make([][]uint8, len(om.Rbv))
	c.Sbv = make([][]uint8, len(om.Sbv))
	c.Rwv = make([][]int16, len(om.Rwv))
	for x := range om.Rbv {
		c.Rbv[x] = append([]uint8(nil), om.Rbv[x]...)
		c.Sbv[x] = append([]uint8(nil), om.Sbv[x]...)
		c.Rwv[x] = append([]int16(nil), om.Rwv[x]...)
	}
	c.Twv = make([][]int16, len(om.Twv))
	for k := range om.Twv {
		c.Twv[k] = append([]int16(nil), om.Twv[k]...)
	}
	return &c
}
