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
	"fmt"

	"github.com/plan7go/plan7/plan7"
)

// blosum62Order is the residue order the published matrix uses.
const blosum62Order = "ARNDCQEGHILKMFPSTWYV"

// blosum62Raw is the BLOSUM62 substitution matrix in half-bit units,
// rows and columns in blosum62Order.
var blosum62Raw = [20][20]int8{
	{4, -1, -2, -2, 0, -1, -1, 0, -2, -1, -1, -1, -1, -2, -1, 1, 0, -3, -2, 0},
	{-1, 5, 0, -2, -3, 1, 0, -2, 0, -3, -2, 2, -1, -3, -2, -1, -1, -3, -2, -3},
	{-2, 0, 6, 1, -3, 0, 0, 0, 1, -3, -3, 0, -2, -3, -2, 1, 0, -4, -2, -3},
	{-2, -2, 1, 6, -3, 0, 2, -1, -1, -3, -4, -1, -3, -3, -1, 0, -1, -4, -3, -3},
	{0, -3, -3, -3, 9, -3, -4, -3, -3, -1, -1, -3, -1, -2, -3, -1, -1, -2, -2, -1},
	{-1, 1, 0, 0, -3, 5, 2, -2, 0, -3, -2, 1, 0, -3, -1, 0, -1, -2, -1, -2},
	{-1, 0, 0, 2, -4, 2, 5, -2, 0, -3, -3, 1, -2, -3, -1, 0, -1, -3, -2, -2},
	{0, -2, 0, -1, -3, -2, -2, 6, -2, -4, -4, -2, -3, -3, -2, 0, -2, -2, -3, -3},
	{-2, 0, 1, -1, -3, 0, 0, -2, 8, -3, -3, -1, -2, -1, -2, -1, -2, -2, 2, -3},
	{-1, -3, -3, -3, -1, -3, -3, -4, -3, 4, 2, -3, 1, 0, -3, -2, -1, -3, -1, 3},
	{-1, -2, -3, -4, -1, -2, -3, -4, -3, 2, 4, -2, 2, 0, -3, -2, -1, -2, -1, 1},
	{-1, 2, 0, -1, -3, 1, 1, -2, -1, -3, -2, 5, -1, -3, -1, 0, -1, -3, -2, -2},
	{-1, -1, -2, -3, -1, 0, -2, -3, -2, 1, 2, -1, 5, 0, -2, -1, -1, -1, -1, 1},
	{-2, -3, -3, -3, -2, -3, -3, -3, -1, 0, 0, -3, 0, 6, -4, -2, -2, 1, 3, -1},
	{-1, -2, -2, -1, -3, -1, -1, -2, -2, -3, -3, -1, -2, -4, 7, -1, -1, -4, -3, -2},
	{1, -1, 1, 0, -1, 0, 0, 0, -1, -2, -2, 0, -1, -2, -1, 4, 1, -3, -2, -2},
	{0, -1, 0, -1, -1, -1, -1, -2, -2, -1, -1, -1, -1, -2, -1, 1, 5, -2, -2, 0},
	{-3, -3, -4, -4, -2, -2, -3, -2, -2, -3, -2, -3, -1, 1, -4, -3, -2, 11, 2, -3},
	{-2, -2, -2, -3, -2, -1, -2, -3, 2, -1, -1, -2, -1, 3, -3, -2, -2, 2, 7, -1},
	{0, -3, -3, -3, -1, -2, -2, -3, -3, 3, 1, -2, 1, -1, -2, -2, 0, -3, -1, 4},
}

// scoreMatrix is a substitution matrix remapped to an alphabet's
// canonical residue order, in half-bit units.
type scoreMatrix struct {
	name   string
	scores [][]float64
}

var builtinMatrices = map[string]*[20][20]int8{
	"BLOSUM62": &blosum62Raw,
}

// loadScoreMatrix resolves a named substitution matrix for an
// alphabet. Amino acid only.
func loadScoreMatrix(name string, a *plan7.Alphabet) (*scoreMatrix, error) {
	if a.Type() != plan7.AlphabetAmino {
		return nil, fmt.Errorf("%w: substitution matrices are amino acid only", plan7.ErrInvalidParameter)
	}
	raw, ok := builtinMatrices[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown score matrix: %s", plan7.ErrInvalidParameter, name)
	}
	k := a.K()
	sm := &scoreMatrix{name: name, scores: make([][]float64, k)}
	for i := 0; i < k; i++ {
		sm.scores[i] = make([]float64, k)
	}
	for i := 0; i < 20; i++ {
		ci := a.Code(blosum62Order[i])
		for j := 0; j < 20; j++ {
			cj := a.Code(blosum62Order[j])
			sm.scores[ci][cj] = float64(raw[i][j])
		}
	}
	return sm, nil
}

// conditionals converts the matrix into conditional probabilities
// P(b | a) over the background, the implicit probabilistic model of a
// single-sequence query.
func (sm *scoreMatrix) conditionals(bg *plan7.Background, lambda float64) [][]float64 {
	k := len(sm.scores)
	out := make([][]float64, k)
	for a := 0; a < k; a++ {
		out[a] = make([]float64, k)
		var sum float64
		for b := 0; b < k; b++ {
			out[a][b] = float64(bg.Frequencies[b]) * expf(lambda*sm.scores[a][b])
			sum += out[a][b]
		}
		for b := 0; b < k; b++ {
			out[a][b] /= sum
		}
	}
	return out
}
