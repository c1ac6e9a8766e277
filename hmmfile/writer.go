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
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/plan7go/plan7/plan7"
)

// ctime layout of the DATE line.
const dateLayout = "Mon Jan  2 15:04:05 2006"

// prob renders a probability as its negative natural log, with '*'
// for zero.
func prob(p float32) string {
	if p <= 0 {
		return "      *"
	}
	return fmt.Sprintf("%8.5f", -math.Log(float64(p)))
}

// WriteHMM writes a model in the text format.
func WriteHMM(w io.Writer, h *plan7.HMM) error {
	buf := bufio.NewWriter(w)

	fmt.Fprintf(buf, "%s [plan7 %d.%d]\n", FormatTag, MainVersion, MinorVersion)
	fmt.Fprintf(buf, "NAME  %s\n", h.Name)
	if h.Accession != "" {
		fmt.Fprintf(buf, "ACC   %s\n", h.Accession)
	}
	if h.Description != "" {
		fmt.Fprintf(buf, "DESC  %s\n", h.Description)
	}
	fmt.Fprintf(buf, "LENG  %d\n", h.M)
	fmt.Fprintf(buf, "ALPH  %s\n", h.Alphabet.Type())
	fmt.Fprintf(buf, "RF    no\n")
	fmt.Fprintf(buf, "MM    no\n")
	if h.Consensus != "" {
		fmt.Fprintf(buf, "CONS  yes\n")
	} else {
		fmt.Fprintf(buf, "CONS  no\n")
	}
	if h.ConsensusStructure != "" {
		fmt.Fprintf(buf, "CS    yes\n")
	} else {
		fmt.Fprintf(buf, "CS    no\n")
	}
	if h.MapAnnotation != nil {
		fmt.Fprintf(buf, "MAP   yes\n")
	} else {
		fmt.Fprintf(buf, "MAP   no\n")
	}
	if !h.Date.IsZero() {
		fmt.Fprintf(buf, "DATE  %s\n", h.Date.Format(dateLayout))
	}
	if h.CommandLine != "" {
		fmt.Fprintf(buf, "COM   %s\n", h.CommandLine)
	}
	if h.Nseq > 0 {
		fmt.Fprintf(buf, "NSEQ  %d\n", h.Nseq)
	}
	if h.NseqEffective > 0 {
		fmt.Fprintf(buf, "EFFN  %f\n", h.NseqEffective)
	}
	if sum, ok := h.Checksum(); ok {
		fmt.Fprintf(buf, "CKSUM %d\n", sum)
	}
	if ga, ok := h.Cutoffs.Gathering(); ok {
		fmt.Fprintf(buf, "GA    %.2f %.2f\n", ga[0], ga[1])
	}
	if tc, ok := h.Cutoffs.Trusted(); ok {
		fmt.Fprintf(buf, "TC    %.2f %.2f\n", tc[0], tc[1])
	}
	if nc, ok := h.Cutoffs.Noise(); ok {
		fmt.Fprintf(buf, "NC    %.2f %.2f\n", nc[0], nc[1])
	}
	if h.EvalueParameters.Calibrated() {
		ep := h.EvalueParameters
		fmt.Fprintf(buf, "STATS LOCAL MSV      %8.4f %8.5f\n", ep.MsvMu, ep.MsvLambda)
		fmt.Fprintf(buf, "STATS LOCAL VITERBI  %8.4f %8.5f\n", ep.ViterbiMu, ep.ViterbiLambda)
		fmt.Fprintf(buf, "STATS LOCAL FORWARD  %8.4f %8.5f\n", ep.ForwardTau, ep.ForwardLambda)
	}

	// header of the model table
	k := h.Alphabet.K()
	fmt.Fprintf(buf, "HMM     ")
	for x := 0; x < k; x++ {
		fmt.Fprintf(buf, "     %c   ", h.Alphabet.Symbol(x))
	}
	fmt.Fprintln(buf)
	fmt.Fprintf(buf, "        %8s %8s %8s %8s %8s %8s %8s\n",
		"m->m", "m->i", "m->d", "i->m", "i->i", "d->m", "d->d")

	// average composition
	if h.Composition != nil {
		fmt.Fprintf(buf, "  COMPO ")
		for x := 0; x < k; x++ {
			fmt.Fprintf(buf, " %s", prob(h.Composition[x]))
		}
		fmt.Fprintln(buf)
	}

	// node 0: insert emissions and begin transitions
	fmt.Fprintf(buf, "        ")
	for x := 0; x < k; x++ {
		fmt.Fprintf(buf, " %s", prob(h.Insert[0][x]))
	}
	fmt.Fprintln(buf)
	writeTransLine(buf, h, 0)

	for node := 1; node <= h.M; node++ {
		fmt.Fprintf(buf, "%7d ", node)
		for x := 0; x < k; x++ {
			fmt.Fprintf(buf, " %s", prob(h.Match[node][x]))
		}
		// optional annotation columns: MAP CONS RF CS
		if h.MapAnnotation != nil {
			fmt.Fprintf(buf, " %6d", h.MapAnnotation[node-1])
		} else {
			fmt.Fprintf(buf, " %6s", "-")
		}
		if h.Consensus != "" {
			fmt.Fprintf(buf, " %c", h.Consensus[node-1])
		} else {
			fmt.Fprintf(buf, " -")
		}
		fmt.Fprintf(buf, " -")
		if h.ConsensusStructure != "" {
			fmt.Fprintf(buf, " %c", h.ConsensusStructure[node-1])
		} else {
			fmt.Fprintf(buf, " -")
		}
		fmt.Fprintln(buf)

		fmt.Fprintf(buf, "        ")
		for x := 0; x < k; x++ {
			fmt.Fprintf(buf, " %s", prob(h.Insert[node][x]))
		}
		fmt.Fprintln(buf)
		writeTransLine(buf, h, node)
	}

	fmt.Fprintln(buf, "//")
	return buf.Flush()
}

func writeTransLine(buf *bufio.Writer, h *plan7.HMM, node int) {
	fmt.Fprintf(buf, "        ")
	for t := 0; t < plan7.NTransitions; t++ {
		fmt.Fprintf(buf, " %s", prob(h.Trans[node][t]))
	}
	fmt.Fprintln(buf)
}

// WriteHMMs writes several models back to back.
func WriteHMMs(w io.Writer, hmms []*plan7.HMM) error {
	for _, h := range hmms {
		if err := WriteHMM(w, h); err != nil {
			return err
		}
	}
	return nil
}

// trimComment strips trailing whitespace from a header value.
func trimComment(s string) string {
	return strings.TrimSpace(s)
}
