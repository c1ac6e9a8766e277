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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/xopen"

	"github.com/plan7go/plan7/plan7"
)

// HMMFile iterates over the models of a text format file. It is a
// forward iterator with Rewind; closing is idempotent.
type HMMFile struct {
	path string

	fh      *xopen.Reader
	scanner *bufio.Scanner
	closed  bool
	line    int
	pressed bool
}

// Open opens a model file. Transparently decompresses .gz input.
func Open(path string) (*HMMFile, error) {
	f := &HMMFile{path: path}
	if err := f.open(); err != nil {
		return nil, err
	}

	// a pressed database is detected by its companion index file
	if _, err := os.Stat(pressedPath(path, ExtIndex)); err == nil {
		f.pressed = true
	}
	return f, nil
}

func pressedPath(path, ext string) string {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	if filepath.Ext(path) == "" {
		stem = path
	}
	return stem + ext
}

func (f *HMMFile) open() error {
	fh, err := xopen.Ropen(f.path)
	if err != nil {
		return errors.Wrap(err, f.path)
	}
	f.fh = fh
	f.scanner = bufio.NewScanner(fh)
	f.scanner.Buffer(make([]byte, 1<<20), 1<<20)
	f.line = 0
	return nil
}

// IsPressed reports whether the file has pressed companions.
func (f *HMMFile) IsPressed() bool { return f.pressed }

// Closed reports whether Close has been called.
func (f *HMMFile) Closed() bool { return f.closed }

// Close releases the descriptor. Safe to call more than once.
func (f *HMMFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.fh.Close()
}

// Rewind restarts iteration from the first model.
func (f *HMMFile) Rewind() error {
	if f.closed {
		return ErrClosed
	}
	if err := f.fh.Close(); err != nil {
		return err
	}
	return f.open()
}

func (f *HMMFile) scan() (string, bool) {
	if !f.scanner.Scan() {
		return "", false
	}
	f.line++
	return strings.TrimRight(f.scanner.Text(), "\r\n"), true
}

func (f *HMMFile) errorf(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %s:%d: %s", ErrInvalidFormat, f.path, f.line, msg)
}

// Read parses the next model. Returns nil, io.EOF at the end of the
// file; trailing blank lines end iteration cleanly.
func (f *HMMFile) Read() (*plan7.HMM, error) {
	if f.closed {
		return nil, ErrClosed
	}

	// locate the format tag
	var tag string
	for {
		line, ok := f.scan()
		if !ok {
			if err := f.scanner.Err(); err != nil {
				return nil, errors.Wrap(err, f.path)
			}
			return nil, io.EOF
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		tag = line
		break
	}
	if !strings.HasPrefix(tag, FormatTag) {
		if strings.HasPrefix(tag, "HMMER") {
			return nil, fmt.Errorf("%w: %s: format tag %q", ErrUnsupportedVersion, f.path, strings.Fields(tag)[0])
		}
		return nil, f.errorf("missing format tag, got %q", tag)
	}

	h := &header{}
	if err := f.readHeader(h); err != nil {
		return nil, err
	}
	return f.readBody(h)
}

// header collects the per-model metadata lines.
type header struct {
	name, acc, desc, com string
	leng                 int
	alpha                *plan7.Alphabet
	date                 time.Time
	nseq                 int
	effn                 float64
	cksum                uint64
	hasCksum             bool
	cutoffs              plan7.Cutoffs
	ep                   plan7.EvalueParameters
	nstats               int
	hasMap, hasCons, hasCS bool
}

func (f *HMMFile) readHeader(h *header) error {
	for {
		line, ok := f.scan()
		if !ok {
			return f.errorf("unexpected end of file in header")
		}
		if strings.HasPrefix(line, "HMM ") || strings.HasPrefix(line, "HMM\t") {
			if h.name == "" {
				return f.errorf("model has no NAME line")
			}
			if h.leng < 1 {
				return f.errorf("model has no valid LENG line")
			}
			if h.alpha == nil {
				return f.errorf("model has no ALPH line")
			}
			return nil
		}
		key, value := splitHeaderLine(line)
		switch key {
		case "NAME":
			h.name = value
		case "ACC":
			h.acc = value
		case "DESC":
			h.desc = value
		case "COM":
			h.com = value
		case "LENG":
			n, err := strconv.Atoi(value)
			if err != nil {
				return f.errorf("bad LENG value %q", value)
			}
			h.leng = n
		case "ALPH":
			typ, err := plan7.ParseAlphabetType(value)
			if err != nil {
				return f.errorf("bad ALPH value %q", value)
			}
			h.alpha, _ = plan7.AlphabetFor(typ)
		case "DATE":
			t, err := time.Parse(dateLayout, value)
			if err == nil {
				h.date = t
			}
		case "NSEQ":
			h.nseq, _ = strconv.Atoi(value)
		case "EFFN":
			h.effn, _ = strconv.ParseFloat(value, 64)
		case "CKSUM":
			h.cksum, _ = strconv.ParseUint(value, 10, 32)
			h.hasCksum = true
		case "GA", "TC", "NC":
			fields := strings.Fields(value)
			if len(fields) != 2 {
				return f.errorf("bad %s line %q", key, value)
			}
			s1, err1 := strconv.ParseFloat(strings.TrimSuffix(fields[0], ";"), 32)
			s2, err2 := strconv.ParseFloat(strings.TrimSuffix(fields[1], ";"), 32)
			if err1 != nil || err2 != nil {
				return f.errorf("bad %s values %q", key, value)
			}
			switch key {
			case "GA":
				h.cutoffs.SetGathering(float32(s1), float32(s2))
			case "TC":
				h.cutoffs.SetTrusted(float32(s1), float32(s2))
			case "NC":
				h.cutoffs.SetNoise(float32(s1), float32(s2))
			}
		case "STATS":
			fields := strings.Fields(value)
			if len(fields) != 4 || fields[0] != "LOCAL" {
				return f.errorf("bad STATS line %q", value)
			}
			v1, err1 := strconv.ParseFloat(fields[2], 32)
			v2, err2 := strconv.ParseFloat(fields[3], 32)
			if err1 != nil || err2 != nil {
				return f.errorf("bad STATS values %q", value)
			}
			switch fields[1] {
			case "MSV":
				h.ep.MsvMu, h.ep.MsvLambda = float32(v1), float32(v2)
			case "VITERBI":
				h.ep.ViterbiMu, h.ep.ViterbiLambda = float32(v1), float32(v2)
			case "FORWARD":
				h.ep.ForwardTau, h.ep.ForwardLambda = float32(v1), float32(v2)
			default:
				return f.errorf("unknown STATS kind %q", fields[1])
			}
			h.nstats++
		case "MAP":
			h.hasMap = value == "yes"
		case "CONS":
			h.hasCons = value == "yes"
		case "CS":
			h.hasCS = value == "yes"
		case "RF", "MM":
			// annotations not carried in memory
		default:
			// unknown header lines are tolerated
		}
	}
}

func splitHeaderLine(line string) (string, string) {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) == 1 {
		return fields[0], ""
	}
	return fields[0], trimComment(fields[1])
}

// parseProb parses one negative-natural-log probability field.
func parseProb(s string) (float32, error) {
	if s == "*" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return float32(math.Exp(-v)), nil
}

func (f *HMMFile) readBody(h *header) (*plan7.HMM, error) {
	// transition label line
	if _, ok := f.scan(); !ok {
		return nil, f.errorf("unexpected end of file before transition labels")
	}

	hmm, err := plan7.NewHMM(h.alpha, h.leng)
	if err != nil {
		return nil, f.errorf("%s", err)
	}
	k := h.alpha.K()

	line, ok := f.scan()
	if !ok {
		return nil, f.errorf("unexpected end of file in model body")
	}
	fields := strings.Fields(line)

	// optional COMPO line
	if len(fields) > 0 && fields[0] == "COMPO" {
		if len(fields) != k+1 {
			return nil, f.errorf("COMPO line has %d fields, want %d", len(fields)-1, k)
		}
		comp := make([]float32, k)
		for x := 0; x < k; x++ {
			comp[x], err = parseProb(fields[x+1])
			if err != nil {
				return nil, f.errorf("bad COMPO value %q", fields[x+1])
			}
		}
		hmm.Composition = comp
		line, ok = f.scan()
		if !ok {
			return nil, f.errorf("unexpected end of file after COMPO")
		}
		fields = strings.Fields(line)
	}

	// node 0: insert emissions, then transitions
	if len(fields) != k {
		return nil, f.errorf("node 0 insert line has %d fields, want %d", len(fields), k)
	}
	for x := 0; x < k; x++ {
		hmm.Insert[0][x], err = parseProb(fields[x])
		if err != nil {
			return nil, f.errorf("bad insert value %q", fields[x])
		}
	}
	if err := f.readTransLine(hmm, 0); err != nil {
		return nil, err
	}

	var cons, cs []byte
	var mapAnn []int
	for node := 1; node <= h.leng; node++ {
		line, ok = f.scan()
		if !ok {
			return nil, f.errorf("unexpected end of file at node %d", node)
		}
		fields = strings.Fields(line)
		if len(fields) < k+1 {
			return nil, f.errorf("node %d match line has %d fields, want >= %d", node, len(fields), k+1)
		}
		if idx, err := strconv.Atoi(fields[0]); err != nil || idx != node {
			return nil, f.errorf("node index %q, want %d", fields[0], node)
		}
		for x := 0; x < k; x++ {
			hmm.Match[node][x], err = parseProb(fields[x+1])
			if err != nil {
				return nil, f.errorf("bad match value %q", fields[x+1])
			}
		}
		// annotation columns: MAP CONS RF CS
		rest := fields[k+1:]
		if h.hasMap && len(rest) > 0 && rest[0] != "-" {
			v, err := strconv.Atoi(rest[0])
			if err != nil {
				return nil, f.errorf("bad MAP value %q", rest[0])
			}
			mapAnn = append(mapAnn, v)
		}
		if h.hasCons && len(rest) > 1 {
			cons = append(cons, rest[1][0])
		}
		if h.hasCS && len(rest) > 3 {
			cs = append(cs, rest[3][0])
		}

		line, ok = f.scan()
		if !ok {
			return nil, f.errorf("unexpected end of file at node %d inserts", node)
		}
		fields = strings.Fields(line)
		if len(fields) != k {
			return nil, f.errorf("node %d insert line has %d fields, want %d", node, len(fields), k)
		}
		for x := 0; x < k; x++ {
			hmm.Insert[node][x], err = parseProb(fields[x])
			if err != nil {
				return nil, f.errorf("bad insert value %q", fields[x])
			}
		}
		if err := f.readTransLine(hmm, node); err != nil {
			return nil, err
		}
	}

	line, ok = f.scan()
	if !ok || strings.TrimSpace(line) != "//" {
		return nil, f.errorf("missing // terminator")
	}

	hmm.Name = h.name
	hmm.Accession = h.acc
	hmm.Description = h.desc
	hmm.CommandLine = h.com
	hmm.Date = h.date
	hmm.Nseq = h.nseq
	hmm.NseqEffective = float32(h.effn)
	hmm.Cutoffs = h.cutoffs
	if h.nstats == 3 {
		h.ep.SetCalibrated()
	}
	hmm.EvalueParameters = h.ep
	if h.hasCksum {
		hmm.SetRawChecksum(uint32(h.cksum))
	}
	if h.hasCons && len(cons) == h.leng {
		hmm.Consensus = string(cons)
	}
	if h.hasCS && len(cs) == h.leng {
		hmm.ConsensusStructure = string(cs)
	}
	if h.hasMap && len(mapAnn) == h.leng {
		hmm.MapAnnotation = mapAnn
	}
	return hmm, nil
}

func (f *HMMFile) readTransLine(hmm *plan7.HMM, node int) error {
	line, ok := f.scan()
	if !ok {
		return f.errorf("unexpected end of file at node %d transitions", node)
	}
	fields := strings.Fields(line)
	if len(fields) != plan7.NTransitions {
		return f.errorf("node %d transition line has %d fields, want %d", node, len(fields), plan7.NTransitions)
	}
	var err error
	for t := 0; t < plan7.NTransitions; t++ {
		hmm.Trans[node][t], err = parseProb(fields[t])
		if err != nil {
			return f.errorf("bad transition value %q", fields[t])
		}
	}
	return nil
}

// ReadAll slurps every model of a file.
func ReadAll(path string) ([]*plan7.HMM, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []*plan7.HMM
	for {
		h, err := f.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}
