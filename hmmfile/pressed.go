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
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/plan7go/plan7/plan7"
)

// Pressed database layout.
//
// .h3m, binary models:
//
//	Magic number, 4 bytes, "p7mf".
//	Main and minor versions, 2 bytes.
//	Blank, 2 bytes.
//	Then one binary model per record.
//
// .h3f, SSV filter parts:
//
//	Magic number, 4 bytes, "p7ff".
//	Main and minor versions, 2 bytes.
//	Blank, 2 bytes.
//	Per record: M (4), Q8 (4), bias/tbm/tec/base (4),
//	then Kp rows of Q8*16 bytes of the striped sbv matrix.
//
// .h3i, index:
//
//	Magic number, 4 bytes, "p7if".
//	Main and minor versions, 2 bytes.
//	Blank, 2 bytes.
//	Number of models, 8 bytes.
//	Per record: name (len-prefixed), M (4),
//	model/filter/profile offsets (3 x 8).
//
// .h3p, full profiles, same header scheme with magic "p7pf".

func writeFileHeader(w io.Writer, magic [4]byte) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	_, err := w.Write([]byte{MainVersion, MinorVersion, 0, 0})
	return err
}

func readFileHeader(r io.Reader, magic [4]byte) error {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return ErrCorruptFile
	}
	var got [4]byte
	copy(got[:], buf[:4])
	if err := checkMagic(got, magic); err != nil {
		return err
	}
	if buf[4] != MainVersion {
		return ErrUnsupportedVersion
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, be, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, be, &n); err != nil {
		return "", err
	}
	if n > 1<<20 {
		return "", ErrCorruptFile
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeF32s(w io.Writer, v []float32) error {
	return binary.Write(w, be, v)
}

func readF32s(r io.Reader, v []float32) error {
	return binary.Read(r, be, v)
}

// model flag bits of the binary record.
const (
	flagHasChecksum = 1 << iota
	flagHasComposition
	flagHasConsensus
	flagHasCS
	flagHasMap
	flagCalibrated
	flagHasGA
	flagHasTC
	flagHasNC
)

// writeBinaryHMM writes one model record.
func writeBinaryHMM(w io.Writer, h *plan7.HMM) error {
	var flags uint32
	sum, hasSum := h.Checksum()
	if hasSum {
		flags |= flagHasChecksum
	}
	if h.Composition != nil {
		flags |= flagHasComposition
	}
	if h.Consensus != "" {
		flags |= flagHasConsensus
	}
	if h.ConsensusStructure != "" {
		flags |= flagHasCS
	}
	if h.MapAnnotation != nil {
		flags |= flagHasMap
	}
	if h.EvalueParameters.Calibrated() {
		flags |= flagCalibrated
	}
	if _, ok := h.Cutoffs.Gathering(); ok {
		flags |= flagHasGA
	}
	if _, ok := h.Cutoffs.Trusted(); ok {
		flags |= flagHasTC
	}
	if _, ok := h.Cutoffs.Noise(); ok {
		flags |= flagHasNC
	}

	if err := binary.Write(w, be, uint8(h.Alphabet.Type())); err != nil {
		return err
	}
	if err := binary.Write(w, be, uint32(h.M)); err != nil {
		return err
	}
	if err := binary.Write(w, be, flags); err != nil {
		return err
	}
	for i := 0; i <= h.M; i++ {
		if err := writeF32s(w, h.Match[i]); err != nil {
			return err
		}
		if err := writeF32s(w, h.Insert[i]); err != nil {
			return err
		}
		if err := writeF32s(w, h.Trans[i]); err != nil {
			return err
		}
	}
	for _, s := range []string{h.Name, h.Accession, h.Description, h.CommandLine} {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	if err := binary.Write(w, be, uint32(h.Nseq)); err != nil {
		return err
	}
	if err := binary.Write(w, be, h.NseqEffective); err != nil {
		return err
	}
	if hasSum {
		if err := binary.Write(w, be, sum); err != nil {
			return err
		}
	}
	if h.Composition != nil {
		if err := writeF32s(w, h.Composition); err != nil {
			return err
		}
	}
	if h.Consensus != "" {
		if err := writeString(w, h.Consensus); err != nil {
			return err
		}
	}
	if h.ConsensusStructure != "" {
		if err := writeString(w, h.ConsensusStructure); err != nil {
			return err
		}
	}
	if h.MapAnnotation != nil {
		ann := make([]uint32, len(h.MapAnnotation))
		for i, v := range h.MapAnnotation {
			ann[i] = uint32(v)
		}
		if err := binary.Write(w, be, ann); err != nil {
			return err
		}
	}
	if h.EvalueParameters.Calibrated() {
		ep := h.EvalueParameters
		for _, v := range []float32{ep.MsvMu, ep.MsvLambda, ep.ViterbiMu, ep.ViterbiLambda, ep.ForwardTau, ep.ForwardLambda} {
			if err := binary.Write(w, be, v); err != nil {
				return err
			}
		}
	}
	for _, pair := range []struct {
		get func() ([2]float32, bool)
	}{
		{h.Cutoffs.Gathering},
		{h.Cutoffs.Trusted},
		{h.Cutoffs.Noise},
	} {
		if v, ok := pair.get(); ok {
			if err := binary.Write(w, be, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// readBinaryHMM reads one model record.
func readBinaryHMM(r io.Reader) (*plan7.HMM, error) {
	var alphaType uint8
	if err := binary.Read(r, be, &alphaType); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, ErrCorruptFile
	}
	alpha, err := plan7.AlphabetFor(plan7.AlphabetType(alphaType))
	if err != nil {
		return nil, ErrCorruptFile
	}
	var m, flags uint32
	if err := binary.Read(r, be, &m); err != nil {
		return nil, ErrCorruptFile
	}
	if err := binary.Read(r, be, &flags); err != nil {
		return nil, ErrCorruptFile
	}
	if m < 1 || m > 1<<20 {
		return nil, ErrCorruptFile
	}
	h, err := plan7.NewHMM(alpha, int(m))
	if err != nil {
		return nil, ErrCorruptFile
	}
	for i := 0; i <= h.M; i++ {
		if err := readF32s(r, h.Match[i]); err != nil {
			return nil, ErrCorruptFile
		}
		if err := readF32s(r, h.Insert[i]); err != nil {
			return nil, ErrCorruptFile
		}
		if err := readF32s(r, h.Trans[i]); err != nil {
			return nil, ErrCorruptFile
		}
	}
	if h.Name, err = readString(r); err != nil {
		return nil, ErrCorruptFile
	}
	if h.Accession, err = readString(r); err != nil {
		return nil, ErrCorruptFile
	}
	if h.Description, err = readString(r); err != nil {
		return nil, ErrCorruptFile
	}
	if h.CommandLine, err = readString(r); err != nil {
		return nil, ErrCorruptFile
	}
	var nseq uint32
	if err := binary.Read(r, be, &nseq); err != nil {
		return nil, ErrCorruptFile
	}
	h.Nseq = int(nseq)
	if err := binary.Read(r, be, &h.NseqEffective); err != nil {
		return nil, ErrCorruptFile
	}
	if flags&flagHasChecksum != 0 {
		var sum uint32
		if err := binary.Read(r, be, &sum); err != nil {
			return nil, ErrCorruptFile
		}
		h.SetRawChecksum(sum)
	}
	if flags&flagHasComposition != 0 {
		h.Composition = make([]float32, alpha.K())
		if err := readF32s(r, h.Composition); err != nil {
			return nil, ErrCorruptFile
		}
	}
	if flags&flagHasConsensus != 0 {
		if h.Consensus, err = readString(r); err != nil {
			return nil, ErrCorruptFile
		}
	}
	if flags&flagHasCS != 0 {
		if h.ConsensusStructure, err = readString(r); err != nil {
			return nil, ErrCorruptFile
		}
	}
	if flags&flagHasMap != 0 {
		ann := make([]uint32, h.M)
		if err := binary.Read(r, be, ann); err != nil {
			return nil, ErrCorruptFile
		}
		h.MapAnnotation = make([]int, h.M)
		for i, v := range ann {
			h.MapAnnotation[i] = int(v)
		}
	}
	if flags&flagCalibrated != 0 {
		var v [6]float32
		if err := binary.Read(r, be, &v); err != nil {
			return nil, ErrCorruptFile
		}
		h.EvalueParameters = plan7.EvalueParameters{
			MsvMu: v[0], MsvLambda: v[1],
			ViterbiMu: v[2], ViterbiLambda: v[3],
			ForwardTau: v[4], ForwardLambda: v[5],
		}
		h.EvalueParameters.SetCalibrated()
	}
	for _, set := range []struct {
		flag uint32
		set  func(float32, float32)
	}{
		{flagHasGA, h.Cutoffs.SetGathering},
		{flagHasTC, h.Cutoffs.SetTrusted},
		{flagHasNC, h.Cutoffs.SetNoise},
	} {
		if flags&set.flag != 0 {
			var v [2]float32
			if err := binary.Read(r, be, &v); err != nil {
				return nil, ErrCorruptFile
			}
			set.set(v[0], v[1])
		}
	}
	return h, nil
}

// indexEntry is one record of the .h3i file.
type indexEntry struct {
	Name    string
	M       int
	Offsets plan7.Offsets
}

// Press converts models into the pressed four-file database at stem.
// Offsets of the written records are returned in index order.
func Press(hmms []*plan7.HMM, stem string) ([]plan7.Offsets, error) {
	if len(hmms) == 0 {
		return nil, fmt.Errorf("%w: no models to press", plan7.ErrInvalidParameter)
	}

	type outFile struct {
		fh *os.File
		w  *countingWriter
	}
	open := func(ext string, magic [4]byte) (*outFile, error) {
		fh, err := os.Create(stem + ext)
		if err != nil {
			return nil, errors.Wrap(err, stem+ext)
		}
		w := newCountingWriter(fh)
		if err := writeFileHeader(w, magic); err != nil {
			fh.Close()
			return nil, err
		}
		return &outFile{fh: fh, w: w}, nil
	}

	fm, err := open(ExtModel, MagicModel)
	if err != nil {
		return nil, err
	}
	defer fm.fh.Close()
	ff, err := open(ExtFilter, MagicFilter)
	if err != nil {
		return nil, err
	}
	defer ff.fh.Close()
	fp, err := open(ExtProfile, MagicProfile)
	if err != nil {
		return nil, err
	}
	defer fp.fh.Close()

	entries := make([]indexEntry, 0, len(hmms))
	offsets := make([]plan7.Offsets, 0, len(hmms))
	for _, h := range hmms {
		bg := plan7.NewBackground(h.Alphabet)
		p := plan7.NewProfile(h.Alphabet, h.M)
		if err := p.Configure(h, bg, 400, true, true); err != nil {
			return nil, err
		}
		om, err := plan7.ConvertProfile(p)
		if err != nil {
			return nil, err
		}

		off := plan7.Offsets{Model: fm.w.n, Filter: ff.w.n, Profile: fp.w.n}
		if err := writeBinaryHMM(fm.w, h); err != nil {
			return nil, errors.Wrap(err, stem+ExtModel)
		}
		if err := writeFilterPart(ff.w, om); err != nil {
			return nil, errors.Wrap(err, stem+ExtFilter)
		}
		if err := writeProfilePart(fp.w, p); err != nil {
			return nil, errors.Wrap(err, stem+ExtProfile)
		}
		entries = append(entries, indexEntry{Name: h.Name, M: h.M, Offsets: off})
		offsets = append(offsets, off)
	}

	for _, f := range []*outFile{fm, ff, fp} {
		if err := f.w.Flush(); err != nil {
			return nil, err
		}
		if err := f.fh.Close(); err != nil {
			return nil, err
		}
	}

	// index file last, it references the three data files
	fi, err := os.Create(stem + ExtIndex)
	if err != nil {
		return nil, errors.Wrap(err, stem+ExtIndex)
	}
	defer fi.Close()
	w := bufio.NewWriter(fi)
	if err := writeFileHeader(w, MagicIndex); err != nil {
		return nil, err
	}
	if err := binary.Write(w, be, uint64(len(entries))); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := writeString(w, e.Name); err != nil {
			return nil, err
		}
		if err := binary.Write(w, be, uint32(e.M)); err != nil {
			return nil, err
		}
		for _, off := range []int64{e.Offsets.Model, e.Offsets.Filter, e.Offsets.Profile} {
			if err := binary.Write(w, be, off); err != nil {
				return nil, err
			}
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return offsets, fi.Close()
}

func writeFilterPart(w io.Writer, om *plan7.OptimizedProfile) error {
	if err := binary.Write(w, be, uint32(om.M)); err != nil {
		return err
	}
	if err := binary.Write(w, be, uint32(om.Q8)); err != nil {
		return err
	}
	if _, err := w.Write([]byte{om.Bias, om.TBM, om.TEC, om.Base}); err != nil {
		return err
	}
	for _, row := range om.Sbv {
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeProfilePart(w io.Writer, p *plan7.Profile) error {
	if err := binary.Write(w, be, uint32(p.M)); err != nil {
		return err
	}
	for _, row := range p.Msc {
		if err := writeF32s(w, sanitizeInf(row)); err != nil {
			return err
		}
	}
	for _, row := range p.Tsc {
		if err := writeF32s(w, sanitizeInf(row)); err != nil {
			return err
		}
	}
	if err := writeF32s(w, sanitizeInf(p.Bsc)); err != nil {
		return err
	}
	return writeF32s(w, sanitizeInf(p.Esc))
}

// sanitizeInf maps -Inf scores onto a large finite sentinel so the
// encoding stays portable.
func sanitizeInf(v []float32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		if math.IsInf(float64(x), -1) {
			out[i] = -math.MaxFloat32
		} else {
			out[i] = x
		}
	}
	return out
}

// countingWriter tracks the byte offset of a buffered file writer.
type countingWriter struct {
	w *bufio.Writer
	n int64
}

func newCountingWriter(w io.Writer) *countingWriter {
	return &countingWriter{w: bufio.NewWriter(w)}
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (cw *countingWriter) Flush() error { return cw.w.Flush() }

// PressedFile iterates the models of a pressed database as optimized
// profiles. It is a forward iterator with Rewind; Close is idempotent.
type PressedFile struct {
	stem string

	entries []indexEntry
	cursor  int

	fh     *os.File // the .h3m file
	closed bool
}

// OpenPressed opens a pressed database by its stem or by the path of
// any of its companion files.
func OpenPressed(path string) (*PressedFile, error) {
	stem := path
	switch ext := pathExt(path); ext {
	case ExtModel, ExtFilter, ExtIndex, ExtProfile:
		stem = path[:len(path)-len(ext)]
	}

	fi, err := os.Open(stem + ExtIndex)
	if err != nil {
		return nil, errors.Wrap(err, stem+ExtIndex)
	}
	defer fi.Close()
	r := bufio.NewReader(fi)
	if err := readFileHeader(r, MagicIndex); err != nil {
		return nil, errors.Wrap(err, stem+ExtIndex)
	}
	var n uint64
	if err := binary.Read(r, be, &n); err != nil {
		return nil, ErrCorruptFile
	}
	if n > 1<<40 {
		return nil, ErrCorruptFile
	}
	entries := make([]indexEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		var e indexEntry
		if e.Name, err = readString(r); err != nil {
			return nil, ErrCorruptFile
		}
		var m uint32
		if err := binary.Read(r, be, &m); err != nil {
			return nil, ErrCorruptFile
		}
		e.M = int(m)
		for _, p := range []*int64{&e.Offsets.Model, &e.Offsets.Filter, &e.Offsets.Profile} {
			if err := binary.Read(r, be, p); err != nil {
				return nil, ErrCorruptFile
			}
		}
		entries = append(entries, e)
	}

	fh, err := os.Open(stem + ExtModel)
	if err != nil {
		return nil, errors.Wrap(err, stem+ExtModel)
	}
	hdr := make([]byte, 8)
	if _, err := io.ReadFull(fh, hdr); err != nil {
		fh.Close()
		return nil, ErrCorruptFile
	}
	var got [4]byte
	copy(got[:], hdr[:4])
	if err := checkMagic(got, MagicModel); err != nil {
		fh.Close()
		return nil, err
	}

	return &PressedFile{stem: stem, entries: entries, fh: fh}, nil
}

func pathExt(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}

// Len returns the number of models in the database.
func (pf *PressedFile) Len() int { return len(pf.entries) }

// Closed reports whether Close has been called.
func (pf *PressedFile) Closed() bool { return pf.closed }

// Close releases the descriptor. Safe to call more than once.
func (pf *PressedFile) Close() error {
	if pf.closed {
		return nil
	}
	pf.closed = true
	return pf.fh.Close()
}

// Rewind restarts iteration from the first model.
func (pf *PressedFile) Rewind() error {
	if pf.closed {
		return ErrClosed
	}
	pf.cursor = 0
	return nil
}

// Next returns the next model as an optimized profile with its
// database offsets attached, or nil at the end. Implements the scan
// pipeline's model iterator.
func (pf *PressedFile) Next() (*plan7.OptimizedProfile, error) {
	if pf.closed {
		return nil, ErrClosed
	}
	if pf.cursor >= len(pf.entries) {
		return nil, nil
	}
	e := pf.entries[pf.cursor]
	pf.cursor++

	if _, err := pf.fh.Seek(e.Offsets.Model, io.SeekStart); err != nil {
		return nil, err
	}
	h, err := readBinaryHMM(bufio.NewReader(pf.fh))
	if err != nil {
		return nil, err
	}
	if h.M != e.M || h.Name != e.Name {
		return nil, ErrCorruptFile
	}

	bg := plan7.NewBackground(h.Alphabet)
	p := plan7.NewProfile(h.Alphabet, h.M)
	if err := p.Configure(h, bg, 400, true, true); err != nil {
		return nil, err
	}
	om, err := plan7.ConvertProfile(p)
	if err != nil {
		return nil, err
	}
	om.Offsets = e.Offsets
	return om, nil
}

// ReadHMM reads the full model of index entry i, for callers that need
// the probability form.
func (pf *PressedFile) ReadHMM(i int) (*plan7.HMM, error) {
	if pf.closed {
		return nil, ErrClosed
	}
	if i < 0 || i >= len(pf.entries) {
		return nil, fmt.Errorf("%w: model index %d out of range", plan7.ErrInvalidParameter, i)
	}
	if _, err := pf.fh.Seek(pf.entries[i].Offsets.Model, io.SeekStart); err != nil {
		return nil, err
	}
	return readBinaryHMM(bufio.NewReader(pf.fh))
}
