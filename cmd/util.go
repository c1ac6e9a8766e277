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

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"

	"github.com/plan7go/plan7/plan7"
)

// guessAlphabet maps a detected bio alphabet onto ours.
func guessAlphabet(s *seq.Seq) (*plan7.Alphabet, error) {
	switch s.Alphabet {
	case seq.DNA, seq.DNAredundant:
		return plan7.DNA, nil
	case seq.RNA, seq.RNAredundant:
		return plan7.RNA, nil
	case seq.Protein:
		return plan7.Amino, nil
	}
	return nil, fmt.Errorf("unsupported sequence alphabet: %s", s.Alphabet)
}

// parseAlphabetFlag resolves the --alphabet flag, "" meaning detect.
func parseAlphabetFlag(tag string) (*plan7.Alphabet, error) {
	if tag == "" || tag == "auto" {
		return nil, nil
	}
	typ, err := plan7.ParseAlphabetType(tag)
	if err != nil {
		return nil, err
	}
	return plan7.AlphabetFor(typ)
}

// readSequences reads a FASTA/Q file into a sequence block, detecting
// the alphabet from the first record when alpha is nil.
func readSequences(file string, alpha *plan7.Alphabet) (*plan7.DigitalSequenceBlock, *plan7.Alphabet, error) {
	seq.ValidateSeq = false
	reader, err := fastx.NewDefaultReader(file)
	if err != nil {
		return nil, nil, err
	}

	var block *plan7.DigitalSequenceBlock
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, err
		}
		if alpha == nil {
			alpha, err = guessAlphabet(record.Seq)
			if err != nil {
				return nil, nil, err
			}
		}
		if block == nil {
			block, _ = plan7.NewDigitalSequenceBlock(alpha)
		}
		s, err := plan7.NewDigitalSequence(alpha, string(record.ID), record.Seq.Seq)
		if err != nil {
			return nil, nil, err
		}
		s.Description = strings.TrimSpace(strings.TrimPrefix(string(record.Name), string(record.ID)))
		if err = block.Append(s); err != nil {
			return nil, nil, err
		}
	}
	if block == nil || block.Len() == 0 {
		return nil, nil, fmt.Errorf("no sequences found in %s", file)
	}
	return block, alpha, nil
}

// outWriter writes plain or parallel-gzip output depending on the
// file suffix.
type outWriter struct {
	fh  *os.File
	gz  *pgzip.Writer
	buf *bufio.Writer
}

func newOutWriter(file string, opt *Options) (*outWriter, error) {
	w := &outWriter{}
	if file == "-" || file == "" {
		w.fh = os.Stdout
	} else {
		fh, err := os.Create(file)
		if err != nil {
			return nil, err
		}
		w.fh = fh
	}
	if strings.HasSuffix(file, ".gz") && opt.Compress {
		gz, err := pgzip.NewWriterLevel(w.fh, opt.CompressionLevel)
		if err != nil {
			return nil, err
		}
		gz.SetConcurrency(1<<20, opt.NumCPUs)
		w.gz = gz
		w.buf = bufio.NewWriter(gz)
	} else {
		w.buf = bufio.NewWriter(w.fh)
	}
	return w, nil
}

func (w *outWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *outWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			return err
		}
	}
	if w.fh != os.Stdout {
		return w.fh.Close()
	}
	return nil
}
