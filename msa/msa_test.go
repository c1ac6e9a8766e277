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

package msa

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/plan7go/plan7/plan7"
)

func TestNewTextMSARejectsRaggedRows(t *testing.T) {
	_, err := NewTextMSA("x", []string{"a", "b"}, [][]byte{[]byte("ACGT"), []byte("ACG")})
	if err == nil {
		t.Fatal("expected an error for ragged rows")
	}
}

func TestDigitizeAndBack(t *testing.T) {
	text, err := NewTextMSA("x", []string{"a", "b"},
		[][]byte{[]byte("AC-GT"), []byte("ACAGT")})
	if err != nil {
		t.Fatal(err)
	}
	d, err := text.Digitize(plan7.DNA)
	if err != nil {
		t.Fatal(err)
	}
	if d.Alen() != 5 || d.Nseq() != 2 {
		t.Fatalf("alen/nseq = %d/%d, want 5/2", d.Alen(), d.Nseq())
	}
	back := d.Textize()
	if string(back.Rows[0]) != "AC-GT" {
		t.Fatalf("textize row = %s, want AC-GT", back.Rows[0])
	}

	s := d.Sequence(0)
	if string(s.Text()) != "ACGT" {
		t.Fatalf("degapped sequence = %s, want ACGT", s.Text())
	}
}

func TestReadWriteFasta(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "aln.fasta")
	content := ">a\nAC-GT\n>b\nACAGT\n"
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := ReadFasta(file)
	if err != nil {
		t.Fatal(err)
	}
	if m.Nseq() != 2 || m.Alen() != 5 {
		t.Fatalf("nseq/alen = %d/%d, want 2/5", m.Nseq(), m.Alen())
	}

	out := filepath.Join(dir, "out.fasta")
	if err := m.WriteFasta(out); err != nil {
		t.Fatal(err)
	}
	m2, err := ReadFasta(out)
	if err != nil {
		t.Fatal(err)
	}
	if m2.Nseq() != 2 || string(m2.Rows[0]) != "AC-GT" {
		t.Fatalf("round trip broke the alignment: %q", m2.Rows[0])
	}
}
