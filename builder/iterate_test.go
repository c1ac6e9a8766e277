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
	"testing"

	"github.com/plan7go/plan7/plan7"
	"github.com/plan7go/plan7/search"
)

// TestIterativeSearchSelfConvergence: searching a query against a
// database holding only that query converges within two rounds.
func TestIterativeSearchSelfConvergence(t *testing.T) {
	opt := fastCalibration()
	b, err := NewBuilder(plan7.Amino, &opt)
	if err != nil {
		t.Fatal(err)
	}
	pl, err := search.NewPipeline(plan7.Amino, nil)
	if err != nil {
		t.Fatal(err)
	}

	query, err := plan7.NewDigitalSequence(plan7.Amino, "query",
		[]byte("MKVLAARTWEGHILKMFPSTWYVACDEFGH"))
	if err != nil {
		t.Fatal(err)
	}
	targets, err := plan7.NewDigitalSequenceBlock(plan7.Amino, query.Copy())
	if err != nil {
		t.Fatal(err)
	}

	it, err := NewIterativeSearch(pl, b, query, targets)
	if err != nil {
		t.Fatal(err)
	}

	var rounds int
	for rounds = 0; rounds < 4; rounds++ {
		result, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if result == nil {
			break
		}
		t.Logf("round %d: included %d, converged %v",
			result.Iteration, len(result.Hits.Included()), result.Converged)
		if result.Iteration == 1 && len(result.Hits.Included()) != 1 {
			t.Fatalf("round 1 included %d hits, want the self hit", len(result.Hits.Included()))
		}
		if result.Converged {
			if result.Iteration > 2 {
				t.Fatalf("converged at iteration %d, want <= 2", result.Iteration)
			}
			break
		}
	}
	if !it.Converged() {
		t.Fatal("iterative search did not converge")
	}

	// after convergence the iterator is exhausted
	result, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Fatal("iterator yielded a result after convergence")
	}
}

// TestIterativeSearchSelectHits: the callback can veto inclusion.
func TestIterativeSearchSelectHits(t *testing.T) {
	opt := fastCalibration()
	b, _ := NewBuilder(plan7.Amino, &opt)
	pl, _ := search.NewPipeline(plan7.Amino, nil)

	query, _ := plan7.NewDigitalSequence(plan7.Amino, "query",
		[]byte("MKVLAARTWEGHILKMFPSTWYVACDEFGH"))
	targets, _ := plan7.NewDigitalSequenceBlock(plan7.Amino, query.Copy())

	it, err := NewIterativeSearch(pl, b, query, targets)
	if err != nil {
		t.Fatal(err)
	}
	it.SelectHits = func(th *search.TopHits) {
		for _, h := range th.Hits {
			h.Included = false
			for _, d := range h.Domains {
				d.Included = false
			}
		}
	}
	result, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hits.Included()) != 0 {
		t.Fatal("SelectHits veto ignored")
	}
}
